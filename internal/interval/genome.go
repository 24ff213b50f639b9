package interval

import (
	"bufio"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Genome holds chromosome extents, loaded from either the
// flat "chrom<TAB>size" table or its BED form
// ("chrom<TAB>0<TAB>size").
type Genome struct {
	names []string
	sizes map[string]int
	total int64
}

// LoadGenome reads a chromosome-size file in flat or BED
// form.
func LoadGenome(path string) (*Genome, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open genome file %s", path)
	}
	defer f.Close()

	g := &Genome{sizes: make(map[string]int)}

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.Split(text, "\t")

		var sizeCol string
		switch len(fields) {
		case 2:
			sizeCol = fields[1]
		case 3:
			sizeCol = fields[2]
		default:
			return nil, &ParseError{Line: line, Msg: "genome files have 2 or 3 columns"}
		}

		size, err := strconv.Atoi(sizeCol)
		if err != nil || size <= 0 {
			return nil, &ParseError{Line: line, Msg: "invalid chromosome size " + sizeCol}
		}

		g.add(fields[0], size)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "read genome file %s", path)
	}

	if len(g.sizes) == 0 {
		return nil, errors.Errorf("no chromosomes in genome file %s", path)
	}

	g.finish()
	return g, nil
}

// NewGenome builds a genome from an explicit size table.
func NewGenome(sizes map[string]int) *Genome {
	g := &Genome{sizes: make(map[string]int, len(sizes))}
	for chrom, size := range sizes {
		g.add(chrom, size)
	}
	g.finish()
	return g
}

func (g *Genome) add(chrom string, size int) {
	chrom = NormalizeChrom(chrom)
	if _, ok := g.sizes[chrom]; !ok {
		g.names = append(g.names, chrom)
	}
	g.sizes[chrom] = size
}

func (g *Genome) finish() {
	sort.Slice(g.names, func(i, j int) bool { return ChromLess(g.names[i], g.names[j]) })
	g.total = 0
	for _, n := range g.names {
		g.total += int64(g.sizes[n])
	}
}

// Size returns the extent of a contig, 0 when unknown.
func (g *Genome) Size(chrom string) int {
	return g.sizes[NormalizeChrom(chrom)]
}

// Names returns the contigs in canonical order.
func (g *Genome) Names() []string {
	return g.names
}

// Records renders the genome as BED3 intervals spanning each
// contig.
func (g *Genome) Records() []*Record {
	recs := make([]*Record, 0, len(g.names))
	for _, n := range g.names {
		recs = append(recs, NewRecord(n, 0, g.sizes[n]))
	}
	return recs
}

// randomChrom picks a contig weighted by size among those
// long enough to hold an interval of the given length.
func (g *Genome) randomChrom(rng *rand.Rand, length int) (string, int) {
	var eligible int64
	for _, n := range g.names {
		if g.sizes[n] >= length {
			eligible += int64(g.sizes[n])
		}
	}
	if eligible == 0 {
		return "", 0
	}

	target := rng.Int63n(eligible)
	for _, n := range g.names {
		size := g.sizes[n]
		if size < length {
			continue
		}
		if target < int64(size) {
			return n, size
		}
		target -= int64(size)
	}

	return "", 0
}
