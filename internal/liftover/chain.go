// Package liftover remaps genomic coordinates between
// reference assemblies using UCSC chain files.
package liftover

import (
	"bufio"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/epivar-cloud/epivar/internal/interval"
)

// block is one gapless aligned segment, keyed by its source
// coordinates.
type block struct {
	srcStart, srcEnd int
	tgtStart         int

	tgtChrom  string
	tgtSize   int
	tgtStrand byte
	score     int64
}

// Mapper resolves source positions to target assembly
// positions. Build one with LoadChain.
type Mapper struct {
	blocks map[string][]block
}

// LoadChain parses a UCSC chain file, plain or gzipped.
func LoadChain(path string) (*Mapper, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open chain file %s", path)
	}
	defer f.Close()

	var src io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "gzip open chain file %s", path)
		}
		defer zr.Close()
		src = zr
	}

	m := &Mapper{blocks: make(map[string][]block)}
	if err := m.parse(src); err != nil {
		return nil, errors.Wrapf(err, "parse chain file %s", path)
	}

	for chrom := range m.blocks {
		bs := m.blocks[chrom]
		sort.Slice(bs, func(i, j int) bool {
			if bs[i].srcStart != bs[j].srcStart {
				return bs[i].srcStart < bs[j].srcStart
			}
			// higher-scoring chains win ties
			return bs[i].score > bs[j].score
		})
		m.blocks[chrom] = bs
	}

	if len(m.blocks) == 0 {
		return nil, errors.Errorf("chain file %s holds no alignments", path)
	}
	return m, nil
}

func (m *Mapper) parse(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var (
		inChain   bool
		srcChrom  string
		srcPos    int
		tgtChrom  string
		tgtSize   int
		tgtStrand byte
		tgtPos    int
		score     int64
		line      int
	)

	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			inChain = false
			continue
		}

		fields := strings.Fields(text)
		if fields[0] == "chain" {
			// chain score tName tSize tStrand tStart tEnd
			//       qName qSize qStrand qStart qEnd id
			if len(fields) < 12 {
				return errors.Errorf("line %d: short chain header", line)
			}
			sc, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				return errors.Errorf("line %d: bad chain score %q", line, fields[1])
			}
			if fields[4] != "+" {
				return errors.Errorf("line %d: source strand must be +", line)
			}

			srcStart, err1 := strconv.Atoi(fields[5])
			qSize, err2 := strconv.Atoi(fields[8])
			qStart, err3 := strconv.Atoi(fields[10])
			if err1 != nil || err2 != nil || err3 != nil {
				return errors.Errorf("line %d: bad chain coordinates", line)
			}

			score = sc
			srcChrom = interval.NormalizeChrom(fields[2])
			srcPos = srcStart
			tgtChrom = interval.NormalizeChrom(fields[7])
			tgtSize = qSize
			tgtStrand = fields[9][0]
			tgtPos = qStart
			inChain = true
			continue
		}

		if !inChain {
			return errors.Errorf("line %d: alignment data outside a chain", line)
		}

		// size [dt dq]; the final line of a chain is bare size
		size, err := strconv.Atoi(fields[0])
		if err != nil {
			return errors.Errorf("line %d: bad block size %q", line, fields[0])
		}

		if size > 0 {
			m.blocks[srcChrom] = append(m.blocks[srcChrom], block{
				srcStart:  srcPos,
				srcEnd:    srcPos + size,
				tgtStart:  tgtPos,
				tgtChrom:  tgtChrom,
				tgtSize:   tgtSize,
				tgtStrand: tgtStrand,
				score:     score,
			})
		}

		switch len(fields) {
		case 1:
			inChain = false
		case 3:
			dt, err1 := strconv.Atoi(fields[1])
			dq, err2 := strconv.Atoi(fields[2])
			if err1 != nil || err2 != nil {
				return errors.Errorf("line %d: bad block gaps", line)
			}
			srcPos += size + dt
			tgtPos += size + dq
		default:
			return errors.Errorf("line %d: malformed alignment line", line)
		}
	}

	return scanner.Err()
}

// Lift maps a single source position. Positions on
// reverse-strand chains come back in forward target
// coordinates. The boolean is false when no chain covers the
// position.
func (m *Mapper) Lift(chrom string, pos int) (string, int, bool) {
	bs := m.blocks[interval.NormalizeChrom(chrom)]
	if len(bs) == 0 {
		return "", 0, false
	}

	// first block starting after pos; candidates end before it
	i := sort.Search(len(bs), func(i int) bool { return bs[i].srcStart > pos })
	for i--; i >= 0; i-- {
		b := bs[i]
		if pos >= b.srcEnd {
			// earlier blocks may still span pos when chains
			// overlap, so keep scanning backwards
			continue
		}
		tgt := b.tgtStart + (pos - b.srcStart)
		if b.tgtStrand == '-' {
			tgt = b.tgtSize - tgt - 1
		}
		return b.tgtChrom, tgt, true
	}

	return "", 0, false
}

// LiftInterval maps [start, end). Both boundary positions
// must land on the same target contig in order; anything
// else is reported unmapped.
func (m *Mapper) LiftInterval(chrom string, start, end int) (string, int, int, bool) {
	c1, ns, ok := m.Lift(chrom, start)
	if !ok {
		return "", 0, 0, false
	}
	c2, ne, ok := m.Lift(chrom, end-1)
	if !ok {
		return "", 0, 0, false
	}
	ne++

	if c1 != c2 || ns > ne {
		return "", 0, 0, false
	}
	return c1, ns, ne, true
}
