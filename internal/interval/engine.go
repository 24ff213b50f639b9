package interval

import (
	"math/rand"
	"sort"

	store "github.com/biogo/store/interval"
	"github.com/pkg/errors"
)

// treeInterval adapts a Record to the interval tree contract
// with half-open overlap semantics.
type treeInterval struct {
	start, end int
	id         uintptr
	rec        *Record
}

func (i treeInterval) Overlap(b store.IntRange) bool {
	return i.end > b.Start && i.start < b.End
}

func (i treeInterval) ID() uintptr { return i.id }

func (i treeInterval) Range() store.IntRange {
	return store.IntRange{Start: i.start, End: i.end}
}

// Index is a per-chromosome interval tree over a reference
// collection.
type Index struct {
	trees map[string]*store.IntTree
	recs  []*Record
}

// NewIndex builds an intersection index over ref.
func NewIndex(ref []*Record) (*Index, error) {
	idx := &Index{trees: make(map[string]*store.IntTree), recs: ref}

	for i, rec := range ref {
		tree, ok := idx.trees[rec.Chrom]
		if !ok {
			tree = &store.IntTree{}
			idx.trees[rec.Chrom] = tree
		}

		iv := treeInterval{start: rec.Start, end: rec.End, id: uintptr(i), rec: rec}
		if err := tree.Insert(iv, false); err != nil {
			return nil, errors.Wrap(err, "insert interval")
		}
	}

	return idx, nil
}

// Overlapping returns the reference records overlapping the
// query, in reference order.
func (x *Index) Overlapping(q *Record) []*Record {
	tree, ok := x.trees[q.Chrom]
	if !ok {
		return nil
	}

	hits := tree.Get(treeInterval{start: q.Start, end: q.End})
	if len(hits) == 0 {
		return nil
	}

	out := make([]*Record, 0, len(hits))
	for _, h := range hits {
		out = append(out, x.recs[h.ID()])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].End < out[j].End
	})
	return out
}

// Overlaps reports whether the query hits any reference
// interval.
func (x *Index) Overlaps(q *Record) bool {
	tree, ok := x.trees[q.Chrom]
	if !ok {
		return false
	}
	return len(tree.Get(treeInterval{start: q.Start, end: q.End})) > 0
}

// Intersect returns the query records that overlap at least
// one reference interval (bedtools "-u" semantics). An empty
// reference yields an empty result.
func Intersect(query, ref []*Record) ([]*Record, error) {
	idx, err := NewIndex(ref)
	if err != nil {
		return nil, err
	}

	out := make([]*Record, 0, len(query))
	for _, q := range query {
		if idx.Overlaps(q) {
			out = append(out, q)
		}
	}
	return out, nil
}

// IntersectCount counts query records overlapping the
// reference.
func IntersectCount(query, ref []*Record) (int, error) {
	hits, err := Intersect(query, ref)
	if err != nil {
		return 0, err
	}
	return len(hits), nil
}

// Hit is one closest-feature match.
type Hit struct {
	Feature  *Record
	Distance int
}

// Closest returns for each query up to k nearest reference
// features within maxDist bases. Overlapping features are at
// distance 0; bookended features at distance 1. With
// sameStrand set, features on a different strand are
// skipped.
func Closest(query, ref []*Record, k, maxDist int, sameStrand bool) ([][]Hit, error) {
	if k < 1 {
		k = 1
	}

	byChrom := make(map[string][]*Record)
	for _, r := range ref {
		byChrom[r.Chrom] = append(byChrom[r.Chrom], r)
	}
	for _, recs := range byChrom {
		sort.Slice(recs, func(i, j int) bool {
			if recs[i].Start != recs[j].Start {
				return recs[i].Start < recs[j].Start
			}
			return recs[i].End < recs[j].End
		})
	}

	out := make([][]Hit, len(query))
	for qi, q := range query {
		recs := byChrom[q.Chrom]
		if len(recs) == 0 {
			continue
		}

		// candidates around the insertion point, expanding
		// outward until k matches or the cutoff is passed
		pos := sort.Search(len(recs), func(i int) bool { return recs[i].Start >= q.Start })

		var hits []Hit
		lo, hi := pos-1, pos
		for len(hits) < k && (lo >= 0 || hi < len(recs)) {
			var cand *Record
			switch {
			case lo < 0:
				cand, hi = recs[hi], hi+1
			case hi >= len(recs):
				cand, lo = recs[lo], lo-1
			default:
				if distance(q, recs[lo]) <= distance(q, recs[hi]) {
					cand, lo = recs[lo], lo-1
				} else {
					cand, hi = recs[hi], hi+1
				}
			}

			d := distance(q, cand)
			if d > maxDist {
				if lo < 0 && hi >= len(recs) {
					break
				}
				// both frontiers may still hold closer
				// entries because intervals are sorted by
				// start, not by proximity
				continue
			}
			if sameStrand && q.Strand() != cand.Strand() {
				continue
			}
			hits = append(hits, Hit{Feature: cand, Distance: d})
		}

		sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
		out[qi] = hits
	}

	return out, nil
}

// distance between half-open intervals on one contig:
// 0 for overlap, 1 for bookended, else the gap plus one.
func distance(a, b *Record) int {
	if a.Start < b.End && b.Start < a.End {
		return 0
	}
	if a.End <= b.Start {
		return b.Start - a.End + 1
	}
	return a.Start - b.End + 1
}

// SortRecords orders records by (contig, start, end),
// stably, using the canonical contig order.
func SortRecords(recs []*Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Chrom != recs[j].Chrom {
			return ChromLess(recs[i].Chrom, recs[j].Chrom)
		}
		if recs[i].Start != recs[j].Start {
			return recs[i].Start < recs[j].Start
		}
		return recs[i].End < recs[j].End
	})
}

// Sorted reports whether records are in (contig, start)
// order.
func Sorted(recs []*Record) bool {
	for i := 1; i < len(recs); i++ {
		a, b := recs[i-1], recs[i]
		if a.Chrom == b.Chrom {
			if a.Start > b.Start {
				return false
			}
			continue
		}
		if !ChromLess(a.Chrom, b.Chrom) {
			return false
		}
	}
	return true
}

// Shuffle places each record uniformly at random within the
// genome's chromosome extents, preserving lengths. Contigs
// are chosen weighted by size, like bedtools shuffle.
func Shuffle(recs []*Record, g *Genome, rng *rand.Rand) []*Record {
	out := make([]*Record, 0, len(recs))

	for _, rec := range recs {
		length := rec.End - rec.Start
		chrom, size := g.randomChrom(rng, length)
		if chrom == "" {
			// no contig can hold the interval; keep it in
			// place rather than dropping it
			out = append(out, NewRecord(rec.Chrom, rec.Start, rec.End))
			continue
		}

		start := 0
		if size-length > 0 {
			start = rng.Intn(size - length + 1)
		}
		out = append(out, NewRecord(chrom, start, start+length))
	}

	return out
}
