// Package plots computes the numeric summaries persisted
// with each dataset; rendering happens downstream.
package plots

import (
	"io"
	"math"
	"math/rand"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/epivar-cloud/epivar/internal/interval"
)

// sampleSeed keeps downsampling reproducible across reruns.
const sampleSeed = 101

const (
	manhattanSample = 25_000
	qqSample        = 10_000
	violinBins      = 30
)

// GenomewideLine is the conventional genome-wide
// significance threshold on the -log10 scale.
var GenomewideLine = -math.Log10(5e-8)

// Manhattan is a cumulative-position scatter summary.
type Manhattan struct {
	Chrom    []string  `json:"chrom"`
	Position []int64   `json:"position"`
	Value    []float64 `json:"value"`
	Name     []string  `json:"name"`

	Ticks      []float64 `json:"ticks"`
	TickLabels []string  `json:"tick_labels"`
	Threshold  float64   `json:"threshold"`
}

// QQ compares observed p-values against the uniform
// expectation on the -log10 scale.
type QQ struct {
	Expected  []float64 `json:"expected"`
	Observed  []float64 `json:"observed"`
	Name      []string  `json:"name"`
	Inflation float64   `json:"inflation_factor"`
}

// Bar is a descending count summary.
type Bar struct {
	Labels []string `json:"labels"`
	Counts []int64  `json:"counts"`
}

// Violin summarizes a value distribution with quantiles and
// a fixed-bin histogram.
type Violin struct {
	Min       float64   `json:"min"`
	Q1        float64   `json:"q1"`
	Median    float64   `json:"median"`
	Q3        float64   `json:"q3"`
	Max       float64   `json:"max"`
	Mean      float64   `json:"mean"`
	BinEdges  []float64 `json:"bin_edges"`
	BinCounts []int64   `json:"bin_counts"`
}

type row struct {
	chrom string
	pos   int
	value float64
	name  string
}

// loadRows reads (chrom, pos, valueCol, name) tuples,
// skipping rows whose value column does not parse.
func loadRows(path, valueCol string) ([]row, error) {
	r, err := interval.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	header, err := r.Header()
	if err != nil {
		return nil, err
	}

	valueIdx, nameIdx := -1, -1
	for i, col := range header {
		switch col {
		case valueCol:
			valueIdx = i
		case "name":
			nameIdx = i
		}
	}
	if valueIdx < 0 {
		return nil, errors.Errorf("%s has no %q column", path, valueCol)
	}

	var rows []row
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		v, err := strconv.ParseFloat(rec.Field(valueIdx), 64)
		if err != nil || math.IsNaN(v) {
			continue
		}

		name := ""
		if nameIdx >= 0 {
			name = rec.Field(nameIdx)
		}
		rows = append(rows, row{chrom: rec.Chrom, pos: rec.Start, value: v, name: name})
	}

	if len(rows) == 0 {
		return nil, errors.Errorf("%s holds no plottable rows", path)
	}
	return rows, nil
}

// downsample keeps at most n rows, chosen reproducibly.
func downsample(rows []row, n int) []row {
	if len(rows) <= n {
		return rows
	}

	rng := rand.New(rand.NewSource(sampleSeed))
	perm := rng.Perm(len(rows))[:n]
	sort.Ints(perm)

	out := make([]row, 0, n)
	for _, i := range perm {
		out = append(out, rows[i])
	}
	return out
}

// NewManhattan summarizes a dataset for a Manhattan plot;
// valueCol must already be on the -log10 scale.
func NewManhattan(path, valueCol string) (*Manhattan, error) {
	rows, err := loadRows(path, valueCol)
	if err != nil {
		return nil, err
	}
	rows = downsample(rows, manhattanSample)

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].chrom != rows[j].chrom {
			return interval.ChromLess(rows[i].chrom, rows[j].chrom)
		}
		return rows[i].pos < rows[j].pos
	})

	// cumulative offsets from per-chromosome maxima
	maxPos := map[string]int{}
	var chromOrder []string
	for _, r := range rows {
		if _, ok := maxPos[r.chrom]; !ok {
			chromOrder = append(chromOrder, r.chrom)
		}
		if r.pos > maxPos[r.chrom] {
			maxPos[r.chrom] = r.pos
		}
	}

	offsets := map[string]int64{}
	m := &Manhattan{Threshold: GenomewideLine}
	var cumulative int64
	for _, chrom := range chromOrder {
		offsets[chrom] = cumulative
		m.Ticks = append(m.Ticks, float64(cumulative)+float64(maxPos[chrom])/2)
		m.TickLabels = append(m.TickLabels, "chr"+chrom)
		cumulative += int64(maxPos[chrom])
	}

	for _, r := range rows {
		m.Chrom = append(m.Chrom, r.chrom)
		m.Position = append(m.Position, offsets[r.chrom]+int64(r.pos))
		m.Value = append(m.Value, r.value)
		m.Name = append(m.Name, r.name)
	}
	return m, nil
}

// NewQQ summarizes the p-value column against the uniform
// expectation.
func NewQQ(path, pvalCol string) (*QQ, error) {
	rows, err := loadRows(path, pvalCol)
	if err != nil {
		return nil, err
	}
	rows = downsample(rows, qqSample)

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].value < rows[j].value })

	n := len(rows)
	q := &QQ{}
	for i, r := range rows {
		expected := (float64(i+1) - 0.5) / float64(n)
		q.Expected = append(q.Expected, -math.Log10(expected))
		q.Observed = append(q.Observed, -math.Log10(r.value+math.SmallestNonzeroFloat64))
		q.Name = append(q.Name, r.name)
	}

	q.Inflation = median(q.Observed) / median(q.Expected)
	return q, nil
}

// NewBar orders counts descending.
func NewBar(counts map[string]int64) *Bar {
	type kv struct {
		label string
		count int64
	}
	items := make([]kv, 0, len(counts))
	for label, count := range counts {
		items = append(items, kv{label, count})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].count != items[j].count {
			return items[i].count > items[j].count
		}
		return items[i].label < items[j].label
	})

	b := &Bar{}
	for _, it := range items {
		b.Labels = append(b.Labels, it.label)
		b.Counts = append(b.Counts, it.count)
	}
	return b
}

// NewViolin summarizes the distribution of a value column.
func NewViolin(path, valueCol string) (*Violin, error) {
	rows, err := loadRows(path, valueCol)
	if err != nil {
		return nil, err
	}

	values := make([]float64, len(rows))
	for i, r := range rows {
		values[i] = r.value
	}
	sort.Float64s(values)

	v := &Violin{
		Min:    values[0],
		Q1:     quantileSorted(values, 0.25),
		Median: quantileSorted(values, 0.5),
		Q3:     quantileSorted(values, 0.75),
		Max:    values[len(values)-1],
		Mean:   stat.Mean(values, nil),
	}

	span := v.Max - v.Min
	if span == 0 {
		v.BinEdges = []float64{v.Min, v.Max}
		v.BinCounts = []int64{int64(len(values))}
		return v, nil
	}

	width := span / violinBins
	v.BinCounts = make([]int64, violinBins)
	for i := 0; i <= violinBins; i++ {
		v.BinEdges = append(v.BinEdges, v.Min+width*float64(i))
	}
	for _, x := range values {
		bin := int((x - v.Min) / width)
		if bin == violinBins {
			bin--
		}
		v.BinCounts[bin]++
	}
	return v, nil
}

func median(values []float64) float64 {
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)
	return quantileSorted(sorted, 0.5)
}

// quantileSorted linearly interpolates over a sorted slice.
func quantileSorted(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
