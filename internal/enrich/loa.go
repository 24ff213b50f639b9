package enrich

import (
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/epivar-cloud/epivar/internal/interval"
	"github.com/epivar-cloud/epivar/internal/stats"
)

// PermutationCounts is the fixed menu of shuffle counts.
var PermutationCounts = []int{10, 25, 50}

// FeatureSetInput is one genomic feature set to test.
type FeatureSetInput struct {
	ID         string
	Name       string
	Collection string
	Records    []*interval.Record
}

// LOAOptions tune a locus overlap run.
type LOAOptions struct {
	Alternative       string
	Permutations      int
	CorrectionMethod  string
	SignificanceLevel float64
	Seed              int64
}

// LOAResult is one locus-overlap row. The background columns
// hold shuffle means in shuffle mode; the foreground total
// doubles as the background total there.
type LOAResult struct {
	Collection        string   `json:"collection"`
	Name              string   `json:"name"`
	GenomicSetID      string   `json:"genomic_set_id"`
	ForegroundTotal   int      `json:"Foreground_total"`
	BackgroundTotal   float64  `json:"Background total"`
	ForegroundOverlap int      `json:"Foreground overlap"`
	BackgroundOverlap float64  `json:"Background overlap"`
	Ratio             float64  `json:"Foreground to background ratio"`
	OddsRatio         *float64 `json:"Odds Ratio"`
	PValue            float64  `json:"P-value"`
	AdjustedPValue    float64  `json:"Adjusted P-value"`
	NegLogAdjusted    float64  `json:"-log10(Adjusted P-value)"`
	CombinedScore     *float64 `json:"Combined Score"`
	Error             string   `json:"error,omitempty"`
}

// LOA tests foreground interval overlap against each feature
// set. With a background the contingency compares overlap
// fractions directly; without one the null comes from
// shuffling the foreground within the genome bounds. A
// per-set failure becomes an error row, not a run failure.
func LOA(fg, bg []*interval.Record, sets []FeatureSetInput, genome *interval.Genome, opts LOAOptions) ([]LOAResult, error) {
	rng := rand.New(rand.NewSource(opts.Seed))

	var (
		rows    []LOAResult
		pvalues []float64
		tested  []int
	)
	for _, set := range sets {
		row := LOAResult{Collection: set.Collection, Name: set.Name, GenomicSetID: set.ID}

		var err error
		if bg != nil {
			err = overlapWithBackground(&row, fg, bg, set.Records, opts.Alternative)
		} else {
			err = overlapWithShuffle(&row, fg, set.Records, genome, rng, opts.Permutations, opts.Alternative)
		}
		if err != nil {
			row.Error = err.Error()
			rows = append(rows, row)
			continue
		}

		tested = append(tested, len(rows))
		pvalues = append(pvalues, row.PValue)
		rows = append(rows, row)
	}

	adjusted, err := stats.Adjust(pvalues, opts.CorrectionMethod, 0.05)
	if err != nil {
		return nil, err
	}
	for i, ri := range tested {
		attachAdjustedLOA(&rows[ri], adjusted[i])
	}

	out := rows[:0]
	for _, r := range rows {
		if r.Error == "" && r.AdjustedPValue <= opts.SignificanceLevel {
			out = append(out, r)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].OddsRatio, out[j].OddsRatio
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a > *b
		}
	})
	return out, nil
}

func attachAdjustedLOA(row *LOAResult, adjusted float64) {
	row.AdjustedPValue = adjusted
	row.NegLogAdjusted = stats.NegLog10(adjusted)
	if row.OddsRatio != nil {
		score := row.NegLogAdjusted * *row.OddsRatio
		row.CombinedScore = &score
	}
}

func overlapWithBackground(row *LOAResult, fg, bg, ref []*interval.Record, alternative string) error {
	fgOverlap, err := interval.IntersectCount(fg, ref)
	if err != nil {
		return err
	}
	bgOverlap, err := interval.IntersectCount(bg, ref)
	if err != nil {
		return err
	}

	nFg, nBg := len(fg), len(bg)
	or, p, err := stats.SafeFisher(
		float64(fgOverlap), float64(nFg-fgOverlap),
		float64(bgOverlap), float64(nBg-bgOverlap),
		alternative,
	)
	if err != nil {
		return err
	}

	row.ForegroundTotal = nFg
	row.BackgroundTotal = float64(nBg)
	row.ForegroundOverlap = fgOverlap
	row.BackgroundOverlap = float64(bgOverlap)
	row.Ratio = overlapRatio(float64(fgOverlap), float64(nFg), float64(bgOverlap), float64(nBg))
	row.OddsRatio = or
	row.PValue = p
	return nil
}

func overlapWithShuffle(row *LOAResult, fg, ref []*interval.Record, genome *interval.Genome, rng *rand.Rand, permutations int, alternative string) error {
	fgOverlap, err := interval.IntersectCount(fg, ref)
	if err != nil {
		return err
	}

	overlaps := make([]float64, permutations)
	for i := 0; i < permutations; i++ {
		shuffled := interval.Shuffle(fg, genome, rng)
		n, err := interval.IntersectCount(shuffled, ref)
		if err != nil {
			return err
		}
		overlaps[i] = float64(n)
	}
	meanBg := stat.Mean(overlaps, nil)

	// the foreground total stands in for the background
	// total, matching the shuffle-null construction
	nFg := float64(len(fg))
	or, p, err := stats.SafeFisher(
		float64(fgOverlap), nFg-float64(fgOverlap),
		meanBg, nFg-meanBg,
		alternative,
	)
	if err != nil {
		return err
	}

	row.ForegroundTotal = len(fg)
	row.BackgroundTotal = nFg
	row.ForegroundOverlap = fgOverlap
	row.BackgroundOverlap = meanBg
	row.Ratio = overlapRatio(float64(fgOverlap), nFg, meanBg, nFg)
	row.OddsRatio = or
	row.PValue = p
	return nil
}

func overlapRatio(fgOverlap, fgTotal, bgOverlap, bgTotal float64) float64 {
	if fgTotal == 0 || bgTotal == 0 {
		return 0
	}
	fgFrac := fgOverlap / fgTotal
	bgFrac := bgOverlap / bgTotal
	if bgFrac == 0 {
		return 0
	}
	return fgFrac / bgFrac
}
