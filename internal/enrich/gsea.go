package enrich

import (
	"fmt"
	"sort"

	"github.com/epivar-cloud/epivar/internal/stats"
)

// GeneSetInput is one curated gene set to test.
type GeneSetInput struct {
	ID         string
	Name       string
	Collection string
	Genes      []string
}

// GSEAOptions tune the enrichment run.
type GSEAOptions struct {
	CorrectionMethod  string
	SignificanceLevel float64
}

// GSEAResult is one gene-set enrichment row. JSON keys
// mirror the reporting contract.
type GSEAResult struct {
	Term            string   `json:"Term"`
	Collection      string   `json:"Collection"`
	GeneSetID       string   `json:"gene_set_id"`
	Overlap         string   `json:"Overlap"`
	OverlapFraction float64  `json:"Overlap fraction"`
	Genes           []string `json:"Genes"`
	OddsRatio       *float64 `json:"Odds Ratio"`
	PValue          float64  `json:"P-value"`
	AdjustedPValue  float64  `json:"Adjusted P-value"`
	NegLogAdjusted  float64  `json:"-log10(Adjusted P-value)"`
	CombinedScore   *float64 `json:"Combined Score"`
}

// GSEA tests each gene set for over-representation of the
// foreground within the background universe, corrects the
// pooled p-values, filters at the significance level and
// ranks by descending odds ratio.
func GSEA(foreground, background []string, sets []GeneSetInput, opts GSEAOptions) ([]GSEAResult, error) {
	bg := stringSet(background)
	fg := map[string]bool{}
	for _, g := range foreground {
		if bg[g] {
			fg[g] = true
		}
	}

	nBg := len(bg)
	nFg := len(fg)

	var (
		rows    []GSEAResult
		pvalues []float64
	)
	for _, set := range sets {
		var (
			overlap  []string
			setInBg  int
			seenSetG = map[string]bool{}
		)
		for _, g := range set.Genes {
			if seenSetG[g] || !bg[g] {
				continue
			}
			seenSetG[g] = true
			setInBg++
			if fg[g] {
				overlap = append(overlap, g)
			}
		}
		if setInBg == 0 {
			continue
		}

		k := len(overlap)
		or, p, err := stats.SafeFisher(
			float64(k),
			float64(nFg-k),
			float64(setInBg-k),
			float64(nBg-nFg-setInBg+k),
			stats.Greater,
		)
		if err != nil {
			return nil, err
		}

		sort.Strings(overlap)
		rows = append(rows, GSEAResult{
			Term:            set.Name,
			Collection:      set.Collection,
			GeneSetID:       set.ID,
			Overlap:         fmt.Sprintf("%d/%d", k, setInBg),
			OverlapFraction: float64(k) / float64(setInBg),
			Genes:           overlap,
			OddsRatio:       or,
			PValue:          p,
		})
		pvalues = append(pvalues, p)
	}

	adjusted, err := stats.Adjust(pvalues, opts.CorrectionMethod, 0.05)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		attachAdjusted(&rows[i].AdjustedPValue, &rows[i].NegLogAdjusted, &rows[i].CombinedScore, adjusted[i], rows[i].OddsRatio)
	}

	rows = filterSignificant(rows, opts.SignificanceLevel)
	sortByOddsRatio(rows)
	return rows, nil
}

func attachAdjusted(adj, negLog *float64, combined **float64, value float64, or *float64) {
	*adj = value
	*negLog = stats.NegLog10(value)
	if or != nil {
		score := *negLog * *or
		*combined = &score
	}
}

func filterSignificant(rows []GSEAResult, alpha float64) []GSEAResult {
	out := rows[:0]
	for _, r := range rows {
		if r.AdjustedPValue <= alpha {
			out = append(out, r)
		}
	}
	return out
}

func sortByOddsRatio(rows []GSEAResult) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].OddsRatio, rows[j].OddsRatio
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a > *b
		}
	})
}

func stringSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[v] = true
	}
	return out
}
