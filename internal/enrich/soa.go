package enrich

import (
	"strconv"

	"github.com/epivar-cloud/epivar/internal/interval"
)

// StudyDatasetInput points at one prior study's dataset at
// the analysis assembly. WithFDR restricts the overlap count
// to rows already meeting the stored FDR cutoff.
type StudyDatasetInput struct {
	StudyID  string
	Category string
	Path     string
	Link     string
	WithFDR  bool
}

// SOAResult is one study-overlap row.
type SOAResult struct {
	Study    string  `json:"Study"`
	Total    int     `json:"Total"`
	Ovp      int     `json:"Ovp"`
	Fraction float64 `json:"Fraction"`
	Link     string  `json:"Link"`
	Category string  `json:"Category"`
}

// SOA scans prior study datasets for overlap with the
// foreground, reporting overlap counts as fractions of the
// foreground size. This is a similarity scan, not a test.
func SOA(fg []*interval.Record, datasets []StudyDatasetInput, alpha float64) ([]SOAResult, error) {
	total := len(fg)

	results := make([]SOAResult, 0, len(datasets))
	for _, ds := range datasets {
		overlapping, err := overlappingStudyRows(fg, ds)
		if err != nil {
			return nil, err
		}

		ovp := len(overlapping)
		if ds.WithFDR {
			ovp, err = countBelowFDR(overlapping, ds.Path, alpha)
			if err != nil {
				return nil, err
			}
		}

		fraction := 0.0
		if total > 0 {
			fraction = float64(ovp) / float64(total)
		}

		results = append(results, SOAResult{
			Study:    ds.StudyID,
			Total:    total,
			Ovp:      ovp,
			Fraction: fraction,
			Link:     ds.Link,
			Category: ds.Category,
		})
	}
	return results, nil
}

// overlappingStudyRows returns the dataset rows overlapping
// the foreground.
func overlappingStudyRows(fg []*interval.Record, ds StudyDatasetInput) ([]*interval.Record, error) {
	_, recs, err := interval.ReadAll(ds.Path)
	if err != nil {
		return nil, err
	}
	return interval.Intersect(recs, fg)
}

// countBelowFDR counts rows whose stored FDR column is at or
// below alpha.
func countBelowFDR(rows []*interval.Record, path string, alpha float64) (int, error) {
	idx, err := columnIndex(path, "FDR")
	if err != nil {
		return 0, err
	}

	n := 0
	for _, rec := range rows {
		v, err := strconv.ParseFloat(rec.Field(idx), 64)
		if err != nil {
			continue
		}
		if v <= alpha {
			n++
		}
	}
	return n, nil
}

func columnIndex(path, name string) (int, error) {
	r, err := interval.Open(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	header, err := r.Header()
	if err != nil {
		return 0, err
	}
	for i, col := range header {
		if col == name {
			return i, nil
		}
	}
	return 0, &interval.ParseError{Line: 1, Msg: "no " + name + " column in " + path}
}
