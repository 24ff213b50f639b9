package stats

import (
	"io"
	"math"
	"strconv"

	"github.com/pkg/errors"

	"github.com/epivar-cloud/epivar/internal/interval"
)

// Column names attached by StreamAdjust.
var adjustedColumns = []string{"-log10(p-value)", "FDR", "-log10(FDR)", "score"}

// StreamAdjust corrects the p-value column of a record file
// in two passes: the first collects every p-value (the
// correction is a whole-dataset operation), the second
// re-streams the rows attaching FDR, -log10 transforms and
// the combined score, written block-compressed to out.
func StreamAdjust(in, out, method string, alpha float64) error {
	pIdx, esIdx, err := adjustColumns(in)
	if err != nil {
		return err
	}

	pvalues, err := collectColumn(in, pIdx)
	if err != nil {
		return err
	}

	fdrs, err := Adjust(pvalues, method, alpha)
	if err != nil {
		return err
	}

	r, err := interval.Open(in)
	if err != nil {
		return err
	}
	defer r.Close()

	header, err := r.Header()
	if err != nil {
		return err
	}

	w, err := interval.NewWriter(out)
	if err != nil {
		return err
	}

	if err := w.WriteHeader(append(append([]string{}, header...), adjustedColumns...)); err != nil {
		w.Close()
		return err
	}

	for i := 0; ; i++ {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			w.Close()
			return err
		}

		p := pvalues[i]
		fdr := fdrs[i]

		es := 1.0
		if esIdx >= 0 {
			es, err = strconv.ParseFloat(rec.Field(esIdx), 64)
			if err != nil {
				w.Close()
				return errors.Wrapf(err, "row %d: bad es value %q", i+1, rec.Field(esIdx))
			}
		}

		row := append(rec.Fields,
			formatFloat(NegLog10(p)),
			formatFloat(fdr),
			formatFloat(NegLog10(fdr)),
			formatFloat(NegLog10(fdr)*math.Abs(es)),
		)
		if err := w.WriteRow(row); err != nil {
			w.Close()
			return err
		}
	}

	return w.Close()
}

// adjustColumns locates the p-value and es columns; es is
// optional (-1 when absent).
func adjustColumns(path string) (int, int, error) {
	r, err := interval.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer r.Close()

	header, err := r.Header()
	if err != nil {
		return 0, 0, err
	}

	pIdx, esIdx := -1, -1
	for i, col := range header {
		switch col {
		case "p-value":
			pIdx = i
		case "es":
			esIdx = i
		}
	}
	if pIdx < 0 {
		return 0, 0, errors.Errorf("%s has no p-value column", path)
	}
	return pIdx, esIdx, nil
}

func collectColumn(path string, idx int) ([]float64, error) {
	r, err := interval.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if _, err := r.Header(); err != nil {
		return nil, err
	}

	var out []float64
	row := 0
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		row++

		v, err := strconv.ParseFloat(rec.Field(idx), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d: bad p-value %q", row, rec.Field(idx))
		}
		out = append(out, v)
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
