package liftover

import (
	"io"
	"math"
	"strconv"

	"github.com/pkg/errors"

	"github.com/epivar-cloud/epivar/internal/interval"
)

// ErrEmptyLiftover is returned when no row of the input maps
// to the target assembly.
var ErrEmptyLiftover = errors.New("liftover: no rows mapped to the target assembly")

// Metrics summarizes one liftover run.
type Metrics struct {
	Total    int
	Remapped int
	Unmapped int
}

// Map renders the metrics in their reporting form, with
// fractions rounded to four decimals.
func (m Metrics) Map() map[string]interface{} {
	var unmappedFrac, remappedFrac float64
	if m.Total > 0 {
		unmappedFrac = round4(float64(m.Unmapped) / float64(m.Total))
		remappedFrac = round4(float64(m.Remapped) / float64(m.Total))
	}
	return map[string]interface{}{
		"Total rows":        m.Total,
		"Unmapped rows":     m.Unmapped,
		"Unmapped fraction": unmappedFrac,
		"Remapped rows":     m.Remapped,
		"Remapped fraction": remappedFrac,
	}
}

func round4(x float64) float64 {
	return math.Round(x*10_000) / 10_000
}

// LiftRecords remaps records in place order, dropping rows
// that fail to map.
func (m *Mapper) LiftRecords(recs []*interval.Record) ([]*interval.Record, Metrics) {
	out := make([]*interval.Record, 0, len(recs))
	metrics := Metrics{Total: len(recs)}

	for _, rec := range recs {
		chrom, start, end, ok := m.LiftInterval(rec.Chrom, rec.Start, rec.End)
		if !ok {
			metrics.Unmapped++
			continue
		}
		rec.SetCoords(chrom, start, end)
		out = append(out, rec)
		metrics.Remapped++
	}

	return out, metrics
}

// LiftFile streams rows from in to a BGZF file at out,
// remapping coordinates. With pairs set, rows carry a second
// locus in columns 4-6 and survive only when both loci map.
// A run in which rows exist but none map fails with
// ErrEmptyLiftover; an input with no rows is not an error.
func (m *Mapper) LiftFile(in, out string, pairs bool) (Metrics, error) {
	r, err := interval.Open(in)
	if err != nil {
		return Metrics{}, err
	}
	defer r.Close()

	header, err := r.Header()
	if err != nil {
		return Metrics{}, err
	}

	w, err := interval.NewWriter(out)
	if err != nil {
		return Metrics{}, err
	}

	if err := w.WriteHeader(header); err != nil {
		w.Close()
		return Metrics{}, err
	}

	var metrics Metrics
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			w.Close()
			return Metrics{}, err
		}

		metrics.Total++

		chrom, start, end, ok := m.LiftInterval(rec.Chrom, rec.Start, rec.End)
		if !ok {
			metrics.Unmapped++
			continue
		}

		if pairs {
			if !m.liftMate(rec) {
				metrics.Unmapped++
				continue
			}
		}

		rec.SetCoords(chrom, start, end)
		if err := w.WriteRecord(rec); err != nil {
			w.Close()
			return Metrics{}, err
		}
		metrics.Remapped++
	}

	if err := w.Close(); err != nil {
		return Metrics{}, err
	}

	if metrics.Total > 0 && metrics.Remapped == 0 {
		return metrics, ErrEmptyLiftover
	}
	return metrics, nil
}

// liftMate remaps the second locus of a paired row, held in
// columns 4-6.
func (m *Mapper) liftMate(rec *interval.Record) bool {
	if len(rec.Fields) < 6 {
		return false
	}

	start, err1 := strconv.Atoi(rec.Fields[4])
	end, err2 := strconv.Atoi(rec.Fields[5])
	if err1 != nil || err2 != nil {
		return false
	}

	chrom, ns, ne, ok := m.LiftInterval(rec.Fields[3], start, end)
	if !ok {
		return false
	}

	rec.Fields[3] = chrom
	rec.Fields[4] = strconv.Itoa(ns)
	rec.Fields[5] = strconv.Itoa(ne)
	return true
}
