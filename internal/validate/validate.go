// Package validate checks submitted record files against
// their per-type column contracts before any interval
// computation runs.
package validate

import (
	"io"
	"strconv"

	"github.com/pkg/errors"

	"github.com/epivar-cloud/epivar/internal/interval"
	"github.com/epivar-cloud/epivar/pkg/compare"
)

// RecordType selects a column contract.
type RecordType string

const (
	AssociationRecord RecordType = "association_record"
	InteractionRecord RecordType = "interaction_record"
	ProfilingRecord   RecordType = "profiling_record"
	BEDRecord         RecordType = "bed_record"
	GeneListRecord    RecordType = "gene_list_record"
)

// ErrUnknownRecordType is returned for an unsupported record
// type name.
var ErrUnknownRecordType = errors.New("validate: unknown record type")

// Expected header order per record type. BED and gene-list
// submissions carry no header contract.
var (
	AssociationHeader = []string{
		"#chrom", "start", "end", "name", "score", "strand", "es", "p-value",
	}
	InteractionHeader = []string{
		"#chrom1", "start1", "end1", "chrom2", "start2", "end2",
		"name", "score", "strand1", "strand2", "es", "p-value",
	}
	ProfilingHeader = []string{
		"#chrom", "start", "end", "name", "score", "strand", "me",
	}
)

// Header returns the expected header order for a record
// type, nil when the type has none.
func Header(rt RecordType) []string {
	switch rt {
	case AssociationRecord:
		return AssociationHeader
	case InteractionRecord:
		return InteractionHeader
	case ProfilingRecord:
		return ProfilingHeader
	default:
		return nil
	}
}

// File validates a submission against the record type's
// contract. The header must match the declared column order
// exactly; rows are checked streaming and the first failure
// aborts with its 1-based row number.
func File(path string, rt RecordType) error {
	check, err := rowCheck(rt)
	if err != nil {
		return err
	}

	r, err := interval.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	header, err := r.Header()
	if err != nil {
		return err
	}

	if want := Header(rt); want != nil {
		if err := compare.StringSlice(header, want); err != nil {
			return errors.Wrapf(err, "header must be %v, got %v", want, header)
		}
	}

	row := 0
	for {
		rec, err := r.Next()
		row++
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if perr, ok := err.(*interval.ParseError); ok {
				return errors.Wrapf(perr, "invalid row number %d in %s", row, path)
			}
			return err
		}
		if err := check(rec); err != nil {
			return errors.Wrapf(err, "invalid row number %d in %s", row, path)
		}
	}
}

// GeneList validates a one-gene-per-line submission and
// returns the gene names.
func GeneList(path string) ([]string, error) {
	r, err := interval.OpenLines(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var genes []string
	row := 0
	for {
		line, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row++
		if len(line) == 0 {
			continue
		}
		for _, c := range line {
			if c == '\t' || c == ' ' {
				return nil, errors.Errorf("invalid row number %d in %s: gene names hold a single token", row, path)
			}
		}
		genes = append(genes, line)
	}

	if len(genes) == 0 {
		return nil, errors.Errorf("%s holds no gene names", path)
	}
	return genes, nil
}

func rowCheck(rt RecordType) (func(*interval.Record) error, error) {
	switch rt {
	case AssociationRecord:
		return associationRow, nil
	case InteractionRecord:
		return interactionRow, nil
	case ProfilingRecord:
		return profilingRow, nil
	case BEDRecord:
		return bedRow, nil
	default:
		return nil, errors.Wrap(ErrUnknownRecordType, string(rt))
	}
}

func bedRow(rec *interval.Record) error {
	if !interval.ValidChrom(rec.Chrom) {
		return errors.Errorf("chromosome %q is not a canonical contig", rec.Chrom)
	}
	return nil
}

func associationRow(rec *interval.Record) error {
	if err := bedRow(rec); err != nil {
		return err
	}
	if len(rec.Fields) != len(AssociationHeader) {
		return errors.Errorf("expected %d columns, got %d", len(AssociationHeader), len(rec.Fields))
	}
	if err := scoreValue(rec.Field(4)); err != nil {
		return err
	}
	if err := strandValue(rec.Field(5)); err != nil {
		return err
	}
	if err := probability("es", rec.Field(6)); err != nil {
		return err
	}
	return probability("p-value", rec.Field(7))
}

func profilingRow(rec *interval.Record) error {
	if err := bedRow(rec); err != nil {
		return err
	}
	if len(rec.Fields) != len(ProfilingHeader) {
		return errors.Errorf("expected %d columns, got %d", len(ProfilingHeader), len(rec.Fields))
	}
	if err := scoreValue(rec.Field(4)); err != nil {
		return err
	}
	if err := strandValue(rec.Field(5)); err != nil {
		return err
	}

	me, err := strconv.ParseFloat(rec.Field(6), 64)
	if err != nil || me < 0 {
		return errors.Errorf("me must be a non-negative number, got %q", rec.Field(6))
	}
	return nil
}

func interactionRow(rec *interval.Record) error {
	if err := bedRow(rec); err != nil {
		return err
	}
	if len(rec.Fields) != len(InteractionHeader) {
		return errors.Errorf("expected %d columns, got %d", len(InteractionHeader), len(rec.Fields))
	}

	start2, err := strconv.Atoi(rec.Field(4))
	if err != nil || start2 < 0 {
		return errors.Errorf("start2 must be a non-negative integer, got %q", rec.Field(4))
	}
	end2, err := strconv.Atoi(rec.Field(5))
	if err != nil || end2 < 0 {
		return errors.Errorf("end2 must be a non-negative integer, got %q", rec.Field(5))
	}
	if start2 > end2 {
		return errors.Errorf("start2 %d > end2 %d", start2, end2)
	}

	if err := scoreValue(rec.Field(7)); err != nil {
		return err
	}
	if err := strandValue(rec.Field(8)); err != nil {
		return err
	}
	if err := strandValue(rec.Field(9)); err != nil {
		return err
	}
	if err := probability("es", rec.Field(10)); err != nil {
		return err
	}
	return probability("p-value", rec.Field(11))
}

func scoreValue(v string) error {
	if v != "." {
		return errors.Errorf("score must be %q, got %q", ".", v)
	}
	return nil
}

func strandValue(v string) error {
	switch v {
	case "+", "-", ".":
		return nil
	}
	return errors.Errorf("strand must be one of + - ., got %q", v)
}

func probability(name, v string) error {
	p, err := strconv.ParseFloat(v, 64)
	if err != nil || p < 0 || p > 1 {
		return errors.Errorf("%s must be in [0, 1], got %q", name, v)
	}
	return nil
}
