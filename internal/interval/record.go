// Package interval implements the genomic interval engine:
// parsing, sorting, intersection, closest-feature lookup,
// shuffling and block-compressed indexed storage. All
// coordinates are half-open, 0-based [start, end).
package interval

import (
	"fmt"
	"strconv"
	"strings"
)

// Chromosomes is the canonical human contig set, in sort
// order.
var Chromosomes = []string{
	"1", "2", "3", "4", "5", "6", "7", "8", "9", "10",
	"11", "12", "13", "14", "15", "16", "17", "18", "19",
	"20", "21", "22", "X", "Y", "MT",
}

var chromRank = func() map[string]int {
	m := make(map[string]int, len(Chromosomes))
	for i, c := range Chromosomes {
		m[c] = i
	}
	return m
}()

// NormalizeChrom strips a leading "chr" prefix to keep the
// canonical contig naming convention.
func NormalizeChrom(chrom string) string {
	return strings.TrimPrefix(chrom, "chr")
}

// ValidChrom reports whether chrom (after normalization) is
// one of the canonical contigs.
func ValidChrom(chrom string) bool {
	_, ok := chromRank[NormalizeChrom(chrom)]
	return ok
}

// ChromLess orders contigs canonically; unknown contigs sort
// after known ones, lexicographically.
func ChromLess(a, b string) bool {
	ra, aok := chromRank[a]
	rb, bok := chromRank[b]
	switch {
	case aok && bok:
		return ra < rb
	case aok:
		return true
	case bok:
		return false
	default:
		return a < b
	}
}

// ParseError reports a malformed interval row.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// Record is one interval row. Fields holds the complete
// tab-separated row; Chrom, Start and End mirror the first
// three columns so rewriting a record is lossless.
type Record struct {
	Chrom  string
	Start  int
	End    int
	Fields []string
}

// Name returns the BED name column, if present.
func (r *Record) Name() string {
	if len(r.Fields) > 3 {
		return r.Fields[3]
	}
	return ""
}

// Strand returns the BED strand column, if present.
func (r *Record) Strand() string {
	if len(r.Fields) > 5 {
		return r.Fields[5]
	}
	return "."
}

// Field returns column i, or "" when the row is narrower.
func (r *Record) Field(i int) string {
	if i >= 0 && i < len(r.Fields) {
		return r.Fields[i]
	}
	return ""
}

// Overlaps reports half-open overlap with [start, end) on
// the same contig.
func (r *Record) Overlaps(chrom string, start, end int) bool {
	return r.Chrom == chrom && r.Start < end && r.End > start
}

// Text renders the record as a tab-separated row.
func (r *Record) Text() string {
	return strings.Join(r.Fields, "\t")
}

// parseRecord builds a Record from split columns, validating
// the coordinate contract.
func parseRecord(fields []string, line int) (*Record, error) {
	if len(fields) < 3 {
		return nil, &ParseError{Line: line, Msg: fmt.Sprintf("expected at least 3 columns, got %d", len(fields))}
	}

	start, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, &ParseError{Line: line, Msg: fmt.Sprintf("invalid start %q", fields[1])}
	}

	end, err := strconv.Atoi(fields[2])
	if err != nil {
		return nil, &ParseError{Line: line, Msg: fmt.Sprintf("invalid end %q", fields[2])}
	}

	if start < 0 {
		return nil, &ParseError{Line: line, Msg: fmt.Sprintf("negative start %d", start)}
	}

	if start > end {
		return nil, &ParseError{Line: line, Msg: fmt.Sprintf("start %d > end %d", start, end)}
	}

	chrom := NormalizeChrom(fields[0])
	fields[0] = chrom

	return &Record{Chrom: chrom, Start: start, End: end, Fields: fields}, nil
}

// NewRecord builds a minimal BED3 record.
func NewRecord(chrom string, start, end int) *Record {
	chrom = NormalizeChrom(chrom)
	return &Record{
		Chrom:  chrom,
		Start:  start,
		End:    end,
		Fields: []string{chrom, strconv.Itoa(start), strconv.Itoa(end)},
	}
}

// SetCoords rewrites the record coordinates, keeping Fields
// in sync.
func (r *Record) SetCoords(chrom string, start, end int) {
	r.Chrom = NormalizeChrom(chrom)
	r.Start = start
	r.End = end
	r.Fields[0] = r.Chrom
	r.Fields[1] = strconv.Itoa(start)
	r.Fields[2] = strconv.Itoa(end)
}
