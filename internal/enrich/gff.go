// Package enrich implements the analysis engines: gene-set
// enrichment, locus overlap analysis and study overlap
// filtering.
package enrich

import (
	"io"
	"regexp"
	"strconv"

	"github.com/pkg/errors"

	"github.com/epivar-cloud/epivar/internal/interval"
)

// GFFFeature is one reference annotation row, carried as a
// BED6 record (gene name in the name column) plus the raw
// attribute string.
type GFFFeature struct {
	Rec        *interval.Record
	Type       string
	Attributes string
}

var gffNameRe = regexp.MustCompile(`Name=([^;]+)`)

// GeneName extracts the Name attribute, "" when absent.
func GeneName(attributes string) string {
	m := gffNameRe.FindStringSubmatch(attributes)
	if m == nil {
		return ""
	}
	return m[1]
}

// LoadGFF reads a GFF annotation file, converting the
// 1-based inclusive coordinates to half-open 0-based.
func LoadGFF(path string) ([]*GFFFeature, error) {
	r, err := interval.OpenLines(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var (
		out  []*GFFFeature
		line int
	)
	for {
		text, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if text == "" || text[0] == '#' {
			continue
		}

		fields := splitTabs(text)
		if len(fields) < 9 {
			return nil, &interval.ParseError{Line: line, Msg: "GFF rows have 9 columns"}
		}

		start, err1 := strconv.Atoi(fields[3])
		end, err2 := strconv.Atoi(fields[4])
		if err1 != nil || err2 != nil || start < 1 || end < start {
			return nil, &interval.ParseError{Line: line, Msg: "invalid GFF coordinates"}
		}

		chrom := interval.NormalizeChrom(fields[0])
		name := GeneName(fields[8])
		rec := &interval.Record{
			Chrom:  chrom,
			Start:  start - 1,
			End:    end,
			Fields: []string{chrom, strconv.Itoa(start - 1), strconv.Itoa(end), name, ".", fields[6]},
		}

		out = append(out, &GFFFeature{Rec: rec, Type: fields[2], Attributes: fields[8]})
	}

	if len(out) == 0 {
		return nil, errors.Errorf("%s holds no annotation rows", path)
	}
	return out, nil
}

func splitTabs(s string) []string {
	var (
		out  []string
		last int
	)
	for i := 0; i < len(s); i++ {
		if s[i] == '\t' {
			out = append(out, s[last:i])
			last = i + 1
		}
	}
	return append(out, s[last:])
}

// FallbackUniverse is the full annotated gene list of a
// reference, used when no background is supplied.
func FallbackUniverse(features []*GFFFeature, featureType string) []string {
	seen := map[string]bool{}
	var out []string
	for _, f := range features {
		if f.Type != featureType {
			continue
		}
		name := GeneName(f.Attributes)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// ErrEmptyAnnotation is returned when no query interval
// annotates under the given constraints.
var ErrEmptyAnnotation = errors.New("enrich: annotation produced no rows, relax the conditions")

// AnnotateOptions bound the closest-feature search.
type AnnotateOptions struct {
	FeatureType       string
	NClosest          int
	MaxDistance       int
	RequireSameStrand bool
}

// Annotation ties a query interval to a nearby feature.
type Annotation struct {
	Query      *interval.Record
	Feature    *GFFFeature
	Distance   int
	Attributes string
}

// Annotate finds for each query interval the nearest
// features of the requested type within the distance cutoff.
func Annotate(query []*interval.Record, features []*GFFFeature, opts AnnotateOptions) ([]Annotation, error) {
	if opts.FeatureType == "" {
		opts.FeatureType = "gene"
	}
	if opts.NClosest < 1 {
		opts.NClosest = 1
	}

	var (
		typed []*interval.Record
		byRec = map[*interval.Record]*GFFFeature{}
	)
	for _, f := range features {
		if f.Type != opts.FeatureType {
			continue
		}
		typed = append(typed, f.Rec)
		byRec[f.Rec] = f
	}

	hits, err := interval.Closest(query, typed, opts.NClosest, opts.MaxDistance, opts.RequireSameStrand)
	if err != nil {
		return nil, err
	}

	var out []Annotation
	for qi, q := range query {
		for _, h := range hits[qi] {
			f := byRec[h.Feature]
			out = append(out, Annotation{
				Query:      q,
				Feature:    f,
				Distance:   h.Distance,
				Attributes: f.Attributes,
			})
		}
	}

	if len(out) == 0 {
		return nil, ErrEmptyAnnotation
	}
	return out, nil
}

// ExtractGenes returns the unique gene names of an
// annotation set, in first-seen order.
func ExtractGenes(anns []Annotation) []string {
	seen := map[string]bool{}
	var out []string
	for _, a := range anns {
		name := GeneName(a.Attributes)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
