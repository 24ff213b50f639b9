package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AnalysisKind tags the one-shot analysis engines.
type AnalysisKind string

const (
	AnalysisGSEA AnalysisKind = "gsea"
	AnalysisLOA  AnalysisKind = "loa"
	AnalysisSOA  AnalysisKind = "soa"
)

// AnalysisInput distinguishes interval files from plain
// gene lists for GSEA submissions.
type AnalysisInput string

const (
	InputGenomicIntervals AnalysisInput = "genomic_intervals"
	InputGeneNames        AnalysisInput = "gene_names"
)

// Alternative selects the sidedness of exact tests.
type Alternative string

const (
	AlternativeGreater  Alternative = "greater"
	AlternativeLess     Alternative = "less"
	AlternativeTwoSided Alternative = "two-sided"
)

// PermutationCounts is the fixed menu of shuffle counts
// offered for background-free locus overlap analysis.
var PermutationCounts = []int{10, 25, 50}

// Analysis is a one-shot, non-pipelined computation: GSEA,
// locus overlap, or study overlap. Results are populated
// exactly once on completion; failure leaves them null and
// records the error.
type Analysis struct {
	ID    uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Kind  AnalysisKind `gorm:"type:text;index;not null" json:"kind"`
	Title string       `json:"title,omitempty"`

	ReferenceGenomeID uuid.UUID        `gorm:"type:uuid;index;not null" json:"reference_genome_id"`
	ReferenceGenome   *ReferenceGenome `gorm:"foreignKey:ReferenceGenomeID" json:"reference_genome,omitempty"`

	ForegroundPath string `gorm:"not null" json:"foreground_path"`
	BackgroundPath string `json:"background_path,omitempty"`

	InputType AnalysisInput `gorm:"type:text;default:'genomic_intervals'" json:"input_type"`

	// GSEA options.
	Universe          GeneSetCollection `gorm:"type:text" json:"universe,omitempty"`
	NClosest          int               `gorm:"default:1" json:"n_closest"`
	MaxDistance       int               `gorm:"default:0" json:"max_distance"`
	RequireSameStrand bool              `gorm:"default:false" json:"require_same_strand"`

	// LOA options.
	Permutations int         `gorm:"default:10" json:"permutations"`
	Alternative  Alternative `gorm:"type:text;default:'two-sided'" json:"alternative"`

	SignificanceLevel float64 `gorm:"default:0.05" json:"significance_level"`
	CorrectionMethod  string  `gorm:"type:text;default:'fdr_by'" json:"correction_method"`

	Results datatypes.JSON `gorm:"type:json" json:"results,omitempty"`
	Error   string         `json:"error,omitempty"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}
