// Package pipeline runs the ordered integration stage chain
// that turns a submitted study file into indexed, annotated
// datasets.
package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/epivar-cloud/epivar/internal/models"
	"github.com/epivar-cloud/epivar/internal/stats"
)

// Stage names, in the order they can appear in a chain.
const (
	StageInit         = "init"
	StageValidate     = "validate"
	StageIntersect    = "intersect-reference"
	StageExpandPairs  = "expand-pairs"
	StageAdjust       = "adjust-pvalues"
	StageComputeScore = "compute-score"
	StageMaterialize  = "materialize-dataset"
	StageLiftover     = "liftover"
	StageSortIndex    = "sort-index"
	StageAnnotate     = "annotate"
	StagePlots        = "plots"
)

// StageRun statuses.
const (
	StageRunning   = "running"
	StageSucceeded = "succeeded"
	StageFailed    = "failed"
)

// DefaultLeaseTTL bounds how long a claimed study may sit
// between status transitions before another node is allowed
// to reclaim it. Every transition renews the lease by this
// much, so only a stalled or crashed node loses its claim.
const DefaultLeaseTTL = 5 * time.Minute

var (
	// ErrReferenceMismatch is returned when too few submitted
	// rows intersect the reference chromosome extents. The
	// failure is deterministic; resubmission with corrected
	// data is the only remedy.
	ErrReferenceMismatch = errors.New("pipeline: reference overlap below threshold")

	// ErrTerminalStudy is returned when a run is requested for
	// a study already in a terminal status.
	ErrTerminalStudy = errors.New("pipeline: study already in terminal status")

	// ErrUnknownStudyKind is returned for a study kind with no
	// registered stage chain.
	ErrUnknownStudyKind = errors.New("pipeline: unknown study kind")

	// ErrLeaseLost is returned when a status transition finds
	// the study no longer claimed by this node. The run aborts
	// without touching the row; its new owner drives it now.
	ErrLeaseLost = errors.New("pipeline: study lease lost to another node")
)

// Stage is one unit of the integration chain. Run mutates the
// study's files and rows; any returned error fails the whole
// chain.
type Stage struct {
	Name string
	Run  func(ctx context.Context, p *Pipeline, study *models.Study) error
}

// Config tunes a pipeline instance. Zero values fall back to
// the documented defaults.
type Config struct {
	// DataRoot is the directory under which study and dataset
	// artifacts are written.
	DataRoot string

	// OverlapThreshold is the minimum fraction of submitted
	// rows that must intersect the reference extents.
	OverlapThreshold float64

	// CorrectionMethod adjusts submission p-values during the
	// adjust stage.
	CorrectionMethod string

	ChecksumRetries    uint
	ChecksumRetryDelay time.Duration

	// NodeID is the worker identity holding study leases. When
	// set, every status transition is conditional on the claim
	// still belonging to this node and renews it by LeaseTTL.
	// When empty, transitions apply unconditionally.
	NodeID string

	// LeaseTTL is how far each transition pushes the claim
	// expiry forward.
	LeaseTTL time.Duration
}

// Pipeline executes stage chains against one database.
type Pipeline struct {
	db  *gorm.DB
	cfg Config
}

func New(db *gorm.DB, cfg Config) *Pipeline {
	if cfg.OverlapThreshold <= 0 {
		cfg.OverlapThreshold = 0.9999
	}
	if cfg.CorrectionMethod == "" {
		cfg.CorrectionMethod = stats.FDRBY
	}
	if cfg.ChecksumRetryDelay <= 0 {
		cfg.ChecksumRetryDelay = time.Second
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = DefaultLeaseTTL
	}
	return &Pipeline{db: db, cfg: cfg}
}

// DB exposes the underlying connection for services sharing
// the pipeline's handle.
func (p *Pipeline) DB() *gorm.DB {
	return p.db
}

// Definition returns the ordered stage chain for a study
// kind. Interaction studies expand locus pairs into two BED
// rows before p-value adjustment; profiling studies carry no
// p-values, so they map the methylation estimate into the
// score column and skip adjustment and annotation.
func Definition(kind models.StudyKind) ([]Stage, error) {
	switch kind {
	case models.StudyAssociation:
		return []Stage{
			{StageInit, stageInit},
			{StageValidate, stageValidate},
			{StageIntersect, stageIntersect},
			{StageAdjust, stageAdjust},
			{StageMaterialize, stageMaterialize},
			{StageLiftover, stageLiftover},
			{StageSortIndex, stageSortIndex},
			{StageAnnotate, stageAnnotate},
			{StagePlots, stagePlots},
		}, nil
	case models.StudyInteraction:
		return []Stage{
			{StageInit, stageInit},
			{StageValidate, stageValidate},
			{StageIntersect, stageIntersect},
			{StageExpandPairs, stageExpandPairs},
			{StageAdjust, stageAdjust},
			{StageMaterialize, stageMaterialize},
			{StageLiftover, stageLiftover},
			{StageSortIndex, stageSortIndex},
			{StageAnnotate, stageAnnotate},
			{StagePlots, stagePlots},
		}, nil
	case models.StudyProfiling:
		return []Stage{
			{StageInit, stageInit},
			{StageValidate, stageValidate},
			{StageIntersect, stageIntersect},
			{StageComputeScore, stageComputeScore},
			{StageMaterialize, stageMaterialize},
			{StageLiftover, stageLiftover},
			{StageSortIndex, stageSortIndex},
			{StagePlots, stagePlots},
		}, nil
	}
	return nil, errors.Wrapf(ErrUnknownStudyKind, "%s", kind)
}
