// Package analysis exposes the one-shot analysis engines:
// gene set enrichment, locus overlap and study overlap. An
// analysis is created pending and executed exactly once;
// results or the failure reason are written back to its row.
package analysis

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/epivar-cloud/epivar/internal/models"
	"github.com/epivar-cloud/epivar/internal/stats"
	"github.com/epivar-cloud/epivar/pkg/db"
)

var (
	// ErrUnknownKind is returned for an unsupported engine name.
	ErrUnknownKind = errors.New("analysis: unknown analysis kind")

	// ErrUnknownGenome is returned when the submission names a
	// reference version with no published bundle.
	ErrUnknownGenome = errors.New("analysis: unknown reference genome version")

	// ErrBadPermutations is returned when the shuffle count is
	// off the fixed menu.
	ErrBadPermutations = errors.New("analysis: unsupported permutation count")

	// ErrCompleted is returned when execution is requested for
	// an analysis that already holds a result or an error.
	ErrCompleted = errors.New("analysis: already completed")
)

type Analysis interface {
	WithDatabase(*gorm.DB) Analysis
	List(*ListRequest) ([]*models.Analysis, error)
	Get(uuid.UUID) (*models.Analysis, error)
	Create(*CreateRequest) (*models.Analysis, error)
	Execute(uuid.UUID) error
}

type analysisService struct {
	ctx context.Context
	db  *gorm.DB
}

func Service(ctx context.Context) Analysis {
	return &analysisService{ctx: ctx}
}

func (a *analysisService) WithDatabase(conn *gorm.DB) Analysis {
	a.db = conn
	return a
}

func (a *analysisService) conn() *gorm.DB {
	if a.db == nil {
		a.db = db.Connection()
	}
	return a.db.WithContext(a.ctx)
}

type ListRequest struct {
	Limit   uint64
	Offset  uint64
	OrderBy []string
	Kind    string
}

func (a *analysisService) List(req *ListRequest) ([]*models.Analysis, error) {
	var (
		analyses = make([]*models.Analysis, 0)
		q        = a.conn()
	)

	if req.Kind != "" {
		q = q.Where("kind = ?", req.Kind)
	}

	for _, orderBy := range req.OrderBy {
		q = q.Order(orderBy)
	}

	if req.Limit > 0 {
		q = q.Limit(int(req.Limit))
	}

	if req.Offset > 0 {
		q = q.Offset(int(req.Offset))
	}

	return analyses, q.Find(&analyses).Error
}

func (a *analysisService) Get(id uuid.UUID) (*models.Analysis, error) {
	var (
		analysis = &models.Analysis{}
		q        = a.conn().Preload("ReferenceGenome")
	)

	return analysis, q.First(analysis, "id = ?", id).Error
}

type CreateRequest struct {
	Kind  string `json:"kind"`
	Title string `json:"title"`

	// ReferenceGenome is the published bundle version the
	// input coordinates refer to.
	ReferenceGenome string `json:"reference_genome"`

	ForegroundPath string `json:"foreground_path"`
	BackgroundPath string `json:"background_path"`
	InputType      string `json:"input_type"`

	Universe          string `json:"universe"`
	NClosest          int    `json:"n_closest"`
	MaxDistance       int    `json:"max_distance"`
	RequireSameStrand bool   `json:"require_same_strand"`

	Permutations int    `json:"permutations"`
	Alternative  string `json:"alternative"`

	SignificanceLevel float64 `json:"significance_level"`
	CorrectionMethod  string  `json:"correction_method"`
}

func (a *analysisService) Create(req *CreateRequest) (*models.Analysis, error) {
	kind := models.AnalysisKind(req.Kind)
	switch kind {
	case models.AnalysisGSEA, models.AnalysisLOA, models.AnalysisSOA:
	default:
		return nil, errors.Wrapf(ErrUnknownKind, "%s", req.Kind)
	}

	if req.CorrectionMethod != "" && !stats.ValidMethod(req.CorrectionMethod) {
		return nil, errors.Wrapf(stats.ErrUnknownMethod, "%s", req.CorrectionMethod)
	}

	if kind == models.AnalysisLOA && req.Permutations != 0 {
		if !validPermutations(req.Permutations) {
			return nil, errors.Wrapf(ErrBadPermutations, "%d", req.Permutations)
		}
	}

	genome := &models.ReferenceGenome{}
	err := a.conn().First(genome, "version = ?", req.ReferenceGenome).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrUnknownGenome, "%s", req.ReferenceGenome)
	}
	if err != nil {
		return nil, err
	}

	analysis := &models.Analysis{
		ID:    uuid.New(),
		Kind:  kind,
		Title: req.Title,

		ReferenceGenomeID: genome.ID,
		ReferenceGenome:   genome,

		ForegroundPath: req.ForegroundPath,
		BackgroundPath: req.BackgroundPath,
		InputType:      models.InputGenomicIntervals,

		Universe:          models.GeneSetCollection(req.Universe),
		NClosest:          defaultInt(req.NClosest, 1),
		MaxDistance:       req.MaxDistance,
		RequireSameStrand: req.RequireSameStrand,

		Permutations: defaultInt(req.Permutations, 10),
		Alternative:  models.AlternativeTwoSided,

		SignificanceLevel: defaultFloat(req.SignificanceLevel, 0.05),
		CorrectionMethod:  defaultString(req.CorrectionMethod, stats.FDRBY),
	}

	if req.InputType != "" {
		analysis.InputType = models.AnalysisInput(req.InputType)
	}
	if req.Alternative != "" {
		analysis.Alternative = models.Alternative(req.Alternative)
	}

	return analysis, a.conn().Create(analysis).Error
}

func validPermutations(n int) bool {
	for _, p := range models.PermutationCounts {
		if n == p {
			return true
		}
	}
	return false
}

func defaultInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

func defaultFloat(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
