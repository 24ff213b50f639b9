package study

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/epivar-cloud/epivar/internal/models"
	"github.com/epivar-cloud/epivar/pkg/db"
)

var (
	// ErrUnknownKind is returned for an unsupported study kind.
	ErrUnknownKind = errors.New("study: unknown study kind")

	// ErrUnknownGenome is returned when the submission names a
	// reference version with no published bundle.
	ErrUnknownGenome = errors.New("study: unknown reference genome version")
)

type Study interface {
	WithDatabase(*gorm.DB) Study
	List(*ListRequest) ([]*models.Study, error)
	Get(uuid.UUID) (*models.Study, error)
	GetByStudyID(string) (*models.Study, error)
	Stages(uuid.UUID) ([]*models.StageRun, error)
	Create(*CreateRequest) (*models.Study, error)
	Delete(uuid.UUID) error
}

type studyService struct {
	ctx context.Context
	db  *gorm.DB
}

func Service(ctx context.Context) Study {
	return &studyService{ctx: ctx}
}

func (s *studyService) WithDatabase(conn *gorm.DB) Study {
	s.db = conn
	return s
}

func (s *studyService) conn() *gorm.DB {
	if s.db == nil {
		s.db = db.Connection()
	}
	return s.db.WithContext(s.ctx)
}

type ListRequest struct {
	Limit   uint64
	Offset  uint64
	OrderBy []string
	Kind    string
	Status  string
}

func (s *studyService) List(req *ListRequest) ([]*models.Study, error) {
	var (
		studies = make([]*models.Study, 0)
		q       = s.conn()
	)

	if req.Kind != "" {
		q = q.Where("kind = ?", req.Kind)
	}

	if req.Status != "" {
		q = q.Where("status = ?", req.Status)
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

	return studies, q.Find(&studies).Error
}

func (s *studyService) Get(id uuid.UUID) (*models.Study, error) {
	var (
		study = &models.Study{}
		q     = s.preloaded()
	)

	return study, q.First(study, "id = ?", id).Error
}

// GetByStudyID resolves a study by its public identifier,
// e.g. PAS000042.
func (s *studyService) GetByStudyID(studyID string) (*models.Study, error) {
	var (
		study = &models.Study{}
		q     = s.preloaded()
	)

	return study, q.First(study, "study_id = ?", studyID).Error
}

func (s *studyService) preloaded() *gorm.DB {
	return s.conn().
		Preload("SubmittedData.ReferenceGenome").
		Preload("PreprocessedData").
		Preload("Datasets.ReferenceGenome")
}

func (s *studyService) Stages(id uuid.UUID) ([]*models.StageRun, error) {
	var (
		runs = make([]*models.StageRun, 0)
		q    = s.conn()
	)

	return runs, q.
		Where("study_id = ?", id).
		Order("started_at ASC").
		Find(&runs).Error
}

type CreateRequest struct {
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description"`

	// ReferenceGenome is the published bundle version the
	// submission coordinates refer to.
	ReferenceGenome string `json:"reference_genome"`

	// DataPath points at the submitted interval file. Checksum
	// optionally pins its digest; the pipeline verifies or
	// backfills it during init.
	DataPath string `json:"data_path"`
	Checksum string `json:"checksum"`
}

// Create registers a submission as a pending study. Workers
// pick pending studies up; nothing else needs to enqueue.
func (s *studyService) Create(req *CreateRequest) (*models.Study, error) {
	kind := models.StudyKind(req.Kind)
	switch kind {
	case models.StudyAssociation, models.StudyInteraction, models.StudyProfiling:
	default:
		return nil, errors.Wrapf(ErrUnknownKind, "%s", req.Kind)
	}

	var study *models.Study
	err := s.conn().Transaction(func(tx *gorm.DB) error {
		genome := &models.ReferenceGenome{}
		err := tx.First(genome, "version = ?", req.ReferenceGenome).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrapf(ErrUnknownGenome, "%s", req.ReferenceGenome)
		}
		if err != nil {
			return err
		}

		seq, err := nextSequence(tx, kind)
		if err != nil {
			return err
		}

		data := &models.StudyData{
			ID:                uuid.New(),
			ReferenceGenomeID: genome.ID,
			Path:              req.DataPath,
			Checksum:          req.Checksum,
		}
		if err := tx.Create(data).Error; err != nil {
			return err
		}

		study = &models.Study{
			ID:              uuid.New(),
			StudyID:         models.FormatStudyID(kind, seq),
			Kind:            kind,
			Title:           req.Title,
			Description:     req.Description,
			Status:          models.IntegrationPending,
			SubmittedDataID: data.ID,
		}
		data.ReferenceGenome = genome
		study.SubmittedData = data

		return tx.Create(study).Error
	})
	if err != nil {
		return nil, err
	}
	return study, nil
}

// nextSequence derives the next public identifier sequence
// from the highest one issued for the kind. The zero-padded
// fixed width makes the lexical maximum the numeric maximum.
func nextSequence(tx *gorm.DB, kind models.StudyKind) (int64, error) {
	var last models.Study
	err := tx.
		Where("kind = ?", kind).
		Order("study_id DESC").
		First(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}

	seq, err := strconv.ParseInt(strings.TrimPrefix(last.StudyID, kind.Prefix()), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("study: malformed identifier %q", last.StudyID)
	}
	return seq + 1, nil
}

// Delete removes a study, its stage history, its datasets
// and every file they own.
func (s *studyService) Delete(id uuid.UUID) error {
	study, err := s.Get(id)
	if err != nil {
		return err
	}

	paths := collectPaths(study)

	err = s.conn().Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("study_id = ?", id).Delete(&models.StageRun{}).Error; err != nil {
			return err
		}
		if err := tx.Where("study_id = ?", id).Delete(&models.Dataset{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Study{}, "id = ?", id).Error; err != nil {
			return err
		}

		dataIDs := []uuid.UUID{study.SubmittedDataID}
		if study.PreprocessedDataID != nil {
			dataIDs = append(dataIDs, *study.PreprocessedDataID)
		}
		return tx.Delete(&models.StudyData{}, "id IN ?", dataIDs).Error
	})
	if err != nil {
		return err
	}

	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// collectPaths gathers every file the study owns. The raw
// submission stays: it was provided, not produced.
func collectPaths(study *models.Study) []string {
	var paths []string
	if study.PreprocessedData != nil && study.PreprocessedData.Path != "" {
		paths = append(paths, study.PreprocessedData.Path)
	}
	for _, ds := range study.Datasets {
		for _, p := range []string{ds.Path, ds.IndexPath, ds.AnnotationsPath} {
			if p != "" {
				paths = append(paths, p)
			}
		}
	}
	return paths
}
