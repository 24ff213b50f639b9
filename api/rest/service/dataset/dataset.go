package dataset

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/epivar-cloud/epivar/internal/models"
	"github.com/epivar-cloud/epivar/pkg/db"
)

type Dataset interface {
	WithDatabase(*gorm.DB) Dataset
	List(*ListRequest) ([]*models.Dataset, error)
	Get(uuid.UUID) (*models.Dataset, error)
}

type datasetService struct {
	ctx context.Context
	db  *gorm.DB
}

func Service(ctx context.Context) Dataset {
	return &datasetService{ctx: ctx}
}

func (d *datasetService) WithDatabase(conn *gorm.DB) Dataset {
	d.db = conn
	return d
}

func (d *datasetService) conn() *gorm.DB {
	if d.db == nil {
		d.db = db.Connection()
	}
	return d.db.WithContext(d.ctx)
}

type ListRequest struct {
	Limit   uint64
	Offset  uint64
	OrderBy []string
	StudyID string
	Genome  string
}

func (d *datasetService) List(req *ListRequest) ([]*models.Dataset, error) {
	var (
		datasets = make([]*models.Dataset, 0)
		q        = d.conn().Preload("ReferenceGenome")
	)

	if req.StudyID != "" {
		q = q.Where("study_id = ?", req.StudyID)
	}

	if req.Genome != "" {
		q = q.
			Joins("JOIN reference_genomes ON reference_genomes.id = datasets.reference_genome_id").
			Where("reference_genomes.name = ?", req.Genome)
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

	return datasets, q.Find(&datasets).Error
}

func (d *datasetService) Get(id uuid.UUID) (*models.Dataset, error) {
	var (
		dataset = &models.Dataset{}
		q       = d.conn().Preload("ReferenceGenome")
	)

	return dataset, q.First(dataset, "id = ?", id).Error
}
