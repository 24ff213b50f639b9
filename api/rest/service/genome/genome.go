package genome

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/epivar-cloud/epivar/internal/models"
	"github.com/epivar-cloud/epivar/pkg/db"
)

type Genome interface {
	WithDatabase(*gorm.DB) Genome
	List(*ListRequest) ([]*models.ReferenceGenome, error)
	Get(uuid.UUID) (*models.ReferenceGenome, error)
	Chains(uuid.UUID) ([]*models.ChainFile, error)
}

type genomeService struct {
	ctx context.Context
	db  *gorm.DB
}

func Service(ctx context.Context) Genome {
	return &genomeService{ctx: ctx}
}

func (g *genomeService) WithDatabase(conn *gorm.DB) Genome {
	g.db = conn
	return g
}

func (g *genomeService) conn() *gorm.DB {
	if g.db == nil {
		g.db = db.Connection()
	}
	return g.db.WithContext(g.ctx)
}

type ListRequest struct {
	Limit   uint64
	Offset  uint64
	OrderBy []string
	Name    string
}

func (g *genomeService) List(req *ListRequest) ([]*models.ReferenceGenome, error) {
	var (
		genomes = make([]*models.ReferenceGenome, 0)
		q       = g.conn()
	)

	if req.Name != "" {
		q = q.Where("name = ?", req.Name)
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

	return genomes, q.Find(&genomes).Error
}

func (g *genomeService) Get(id uuid.UUID) (*models.ReferenceGenome, error) {
	var (
		genome = &models.ReferenceGenome{}
		q      = g.conn()
	)

	return genome, q.First(genome, "id = ?", id).Error
}

// Chains lists the liftover chains published from a genome.
func (g *genomeService) Chains(id uuid.UUID) ([]*models.ChainFile, error) {
	var (
		chains = make([]*models.ChainFile, 0)
		q      = g.conn().Preload("TargetGenome")
	)

	return chains, q.
		Where("source_genome_id = ?", id).
		Order("created_at ASC").
		Find(&chains).Error
}
