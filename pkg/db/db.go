package db

import (
	"sync"

	"github.com/epivar-cloud/epivar/internal/models"
	"github.com/epivar-cloud/epivar/pkg/env"
	"github.com/epivar-cloud/epivar/pkg/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	conn     *gorm.DB
	connOnce sync.Once
)

// Connection returns the process-wide gorm connection,
// opening it on first use.
func Connection() *gorm.DB {
	connOnce.Do(func() {
		var err error

		switch env.Variables().DatabaseType {
		case "postgres":
			conn, err = gorm.Open(
				postgres.Open(env.Variables().DatabaseDSN),
				&gorm.Config{},
			)
		case "sqlite":
			fallthrough
		default:
			conn, err = gorm.Open(
				sqlite.Open(env.Variables().DatabaseDSN),
				&gorm.Config{},
			)
		}

		if err != nil {
			log.Fatal("failed to connect to database", "error", err)
		}
	})

	return conn
}

// Migrate creates or updates the schema for all epivar
// entities.
func Migrate() error {
	return MigrateWith(Connection())
}

// MigrateWith runs the schema migration against an explicit
// connection. Tests use this with in-memory databases.
func MigrateWith(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&models.ReferenceGenome{},
		&models.ChainFile{},
		&models.GenomicFeatureCollection{},
		&models.GenomicFeature{},
		&models.GeneSet{},
		&models.Study{},
		&models.StudyData{},
		&models.Dataset{},
		&models.StageRun{},
		&models.Analysis{},
	)
}
