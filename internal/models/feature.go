package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// GeneSetCollection enumerates the curated MSigDB-style
// collections gene sets belong to.
type GeneSetCollection string

const (
	CollectionHallmark GeneSetCollection = "H"
	CollectionC1       GeneSetCollection = "C1"
	CollectionC2       GeneSetCollection = "C2"
	CollectionC3       GeneSetCollection = "C3"
	CollectionC4       GeneSetCollection = "C4"
	CollectionC5       GeneSetCollection = "C5"
	CollectionC6       GeneSetCollection = "C6"
	CollectionC7       GeneSetCollection = "C7"
	CollectionC8       GeneSetCollection = "C8"
)

// GeneSetCollections lists every supported collection in
// enrichment order.
var GeneSetCollections = []GeneSetCollection{
	CollectionHallmark,
	CollectionC1, CollectionC2, CollectionC3, CollectionC4,
	CollectionC5, CollectionC6, CollectionC7, CollectionC8,
}

// GeneSet is one curated set of gene symbols.
type GeneSet struct {
	ID         uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	Name       string                      `gorm:"type:text;not null;uniqueIndex:idx_gene_set_name_collection" json:"name"`
	Collection GeneSetCollection           `gorm:"type:text;not null;index;uniqueIndex:idx_gene_set_name_collection" json:"collection"`
	Genes      datatypes.JSONSlice[string] `json:"genes"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// GenomicFeatureCollection groups genomic feature files,
// e.g. the states of a chromatin model for one cell type.
type GenomicFeatureCollection struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name              string    `gorm:"type:text;uniqueIndex;not null" json:"name"`
	Description       string    `json:"description,omitempty"`
	ReferenceGenomeID uuid.UUID `gorm:"type:uuid;index;not null" json:"reference_genome_id"`

	Features []*GenomicFeature `gorm:"foreignKey:CollectionID;constraint:OnDelete:CASCADE" json:"features,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// GenomicFeature is one interval file (e.g. one chromatin
// state) inside a collection.
type GenomicFeature struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CollectionID      uuid.UUID `gorm:"type:uuid;index;not null" json:"collection_id"`
	Name              string    `gorm:"type:text;uniqueIndex;not null" json:"name"`
	Description       string    `json:"description,omitempty"`
	ReferenceGenomeID uuid.UUID `gorm:"type:uuid;index;not null" json:"reference_genome_id"`

	Path          string `gorm:"not null" json:"path"`
	Checksum      string `json:"checksum,omitempty"`
	IndexPath     string `json:"index_path,omitempty"`
	IndexChecksum string `json:"index_checksum,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}
