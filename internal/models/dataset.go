package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// DataType is the interval file layout of a dataset.
type DataType string

const (
	DataTypeBED   DataType = "bed"
	DataTypeBEDPE DataType = "bedpe"
)

// Dataset is one integrated genomic dataset at one assembly:
// the block-compressed, indexed interval file plus the
// derived annotation table and plot summaries. A study owns
// exactly one dataset per assembly; the unique index backs
// the pipeline's get-or-create idempotence.
type Dataset struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	StudyID           uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_dataset_study_genome" json:"study_id"`
	ReferenceGenomeID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_dataset_study_genome" json:"reference_genome_id"`

	ReferenceGenome *ReferenceGenome `gorm:"foreignKey:ReferenceGenomeID" json:"reference_genome,omitempty"`

	DataType DataType `gorm:"type:text;not null;default:'bed'" json:"data_type"`
	Liftover bool     `gorm:"not null;default:false" json:"liftover"`

	Path     string `json:"path,omitempty"`
	Checksum string `json:"checksum,omitempty"`

	IndexPath     string `json:"index_path,omitempty"`
	IndexChecksum string `json:"index_checksum,omitempty"`

	ConversionMetrics datatypes.JSONMap `gorm:"type:json" json:"conversion_metrics,omitempty"`

	AnnotationsPath     string            `json:"annotations_path,omitempty"`
	AnnotationsChecksum string            `json:"annotations_checksum,omitempty"`
	AnnotationCounts    datatypes.JSONMap `gorm:"type:json" json:"annotation_counts,omitempty"`

	Plots datatypes.JSONMap `gorm:"type:json" json:"plots,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}
