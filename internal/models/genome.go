package models

import (
	"time"

	"github.com/google/uuid"
)

// Assembly identifies a reference genome build.
type Assembly string

const (
	AssemblyHG19 Assembly = "hg19"
	AssemblyHG38 Assembly = "hg38"
	AssemblyT2T  Assembly = "T2T"
)

// ReferenceGenome is a published reference bundle: a sorted
// and indexed feature annotation file plus the chromosome
// size table in flat and BED form. Bundles are immutable
// once published; pipeline stages read them concurrently.
type ReferenceGenome struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name    Assembly  `gorm:"type:text;not null;index" json:"name"`
	Version string    `gorm:"type:text;uniqueIndex;not null" json:"version"`

	AnnotationsPath          string `gorm:"not null" json:"annotations_path"`
	AnnotationsIndexPath     string `json:"annotations_index_path,omitempty"`
	AnnotationsChecksum      string `json:"annotations_checksum,omitempty"`
	AnnotationsIndexChecksum string `json:"annotations_index_checksum,omitempty"`

	ChromSizesPath        string `gorm:"not null" json:"chrom_sizes_path"`
	ChromSizesChecksum    string `json:"chrom_sizes_checksum,omitempty"`
	ChromSizesBEDPath     string `json:"chrom_sizes_bed_path,omitempty"`
	ChromSizesBEDChecksum string `json:"chrom_sizes_bed_checksum,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// ChainFile maps segments of a source assembly onto a
// target assembly. One row per ordered (source, target)
// pair; liftover only follows direct chains.
type ChainFile struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SourceGenomeID uuid.UUID `gorm:"type:uuid;index;not null" json:"source_genome_id"`
	TargetGenomeID uuid.UUID `gorm:"type:uuid;index;not null" json:"target_genome_id"`

	SourceGenome *ReferenceGenome `gorm:"foreignKey:SourceGenomeID" json:"source_genome,omitempty"`
	TargetGenome *ReferenceGenome `gorm:"foreignKey:TargetGenomeID" json:"target_genome,omitempty"`

	Path     string `gorm:"not null" json:"path"`
	Checksum string `json:"checksum,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}
