package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// StudyKind tags the three supported study types. Each kind
// runs its own ordered stage chain (see internal/pipeline).
type StudyKind string

const (
	StudyAssociation StudyKind = "association"
	StudyInteraction StudyKind = "interaction"
	StudyProfiling   StudyKind = "profiling"
)

// Prefix returns the public study identifier prefix for a
// kind.
func (k StudyKind) Prefix() string {
	switch k {
	case StudyAssociation:
		return "PAS"
	case StudyInteraction:
		return "MIS"
	case StudyProfiling:
		return "MPS"
	}
	return "UNK"
}

// FormatStudyID renders a public study identifier, e.g.
// PAS000042.
func FormatStudyID(kind StudyKind, seq int64) string {
	return fmt.Sprintf("%s%06d", kind.Prefix(), seq)
}

// IntegrationStatus is the pipeline state of a study.
// pending -> running -> {passed | failed}; both outcomes
// are terminal.
type IntegrationStatus string

const (
	IntegrationPending IntegrationStatus = "pending"
	IntegrationRunning IntegrationStatus = "running"
	IntegrationPassed  IntegrationStatus = "passed"
	IntegrationFailed  IntegrationStatus = "failed"
)

// Terminal reports whether the status admits no further
// transitions.
func (s IntegrationStatus) Terminal() bool {
	return s == IntegrationPassed || s == IntegrationFailed
}

// StudyData is one genomic dataset file owned by a study:
// either the raw submission or the preprocessed working
// copy the pipeline rewrites stage by stage.
type StudyData struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ReferenceGenomeID uuid.UUID `gorm:"type:uuid;index;not null" json:"reference_genome_id"`

	ReferenceGenome *ReferenceGenome `gorm:"foreignKey:ReferenceGenomeID" json:"reference_genome,omitempty"`

	Path     string            `gorm:"not null" json:"path"`
	Checksum string            `json:"checksum,omitempty"`
	Metadata datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// Study is one submitted study and the integration job that
// processes it. The status columns are the submitter-visible
// pipeline state; StageRunID references the stage run of the
// most recent non-failure transition (the failure transition
// leaves it untouched).
type Study struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	StudyID string    `gorm:"type:text;uniqueIndex;not null" json:"study_id"`
	Kind    StudyKind `gorm:"type:text;index;not null" json:"kind"`

	Title       string `gorm:"not null" json:"title"`
	Description string `json:"description,omitempty"`

	Status       IntegrationStatus `gorm:"type:text;index;not null;default:'pending'" json:"status"`
	StatusDetail string            `json:"status_detail,omitempty"`
	StageRunID   *uuid.UUID        `gorm:"type:uuid" json:"stage_run_id,omitempty"`

	// Worker lease columns. A pending study is claimed by at
	// most one worker at a time; an expired lease on a running
	// study marks a crashed worker and the study is reclaimed.
	ClaimedBy      string     `gorm:"type:text;default:''" json:"-"`
	ClaimAttempt   int        `gorm:"not null;default:0" json:"-"`
	ClaimExpiresAt *time.Time `json:"-"`

	SubmittedDataID    uuid.UUID  `gorm:"type:uuid;not null" json:"submitted_data_id"`
	PreprocessedDataID *uuid.UUID `gorm:"type:uuid" json:"preprocessed_data_id,omitempty"`

	SubmittedData    *StudyData `gorm:"foreignKey:SubmittedDataID" json:"submitted_data,omitempty"`
	PreprocessedData *StudyData `gorm:"foreignKey:PreprocessedDataID" json:"preprocessed_data,omitempty"`

	Datasets []*Dataset  `gorm:"foreignKey:StudyID;constraint:OnDelete:CASCADE" json:"datasets,omitempty"`
	Stages   []*StageRun `gorm:"foreignKey:StudyID;constraint:OnDelete:CASCADE" json:"stages,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// StageRun is the audit record of one pipeline stage
// execution for one study.
type StageRun struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	StudyID uuid.UUID `gorm:"type:uuid;index;not null" json:"study_id"`
	Name    string    `gorm:"type:text;not null" json:"name"`
	Status  string    `gorm:"type:text;index;not null" json:"status"`
	Error   string    `json:"error,omitempty"`

	StartedAt   time.Time  `gorm:"not null" json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}
