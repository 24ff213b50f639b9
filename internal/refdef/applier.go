// Package refdef persists reference bundle manifests as
// genome and chain file records.
package refdef

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/epivar-cloud/epivar/internal/checksum"
	"github.com/epivar-cloud/epivar/internal/models"
	schema "github.com/epivar-cloud/epivar/pkg/refdef"
)

var (
	// ErrDuplicateVersion is returned when a bundle version is
	// already published. Bundles are immutable.
	ErrDuplicateVersion = errors.New("refdef: reference version already exists")

	// ErrUnknownTarget is returned when a chain names a target
	// assembly with no published bundle.
	ErrUnknownTarget = errors.New("refdef: chain target assembly not published")
)

// Applier coordinates persistence of reference bundles.
type Applier struct {
	db *gorm.DB
}

func NewApplier(conn *gorm.DB) *Applier {
	if conn == nil {
		panic("refdef applier requires a database connection")
	}
	return &Applier{db: conn}
}

// Apply persists the bundle and its chain files. Pinned
// checksums are verified against the files on disk; missing
// ones are backfilled from the files.
func (a *Applier) Apply(ctx context.Context, def *schema.Definition) (*models.ReferenceGenome, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	annotationsSum, err := resolveChecksum(def.Spec.Annotations)
	if err != nil {
		return nil, err
	}
	sizesSum, err := resolveChecksum(def.Spec.ChromSizes)
	if err != nil {
		return nil, err
	}

	var sizesBEDSum string
	if def.Spec.ChromSizesBED.Path != "" {
		if sizesBEDSum, err = resolveChecksum(def.Spec.ChromSizesBED); err != nil {
			return nil, err
		}
	}

	var result *models.ReferenceGenome
	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.ReferenceGenome{}).
			Where("version = ?", def.Metadata.Version).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errors.Wrapf(ErrDuplicateVersion, "%s", def.Metadata.Version)
		}

		genome := &models.ReferenceGenome{
			ID:      uuid.New(),
			Name:    models.Assembly(def.Metadata.Name),
			Version: def.Metadata.Version,

			AnnotationsPath:     def.Spec.Annotations.Path,
			AnnotationsChecksum: annotationsSum,

			ChromSizesPath:        def.Spec.ChromSizes.Path,
			ChromSizesChecksum:    sizesSum,
			ChromSizesBEDPath:     def.Spec.ChromSizesBED.Path,
			ChromSizesBEDChecksum: sizesBEDSum,
		}
		if err := tx.Create(genome).Error; err != nil {
			return err
		}

		if err := a.createChains(tx, genome, def.Spec.Chains); err != nil {
			return err
		}

		result = genome
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// createChains links the new bundle to already-published
// targets, in both directions when the reverse manifest named
// this assembly first.
func (a *Applier) createChains(tx *gorm.DB, genome *models.ReferenceGenome, chains []schema.Chain) error {
	for _, chain := range chains {
		target := &models.ReferenceGenome{}
		err := tx.
			Order("created_at DESC").
			First(target, "name = ?", chain.Target).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrapf(ErrUnknownTarget, "%s", chain.Target)
		}
		if err != nil {
			return err
		}

		sum, err := resolveChecksum(schema.FileRef{Path: chain.Path, Checksum: chain.Checksum})
		if err != nil {
			return err
		}

		model := &models.ChainFile{
			ID:             uuid.New(),
			SourceGenomeID: genome.ID,
			TargetGenomeID: target.ID,
			Path:           chain.Path,
			Checksum:       sum,
		}
		if err := tx.Create(model).Error; err != nil {
			return err
		}
	}
	return nil
}

// resolveChecksum verifies a pinned digest or computes one
// from the file.
func resolveChecksum(ref schema.FileRef) (string, error) {
	sum, err := checksum.File(ref.Path)
	if err != nil {
		return "", err
	}
	if ref.Checksum != "" && ref.Checksum != sum {
		return "", errors.Wrapf(checksum.ErrMismatch,
			"%s: have %s, want %s", ref.Path, sum, ref.Checksum)
	}
	return sum, nil
}
