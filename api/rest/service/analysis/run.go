package analysis

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"

	"github.com/epivar-cloud/epivar/internal/enrich"
	"github.com/epivar-cloud/epivar/internal/interval"
	"github.com/epivar-cloud/epivar/internal/metrics"
	"github.com/epivar-cloud/epivar/internal/models"
	"github.com/epivar-cloud/epivar/internal/validate"
	"github.com/epivar-cloud/epivar/pkg/bytes"
	"github.com/epivar-cloud/epivar/pkg/log"
)

// Execute runs the engine for a pending analysis and writes
// the outcome back to its row. Engine failures are recorded
// on the row and returned; the row completes either way.
func (a *analysisService) Execute(id uuid.UUID) error {
	analysis, err := a.Get(id)
	if err != nil {
		return err
	}
	if analysis.CompletedAt != nil || analysis.Error != "" {
		return ErrCompleted
	}

	log.Info("executing analysis",
		"id", analysis.ID,
		"kind", analysis.Kind)

	result, runErr := a.run(analysis)
	now := time.Now().UTC()

	if runErr != nil {
		metrics.AnalysisRunsTotal.
			WithLabelValues(string(analysis.Kind), "failed").Inc()

		if err := a.conn().Model(analysis).Updates(map[string]interface{}{
			"error":        runErr.Error(),
			"completed_at": now,
		}).Error; err != nil {
			return err
		}
		return runErr
	}

	buf, err := json.Marshal(result)
	if err != nil {
		return err
	}

	metrics.AnalysisRunsTotal.
		WithLabelValues(string(analysis.Kind), "succeeded").Inc()

	return a.conn().Model(analysis).Updates(map[string]interface{}{
		"results":      datatypes.JSON(buf),
		"completed_at": now,
	}).Error
}

func (a *analysisService) run(m *models.Analysis) (interface{}, error) {
	switch m.Kind {
	case models.AnalysisGSEA:
		return a.runGSEA(m)
	case models.AnalysisLOA:
		return a.runLOA(m)
	case models.AnalysisSOA:
		return a.runSOA(m)
	}
	return nil, ErrUnknownKind
}

// runGSEA maps the foreground onto gene symbols, either
// directly from a gene list or through nearest-feature
// annotation of the submitted intervals, and tests each
// curated gene set for over-representation.
func (a *analysisService) runGSEA(m *models.Analysis) (interface{}, error) {
	features, err := enrich.LoadGFF(m.ReferenceGenome.AnnotationsPath)
	if err != nil {
		return nil, err
	}

	result := map[string]interface{}{}

	var foreground, background []string
	switch m.InputType {
	case models.InputGeneNames:
		if foreground, err = validate.GeneList(m.ForegroundPath); err != nil {
			return nil, err
		}
		if m.BackgroundPath != "" {
			if background, err = validate.GeneList(m.BackgroundPath); err != nil {
				return nil, err
			}
		}
	default:
		stats, fg, bg, err := a.annotatedGenes(m, features)
		if err != nil {
			return nil, err
		}
		result["intersection_stats"] = stats
		foreground, background = fg, bg
	}

	if background == nil {
		background = enrich.FallbackUniverse(features, "gene")
	}

	sets, err := a.geneSets(m.Universe)
	if err != nil {
		return nil, err
	}

	rows, err := enrich.GSEA(foreground, background, sets, enrich.GSEAOptions{
		CorrectionMethod:  m.CorrectionMethod,
		SignificanceLevel: m.SignificanceLevel,
	})
	if err != nil {
		return nil, err
	}

	result["gsea"] = rows
	return result, nil
}

// annotatedGenes validates the interval inputs, reports
// their intersection with the reference extents and maps
// them onto nearby gene symbols. A supplied background must
// contain every foreground interval.
func (a *analysisService) annotatedGenes(
	m *models.Analysis,
	features []*enrich.GFFFeature,
) (map[string]interface{}, []string, []string, error) {
	fgRecs, err := readIntervals(m.ForegroundPath)
	if err != nil {
		return nil, nil, nil, err
	}

	extents, err := loadExtents(m.ReferenceGenome)
	if err != nil {
		return nil, nil, nil, err
	}

	fgInter, err := interval.IntersectCount(fgRecs, extents.Records())
	if err != nil {
		return nil, nil, nil, err
	}

	stats := map[string]interface{}{
		"foreground_intersection": fgInter,
		"foreground_total":        len(fgRecs),
		"foreground_fraction":     fraction(fgInter, len(fgRecs)),
		"background_intersection": nil,
		"background_total":        nil,
		"background_fraction":     nil,
	}

	opts := enrich.AnnotateOptions{
		NClosest:          m.NClosest,
		MaxDistance:       m.MaxDistance,
		RequireSameStrand: m.RequireSameStrand,
	}

	fgAnns, err := enrich.Annotate(fgRecs, features, opts)
	if err != nil {
		return nil, nil, nil, err
	}
	foreground := enrich.ExtractGenes(fgAnns)

	if m.BackgroundPath == "" {
		return stats, foreground, nil, nil
	}

	bgRecs, err := readIntervals(m.BackgroundPath)
	if err != nil {
		return nil, nil, nil, err
	}

	if n := containedCount(fgRecs, bgRecs); n != len(fgRecs) {
		return nil, nil, nil, fmt.Errorf(
			"Foreground is not a subset of background! Intersection: %d, but total: %d",
			n, len(fgRecs))
	}

	bgInter, err := interval.IntersectCount(bgRecs, extents.Records())
	if err != nil {
		return nil, nil, nil, err
	}
	stats["background_intersection"] = bgInter
	stats["background_total"] = len(bgRecs)
	stats["background_fraction"] = fraction(bgInter, len(bgRecs))

	bgAnns, err := enrich.Annotate(bgRecs, features, opts)
	if err != nil {
		return nil, nil, nil, err
	}

	return stats, foreground, enrich.ExtractGenes(bgAnns), nil
}

// geneSets loads the curated sets to test, restricted to one
// collection when the universe names it.
func (a *analysisService) geneSets(universe models.GeneSetCollection) ([]enrich.GeneSetInput, error) {
	var (
		sets = make([]*models.GeneSet, 0)
		q    = a.conn().Order("collection ASC, name ASC")
	)

	if universe != "" {
		q = q.Where("collection = ?", universe)
	}

	if err := q.Find(&sets).Error; err != nil {
		return nil, err
	}

	inputs := make([]enrich.GeneSetInput, 0, len(sets))
	for _, set := range sets {
		inputs = append(inputs, enrich.GeneSetInput{
			ID:         set.ID.String(),
			Name:       set.Name,
			Collection: string(set.Collection),
			Genes:      set.Genes,
		})
	}
	return inputs, nil
}

// runLOA tests foreground interval overlap against every
// published genomic feature set of the analysis assembly.
func (a *analysisService) runLOA(m *models.Analysis) (interface{}, error) {
	fgRecs, err := readIntervals(m.ForegroundPath)
	if err != nil {
		return nil, err
	}

	var bgRecs []*interval.Record
	if m.BackgroundPath != "" {
		if bgRecs, err = readIntervals(m.BackgroundPath); err != nil {
			return nil, err
		}
	} else if !validPermutations(m.Permutations) {
		return nil, errors.Wrapf(ErrBadPermutations, "%d", m.Permutations)
	}

	sets, err := a.featureSets(m.ReferenceGenomeID)
	if err != nil {
		return nil, err
	}

	extents, err := loadExtents(m.ReferenceGenome)
	if err != nil {
		return nil, err
	}

	return enrich.LOA(fgRecs, bgRecs, sets, extents, enrich.LOAOptions{
		Alternative:       string(m.Alternative),
		Permutations:      m.Permutations,
		CorrectionMethod:  m.CorrectionMethod,
		SignificanceLevel: m.SignificanceLevel,
		// deterministic shuffle seed per analysis
		Seed: int64(bytes.ToUint64(m.ID[:8])),
	})
}

// featureSets loads every feature of every collection at the
// assembly as one flat test list.
func (a *analysisService) featureSets(genomeID uuid.UUID) ([]enrich.FeatureSetInput, error) {
	var collections []*models.GenomicFeatureCollection
	err := a.conn().
		Preload("Features").
		Where("reference_genome_id = ?", genomeID).
		Order("name ASC").
		Find(&collections).Error
	if err != nil {
		return nil, err
	}

	var inputs []enrich.FeatureSetInput
	for _, collection := range collections {
		for _, feature := range collection.Features {
			_, recs, err := interval.ReadAll(feature.Path)
			if err != nil {
				return nil, err
			}
			inputs = append(inputs, enrich.FeatureSetInput{
				ID:         feature.ID.String(),
				Name:       feature.Name,
				Collection: collection.Name,
				Records:    recs,
			})
		}
	}
	return inputs, nil
}

// runSOA scans every passed study's dataset at the analysis
// assembly for overlap with the foreground. Association and
// interaction datasets only count rows already meeting their
// stored FDR cutoff.
func (a *analysisService) runSOA(m *models.Analysis) (interface{}, error) {
	fgRecs, err := readIntervals(m.ForegroundPath)
	if err != nil {
		return nil, err
	}

	inputs, err := a.studyDatasets(m.ReferenceGenomeID)
	if err != nil {
		return nil, err
	}

	return enrich.SOA(fgRecs, inputs, m.SignificanceLevel)
}

var soaCategories = []struct {
	kind     models.StudyKind
	category string
	withFDR  bool
}{
	{models.StudyAssociation, "Association data", true},
	{models.StudyInteraction, "Interaction data", true},
	{models.StudyProfiling, "Profiling data", false},
}

func (a *analysisService) studyDatasets(genomeID uuid.UUID) ([]enrich.StudyDatasetInput, error) {
	var inputs []enrich.StudyDatasetInput

	for _, cat := range soaCategories {
		var studies []*models.Study
		err := a.conn().
			Preload("Datasets").
			Where("kind = ? AND status = ?", cat.kind, models.IntegrationPassed).
			Order("study_id ASC").
			Find(&studies).Error
		if err != nil {
			return nil, err
		}

		for _, study := range studies {
			for _, ds := range study.Datasets {
				if ds.ReferenceGenomeID != genomeID || ds.Path == "" {
					continue
				}
				inputs = append(inputs, enrich.StudyDatasetInput{
					StudyID:  study.StudyID,
					Category: cat.category,
					Path:     ds.Path,
					Link:     "/v1/studies/" + study.StudyID,
					WithFDR:  cat.withFDR,
				})
			}
		}
	}
	return inputs, nil
}

// readIntervals validates a BED input and loads its records.
func readIntervals(path string) ([]*interval.Record, error) {
	if err := validate.File(path, validate.BEDRecord); err != nil {
		return nil, err
	}
	_, recs, err := interval.ReadAll(path)
	return recs, err
}

// loadExtents loads the chromosome extents of a reference,
// preferring the BED form of the size table.
func loadExtents(genome *models.ReferenceGenome) (*interval.Genome, error) {
	path := genome.ChromSizesBEDPath
	if path == "" {
		path = genome.ChromSizesPath
	}
	return interval.LoadGenome(path)
}

// containedCount counts foreground intervals present in the
// background by exact coordinates.
func containedCount(fg, bg []*interval.Record) int {
	keys := make(map[string]bool, len(bg))
	for _, rec := range bg {
		keys[recordKey(rec)] = true
	}

	n := 0
	for _, rec := range fg {
		if keys[recordKey(rec)] {
			n++
		}
	}
	return n
}

func recordKey(rec *interval.Record) string {
	return fmt.Sprintf("%s:%d-%d", rec.Chrom, rec.Start, rec.End)
}

func fraction(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}
