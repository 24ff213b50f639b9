package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"

	"github.com/epivar-cloud/epivar/internal/checksum"
	"github.com/epivar-cloud/epivar/internal/enrich"
	"github.com/epivar-cloud/epivar/internal/interval"
	"github.com/epivar-cloud/epivar/internal/liftover"
	"github.com/epivar-cloud/epivar/internal/models"
	"github.com/epivar-cloud/epivar/internal/plots"
	"github.com/epivar-cloud/epivar/internal/stats"
	"github.com/epivar-cloud/epivar/internal/validate"
)

// stageInit verifies the submitted file against its recorded
// checksum, backfilling the digest on first contact. Transient
// read failures are retried; a digest mismatch is final.
func stageInit(ctx context.Context, p *Pipeline, study *models.Study) error {
	data := study.SubmittedData
	if data == nil {
		return errors.Errorf("%s has no submitted data", study.StudyID)
	}

	if data.Checksum == "" {
		sum, err := checksum.File(data.Path)
		if err != nil {
			return err
		}
		data.Checksum = sum
		return p.db.WithContext(ctx).
			Model(&models.StudyData{}).
			Where("id = ?", data.ID).
			Update("checksum", sum).Error
	}

	return checksum.Verify(ctx, data.Path, data.Checksum,
		uint64(p.cfg.ChecksumRetries), p.cfg.ChecksumRetryDelay)
}

func stageValidate(_ context.Context, _ *Pipeline, study *models.Study) error {
	rt, err := recordType(study.Kind)
	if err != nil {
		return err
	}
	return validate.File(study.SubmittedData.Path, rt)
}

func recordType(kind models.StudyKind) (validate.RecordType, error) {
	switch kind {
	case models.StudyAssociation:
		return validate.AssociationRecord, nil
	case models.StudyInteraction:
		return validate.InteractionRecord, nil
	case models.StudyProfiling:
		return validate.ProfilingRecord, nil
	}
	return "", errors.Wrapf(ErrUnknownStudyKind, "%s", kind)
}

// stageIntersect keeps the submitted rows that fall within
// the reference chromosome extents and materializes them as
// the study's preprocessed working copy. Anything below the
// overlap threshold fails the chain.
func stageIntersect(ctx context.Context, p *Pipeline, study *models.Study) error {
	ref := study.SubmittedData.ReferenceGenome
	if ref == nil {
		return errors.Errorf("%s has no reference genome", study.StudyID)
	}

	extents := ref.ChromSizesBEDPath
	if extents == "" {
		extents = ref.ChromSizesPath
	}
	genome, err := interval.LoadGenome(extents)
	if err != nil {
		return err
	}

	header, recs, err := interval.ReadAll(study.SubmittedData.Path)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return errors.Errorf("%s holds no data rows", study.SubmittedData.Path)
	}

	kept, err := interval.Intersect(recs, genome.Records())
	if err != nil {
		return err
	}

	fraction := float64(len(kept)) / float64(len(recs))
	if fraction < p.cfg.OverlapThreshold {
		return errors.Wrapf(ErrReferenceMismatch,
			"%.4f of %d records overlap %s", fraction, len(recs), ref.Name)
	}

	path, err := p.studyFile(study, study.StudyID+".bed.gz")
	if err != nil {
		return err
	}
	if err := interval.WriteFile(path, header, kept); err != nil {
		return err
	}
	sum, err := checksum.File(path)
	if err != nil {
		return err
	}

	data := &models.StudyData{
		ID:                uuid.New(),
		ReferenceGenomeID: ref.ID,
		Path:              path,
		Checksum:          sum,
		Metadata: datatypes.JSONMap{
			"total_submitted_records":     len(recs),
			"intersection_with_reference": len(kept),
			"overlapping_fraction":        fraction,
		},
	}
	if err := p.db.WithContext(ctx).Create(data).Error; err != nil {
		return err
	}
	if err := p.db.WithContext(ctx).
		Model(&models.Study{}).
		Where("id = ?", study.ID).
		Update("preprocessed_data_id", data.ID).Error; err != nil {
		return err
	}

	data.ReferenceGenome = ref
	study.PreprocessedDataID = &data.ID
	study.PreprocessedData = data
	return nil
}

// stageExpandPairs rewrites an interaction working copy into
// single-locus form: each pair becomes two rows sharing a
// composite identifier, one per locus with its own strand.
func stageExpandPairs(ctx context.Context, p *Pipeline, study *models.Study) error {
	data := study.PreprocessedData
	_, recs, err := interval.ReadAll(data.Path)
	if err != nil {
		return err
	}

	w, err := interval.NewWriter(data.Path)
	if err != nil {
		return err
	}
	if err := w.WriteHeader(validate.AssociationHeader); err != nil {
		w.Close()
		return err
	}

	for _, rec := range recs {
		f := rec.Fields
		identifier := fmt.Sprintf("%s:%s-%s--%s:%s-%s",
			f[0], f[1], f[2], f[3], f[4], f[5])

		left := []string{f[0], f[1], f[2], identifier, f[7], f[8], f[10], f[11]}
		right := []string{f[3], f[4], f[5], identifier, f[7], f[9], f[10], f[11]}
		if err := w.WriteRow(left); err != nil {
			w.Close()
			return err
		}
		if err := w.WriteRow(right); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	return p.refreshStudyData(ctx, data)
}

// stageAdjust appends the multiple-testing columns to the
// working copy.
func stageAdjust(ctx context.Context, p *Pipeline, study *models.Study) error {
	data := study.PreprocessedData
	tmp := data.Path + ".adjust"

	if err := stats.StreamAdjust(data.Path, tmp, p.cfg.CorrectionMethod, 0.05); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, data.Path); err != nil {
		return err
	}

	return p.refreshStudyData(ctx, data)
}

// stageComputeScore maps the methylation estimate into the
// score column of a profiling working copy.
func stageComputeScore(ctx context.Context, p *Pipeline, study *models.Study) error {
	data := study.PreprocessedData
	header, recs, err := interval.ReadAll(data.Path)
	if err != nil {
		return err
	}

	for _, rec := range recs {
		rec.Fields[4] = rec.Field(6)
	}
	if err := interval.WriteFile(data.Path, header, recs); err != nil {
		return err
	}

	return p.refreshStudyData(ctx, data)
}

// stageMaterialize copies the working copy into the study's
// dataset at the submission assembly. The dataset row is
// get-or-create keyed on (study, assembly), so a re-run never
// duplicates the artifact.
func stageMaterialize(ctx context.Context, p *Pipeline, study *models.Study) error {
	ref := study.SubmittedData.ReferenceGenome
	ds, err := p.getOrCreateDataset(ctx, study.ID, ref.ID, false)
	if err != nil {
		return err
	}

	path, err := p.studyFile(study, fmt.Sprintf("%s.%s.bed.gz", study.StudyID, ref.Name))
	if err != nil {
		return err
	}
	if err := copyFile(study.PreprocessedData.Path, path); err != nil {
		return err
	}
	sum, err := checksum.File(path)
	if err != nil {
		return err
	}

	ds.DataType = models.DataTypeBED
	ds.Path = path
	ds.Checksum = sum
	ds.ReferenceGenome = ref
	return p.db.WithContext(ctx).Save(ds).Error
}

// stageLiftover materializes one additional dataset per chain
// file rooted at the submission assembly. A chain that maps
// nothing fails the stage; there is no point publishing an
// empty assembly.
func stageLiftover(ctx context.Context, p *Pipeline, study *models.Study) error {
	ref := study.SubmittedData.ReferenceGenome

	source := &models.Dataset{}
	err := p.db.WithContext(ctx).
		First(source, "study_id = ? AND liftover = ?", study.ID, false).Error
	if err != nil {
		return errors.Wrapf(err, "source dataset of %s", study.StudyID)
	}

	var chains []*models.ChainFile
	err = p.db.WithContext(ctx).
		Preload("TargetGenome").
		Find(&chains, "source_genome_id = ?", ref.ID).Error
	if err != nil {
		return err
	}

	for _, chain := range chains {
		target := chain.TargetGenome
		if target == nil {
			return errors.Errorf("chain %s has no target genome", chain.ID)
		}

		ds, err := p.getOrCreateDataset(ctx, study.ID, target.ID, true)
		if err != nil {
			return err
		}

		mapper, err := liftover.LoadChain(chain.Path)
		if err != nil {
			return err
		}

		path, err := p.studyFile(study, fmt.Sprintf("%s.%s.bed.gz", study.StudyID, target.Name))
		if err != nil {
			return err
		}
		metrics, err := mapper.LiftFile(source.Path, path, false)
		if err != nil {
			return err
		}
		sum, err := checksum.File(path)
		if err != nil {
			return err
		}

		ds.DataType = models.DataTypeBED
		ds.Liftover = true
		ds.Path = path
		ds.Checksum = sum
		ds.ConversionMetrics = datatypes.JSONMap(metrics.Map())
		if err := p.db.WithContext(ctx).Save(ds).Error; err != nil {
			return err
		}
	}
	return nil
}

// stageSortIndex rewrites every dataset of the study into
// coordinate-sorted form and builds its tabix index.
func stageSortIndex(ctx context.Context, p *Pipeline, study *models.Study) error {
	datasets, err := p.loadDatasets(ctx, study.ID)
	if err != nil {
		return err
	}

	for _, ds := range datasets {
		name := fmt.Sprintf("%s.%s.sorted.bed.gz", study.StudyID, ds.ReferenceGenome.Name)
		sorted, err := p.studyFile(study, name)
		if err != nil {
			return err
		}

		if err := interval.SortFile(ds.Path, sorted); err != nil {
			return err
		}
		index, err := interval.IndexTabix(sorted)
		if err != nil {
			return err
		}

		if ds.Path != sorted {
			os.Remove(ds.Path)
		}

		if ds.Checksum, err = checksum.File(sorted); err != nil {
			return err
		}
		if ds.IndexChecksum, err = checksum.File(index); err != nil {
			return err
		}
		ds.Path = sorted
		ds.IndexPath = index
		if err := p.db.WithContext(ctx).Save(ds).Error; err != nil {
			return err
		}
	}
	return nil
}

// gffColumns heads the persisted annotation table, ahead of
// the dataset's own columns and the overlap width.
var gffColumns = []string{
	"#seqname", "feature_start", "feature_end",
	"feature_name", "feature_score", "feature_strand",
	"feature", "attributes",
}

// stageAnnotate intersects each dataset with its reference
// annotation file, persisting the joined table and the per
// feature-type counts.
func stageAnnotate(ctx context.Context, p *Pipeline, study *models.Study) error {
	datasets, err := p.loadDatasets(ctx, study.ID)
	if err != nil {
		return err
	}

	for _, ds := range datasets {
		features, err := enrich.LoadGFF(ds.ReferenceGenome.AnnotationsPath)
		if err != nil {
			return err
		}

		header, recs, err := interval.ReadAll(ds.Path)
		if err != nil {
			return err
		}
		index, err := interval.NewIndex(recs)
		if err != nil {
			return err
		}

		name := fmt.Sprintf("%s.annotations.%s.bed.gz", study.StudyID, ds.ReferenceGenome.Name)
		path, err := p.studyFile(study, name)
		if err != nil {
			return err
		}
		w, err := interval.NewWriter(path)
		if err != nil {
			return err
		}

		cols := append(append([]string{}, gffColumns...), header...)
		cols = append(cols, "ovp")
		if err := w.WriteHeader(cols); err != nil {
			w.Close()
			return err
		}

		counts := map[string]int64{}
		for _, f := range features {
			for _, hit := range index.Overlapping(f.Rec) {
				row := append(append([]string{}, f.Rec.Fields...), f.Type, f.Attributes)
				row = append(row, hit.Fields...)
				row = append(row, fmt.Sprintf("%d", overlapWidth(f.Rec, hit)))
				if err := w.WriteRow(row); err != nil {
					w.Close()
					return err
				}
				counts[f.Type]++
			}
		}
		if err := w.Close(); err != nil {
			return err
		}

		sum, err := checksum.File(path)
		if err != nil {
			return err
		}
		ds.AnnotationsPath = path
		ds.AnnotationsChecksum = sum
		ds.AnnotationCounts = datatypes.JSONMap{}
		for feature, n := range counts {
			ds.AnnotationCounts[feature] = n
		}
		if err := p.db.WithContext(ctx).Save(ds).Error; err != nil {
			return err
		}
	}
	return nil
}

// stagePlots derives the numeric plot summaries per dataset:
// manhattan, qq and annotation bar for tested records, violin
// for profiling estimates.
func stagePlots(ctx context.Context, p *Pipeline, study *models.Study) error {
	datasets, err := p.loadDatasets(ctx, study.ID)
	if err != nil {
		return err
	}

	for _, ds := range datasets {
		if study.Kind == models.StudyProfiling {
			violin, err := plots.NewViolin(ds.Path, "me")
			if err != nil {
				return err
			}
			ds.Plots = datatypes.JSONMap{"vl": violin}
		} else {
			manhattan, err := plots.NewManhattan(ds.Path, "-log10(p-value)")
			if err != nil {
				return err
			}
			qq, err := plots.NewQQ(ds.Path, "p-value")
			if err != nil {
				return err
			}
			bar := plots.NewBar(countValues(ds.AnnotationCounts))
			ds.Plots = datatypes.JSONMap{"mh": manhattan, "qq": qq, "an": bar}
		}

		if err := p.db.WithContext(ctx).Save(ds).Error; err != nil {
			return err
		}
	}
	return nil
}

func overlapWidth(a, b *interval.Record) int {
	lo, hi := a.Start, a.End
	if b.Start > lo {
		lo = b.Start
	}
	if b.End < hi {
		hi = b.End
	}
	return hi - lo
}

// countValues renders a persisted count map for plotting,
// tolerating the numeric widening a JSON round trip applies.
func countValues(m datatypes.JSONMap) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		switch n := v.(type) {
		case int64:
			out[k] = n
		case int:
			out[k] = int64(n)
		case float64:
			out[k] = int64(n)
		}
	}
	return out
}

// refreshStudyData recomputes and persists the checksum of a
// rewritten working copy.
func (p *Pipeline) refreshStudyData(ctx context.Context, data *models.StudyData) error {
	sum, err := checksum.File(data.Path)
	if err != nil {
		return err
	}
	data.Checksum = sum
	return p.db.WithContext(ctx).
		Model(&models.StudyData{}).
		Where("id = ?", data.ID).
		Update("checksum", sum).Error
}

func (p *Pipeline) getOrCreateDataset(ctx context.Context, studyID, genomeID uuid.UUID, liftover bool) (*models.Dataset, error) {
	ds := &models.Dataset{}
	err := p.db.WithContext(ctx).
		Where(&models.Dataset{StudyID: studyID, ReferenceGenomeID: genomeID}).
		Attrs(&models.Dataset{
			ID:       uuid.New(),
			DataType: models.DataTypeBED,
			Liftover: liftover,
		}).
		FirstOrCreate(ds).Error
	if err != nil {
		return nil, errors.Wrapf(err, "dataset of study %s at genome %s", studyID, genomeID)
	}
	return ds, nil
}

func (p *Pipeline) loadDatasets(ctx context.Context, studyID uuid.UUID) ([]*models.Dataset, error) {
	var datasets []*models.Dataset
	err := p.db.WithContext(ctx).
		Preload("ReferenceGenome").
		Order("created_at ASC").
		Find(&datasets, "study_id = ?", studyID).Error
	if err != nil {
		return nil, err
	}
	return datasets, nil
}

// studyFile resolves (and creates) the study's artifact
// directory, returning the absolute path of name within it.
func (p *Pipeline) studyFile(study *models.Study, name string) (string, error) {
	dir := filepath.Join(p.cfg.DataRoot, "studies", study.StudyID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create %s", dir)
	}
	return filepath.Join(dir, name), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "open %s", src)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "create %s", dst)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, "copy %s", dst)
	}
	return out.Close()
}
