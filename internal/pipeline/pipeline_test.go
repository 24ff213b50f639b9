package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/epivar-cloud/epivar/internal/interval"
	"github.com/epivar-cloud/epivar/internal/models"
	"github.com/epivar-cloud/epivar/internal/models/testutil"
	"github.com/epivar-cloud/epivar/internal/validate"
)

const testChain = `chain 1000 chr1 100000 + 0 100000 chr1 100000 + 0 100000 1
100000

chain 900 chr2 100000 + 0 100000 chr2 100000 + 0 100000 2
100000
`

type PipelineTestSuite struct {
	suite.Suite
	db   *gorm.DB
	dir  string
	p    *Pipeline
	hg19 *models.ReferenceGenome
	hg38 *models.ReferenceGenome
}

func (s *PipelineTestSuite) SetupTest() {
	s.db = testutil.OpenTestDB(s.T())
	s.dir = s.T().TempDir()
	s.p = New(s.db, Config{DataRoot: s.dir})

	s.hg19 = s.createGenome(models.AssemblyHG19, "hg19.p13")
	s.hg38 = s.createGenome(models.AssemblyHG38, "hg38.p14")

	chainPath := s.write("hg19ToHg38.over.chain", testChain)
	assert.NoError(s.T(), s.db.Create(&models.ChainFile{
		ID:             uuid.New(),
		SourceGenomeID: s.hg19.ID,
		TargetGenomeID: s.hg38.ID,
		Path:           chainPath,
	}).Error)
}

func (s *PipelineTestSuite) TearDownTest() {
	testutil.CloseDB(s.db)
}

func (s *PipelineTestSuite) write(name, content string) string {
	path := filepath.Join(s.dir, name)
	assert.NoError(s.T(), os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (s *PipelineTestSuite) createGenome(name models.Assembly, version string) *models.ReferenceGenome {
	sizes := s.write(version+".chrom.sizes", "1\t100000\n2\t100000\n")
	gff := s.write(version+".annotation.gff",
		"1\thavana\tgene\t1\t100000\t.\t+\t.\tID=g1;Name=GENEA\n")

	genome := &models.ReferenceGenome{
		ID:              uuid.New(),
		Name:            name,
		Version:         version,
		AnnotationsPath: gff,
		ChromSizesPath:  sizes,
	}
	assert.NoError(s.T(), s.db.Create(genome).Error)
	return genome
}

func (s *PipelineTestSuite) createStudy(kind models.StudyKind, seq int64, content string) *models.Study {
	studyID := models.FormatStudyID(kind, seq)
	submitted := s.write(studyID+".submitted.bed", content)

	data := &models.StudyData{
		ID:                uuid.New(),
		ReferenceGenomeID: s.hg19.ID,
		Path:              submitted,
	}
	assert.NoError(s.T(), s.db.Create(data).Error)

	study := &models.Study{
		ID:              uuid.New(),
		StudyID:         studyID,
		Kind:            kind,
		Title:           "test study",
		Status:          models.IntegrationPending,
		SubmittedDataID: data.ID,
	}
	assert.NoError(s.T(), s.db.Create(study).Error)
	return study
}

func associationContent(rows ...string) string {
	return strings.Join(append(
		[]string{strings.Join(validate.AssociationHeader, "\t")}, rows...,
	), "\n") + "\n"
}

func (s *PipelineTestSuite) TestAssociationRunPasses() {
	study := s.createStudy(models.StudyAssociation, 1, associationContent(
		"1\t100\t200\trs1\t.\t+\t0.5\t0.01",
		"1\t300\t400\trs2\t.\t-\t0.2\t0.2",
		"1\t500\t600\trs3\t.\t.\t0.9\t0.003",
		"2\t100\t200\trs4\t.\t+\t0.1\t0.5",
		"2\t700\t900\trs5\t.\t-\t0.4\t0.04",
	))

	assert.NoError(s.T(), s.p.Run(context.Background(), study.ID))

	var got models.Study
	assert.NoError(s.T(), s.db.Preload("PreprocessedData").First(&got, "id = ?", study.ID).Error)
	assert.Equal(s.T(), models.IntegrationPassed, got.Status)
	assert.Empty(s.T(), got.StatusDetail)
	assert.NotNil(s.T(), got.StageRunID)
	assert.NotNil(s.T(), got.PreprocessedDataID)

	meta := got.PreprocessedData.Metadata
	assert.EqualValues(s.T(), 5, meta["total_submitted_records"])
	assert.EqualValues(s.T(), 5, meta["intersection_with_reference"])
	assert.EqualValues(s.T(), 1, meta["overlapping_fraction"])

	var runs []models.StageRun
	assert.NoError(s.T(), s.db.Order("started_at ASC").Find(&runs, "study_id = ?", study.ID).Error)
	assert.Len(s.T(), runs, 9)
	for _, run := range runs {
		assert.Equal(s.T(), StageSucceeded, run.Status, run.Name)
		assert.NotNil(s.T(), run.CompletedAt, run.Name)
	}
	assert.Equal(s.T(), StageInit, runs[0].Name)
	assert.Equal(s.T(), StagePlots, runs[8].Name)

	// one dataset at the submission assembly, one lifted
	var datasets []models.Dataset
	assert.NoError(s.T(), s.db.Order("created_at ASC").Find(&datasets, "study_id = ?", study.ID).Error)
	assert.Len(s.T(), datasets, 2)

	for _, ds := range datasets {
		assert.True(s.T(), strings.HasSuffix(ds.Path, ".sorted.bed.gz"))
		assert.FileExists(s.T(), ds.Path)
		assert.FileExists(s.T(), ds.IndexPath)
		assert.NotEmpty(s.T(), ds.Checksum)
		assert.NotEmpty(s.T(), ds.IndexChecksum)
		assert.FileExists(s.T(), ds.AnnotationsPath)
		assert.Contains(s.T(), ds.AnnotationCounts, "gene")
		assert.Contains(s.T(), ds.Plots, "mh")
		assert.Contains(s.T(), ds.Plots, "qq")
		assert.Contains(s.T(), ds.Plots, "an")
	}

	lifted := datasets[1]
	assert.True(s.T(), lifted.Liftover)
	assert.EqualValues(s.T(), 5, lifted.ConversionMetrics["Total rows"])
	assert.EqualValues(s.T(), 5, lifted.ConversionMetrics["Remapped rows"])

	// the adjust stage appended the correction columns
	header, recs, err := interval.ReadAll(datasets[0].Path)
	assert.NoError(s.T(), err)
	assert.Len(s.T(), recs, 5)
	for _, col := range []string{"-log10(p-value)", "FDR", "-log10(FDR)", "score"} {
		assert.Contains(s.T(), header, col)
	}
}

func (s *PipelineTestSuite) TestReferenceMismatchFails() {
	// chromosome 2 extends to 100000 in the reference, so rows
	// placed beyond it never intersect: only half overlap
	study := s.createStudy(models.StudyAssociation, 2, associationContent(
		"1\t100\t200\trs1\t.\t+\t0.5\t0.01",
		"1\t300\t400\trs2\t.\t-\t0.2\t0.2",
		"2\t200000\t200100\trs3\t.\t+\t0.9\t0.003",
		"2\t300000\t300100\trs4\t.\t+\t0.1\t0.5",
	))

	err := s.p.Run(context.Background(), study.ID)
	assert.ErrorIs(s.T(), err, ErrReferenceMismatch)

	var got models.Study
	assert.NoError(s.T(), s.db.First(&got, "id = ?", study.ID).Error)
	assert.Equal(s.T(), models.IntegrationFailed, got.Status)
	assert.Contains(s.T(), got.StatusDetail, "overlap")
	assert.Nil(s.T(), got.PreprocessedDataID)

	var runs []models.StageRun
	assert.NoError(s.T(), s.db.Order("started_at ASC").Find(&runs, "study_id = ?", study.ID).Error)
	assert.Len(s.T(), runs, 3)
	assert.Equal(s.T(), StageIntersect, runs[2].Name)
	assert.Equal(s.T(), StageFailed, runs[2].Status)
	assert.NotEmpty(s.T(), runs[2].Error)

	// no dataset materializes for a failed study
	var n int64
	assert.NoError(s.T(), s.db.Model(&models.Dataset{}).Where("study_id = ?", study.ID).Count(&n).Error)
	assert.Zero(s.T(), n)
}

func (s *PipelineTestSuite) TestTerminalStudyRejected() {
	study := s.createStudy(models.StudyAssociation, 3, associationContent(
		"1\t100\t200\trs1\t.\t+\t0.5\t0.01",
	))
	assert.NoError(s.T(), s.db.Model(study).Update("status", models.IntegrationPassed).Error)

	err := s.p.Run(context.Background(), study.ID)
	assert.ErrorIs(s.T(), err, ErrTerminalStudy)
}

func (s *PipelineTestSuite) TestMaterializeIdempotent() {
	study := s.createStudy(models.StudyAssociation, 4, associationContent(
		"1\t100\t200\trs1\t.\t+\t0.5\t0.01",
		"1\t300\t400\trs2\t.\t-\t0.2\t0.2",
	))
	assert.NoError(s.T(), s.p.Run(context.Background(), study.ID))

	loaded, err := s.p.loadStudy(context.Background(), study.ID)
	assert.NoError(s.T(), err)

	// re-running materialization must reuse the dataset row
	assert.NoError(s.T(), stageMaterialize(context.Background(), s.p, loaded))
	assert.NoError(s.T(), stageMaterialize(context.Background(), s.p, loaded))

	var n int64
	assert.NoError(s.T(), s.db.Model(&models.Dataset{}).
		Where("study_id = ? AND reference_genome_id = ?", study.ID, s.hg19.ID).
		Count(&n).Error)
	assert.EqualValues(s.T(), 1, n)
}

func (s *PipelineTestSuite) TestProfilingRunPasses() {
	content := strings.Join([]string{
		strings.Join(validate.ProfilingHeader, "\t"),
		"1\t100\t200\tcpg1\t.\t+\t0.75",
		"1\t300\t400\tcpg2\t.\t-\t0.25",
		"2\t100\t200\tcpg3\t.\t.\t0.5",
	}, "\n") + "\n"
	study := s.createStudy(models.StudyProfiling, 1, content)

	assert.NoError(s.T(), s.p.Run(context.Background(), study.ID))

	var got models.Study
	assert.NoError(s.T(), s.db.First(&got, "id = ?", study.ID).Error)
	assert.Equal(s.T(), models.IntegrationPassed, got.Status)

	var runs []models.StageRun
	assert.NoError(s.T(), s.db.Find(&runs, "study_id = ?", study.ID).Error)
	names := make([]string, 0, len(runs))
	for _, run := range runs {
		names = append(names, run.Name)
	}
	assert.NotContains(s.T(), names, StageAdjust)
	assert.NotContains(s.T(), names, StageAnnotate)
	assert.Contains(s.T(), names, StageComputeScore)

	var datasets []models.Dataset
	assert.NoError(s.T(), s.db.Order("created_at ASC").Find(&datasets, "study_id = ?", study.ID).Error)
	assert.Len(s.T(), datasets, 2)
	assert.Contains(s.T(), datasets[0].Plots, "vl")

	// the methylation estimate lands in the score column
	_, recs, err := interval.ReadAll(datasets[0].Path)
	assert.NoError(s.T(), err)
	assert.Len(s.T(), recs, 3)
	for _, rec := range recs {
		assert.Equal(s.T(), rec.Field(6), rec.Field(4))
	}
}

func (s *PipelineTestSuite) TestInteractionRunPasses() {
	content := strings.Join([]string{
		strings.Join(validate.InteractionHeader, "\t"),
		"1\t100\t200\t1\t5000\t5100\tint1\t.\t+\t-\t0.5\t0.01",
		"2\t300\t400\t2\t9000\t9100\tint2\t.\t-\t+\t0.2\t0.04",
	}, "\n") + "\n"
	study := s.createStudy(models.StudyInteraction, 1, content)

	assert.NoError(s.T(), s.p.Run(context.Background(), study.ID))

	var got models.Study
	assert.NoError(s.T(), s.db.Preload("PreprocessedData").First(&got, "id = ?", study.ID).Error)
	assert.Equal(s.T(), models.IntegrationPassed, got.Status)

	// each pair expands into two single-locus rows
	var datasets []models.Dataset
	assert.NoError(s.T(), s.db.Order("created_at ASC").Find(&datasets, "study_id = ?", study.ID).Error)
	assert.Len(s.T(), datasets, 2)

	header, recs, err := interval.ReadAll(datasets[0].Path)
	assert.NoError(s.T(), err)
	assert.Len(s.T(), recs, 4)
	assert.Equal(s.T(), validate.AssociationHeader, header[:len(validate.AssociationHeader)])

	var names []string
	for _, rec := range recs {
		names = append(names, rec.Name())
	}
	assert.Contains(s.T(), names, "1:100-200--1:5000-5100")
	assert.Contains(s.T(), names, "2:300-400--2:9000-9100")
}

func (s *PipelineTestSuite) TestExpandPairsRows() {
	study := s.createStudy(models.StudyInteraction, 2, "unused\n")

	content := strings.Join([]string{
		strings.Join(validate.InteractionHeader, "\t"),
		"1\t100\t200\t2\t300\t400\tint1\t.\t+\t-\t0.5\t0.01",
	}, "\n") + "\n"
	path := s.write("pairs.bed", content)

	data := &models.StudyData{
		ID:                uuid.New(),
		ReferenceGenomeID: s.hg19.ID,
		Path:              path,
	}
	assert.NoError(s.T(), s.db.Create(data).Error)
	study.PreprocessedData = data

	assert.NoError(s.T(), stageExpandPairs(context.Background(), s.p, study))

	header, recs, err := interval.ReadAll(path)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), validate.AssociationHeader, header)
	assert.Len(s.T(), recs, 2)

	left, right := recs[0], recs[1]
	assert.Equal(s.T(), "1:100-200--2:300-400", left.Name())
	assert.Equal(s.T(), "1:100-200--2:300-400", right.Name())
	assert.Equal(s.T(), "1", left.Chrom)
	assert.Equal(s.T(), "+", left.Strand())
	assert.Equal(s.T(), "2", right.Chrom)
	assert.Equal(s.T(), 300, right.Start)
	assert.Equal(s.T(), "-", right.Strand())
	assert.Equal(s.T(), "0.01", left.Field(7))
}

func (s *PipelineTestSuite) TestLeasedRunRenewsClaim() {
	study := s.createStudy(models.StudyAssociation, 5, associationContent(
		"1\t100\t200\trs1\t.\t+\t0.5\t0.01",
		"1\t300\t400\trs2\t.\t-\t0.2\t0.2",
	))

	expiry := time.Now().UTC().Add(10 * time.Second)
	assert.NoError(s.T(), s.db.Model(study).Updates(map[string]interface{}{
		"claimed_by":       "node-a",
		"claim_expires_at": expiry,
	}).Error)

	leased := New(s.db, Config{DataRoot: s.dir, NodeID: "node-a"})
	assert.NoError(s.T(), leased.Run(context.Background(), study.ID))

	var got models.Study
	assert.NoError(s.T(), s.db.First(&got, "id = ?", study.ID).Error)
	assert.Equal(s.T(), models.IntegrationPassed, got.Status)

	// every stage transition pushed the expiry forward, so a
	// run outliving its initial lease is never reclaimed
	assert.NotNil(s.T(), got.ClaimExpiresAt)
	assert.True(s.T(), got.ClaimExpiresAt.After(expiry))
}

func (s *PipelineTestSuite) TestForeignClaimAbortsRun() {
	study := s.createStudy(models.StudyAssociation, 6, associationContent(
		"1\t100\t200\trs1\t.\t+\t0.5\t0.01",
	))

	assert.NoError(s.T(), s.db.Model(study).Updates(map[string]interface{}{
		"claimed_by":       "node-b",
		"claim_expires_at": time.Now().UTC().Add(time.Minute),
	}).Error)

	leased := New(s.db, Config{DataRoot: s.dir, NodeID: "node-a"})
	err := leased.Run(context.Background(), study.ID)
	assert.ErrorIs(s.T(), err, ErrLeaseLost)

	// the claim holder's row is left alone: still pending, no
	// failure detail, claim intact
	var got models.Study
	assert.NoError(s.T(), s.db.First(&got, "id = ?", study.ID).Error)
	assert.Equal(s.T(), models.IntegrationPending, got.Status)
	assert.Empty(s.T(), got.StatusDetail)
	assert.Equal(s.T(), "node-b", got.ClaimedBy)
}

func (s *PipelineTestSuite) TestDefinitionUnknownKind() {
	_, err := Definition(models.StudyKind("mystery"))
	assert.ErrorIs(s.T(), err, ErrUnknownStudyKind)
}

func TestPipelineTestSuite(t *testing.T) {
	suite.Run(t, new(PipelineTestSuite))
}
