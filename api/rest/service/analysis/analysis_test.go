package analysis

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/epivar-cloud/epivar/internal/models"
	"github.com/epivar-cloud/epivar/internal/models/testutil"
	"github.com/epivar-cloud/epivar/internal/stats"
)

const testGFF = "1\thavana\tgene\t1000\t2000\t.\t+\t.\tID=g1;Name=GENEA\n" +
	"1\thavana\tgene\t5000\t6000\t.\t-\t.\tID=g2;Name=GENEB\n"

type AnalysisTestSuite struct {
	suite.Suite
	db     *gorm.DB
	dir    string
	genome *models.ReferenceGenome
}

func (s *AnalysisTestSuite) SetupTest() {
	s.db = testutil.OpenTestDB(s.T())
	s.dir = s.T().TempDir()

	s.genome = &models.ReferenceGenome{
		ID:              uuid.New(),
		Name:            models.AssemblyHG19,
		Version:         "hg19.p13",
		AnnotationsPath: s.write("annotation.gff", testGFF),
		ChromSizesPath:  s.write("hg19.chrom.sizes", "1\t100000\n"),
	}
	assert.NoError(s.T(), s.db.Create(s.genome).Error)
}

func (s *AnalysisTestSuite) TearDownTest() {
	testutil.CloseDB(s.db)
}

func (s *AnalysisTestSuite) write(name, content string) string {
	path := filepath.Join(s.dir, name)
	assert.NoError(s.T(), os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (s *AnalysisTestSuite) service() Analysis {
	return Service(context.Background()).WithDatabase(s.db)
}

func (s *AnalysisTestSuite) createGeneSets() {
	for name, genes := range map[string][]string{
		"SET_A": {"GENEA"},
		"SET_B": {"GENEB"},
	} {
		assert.NoError(s.T(), s.db.Create(&models.GeneSet{
			ID:         uuid.New(),
			Name:       name,
			Collection: models.CollectionHallmark,
			Genes:      datatypes.NewJSONSlice(genes),
		}).Error)
	}
}

func (s *AnalysisTestSuite) reload(id uuid.UUID) *models.Analysis {
	stored := &models.Analysis{}
	assert.NoError(s.T(), s.db.First(stored, "id = ?", id).Error)
	return stored
}

func (s *AnalysisTestSuite) TestCreateAppliesDefaults() {
	a, err := s.service().Create(&CreateRequest{
		Kind:            string(models.AnalysisGSEA),
		ReferenceGenome: "hg19.p13",
		ForegroundPath:  s.write("fg.txt", "GENEA\n"),
	})
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), models.InputGenomicIntervals, a.InputType)
	assert.Equal(s.T(), stats.FDRBY, a.CorrectionMethod)
	assert.Equal(s.T(), 0.05, a.SignificanceLevel)
	assert.Equal(s.T(), 1, a.NClosest)
	assert.Equal(s.T(), models.AlternativeTwoSided, a.Alternative)
}

func (s *AnalysisTestSuite) TestCreateRejectsBadInputs() {
	_, err := s.service().Create(&CreateRequest{
		Kind:            "pathway",
		ReferenceGenome: "hg19.p13",
	})
	assert.ErrorIs(s.T(), err, ErrUnknownKind)

	_, err = s.service().Create(&CreateRequest{
		Kind:             string(models.AnalysisGSEA),
		ReferenceGenome:  "hg19.p13",
		CorrectionMethod: "fdr_magic",
	})
	assert.ErrorIs(s.T(), err, stats.ErrUnknownMethod)

	_, err = s.service().Create(&CreateRequest{
		Kind:            string(models.AnalysisLOA),
		ReferenceGenome: "hg19.p13",
		Permutations:    7,
	})
	assert.ErrorIs(s.T(), err, ErrBadPermutations)

	_, err = s.service().Create(&CreateRequest{
		Kind:            string(models.AnalysisGSEA),
		ReferenceGenome: "mm10.p6",
	})
	assert.ErrorIs(s.T(), err, ErrUnknownGenome)
}

func (s *AnalysisTestSuite) TestExecuteGSEAGeneNames() {
	s.createGeneSets()

	a, err := s.service().Create(&CreateRequest{
		Kind:            string(models.AnalysisGSEA),
		ReferenceGenome: "hg19.p13",
		ForegroundPath:  s.write("fg.txt", "GENEA\n"),
		InputType:       string(models.InputGeneNames),
		Universe:        string(models.CollectionHallmark),
	})
	assert.NoError(s.T(), err)

	assert.NoError(s.T(), s.service().Execute(a.ID))

	stored := s.reload(a.ID)
	assert.NotNil(s.T(), stored.CompletedAt)
	assert.Empty(s.T(), stored.Error)

	var results map[string]json.RawMessage
	assert.NoError(s.T(), json.Unmarshal(stored.Results, &results))
	assert.Contains(s.T(), results, "gsea")
	assert.NotContains(s.T(), results, "intersection_stats")
}

func (s *AnalysisTestSuite) TestExecuteGSEAIntervals() {
	s.createGeneSets()

	a, err := s.service().Create(&CreateRequest{
		Kind:            string(models.AnalysisGSEA),
		ReferenceGenome: "hg19.p13",
		ForegroundPath:  s.write("fg.bed", "1\t900\t1100\n"),
		BackgroundPath:  s.write("bg.bed", "1\t900\t1100\n1\t4900\t5100\n"),
	})
	assert.NoError(s.T(), err)

	assert.NoError(s.T(), s.service().Execute(a.ID))

	stored := s.reload(a.ID)
	assert.Empty(s.T(), stored.Error)

	var results struct {
		IntersectionStats map[string]interface{} `json:"intersection_stats"`
	}
	assert.NoError(s.T(), json.Unmarshal(stored.Results, &results))
	assert.EqualValues(s.T(), 1, results.IntersectionStats["foreground_intersection"])
	assert.EqualValues(s.T(), 1, results.IntersectionStats["foreground_total"])
	assert.EqualValues(s.T(), 2, results.IntersectionStats["background_total"])
	assert.EqualValues(s.T(), 1, results.IntersectionStats["foreground_fraction"])
}

func (s *AnalysisTestSuite) TestExecuteGSEARejectsNonSubsetForeground() {
	s.createGeneSets()

	a, err := s.service().Create(&CreateRequest{
		Kind:            string(models.AnalysisGSEA),
		ReferenceGenome: "hg19.p13",
		ForegroundPath:  s.write("fg.bed", "1\t900\t1100\n"),
		BackgroundPath:  s.write("bg.bed", "1\t4900\t5100\n"),
	})
	assert.NoError(s.T(), err)

	err = s.service().Execute(a.ID)
	assert.ErrorContains(s.T(), err, "not a subset of background")

	stored := s.reload(a.ID)
	assert.Contains(s.T(), stored.Error, "Intersection: 0, but total: 1")
	assert.NotNil(s.T(), stored.CompletedAt)
	assert.Empty(s.T(), stored.Results)
}

func (s *AnalysisTestSuite) TestExecuteLOA() {
	collection := &models.GenomicFeatureCollection{
		ID:                uuid.New(),
		Name:              "chromatin states",
		ReferenceGenomeID: s.genome.ID,
	}
	assert.NoError(s.T(), s.db.Create(collection).Error)
	assert.NoError(s.T(), s.db.Create(&models.GenomicFeature{
		ID:                uuid.New(),
		CollectionID:      collection.ID,
		Name:              "enhancer",
		ReferenceGenomeID: s.genome.ID,
		Path:              s.write("enhancer.bed", "1\t100\t200\n1\t5000\t5100\n"),
	}).Error)

	a, err := s.service().Create(&CreateRequest{
		Kind:            string(models.AnalysisLOA),
		ReferenceGenome: "hg19.p13",
		ForegroundPath:  s.write("fg.bed", "1\t150\t250\n1\t7000\t7100\n"),
		Permutations:    10,

		// keep every tested row in the report
		SignificanceLevel: 1,
	})
	assert.NoError(s.T(), err)

	assert.NoError(s.T(), s.service().Execute(a.ID))

	stored := s.reload(a.ID)
	assert.Empty(s.T(), stored.Error)

	var rows []map[string]interface{}
	assert.NoError(s.T(), json.Unmarshal(stored.Results, &rows))
	assert.Len(s.T(), rows, 1)
	assert.Equal(s.T(), "enhancer", rows[0]["name"])
	assert.Equal(s.T(), "chromatin states", rows[0]["collection"])
}

func (s *AnalysisTestSuite) TestExecuteSOA() {
	data := &models.StudyData{
		ID:                uuid.New(),
		ReferenceGenomeID: s.genome.ID,
		Path:              s.write("submission.bed", "1\t100\t200\n"),
	}
	assert.NoError(s.T(), s.db.Create(data).Error)

	study := &models.Study{
		ID:              uuid.New(),
		StudyID:         "MPS000001",
		Kind:            models.StudyProfiling,
		Title:           "methylation profile",
		Status:          models.IntegrationPassed,
		SubmittedDataID: data.ID,
	}
	assert.NoError(s.T(), s.db.Create(study).Error)
	assert.NoError(s.T(), s.db.Create(&models.Dataset{
		ID:                uuid.New(),
		StudyID:           study.ID,
		ReferenceGenomeID: s.genome.ID,
		Path: s.write("MPS000001.hg19.bed",
			"#chrom\tstart\tend\tname\tscore\tstrand\tme\n1\t100\t200\tp1\t0\t+\t0.5\n"),
	}).Error)

	a, err := s.service().Create(&CreateRequest{
		Kind:            string(models.AnalysisSOA),
		ReferenceGenome: "hg19.p13",
		ForegroundPath:  s.write("fg.bed", "1\t150\t250\n"),
	})
	assert.NoError(s.T(), err)

	assert.NoError(s.T(), s.service().Execute(a.ID))

	var rows []map[string]interface{}
	assert.NoError(s.T(), json.Unmarshal(s.reload(a.ID).Results, &rows))
	assert.Len(s.T(), rows, 1)
	assert.Equal(s.T(), "MPS000001", rows[0]["Study"])
	assert.Equal(s.T(), "Profiling data", rows[0]["Category"])
	assert.Equal(s.T(), "/v1/studies/MPS000001", rows[0]["Link"])
	assert.EqualValues(s.T(), 1, rows[0]["Ovp"])
	assert.EqualValues(s.T(), 1, rows[0]["Fraction"])
}

func (s *AnalysisTestSuite) TestExecuteOnlyOnce() {
	s.createGeneSets()

	a, err := s.service().Create(&CreateRequest{
		Kind:            string(models.AnalysisGSEA),
		ReferenceGenome: "hg19.p13",
		ForegroundPath:  s.write("fg.txt", "GENEA\n"),
		InputType:       string(models.InputGeneNames),
	})
	assert.NoError(s.T(), err)

	assert.NoError(s.T(), s.service().Execute(a.ID))
	assert.ErrorIs(s.T(), s.service().Execute(a.ID), ErrCompleted)
}

func TestAnalysisTestSuite(t *testing.T) {
	suite.Run(t, new(AnalysisTestSuite))
}
