package validate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/epivar-cloud/epivar/pkg/compare"
)

type ValidateTestSuite struct {
	suite.Suite
	dir string
}

func (s *ValidateTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
}

func (s *ValidateTestSuite) write(name string, lines ...string) string {
	path := filepath.Join(s.dir, name)
	assert.NoError(s.T(), os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func associationRows(n int) []string {
	lines := []string{strings.Join(AssociationHeader, "\t")}
	for i := 0; i < n; i++ {
		lines = append(lines, fmt.Sprintf("1\t%d\t%d\trs%d\t.\t+\t0.2\t0.01", i*100, i*100+50, i))
	}
	return lines
}

func (s *ValidateTestSuite) TestAssociationValid() {
	path := s.write("a.bed", associationRows(5)...)
	assert.NoError(s.T(), File(path, AssociationRecord))
}

func (s *ValidateTestSuite) TestHeaderOrderEnforced() {
	path := s.write("a.bed",
		"#chrom\tstart\tend\tname\tstrand\tscore\tes\tp-value",
		"1\t0\t50\trs0\t+\t.\t0.2\t0.01",
	)

	err := File(path, AssociationRecord)
	assert.ErrorIs(s.T(), err, compare.ErrNotEqual)
}

func (s *ValidateTestSuite) TestMissingHeaderRejected() {
	path := s.write("a.bed", "1\t0\t50\trs0\t.\t+\t0.2\t0.01")
	assert.ErrorIs(s.T(), File(path, AssociationRecord), compare.ErrNotEqual)
}

func (s *ValidateTestSuite) TestCorruptRowReported() {
	// corrupting row k makes validation identify row k
	for k := 1; k <= 4; k++ {
		lines := associationRows(4)
		lines[k] = "1\t100\t50\trs\t.\t+\t0.2\t0.01" // start > end

		path := s.write("bad.bed", lines...)
		err := File(path, AssociationRecord)
		assert.Error(s.T(), err)
		assert.Contains(s.T(), err.Error(), fmt.Sprintf("invalid row number %d", k))
	}
}

func (s *ValidateTestSuite) TestAssociationFieldErrors() {
	cases := []struct {
		row string
		msg string
	}{
		{"12\t0\t50\trs0\t100\t+\t0.2\t0.01", "score"},
		{"12\t0\t50\trs0\t.\t*\t0.2\t0.01", "strand"},
		{"12\t0\t50\trs0\t.\t+\t1.2\t0.01", "es"},
		{"12\t0\t50\trs0\t.\t+\t0.2\t-0.5", "p-value"},
		{"12\t0\t50\trs0\t.\t+\t0.2", "columns"},
		{"chr23\t0\t50\trs0\t.\t+\t0.2\t0.01", "contig"},
	}

	for _, c := range cases {
		path := s.write("field.bed", strings.Join(AssociationHeader, "\t"), c.row)
		err := File(path, AssociationRecord)
		assert.Error(s.T(), err)
		assert.Contains(s.T(), err.Error(), "invalid row number 1")
		assert.Contains(s.T(), err.Error(), c.msg)
	}
}

func (s *ValidateTestSuite) TestProfilingValid() {
	path := s.write("p.bed",
		strings.Join(ProfilingHeader, "\t"),
		"1\t0\t50\tregion1\t.\t-\t3.5",
		"X\t100\t150\tregion2\t.\t.\t0",
	)
	assert.NoError(s.T(), File(path, ProfilingRecord))
}

func (s *ValidateTestSuite) TestProfilingNegativeValue() {
	path := s.write("p.bed",
		strings.Join(ProfilingHeader, "\t"),
		"1\t0\t50\tregion1\t.\t-\t-1.5",
	)
	err := File(path, ProfilingRecord)
	assert.Error(s.T(), err)
	assert.Contains(s.T(), err.Error(), "me")
}

func (s *ValidateTestSuite) TestInteractionValid() {
	path := s.write("i.bedpe",
		strings.Join(InteractionHeader, "\t"),
		"1\t100\t200\t2\t300\t400\tpair1\t.\t+\t-\t0.4\t0.02",
	)
	assert.NoError(s.T(), File(path, InteractionRecord))
}

func (s *ValidateTestSuite) TestInteractionMateCoordinates() {
	path := s.write("i.bedpe",
		strings.Join(InteractionHeader, "\t"),
		"1\t100\t200\t2\t400\t300\tpair1\t.\t+\t-\t0.4\t0.02",
	)
	err := File(path, InteractionRecord)
	assert.Error(s.T(), err)
	assert.Contains(s.T(), err.Error(), "start2")
}

func (s *ValidateTestSuite) TestBEDRecord() {
	path := s.write("fg.bed", "1\t100\t200", "chrX\t5\t10")
	assert.NoError(s.T(), File(path, BEDRecord))

	bad := s.write("fg2.bed", "1\t100\t200", "weird_contig\t5\t10")
	err := File(bad, BEDRecord)
	assert.Error(s.T(), err)
	assert.Contains(s.T(), err.Error(), "invalid row number 2")
}

func (s *ValidateTestSuite) TestUnknownRecordType() {
	path := s.write("x.bed", "1\t1\t2")
	assert.ErrorIs(s.T(), File(path, RecordType("nope")), ErrUnknownRecordType)
}

func (s *ValidateTestSuite) TestGeneList() {
	path := s.write("genes.txt", "TP53", "BRCA1", "", "MYC")

	genes, err := GeneList(path)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), []string{"TP53", "BRCA1", "MYC"}, genes)
}

func (s *ValidateTestSuite) TestGeneListRejectsMultiToken() {
	path := s.write("genes.txt", "TP53\textra")

	_, err := GeneList(path)
	assert.Error(s.T(), err)
	assert.Contains(s.T(), err.Error(), "single token")
}

func (s *ValidateTestSuite) TestGeneListEmpty() {
	path := s.write("genes.txt", "")
	_, err := GeneList(path)
	assert.Error(s.T(), err)
}

func TestValidateTestSuite(t *testing.T) {
	suite.Run(t, new(ValidateTestSuite))
}
