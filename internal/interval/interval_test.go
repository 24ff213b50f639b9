package interval

import (
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type IntervalTestSuite struct {
	suite.Suite
	dir string
}

func (s *IntervalTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
}

func (s *IntervalTestSuite) write(name, content string) string {
	path := filepath.Join(s.dir, name)
	assert.NoError(s.T(), os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (s *IntervalTestSuite) writeGzip(name, content string) string {
	path := filepath.Join(s.dir, name)
	f, err := os.Create(path)
	assert.NoError(s.T(), err)
	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte(content))
	assert.NoError(s.T(), err)
	assert.NoError(s.T(), zw.Close())
	assert.NoError(s.T(), f.Close())
	return path
}

func (s *IntervalTestSuite) TestNormalizeChrom() {
	assert.Equal(s.T(), "1", NormalizeChrom("chr1"))
	assert.Equal(s.T(), "X", NormalizeChrom("chrX"))
	assert.Equal(s.T(), "MT", NormalizeChrom("MT"))
	assert.True(s.T(), ValidChrom("chr22"))
	assert.False(s.T(), ValidChrom("chrUn_gl000220"))
}

func (s *IntervalTestSuite) TestChromOrder() {
	assert.True(s.T(), ChromLess("2", "10"))
	assert.True(s.T(), ChromLess("22", "X"))
	assert.True(s.T(), ChromLess("Y", "MT"))
	assert.True(s.T(), ChromLess("MT", "GL000195.1"))
	assert.False(s.T(), ChromLess("10", "2"))
}

func (s *IntervalTestSuite) TestParseRecord() {
	rec, err := parseRecord([]string{"chr1", "100", "200", "rs1"}, 1)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), "1", rec.Chrom)
	assert.Equal(s.T(), 100, rec.Start)
	assert.Equal(s.T(), 200, rec.End)
	assert.Equal(s.T(), "rs1", rec.Name())
	assert.Equal(s.T(), "1\t100\t200\trs1", rec.Text())
}

func (s *IntervalTestSuite) TestParseRecordErrors() {
	cases := []struct {
		fields []string
		msg    string
	}{
		{[]string{"1", "100"}, "columns"},
		{[]string{"1", "abc", "200"}, "invalid start"},
		{[]string{"1", "100", "xyz"}, "invalid end"},
		{[]string{"1", "-5", "200"}, "negative start"},
		{[]string{"1", "300", "200"}, "start 300 > end 200"},
	}
	for _, c := range cases {
		_, err := parseRecord(c.fields, 7)
		assert.Error(s.T(), err)
		perr, ok := err.(*ParseError)
		assert.True(s.T(), ok)
		assert.Equal(s.T(), 7, perr.Line)
		assert.Contains(s.T(), perr.Error(), c.msg)
	}
}

func (s *IntervalTestSuite) TestReaderHeaderAndRows() {
	path := s.write("a.bed", "#chrom\tstart\tend\n1\t10\t20\nchr2\t5\t15\n")

	r, err := Open(path)
	assert.NoError(s.T(), err)
	defer r.Close()

	header, err := r.Header()
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), []string{"#chrom", "start", "end"}, header)

	rec, err := r.Next()
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), "1", rec.Chrom)

	rec, err = r.Next()
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), "2", rec.Chrom)
	assert.Equal(s.T(), 5, rec.Start)

	_, err = r.Next()
	assert.Equal(s.T(), io.EOF, err)
}

func (s *IntervalTestSuite) TestReaderNoHeader() {
	path := s.write("b.bed", "1\t10\t20\n")

	r, err := Open(path)
	assert.NoError(s.T(), err)
	defer r.Close()

	header, err := r.Header()
	assert.NoError(s.T(), err)
	assert.Nil(s.T(), header)

	rec, err := r.Next()
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), 10, rec.Start)
}

func (s *IntervalTestSuite) TestReaderGzip() {
	path := s.writeGzip("c.bed.gz", "1\t10\t20\n2\t30\t40\n")

	n, err := Count(path)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), 2, n)
}

func (s *IntervalTestSuite) TestReaderReportsRowNumber() {
	path := s.write("bad.bed", "#h1\th2\th3\n1\t10\t20\n1\tbad\t30\n")

	_, _, err := ReadAll(path)
	assert.Error(s.T(), err)
	perr, ok := err.(*ParseError)
	assert.True(s.T(), ok)
	assert.Equal(s.T(), 3, perr.Line)
}

func (s *IntervalTestSuite) TestSortRecords() {
	recs := []*Record{
		NewRecord("X", 5, 10),
		NewRecord("2", 100, 200),
		NewRecord("10", 1, 2),
		NewRecord("2", 50, 60),
		NewRecord("2", 50, 55),
	}
	SortRecords(recs)

	assert.Equal(s.T(), "2", recs[0].Chrom)
	assert.Equal(s.T(), 50, recs[0].Start)
	assert.Equal(s.T(), 55, recs[0].End)
	assert.Equal(s.T(), 60, recs[1].End)
	assert.Equal(s.T(), 100, recs[2].Start)
	assert.Equal(s.T(), "10", recs[3].Chrom)
	assert.Equal(s.T(), "X", recs[4].Chrom)
	assert.True(s.T(), Sorted(recs))
}

func (s *IntervalTestSuite) TestIntersectUnique() {
	query := []*Record{
		NewRecord("1", 10, 20),
		NewRecord("1", 100, 110),
		NewRecord("2", 10, 20),
	}
	ref := []*Record{
		NewRecord("1", 15, 30),
		NewRecord("1", 16, 18),
		NewRecord("2", 500, 600),
	}

	hits, err := Intersect(query, ref)
	assert.NoError(s.T(), err)
	// -u semantics: each query reported once no matter how
	// many reference features it hits
	assert.Len(s.T(), hits, 1)
	assert.Equal(s.T(), 10, hits[0].Start)
}

func (s *IntervalTestSuite) TestIntersectHalfOpen() {
	query := []*Record{NewRecord("1", 10, 20)}
	bookended := []*Record{NewRecord("1", 20, 30)}

	hits, err := Intersect(query, bookended)
	assert.NoError(s.T(), err)
	assert.Empty(s.T(), hits)

	touching := []*Record{NewRecord("1", 19, 30)}
	hits, err = Intersect(query, touching)
	assert.NoError(s.T(), err)
	assert.Len(s.T(), hits, 1)
}

func (s *IntervalTestSuite) TestIntersectEmptyReference() {
	hits, err := Intersect([]*Record{NewRecord("1", 10, 20)}, nil)
	assert.NoError(s.T(), err)
	assert.Empty(s.T(), hits)
}

func (s *IntervalTestSuite) TestOverlappingSorted() {
	idx, err := NewIndex([]*Record{
		NewRecord("1", 50, 60),
		NewRecord("1", 10, 30),
		NewRecord("1", 20, 40),
	})
	assert.NoError(s.T(), err)

	hits := idx.Overlapping(NewRecord("1", 25, 55))
	assert.Len(s.T(), hits, 3)
	assert.Equal(s.T(), 10, hits[0].Start)
	assert.Equal(s.T(), 20, hits[1].Start)
	assert.Equal(s.T(), 50, hits[2].Start)
}

func (s *IntervalTestSuite) TestClosestDistances() {
	query := []*Record{NewRecord("1", 100, 200)}
	ref := []*Record{
		NewRecord("1", 150, 160), // overlap
		NewRecord("1", 200, 210), // bookended
		NewRecord("1", 250, 260), // gap of 50
		NewRecord("2", 100, 200), // other contig
	}

	hits, err := Closest(query, ref, 3, 1_000_000, false)
	assert.NoError(s.T(), err)
	assert.Len(s.T(), hits[0], 3)
	assert.Equal(s.T(), 0, hits[0][0].Distance)
	assert.Equal(s.T(), 1, hits[0][1].Distance)
	assert.Equal(s.T(), 51, hits[0][2].Distance)
}

func (s *IntervalTestSuite) TestClosestMaxDistance() {
	query := []*Record{NewRecord("1", 100, 200)}
	ref := []*Record{NewRecord("1", 5000, 5100)}

	hits, err := Closest(query, ref, 1, 100, false)
	assert.NoError(s.T(), err)
	assert.Empty(s.T(), hits[0])
}

func (s *IntervalTestSuite) TestClosestSameStrand() {
	q, err := parseRecord([]string{"1", "100", "200", "q", "0", "+"}, 1)
	assert.NoError(s.T(), err)
	plus, err := parseRecord([]string{"1", "300", "400", "a", "0", "+"}, 2)
	assert.NoError(s.T(), err)
	minus, err := parseRecord([]string{"1", "210", "220", "b", "0", "-"}, 3)
	assert.NoError(s.T(), err)

	hits, err := Closest([]*Record{q}, []*Record{plus, minus}, 1, 1_000_000, true)
	assert.NoError(s.T(), err)
	assert.Len(s.T(), hits[0], 1)
	assert.Equal(s.T(), "a", hits[0][0].Feature.Name())
}

func (s *IntervalTestSuite) TestGenomeLoadFlat() {
	path := s.write("genome.txt", "chr1\t1000\n2\t500\n")

	g, err := LoadGenome(path)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), 1000, g.Size("1"))
	assert.Equal(s.T(), 500, g.Size("chr2"))
	assert.Equal(s.T(), []string{"1", "2"}, g.Names())
}

func (s *IntervalTestSuite) TestGenomeLoadBED() {
	path := s.write("genome.bed", "1\t0\t1000\n")

	g, err := LoadGenome(path)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), 1000, g.Size("1"))
}

func (s *IntervalTestSuite) TestGenomeLoadBadRow() {
	path := s.write("genome.txt", "1\t1000\n2\t-3\n")

	_, err := LoadGenome(path)
	assert.Error(s.T(), err)
	perr, ok := err.(*ParseError)
	assert.True(s.T(), ok)
	assert.Equal(s.T(), 2, perr.Line)
}

func (s *IntervalTestSuite) TestShufflePreservesLengths() {
	g := NewGenome(map[string]int{"1": 10_000, "2": 5_000})
	rng := rand.New(rand.NewSource(1))

	recs := []*Record{
		NewRecord("1", 100, 600),
		NewRecord("2", 0, 250),
		NewRecord("1", 9_000, 9_100),
	}

	shuffled := Shuffle(recs, g, rng)
	assert.Len(s.T(), shuffled, len(recs))
	for i, rec := range shuffled {
		want := recs[i].End - recs[i].Start
		assert.Equal(s.T(), want, rec.End-rec.Start)
		assert.GreaterOrEqual(s.T(), rec.Start, 0)
		assert.LessOrEqual(s.T(), rec.End, g.Size(rec.Chrom))
	}
}

func (s *IntervalTestSuite) TestWriteFileRoundTrip() {
	path := filepath.Join(s.dir, "out.bed.gz")
	header := []string{"#chrom", "start", "end", "name"}
	recs := []*Record{
		{Chrom: "1", Start: 10, End: 20, Fields: []string{"1", "10", "20", "a"}},
		{Chrom: "2", Start: 5, End: 15, Fields: []string{"2", "5", "15", "b"}},
	}

	assert.NoError(s.T(), WriteFile(path, header, recs))

	gotHeader, gotRecs, err := ReadAll(path)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), header, gotHeader)
	assert.Len(s.T(), gotRecs, 2)
	assert.Equal(s.T(), "a", gotRecs[0].Name())
	assert.Equal(s.T(), "b", gotRecs[1].Name())
}

func (s *IntervalTestSuite) TestSortFile() {
	in := s.write("unsorted.bed", "#chrom\tstart\tend\n2\t5\t15\n1\t30\t40\n1\t10\t20\n")
	out := filepath.Join(s.dir, "sorted.bed.gz")

	assert.NoError(s.T(), SortFile(in, out))

	_, recs, err := ReadAll(out)
	assert.NoError(s.T(), err)
	assert.Len(s.T(), recs, 3)
	assert.True(s.T(), Sorted(recs))
	assert.Equal(s.T(), "1", recs[0].Chrom)
	assert.Equal(s.T(), 10, recs[0].Start)
}

func (s *IntervalTestSuite) TestIndexTabixRejectsUnsorted() {
	path := filepath.Join(s.dir, "unsorted.bed.gz")
	recs := []*Record{
		NewRecord("1", 100, 200),
		NewRecord("1", 50, 60),
	}
	assert.NoError(s.T(), WriteFile(path, nil, recs))

	_, err := IndexTabix(path)
	assert.Equal(s.T(), ErrUnsorted, err)
}

func (s *IntervalTestSuite) TestIndexTabixRejectsUngroupedContigs() {
	path := filepath.Join(s.dir, "split.bed.gz")
	recs := []*Record{
		NewRecord("1", 100, 200),
		NewRecord("2", 50, 60),
		NewRecord("1", 300, 400),
	}
	assert.NoError(s.T(), WriteFile(path, nil, recs))

	_, err := IndexTabix(path)
	assert.Equal(s.T(), ErrUnsorted, err)
}

func (s *IntervalTestSuite) TestIndexAndQuery() {
	path := filepath.Join(s.dir, "sorted.bed.gz")
	recs := []*Record{
		NewRecord("1", 10, 20),
		NewRecord("1", 100, 200),
		NewRecord("2", 5, 15),
	}
	assert.NoError(s.T(), WriteFile(path, []string{"#chrom", "start", "end"}, recs))

	tbi, err := IndexTabix(path)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), path+".tbi", tbi)
	_, err = os.Stat(tbi)
	assert.NoError(s.T(), err)

	hits, err := Query(path, "chr1", 150, 160)
	assert.NoError(s.T(), err)
	assert.Len(s.T(), hits, 1)
	assert.Equal(s.T(), 100, hits[0].Start)

	hits, err = Query(path, "1", 20, 30)
	assert.NoError(s.T(), err)
	assert.Empty(s.T(), hits)
}

func (s *IntervalTestSuite) TestRecordStrandDefault() {
	rec := NewRecord("1", 10, 20)
	assert.Equal(s.T(), ".", rec.Strand())
	assert.Equal(s.T(), "", rec.Field(9))
}

func (s *IntervalTestSuite) TestSetCoords() {
	rec, err := parseRecord([]string{"1", "10", "20", "keep"}, 1)
	assert.NoError(s.T(), err)

	rec.SetCoords("chr2", 30, 40)
	assert.Equal(s.T(), "2\t30\t40\tkeep", rec.Text())
}

func TestIntervalTestSuite(t *testing.T) {
	suite.Run(t, new(IntervalTestSuite))
}

func TestDistance(t *testing.T) {
	a := NewRecord("1", 100, 200)
	assert.Equal(t, 0, distance(a, NewRecord("1", 150, 160)))
	assert.Equal(t, 1, distance(a, NewRecord("1", 200, 210)))
	assert.Equal(t, 1, distance(a, NewRecord("1", 90, 100)))
	assert.Equal(t, 11, distance(a, NewRecord("1", 210, 220)))
}
