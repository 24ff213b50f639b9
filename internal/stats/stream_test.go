package stats

import (
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/epivar-cloud/epivar/internal/interval"
)

func TestStreamAdjust(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.bed")
	content := "#chrom\tstart\tend\tname\tscore\tstrand\tes\tp-value\n" +
		"1\t0\t50\trs1\t.\t+\t0.5\t0.01\n" +
		"1\t100\t150\trs2\t.\t+\t0.2\t0.02\n" +
		"2\t0\t50\trs3\t.\t-\t0.9\t0.5\n"
	assert.NoError(t, os.WriteFile(in, []byte(content), 0o644))

	out := filepath.Join(dir, "out.bed.gz")
	assert.NoError(t, StreamAdjust(in, out, Bonferroni, 0.05))

	header, recs, err := interval.ReadAll(out)
	assert.NoError(t, err)
	assert.Equal(t, []string{
		"#chrom", "start", "end", "name", "score", "strand", "es", "p-value",
		"-log10(p-value)", "FDR", "-log10(FDR)", "score",
	}, header)
	assert.Len(t, recs, 3)

	// first row: fdr = 0.01 * 3 = 0.03
	fdr, err := strconv.ParseFloat(recs[0].Field(9), 64)
	assert.NoError(t, err)
	assert.InDelta(t, 0.03, fdr, 1e-12)

	score, err := strconv.ParseFloat(recs[0].Field(11), 64)
	assert.NoError(t, err)
	assert.InDelta(t, -math.Log10(0.03)*0.5, score, 1e-9)

	// original columns survive untouched
	assert.Equal(t, "rs3", recs[2].Name())
	assert.Equal(t, "0.5", recs[2].Field(7))
}

func TestStreamAdjustMissingColumn(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.bed")
	assert.NoError(t, os.WriteFile(in, []byte("#chrom\tstart\tend\n1\t0\t5\n"), 0o644))

	err := StreamAdjust(in, filepath.Join(dir, "out.gz"), FDRBH, 0.05)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "p-value")
}
