package interval

import (
	"io"
	"os"
	"strings"

	"github.com/biogo/hts/bgzf"
	"github.com/biogo/hts/tabix"
	"github.com/pkg/errors"
)

// ErrUnsorted is returned when indexing is attempted over
// input that is not coordinate sorted. The index is only
// valid over sorted data; re-sort and re-index after any
// mutation before attempting indexed reads.
var ErrUnsorted = errors.New("interval: input is not coordinate sorted")

// Writer writes tab-separated rows to a block-compressed
// (BGZF) file.
type Writer struct {
	f *os.File
	z *bgzf.Writer
}

// NewWriter creates path, truncating any existing file.
func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", path)
	}
	return &Writer{f: f, z: bgzf.NewWriter(f, 1)}, nil
}

// WriteHeader writes the '#'-prefixed column header.
func (w *Writer) WriteHeader(cols []string) error {
	if len(cols) == 0 {
		return nil
	}
	return w.WriteRow(cols)
}

// WriteRow writes one tab-separated row.
func (w *Writer) WriteRow(fields []string) error {
	_, err := io.WriteString(w.z, strings.Join(fields, "\t")+"\n")
	return err
}

// WriteRecord writes one interval record.
func (w *Writer) WriteRecord(rec *Record) error {
	_, err := io.WriteString(w.z, rec.Text()+"\n")
	return err
}

// Close flushes and closes the compressed stream.
func (w *Writer) Close() error {
	if err := w.z.Close(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// WriteFile writes a header (optional) and records to a BGZF
// file at path.
func WriteFile(path string, header []string, recs []*Record) error {
	w, err := NewWriter(path)
	if err != nil {
		return err
	}

	if err := w.WriteHeader(header); err != nil {
		w.Close()
		return err
	}
	for _, rec := range recs {
		if err := w.WriteRecord(rec); err != nil {
			w.Close()
			return err
		}
	}

	return w.Close()
}

// SortFile rewrites a BGZF/gzip/plain interval file into
// coordinate-sorted BGZF output, preserving the header row.
func SortFile(in, out string) error {
	header, recs, err := ReadAll(in)
	if err != nil {
		return err
	}
	SortRecords(recs)
	return WriteFile(out, header, recs)
}

// tabixRecord adapts a parsed row to the tabix indexing
// contract.
type tabixRecord struct {
	chrom      string
	start, end int
}

func (r tabixRecord) RefName() string { return r.chrom }
func (r tabixRecord) Start() int      { return r.start }
func (r tabixRecord) End() int        { return r.end }

// IndexTabix builds a tabix index over a coordinate-sorted
// BGZF interval file, writing path+".tbi" and returning the
// index path. Unsorted input is rejected with ErrUnsorted.
func IndexTabix(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	z, err := bgzf.NewReader(f, 1)
	if err != nil {
		return "", errors.Wrapf(err, "bgzf open %s", path)
	}
	defer z.Close()

	idx := &tabix.Index{
		ZeroBased:   true,
		NameColumn:  1,
		BeginColumn: 2,
		EndColumn:   3,
		MetaChar:    '#',
	}

	var (
		prev     *tabixRecord
		line     int
		skipped  int32
		lastSeen = map[string]bool{}
	)

	for {
		tx := z.Begin()
		text, err := readLine(z)
		chunk := tx.End()

		if len(text) == 0 && err == io.EOF {
			break
		}
		if err != nil && err != io.EOF {
			return "", errors.Wrapf(err, "read %s", path)
		}

		line++
		trimmed := strings.TrimRight(text, "\r\n")
		if strings.TrimSpace(trimmed) == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			if prev == nil {
				skipped = int32(line)
				idx.Skip = skipped
			}
			continue
		}

		rec, perr := parseRecord(strings.Split(trimmed, "\t"), line)
		if perr != nil {
			return "", perr
		}

		cur := &tabixRecord{chrom: rec.Chrom, start: rec.Start, end: rec.End}
		if prev != nil {
			switch {
			case prev.chrom == cur.chrom:
				if prev.start > cur.start {
					return "", ErrUnsorted
				}
			case lastSeen[cur.chrom]:
				// contig seen before a different one: blocks
				// are not grouped
				return "", ErrUnsorted
			}
		}
		lastSeen[cur.chrom] = true

		if err := idx.Add(*cur, chunk, true, true); err != nil {
			return "", errors.Wrap(err, "tabix add")
		}
		prev = cur

		if err == io.EOF {
			break
		}
	}

	tbi := path + ".tbi"
	out, err := os.Create(tbi)
	if err != nil {
		return "", errors.Wrapf(err, "create %s", tbi)
	}

	zw := bgzf.NewWriter(out, 1)
	if err := tabix.WriteTo(zw, idx); err != nil {
		zw.Close()
		out.Close()
		return "", errors.Wrap(err, "write tabix index")
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return "", err
	}
	return tbi, out.Close()
}

// readLine reads one newline-terminated line byte-wise so
// the surrounding bgzf transaction covers exactly this line.
func readLine(r io.Reader) (string, error) {
	var (
		sb  strings.Builder
		buf [1]byte
	)
	for {
		n, err := r.Read(buf[:])
		if n > 0 {
			sb.WriteByte(buf[0])
			if buf[0] == '\n' {
				return sb.String(), nil
			}
		}
		if err != nil {
			return sb.String(), err
		}
	}
}

// Query reads the records of an indexed BGZF file that
// overlap [start, end) on chrom. The index at path+".tbi"
// must be current; stale indexes over mutated data yield
// undefined results.
func Query(path, chrom string, start, end int) ([]*Record, error) {
	tf, err := os.Open(path + ".tbi")
	if err != nil {
		return nil, errors.Wrapf(err, "open index for %s", path)
	}
	defer tf.Close()

	tz, err := bgzf.NewReader(tf, 1)
	if err != nil {
		return nil, errors.Wrap(err, "bgzf open index")
	}
	defer tz.Close()

	idx, err := tabix.ReadFrom(tz)
	if err != nil {
		return nil, errors.Wrap(err, "read tabix index")
	}

	chrom = NormalizeChrom(chrom)
	chunks, err := idx.Chunks(chrom, start, end)
	if err != nil {
		// unknown reference name: nothing overlaps
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	z, err := bgzf.NewReader(f, 1)
	if err != nil {
		return nil, errors.Wrapf(err, "bgzf open %s", path)
	}
	defer z.Close()

	var out []*Record
	for _, chunk := range chunks {
		if err := z.Seek(chunk.Begin); err != nil {
			return nil, errors.Wrap(err, "seek chunk")
		}

		for {
			if vOffset(z.LastChunk().End) >= vOffset(chunk.End) {
				break
			}
			text, err := readLine(z)
			if len(text) == 0 && err == io.EOF {
				break
			}
			if err != nil && err != io.EOF {
				return nil, err
			}

			trimmed := strings.TrimRight(text, "\r\n")
			if strings.TrimSpace(trimmed) == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}

			rec, perr := parseRecord(strings.Split(trimmed, "\t"), 0)
			if perr != nil {
				return nil, perr
			}
			if rec.Overlaps(chrom, start, end) {
				out = append(out, rec)
			}
			if err == io.EOF {
				break
			}
		}
	}

	return out, nil
}

func vOffset(o bgzf.Offset) uint64 {
	return uint64(o.File)<<16 | uint64(o.Block)
}
