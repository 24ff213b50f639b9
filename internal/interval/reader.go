package interval

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/biogo/hts/bgzf"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

const maxLineSize = 4 * 1024 * 1024

// Reader streams interval rows from a tab-separated file,
// transparently decompressing gzip and BGZF input. A leading
// '#'-prefixed line is exposed as the header.
type Reader struct {
	scanner *bufio.Scanner
	closers []io.Closer

	header     []string
	headerRead bool
	pending    *Record
	line       int
}

// NewReader wraps an uncompressed stream.
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), maxLineSize)
	return &Reader{scanner: s}
}

// Open opens path, sniffing the compression. BGZF input is
// distinguished from plain gzip by the BC extra subfield.
func Open(path string) (*Reader, error) {
	src, closers, err := openSource(path)
	if err != nil {
		return nil, err
	}

	r := NewReader(src)
	r.closers = closers
	return r, nil
}

func openSource(path string) (io.Reader, []io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open %s", path)
	}

	br := bufio.NewReader(f)
	magic, err := br.Peek(2)
	if err != nil && err != io.EOF {
		f.Close()
		return nil, nil, errors.Wrapf(err, "sniff %s", path)
	}

	var src io.Reader = br
	closers := []io.Closer{f}

	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		if isBGZF(br) {
			zr, err := bgzf.NewReader(br, 0)
			if err != nil {
				f.Close()
				return nil, nil, errors.Wrapf(err, "bgzf open %s", path)
			}
			src = zr
			closers = append([]io.Closer{zr}, closers...)
		} else {
			zr, err := gzip.NewReader(br)
			if err != nil {
				f.Close()
				return nil, nil, errors.Wrapf(err, "gzip open %s", path)
			}
			src = zr
			closers = append([]io.Closer{zr}, closers...)
		}
	}

	return src, closers, nil
}

// LineReader streams raw trimmed lines from a possibly
// compressed file.
type LineReader struct {
	scanner *bufio.Scanner
	closers []io.Closer
}

// OpenLines opens path for plain line streaming.
func OpenLines(path string) (*LineReader, error) {
	src, closers, err := openSource(path)
	if err != nil {
		return nil, err
	}

	s := bufio.NewScanner(src)
	s.Buffer(make([]byte, 64*1024), maxLineSize)
	return &LineReader{scanner: s, closers: closers}, nil
}

// Next returns the next line with surrounding whitespace
// trimmed, io.EOF at end of input.
func (r *LineReader) Next() (string, error) {
	if r.scanner.Scan() {
		return strings.TrimSpace(r.scanner.Text()), nil
	}
	if err := r.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// Close releases the underlying file handles.
func (r *LineReader) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// isBGZF checks for the BGZF "BC" extra subfield in the
// first gzip member header.
func isBGZF(br *bufio.Reader) bool {
	hdr, err := br.Peek(18)
	if err != nil || len(hdr) < 18 {
		return false
	}
	// FLG.FEXTRA with XLEN covering an SI1='B' SI2='C'
	// subfield, per the SAM/BGZF specification.
	if hdr[3]&0x04 == 0 {
		return false
	}
	return hdr[12] == 'B' && hdr[13] == 'C'
}

// Header returns the column names of the '#'-prefixed first
// line, or nil when the file has no header.
func (r *Reader) Header() ([]string, error) {
	if err := r.readHeader(); err != nil {
		return nil, err
	}
	return r.header, nil
}

func (r *Reader) readHeader() error {
	if r.headerRead {
		return nil
	}
	r.headerRead = true

	for r.scanner.Scan() {
		r.line++
		text := strings.TrimRight(r.scanner.Text(), "\r\n")
		if strings.TrimSpace(text) == "" {
			continue
		}

		if strings.HasPrefix(text, "#") {
			r.header = strings.Split(text, "\t")
			r.header[0] = strings.TrimPrefix(r.header[0], "#")
			// keep the conventional "#chrom" spelling
			r.header[0] = "#" + r.header[0]
			return nil
		}

		rec, err := parseRecord(strings.Split(text, "\t"), r.line)
		if err != nil {
			return err
		}
		r.pending = rec
		return nil
	}

	return r.scanner.Err()
}

// Next returns the next interval record, io.EOF at end of
// input, or a *ParseError for malformed rows.
func (r *Reader) Next() (*Record, error) {
	if err := r.readHeader(); err != nil {
		return nil, err
	}

	if r.pending != nil {
		rec := r.pending
		r.pending = nil
		return rec, nil
	}

	for r.scanner.Scan() {
		r.line++
		text := strings.TrimRight(r.scanner.Text(), "\r\n")
		if strings.TrimSpace(text) == "" || strings.HasPrefix(text, "#") {
			continue
		}
		return parseRecord(strings.Split(text, "\t"), r.line)
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Line returns the 1-based number of the last line read.
func (r *Reader) Line() int {
	return r.line
}

// Close releases the underlying file handles, if any.
func (r *Reader) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ReadAll loads every record of a file, returning the header
// (nil when absent) and the records.
func ReadAll(path string) ([]string, []*Record, error) {
	r, err := Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer r.Close()

	header, err := r.Header()
	if err != nil {
		return nil, nil, err
	}

	var recs []*Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		recs = append(recs, rec)
	}

	return header, recs, nil
}

// Count returns the number of interval rows in a file,
// excluding header and blank lines.
func Count(path string) (int, error) {
	r, err := Open(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	n := 0
	for {
		if _, err := r.Next(); err == io.EOF {
			break
		} else if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}
