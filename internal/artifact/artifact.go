// Package artifact inspects the Parquet file produced by the fetch step.
//
// Inspection only proves the file exists and decodes: it reports the shape and
// a preview of leading rows. The schema is owned by the fetch collaborator and
// is not validated here.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"
)

// ErrMissing is returned when the artifact does not exist.
var ErrMissing = errors.New("artifact not found")

type Summary struct {
	Path    string
	Size    int64
	SHA256  string
	Rows    int64
	Columns []string
	Preview [][]string
}

// Shape returns the row and column counts.
func (s *Summary) Shape() (rows int64, cols int) {
	return s.Rows, len(s.Columns)
}

// Inspect opens path as Parquet and reads up to previewRows leading rows.
func Inspect(path string, previewRows int) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissing, path)
		}
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat artifact: %w", err)
	}
	if st.IsDir() {
		return nil, fmt.Errorf("artifact %s is a directory", path)
	}

	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}

	sum := &Summary{
		Path: path,
		Size: st.Size(),
		Rows: pf.NumRows(),
	}
	// Preview cells are indexed by leaf column, so nested groups are
	// flattened into dotted paths.
	var cells []cellFormat
	for _, path := range pf.Schema().Columns() {
		sum.Columns = append(sum.Columns, strings.Join(path, "."))
		leaf, _ := pf.Schema().Lookup(path...)
		cells = append(cells, formatterFor(leaf.Node))
	}

	if previewRows > 0 {
		preview, err := readPreview(pf, previewRows, cells)
		if err != nil {
			return nil, fmt.Errorf("read parquet rows %s: %w", path, err)
		}
		sum.Preview = preview
	}

	digest, err := hashFile(f)
	if err != nil {
		return nil, fmt.Errorf("hash artifact: %w", err)
	}
	sum.SHA256 = digest
	return sum, nil
}

func readPreview(pf *parquet.File, limit int, cells []cellFormat) ([][]string, error) {
	var out [][]string
	for _, rg := range pf.RowGroups() {
		if len(out) >= limit {
			break
		}
		rows := rg.Rows()
		buf := make([]parquet.Row, limit-len(out))
		n, err := rows.ReadRows(buf)
		_ = rows.Close()
		for _, row := range buf[:n] {
			out = append(out, formatRow(row, cells))
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	}
	return out, nil
}

func formatRow(row parquet.Row, cells []cellFormat) []string {
	out := make([]string, len(cells))
	for _, v := range row {
		col := v.Column()
		if col < 0 || col >= len(cells) {
			continue
		}
		s := "null"
		if !v.IsNull() {
			s = cells[col](v)
		}
		if out[col] != "" {
			out[col] += "," + s
		} else {
			out[col] = s
		}
	}
	return out
}

// cellFormat renders one non-null leaf value.
type cellFormat func(parquet.Value) string

func rawValue(v parquet.Value) string { return v.String() }

// formatterFor picks a renderer from the leaf's logical type so that dates,
// timestamps and decimals read as values rather than their physical encoding.
func formatterFor(node parquet.Node) cellFormat {
	if node == nil {
		return rawValue
	}
	lt := node.Type().LogicalType()
	switch {
	case lt == nil:
		return rawValue
	case lt.Date != nil:
		return func(v parquet.Value) string {
			return time.Unix(int64(v.Int32())*86400, 0).UTC().Format(time.DateOnly)
		}
	case lt.Timestamp != nil:
		return timestampFormat(lt.Timestamp)
	case lt.Decimal != nil:
		scale := int(lt.Decimal.Scale)
		return func(v parquet.Value) string {
			return formatDecimal(unscaled(v), scale)
		}
	}
	return rawValue
}

func timestampFormat(ts *format.TimestampType) cellFormat {
	layout := "2006-01-02T15:04:05.999999999"
	if ts.IsAdjustedToUTC {
		layout = time.RFC3339Nano
	}
	return func(v parquet.Value) string {
		if v.Kind() != parquet.Int64 {
			return v.String()
		}
		n := v.Int64()
		var t time.Time
		switch {
		case ts.Unit.Millis != nil:
			t = time.UnixMilli(n)
		case ts.Unit.Micros != nil:
			t = time.UnixMicro(n)
		default:
			t = time.Unix(0, n)
		}
		return t.UTC().Format(layout)
	}
}

func unscaled(v parquet.Value) *big.Int {
	switch v.Kind() {
	case parquet.Int32:
		return big.NewInt(int64(v.Int32()))
	case parquet.Int64:
		return big.NewInt(v.Int64())
	}
	// Byte-array decimals are big-endian two's complement.
	b := v.ByteArray()
	n := new(big.Int).SetBytes(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(8*len(b))))
	}
	return n
}

func formatDecimal(n *big.Int, scale int) string {
	if scale <= 0 {
		return n.String()
	}
	digits := new(big.Int).Abs(n).String()
	if len(digits) <= scale {
		digits = strings.Repeat("0", scale-len(digits)+1) + digits
	}
	s := digits[:len(digits)-scale] + "." + digits[len(digits)-scale:]
	if n.Sign() < 0 {
		s = "-" + s
	}
	return s
}

func hashFile(f *os.File) (string, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Print writes the shape and the preview table to w.
func (s *Summary) Print(w io.Writer) error {
	rows, cols := s.Shape()
	if _, err := fmt.Fprintf(w, "%s shape: (%d, %d)\n", s.Path, rows, cols); err != nil {
		return err
	}
	if len(s.Preview) == 0 {
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	t.SetStyle(style)

	header := make(table.Row, 0, len(s.Columns))
	for _, c := range s.Columns {
		header = append(header, c)
	}
	t.AppendHeader(header)
	for _, r := range s.Preview {
		row := make(table.Row, 0, len(r))
		for _, cell := range r {
			row = append(row, cell)
		}
		t.AppendRow(row)
	}
	t.Render()
	return nil
}
