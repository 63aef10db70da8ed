package artifact

import (
	"bytes"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
)

type spreadRow struct {
	Date   string  `parquet:"Date"`
	Global float64 `parquet:"Global"`
	Latino float64 `parquet:"Latino"`
}

func writeFixture(t *testing.T, n int) string {
	t.Helper()
	rows := make([]spreadRow, n)
	for i := range rows {
		rows[i] = spreadRow{Date: "2025-03-1" + string(rune('0'+i%10)), Global: 3.1 + float64(i), Latino: 4.2}
	}
	path := filepath.Join(t.TempDir(), "data.parquet")
	if err := parquet.WriteFile(path, rows); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestInspect_ShapeAndPreview(t *testing.T) {
	path := writeFixture(t, 12)

	sum, err := Inspect(path, 5)
	if err != nil {
		t.Fatalf("Inspect error: %v", err)
	}
	rows, cols := sum.Shape()
	if rows != 12 || cols != 3 {
		t.Fatalf("shape = (%d, %d), want (12, 3)", rows, cols)
	}

	names := append([]string(nil), sum.Columns...)
	sort.Strings(names)
	if strings.Join(names, ",") != "Date,Global,Latino" {
		t.Fatalf("columns = %v", sum.Columns)
	}
	if len(sum.Preview) != 5 {
		t.Fatalf("preview rows = %d, want 5", len(sum.Preview))
	}
	for _, r := range sum.Preview {
		if len(r) != 3 {
			t.Fatalf("preview row width = %d, want 3", len(r))
		}
	}
	if len(sum.SHA256) != 64 || sum.Size <= 0 {
		t.Fatalf("unexpected digest/size: %q %d", sum.SHA256, sum.Size)
	}
}

func TestInspect_PreviewLargerThanFile(t *testing.T) {
	path := writeFixture(t, 2)
	sum, err := Inspect(path, 10)
	if err != nil {
		t.Fatalf("Inspect error: %v", err)
	}
	if len(sum.Preview) != 2 {
		t.Fatalf("preview rows = %d, want 2", len(sum.Preview))
	}
}

func TestInspect_ZeroPreview(t *testing.T) {
	path := writeFixture(t, 3)
	sum, err := Inspect(path, 0)
	if err != nil {
		t.Fatalf("Inspect error: %v", err)
	}
	if sum.Preview != nil {
		t.Fatalf("expected no preview, got %v", sum.Preview)
	}
}

func TestInspect_Missing(t *testing.T) {
	_, err := Inspect(filepath.Join(t.TempDir(), "data.parquet"), 5)
	if !errors.Is(err, ErrMissing) {
		t.Fatalf("expected ErrMissing, got %v", err)
	}
}

func TestInspect_Unreadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.parquet")
	if err := os.WriteFile(path, []byte("date,value\n2025-01-01,1.0\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := Inspect(path, 5)
	if err == nil {
		t.Fatalf("expected error for non-parquet content")
	}
	if errors.Is(err, ErrMissing) {
		t.Fatalf("unreadable file must not be reported as missing")
	}
}

func TestInspect_Directory(t *testing.T) {
	if _, err := Inspect(t.TempDir(), 5); err == nil {
		t.Fatalf("expected error for directory")
	}
}

func TestSummary_Print(t *testing.T) {
	path := writeFixture(t, 3)
	sum, err := Inspect(path, 2)
	if err != nil {
		t.Fatalf("Inspect error: %v", err)
	}

	var buf bytes.Buffer
	if err := sum.Print(&buf); err != nil {
		t.Fatalf("Print error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "shape: (3, 3)") {
		t.Fatalf("missing shape line: %q", out)
	}
	for _, col := range []string{"Date", "Global", "Latino"} {
		if !strings.Contains(out, col) {
			t.Fatalf("missing column %s in %q", col, out)
		}
	}
}

type typedRow struct {
	Date   int32 `parquet:"Date,date"`
	Spread struct {
		Global float64 `parquet:"Global"`
		Latino float64 `parquet:"Latino"`
	} `parquet:"Spread"`
	Price int64 `parquet:"Price,decimal(2:10)"`
	Loss  int32 `parquet:"Loss,decimal(3:9)"`
	At    int64 `parquet:"At,timestamp(millisecond)"`
}

func TestInspect_LogicalTypesAndNestedColumns(t *testing.T) {
	at := time.Date(2025, 3, 13, 8, 30, 0, 0, time.UTC)
	row := typedRow{Date: 20160, Price: 12345, Loss: -5, At: at.UnixMilli()}
	row.Spread.Global = 3.5
	row.Spread.Latino = 4.25

	path := filepath.Join(t.TempDir(), "data.parquet")
	if err := parquet.WriteFile(path, []typedRow{row}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	sum, err := Inspect(path, 1)
	if err != nil {
		t.Fatalf("Inspect error: %v", err)
	}
	want := []string{"Date", "Spread.Global", "Spread.Latino", "Price", "Loss", "At"}
	if strings.Join(sum.Columns, "|") != strings.Join(want, "|") {
		t.Fatalf("columns = %v, want %v", sum.Columns, want)
	}
	if len(sum.Preview) != 1 || len(sum.Preview[0]) != len(sum.Columns) {
		t.Fatalf("preview = %v, want one row of %d cells", sum.Preview, len(sum.Columns))
	}

	cells := map[string]string{}
	for i, col := range sum.Columns {
		cells[col] = sum.Preview[0][i]
	}
	for col, want := range map[string]string{
		"Date":          "2025-03-13",
		"Spread.Global": "3.5",
		"Spread.Latino": "4.25",
		"Price":         "123.45",
		"Loss":          "-0.005",
		"At":            "2025-03-13T08:30:00Z",
	} {
		if cells[col] != want {
			t.Errorf("%s = %q, want %q", col, cells[col], want)
		}
	}
}

func TestFormatDecimal(t *testing.T) {
	tests := []struct {
		n     int64
		scale int
		want  string
	}{
		{n: 12345, scale: 2, want: "123.45"},
		{n: 5, scale: 3, want: "0.005"},
		{n: -120, scale: 2, want: "-1.20"},
		{n: 42, scale: 0, want: "42"},
	}
	for _, tt := range tests {
		if got := formatDecimal(big.NewInt(tt.n), tt.scale); got != tt.want {
			t.Errorf("formatDecimal(%d, %d) = %q, want %q", tt.n, tt.scale, got, tt.want)
		}
	}
}
