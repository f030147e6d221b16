package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format reads a tabular file of a given kind.
type Format interface {
	CanRead(filename string) bool
	Read(path string) (*Table, error)
}

var formats []Format

// RegisterFormat adds a format implementation to the registry.
func RegisterFormat(f Format) {
	formats = append(formats, f)
}

// ErrUnsupported indicates no registered format accepts the file.
var ErrUnsupported = errors.New("unsupported dataset format")

// ReadFile selects a format by filename and reads the table.
func ReadFile(path string) (*Table, error) {
	for _, f := range formats {
		if f.CanRead(path) {
			return f.Read(path)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, path)
}

func init() {
	RegisterFormat(delimitedFormat{exts: []string{".txt", ".psv"}, comma: '|'})
	RegisterFormat(delimitedFormat{exts: []string{".csv"}, comma: ','})
	RegisterFormat(delimitedFormat{exts: []string{".tsv"}, comma: '\t'})
	RegisterFormat(xlsxFormat{})
}

type delimitedFormat struct {
	exts  []string
	comma rune
}

func (d delimitedFormat) CanRead(filename string) bool {
	name := strings.ToLower(filename)
	for _, e := range d.exts {
		if strings.HasSuffix(name, e) {
			return true
		}
	}
	return false
}

func (d delimitedFormat) Read(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return ReadDelimited(f, d.comma)
}

// xlsxFormat reads the first sheet of a workbook.
type xlsxFormat struct{}

func (xlsxFormat) CanRead(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".xlsx")
}

func (xlsxFormat) Read(path string) (*Table, error) {
	return ReadXLSX(path, "")
}

// ReadDelimited parses a delimited stream with a header row into a Table.
func ReadDelimited(r io.Reader, comma rune) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return New()
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	raw := make([][]string, len(names))
	row := 0
	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", row+1, err)
		}
		row++
		for j := range names {
			v := ""
			if j < len(rec) {
				v = rec[j]
			}
			raw[j] = append(raw[j], v)
		}
	}
	return fromStrings(names, raw)
}

// ReadXLSX reads the named sheet (or the first sheet if empty) of a workbook.
func ReadXLSX(path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return New()
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return New()
	}
	names := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		names[i] = strings.TrimSpace(h)
	}
	raw := make([][]string, len(names))
	for _, rec := range rows[1:] {
		for j := range names {
			v := ""
			if j < len(rec) {
				v = rec[j]
			}
			raw[j] = append(raw[j], v)
		}
	}
	return fromStrings(names, raw)
}

var nullTokens = map[string]struct{}{
	"": {}, "NA": {}, "N/A": {}, "n/a": {}, "NaN": {}, "nan": {}, "-nan": {},
	"null": {}, "NULL": {}, "None": {}, "<NA>": {}, "#N/A": {},
}

// IsNullToken reports whether a raw cell denotes a missing value.
func IsNullToken(s string) bool {
	_, ok := nullTokens[strings.TrimSpace(s)]
	return ok
}

// fromStrings infers column kinds: a column is numeric when every non-null cell parses.
func fromStrings(names []string, raw [][]string) (*Table, error) {
	cols := make([]*Column, len(names))
	for j, name := range names {
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", j)
		}
		cols[j] = inferColumn(name, raw[j])
	}
	return New(cols...)
}

func inferColumn(name string, vals []string) *Column {
	nums := make([]float64, len(vals))
	numeric := false
	for i, v := range vals {
		if IsNullToken(v) {
			nums[i] = math.NaN()
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			numeric = false
			nums = nil
			break
		}
		nums[i] = f
		numeric = true
	}
	if numeric {
		return NewNumericColumn(name, nums)
	}
	strs := make([]string, len(vals))
	valid := make([]bool, len(vals))
	for i, v := range vals {
		if IsNullToken(v) {
			continue
		}
		strs[i] = strings.TrimSpace(v)
		valid[i] = true
	}
	return NewTextColumn(name, strs, valid)
}
