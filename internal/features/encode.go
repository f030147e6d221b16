package features

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/KaramelBytes/riskloom-cli/internal/dataset"
)

// nullLabel is the string form a null cell takes before encoding.
const nullLabel = "nan"

// LabelEncoder maps category labels to their index in the sorted class list.
type LabelEncoder struct {
	Classes []string `json:"classes"`
	index   map[string]int
}

// FitLabelEncoder learns the sorted distinct labels of vals.
func FitLabelEncoder(vals []string) *LabelEncoder {
	seen := map[string]struct{}{}
	for _, v := range vals {
		seen[v] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for v := range seen {
		classes = append(classes, v)
	}
	sort.Strings(classes)
	return NewLabelEncoder(classes)
}

// NewLabelEncoder rebuilds an encoder from a persisted, sorted class list.
func NewLabelEncoder(classes []string) *LabelEncoder {
	e := &LabelEncoder{Classes: classes}
	e.reindex()
	return e
}

func (e *LabelEncoder) reindex() {
	e.index = make(map[string]int, len(e.Classes))
	for i, c := range e.Classes {
		e.index[c] = i
	}
}

// UnmarshalJSON restores the class list and its lookup index.
func (e *LabelEncoder) UnmarshalJSON(b []byte) error {
	var aux struct {
		Classes []string `json:"classes"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	e.Classes = aux.Classes
	e.reindex()
	return nil
}

// Transform returns the code of a label and whether it was seen during fitting.
func (e *LabelEncoder) Transform(label string) (int, bool) {
	if e.index == nil {
		e.reindex()
	}
	i, ok := e.index[label]
	return i, ok
}

// Code returns the code of a label; unseen labels map to 0.
func (e *LabelEncoder) Code(label string) float64 {
	i, _ := e.Transform(label)
	return float64(i)
}

// Inverse returns the label for a code.
func (e *LabelEncoder) Inverse(code int) (string, error) {
	if code < 0 || code >= len(e.Classes) {
		return "", fmt.Errorf("code %d out of range [0, %d)", code, len(e.Classes))
	}
	return e.Classes[code], nil
}

// Encoders holds one fitted encoder per categorical column.
type Encoders map[string]*LabelEncoder

// Columns returns the encoded column names in sorted order.
func (e Encoders) Columns() []string {
	out := make([]string, 0, len(e))
	for k := range e {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// EncodeCategoricals label-encodes every text column not listed in exclude.
// Nulls are encoded as the label "nan".
func EncodeCategoricals(t *dataset.Table, exclude []string) (*dataset.Table, Encoders) {
	skip := make(map[string]struct{}, len(exclude))
	for _, n := range exclude {
		skip[n] = struct{}{}
	}
	out := t.Drop()
	enc := Encoders{}
	for _, c := range t.Columns() {
		if c.Kind != dataset.KindText {
			continue
		}
		if _, ok := skip[c.Name]; ok {
			continue
		}
		labels := make([]string, c.Len())
		for i := range labels {
			if c.IsNull(i) {
				labels[i] = nullLabel
			} else {
				labels[i] = c.Strs[i]
			}
		}
		le := FitLabelEncoder(labels)
		codes := make([]float64, len(labels))
		for i, l := range labels {
			codes[i] = le.Code(l)
		}
		_ = out.Set(dataset.NewNumericColumn(c.Name, codes))
		enc[c.Name] = le
	}
	return out, enc
}

// Record is a single policy as entered for inference. Values may be strings,
// booleans or numbers.
type Record map[string]any

// Label renders a record value the way training data renders it: booleans as
// True/False and whole floats without a fraction.
func Label(v any) string {
	switch x := v.(type) {
	case nil:
		return nullLabel
	case string:
		return x
	case bool:
		if x {
			return "True"
		}
		return "False"
	case float64:
		if math.IsNaN(x) {
			return nullLabel
		}
		return dataset.FormatFloat(x)
	case float32:
		return dataset.FormatFloat(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprint(x)
	}
}

func numeric(v any) float64 {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) {
			return 0
		}
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// EncodeRecord builds a feature vector in column order. Encoded columns use
// their encoder (unseen labels become 0); other columns are read as numbers;
// columns absent from the record are 0.
func EncodeRecord(rec Record, enc Encoders, columns []string) []float64 {
	out := make([]float64, len(columns))
	for j, col := range columns {
		v, ok := rec[col]
		if !ok {
			continue
		}
		if le, isCat := enc[col]; isCat {
			out[j] = le.Code(Label(v))
			continue
		}
		out[j] = numeric(v)
	}
	return out
}
