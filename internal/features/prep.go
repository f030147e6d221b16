// Package features turns the raw claims table into model-ready matrices and
// encodes single policy records for inference.
package features

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/KaramelBytes/riskloom-cli/internal/dataset"
)

// ReferenceYear anchors vehicle_age to the dataset's coverage period.
const ReferenceYear = 2015

// Well-known column names.
const (
	ClaimsColumn      = "TotalClaims"
	PremiumColumn     = "TotalPremium"
	ClaimFlagColumn   = "has_claim"
	MarginColumn      = "margin"
	VehicleAgeColumn  = "vehicle_age"
	PremiumRateColumn = "premium_per_sum_insured"
)

// DroppedColumns are identifiers, the raw date and columns that are mostly null.
var DroppedColumns = []string{
	"UnderwrittenCoverID",
	"PolicyID",
	"TransactionMonth",
	"NumberOfVehiclesInFleet",
	"CrossBorder",
	"CustomValueEstimate",
	"WrittenOff",
	"Rebuilt",
	"Converted",
}

// ErrEmptyData is returned when a preparation step leaves too few rows to split.
var ErrEmptyData = errors.New("not enough rows")

// SelectFeatures drops DroppedColumns; absent columns are ignored.
func SelectFeatures(t *dataset.Table) *dataset.Table {
	return t.Drop(DroppedColumns...)
}

// HandleMissingValues fills nulls: numeric columns with the median, text
// columns with the most frequent value (ties go to the smallest label) or
// "Unknown" when every value is null. Columns without nulls are shared.
func HandleMissingValues(t *dataset.Table) *dataset.Table {
	out := t.Drop()
	for _, c := range t.Columns() {
		if c.NullCount() == 0 {
			continue
		}
		if c.Kind == dataset.KindNumeric {
			fill := median(c.NonNullFloats())
			nums := make([]float64, c.Len())
			for i, v := range c.Nums {
				if math.IsNaN(v) {
					v = fill
				}
				nums[i] = v
			}
			_ = out.Set(dataset.NewNumericColumn(c.Name, nums))
			continue
		}
		fill := mode(c)
		strs := make([]string, c.Len())
		for i := range strs {
			if c.IsNull(i) {
				strs[i] = fill
			} else {
				strs[i] = c.Strs[i]
			}
		}
		_ = out.Set(dataset.NewTextColumn(c.Name, strs, nil))
	}
	return out
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

func mode(c *dataset.Column) string {
	counts := map[string]int{}
	for i := 0; i < c.Len(); i++ {
		if !c.IsNull(i) {
			counts[c.Strs[i]]++
		}
	}
	best, bestN := "Unknown", 0
	for v, n := range counts {
		if n > bestN || (n == bestN && v < best) {
			best, bestN = v, n
		}
	}
	return best
}

// CreateFeatures adds vehicle_age (ReferenceYear - RegistrationYear) and
// premium_per_sum_insured (TotalPremium / SumInsured, 0 when SumInsured <= 0)
// when their source columns exist.
func CreateFeatures(t *dataset.Table) (*dataset.Table, error) {
	out := t.Drop()
	if t.Has("RegistrationYear") {
		years, _ := t.Floats("RegistrationYear")
		age := make([]float64, len(years))
		for i, y := range years {
			age[i] = ReferenceYear - y
		}
		if err := out.Set(dataset.NewNumericColumn(VehicleAgeColumn, age)); err != nil {
			return nil, err
		}
	}
	if t.Has(PremiumColumn) && t.Has("SumInsured") {
		prem, _ := t.Floats(PremiumColumn)
		sum, _ := t.Floats("SumInsured")
		rate := make([]float64, len(prem))
		for i := range prem {
			rate[i] = PremiumRate(prem[i], sum[i])
		}
		if err := out.Set(dataset.NewNumericColumn(PremiumRateColumn, rate)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// PremiumRate returns premium / sumInsured, or 0 when sumInsured is not positive.
func PremiumRate(premium, sumInsured float64) float64 {
	if !(sumInsured > 0) {
		return 0
	}
	return premium / sumInsured
}

// Pipeline runs select, impute, derive and encode in the order training uses.
func Pipeline(t *dataset.Table) (*dataset.Table, Encoders, error) {
	out := HandleMissingValues(SelectFeatures(t))
	out, err := CreateFeatures(out)
	if err != nil {
		return nil, nil, fmt.Errorf("create features: %w", err)
	}
	encoded, enc := EncodeCategoricals(out, nil)
	return encoded, enc, nil
}

// SplitOptions controls the train/test partition.
type SplitOptions struct {
	TestSize float64
	Seed     int64
}

// DefaultSplitOptions holds out 20% with seed 42.
func DefaultSplitOptions() SplitOptions {
	return SplitOptions{TestSize: 0.2, Seed: 42}
}

// Split is a feature matrix partitioned into train and test rows.
type Split struct {
	Features []string
	XTrain   [][]float64
	XTest    [][]float64
	YTrain   []float64
	YTest    []float64
}

// PrepareSeverityData keeps rows with TotalClaims > 0 and targets TotalClaims.
func PrepareSeverityData(t *dataset.Table, opt SplitOptions) (*Split, error) {
	claims, err := t.Floats(ClaimsColumn)
	if err != nil {
		return nil, err
	}
	claimed := t.Filter(func(i int) bool { return claims[i] > 0 })
	return prepare(claimed, ClaimsColumn, []string{ClaimsColumn, PremiumColumn, ClaimFlagColumn, MarginColumn}, opt)
}

// PrepareClassificationData targets has_claim, deriving it from TotalClaims when absent.
func PrepareClassificationData(t *dataset.Table, opt SplitOptions) (*Split, error) {
	if !t.Has(ClaimFlagColumn) {
		claims, err := t.Floats(ClaimsColumn)
		if err != nil {
			return nil, err
		}
		flag := make([]float64, len(claims))
		for i, c := range claims {
			if c > 0 {
				flag[i] = 1
			}
		}
		t = t.Drop()
		if err := t.Set(dataset.NewNumericColumn(ClaimFlagColumn, flag)); err != nil {
			return nil, err
		}
	}
	return prepare(t, ClaimFlagColumn, []string{ClaimFlagColumn, ClaimsColumn, PremiumColumn, MarginColumn}, opt)
}

func prepare(t *dataset.Table, target string, exclude []string, opt SplitOptions) (*Split, error) {
	if !(opt.TestSize > 0 && opt.TestSize < 1) {
		return nil, fmt.Errorf("test size %v outside (0, 1)", opt.TestSize)
	}
	y, err := t.Floats(target)
	if err != nil {
		return nil, err
	}
	feats := t.Drop(exclude...)
	for _, c := range feats.Columns() {
		if c.Kind != dataset.KindNumeric {
			return nil, fmt.Errorf("feature %q is not numeric; encode it first", c.Name)
		}
	}
	x, err := feats.Matrix(feats.Names())
	if err != nil {
		return nil, err
	}
	n := len(y)
	nTest := int(math.Ceil(opt.TestSize * float64(n)))
	if n < 2 || nTest >= n {
		return nil, fmt.Errorf("split %s: %w (%d)", target, ErrEmptyData, n)
	}
	perm := rand.New(rand.NewSource(opt.Seed)).Perm(n)
	s := &Split{Features: feats.Names()}
	for k, i := range perm {
		if k < nTest {
			s.XTest = append(s.XTest, x[i])
			s.YTest = append(s.YTest, y[i])
		} else {
			s.XTrain = append(s.XTrain, x[i])
			s.YTrain = append(s.YTrain, y[i])
		}
	}
	return s, nil
}
