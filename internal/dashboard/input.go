package dashboard

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/KaramelBytes/riskloom-cli/internal/features"
	"github.com/go-playground/validator/v10"
)

// Input is one policy as entered in the form or posted to the API.
type Input struct {
	Gender           string  `json:"gender" validate:"required,oneof=Male Female"`
	Province         string  `json:"province" validate:"required"`
	IsVATRegistered  bool    `json:"is_vat_registered"`
	VehicleType      string  `json:"vehicle_type" validate:"required"`
	RegistrationYear int     `json:"registration_year" validate:"gte=1990,lte=2015"`
	SumInsured       float64 `json:"sum_insured" validate:"gte=10000,lte=5000000"`
	CurrentPremium   float64 `json:"current_premium" validate:"gte=50,lte=10000"`
	CoverType        string  `json:"cover_type" validate:"required"`
}

// DefaultInput pre-fills the form.
func DefaultInput() Input {
	return Input{
		Gender:           "Male",
		Province:         "Gauteng",
		VehicleType:      "Passenger Vehicle",
		RegistrationYear: 2010,
		SumInsured:       150000,
		CurrentPremium:   500,
		CoverType:        "Comprehensive",
	}
}

// Record converts the input to the column names used in training, including
// the derived features.
func (in Input) Record() features.Record {
	rate := 0.0
	if in.SumInsured > 0 {
		rate = in.CurrentPremium / in.SumInsured
	}
	return features.Record{
		"Gender":                   in.Gender,
		"Province":                 in.Province,
		"IsVATRegistered":          in.IsVATRegistered,
		"VehicleType":              in.VehicleType,
		"RegistrationYear":         in.RegistrationYear,
		features.VehicleAgeColumn:  features.ReferenceYear - in.RegistrationYear,
		"SumInsured":               in.SumInsured,
		"CalculatedPremiumPerTerm": in.CurrentPremium,
		"CoverType":                in.CoverType,
		features.PremiumRateColumn: rate,
	}
}

// FieldError is one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every rejected field.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func newValidator() *validator.Validate {
	v := validator.New()
	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validateInput(v *validator.Validate, in Input) error {
	err := v.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: describe(fe)})
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

// parseForm reads an Input from form values. Unparseable numbers are reported
// as field errors before struct validation runs.
func parseForm(r *http.Request) (Input, error) {
	if err := r.ParseForm(); err != nil {
		return Input{}, fmt.Errorf("parse form: %w", err)
	}
	in := Input{
		Gender:          strings.TrimSpace(r.PostFormValue("gender")),
		Province:        strings.TrimSpace(r.PostFormValue("province")),
		VehicleType:     strings.TrimSpace(r.PostFormValue("vehicle_type")),
		CoverType:       strings.TrimSpace(r.PostFormValue("cover_type")),
		IsVATRegistered: r.PostFormValue("is_vat_registered") != "",
	}
	var bad []FieldError
	num := func(name string) float64 {
		raw := strings.TrimSpace(r.PostFormValue(name))
		f, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
		if err != nil {
			bad = append(bad, FieldError{Field: name, Message: "must be a number"})
		}
		return f
	}
	in.RegistrationYear = int(num("registration_year"))
	in.SumInsured = num("sum_insured")
	in.CurrentPremium = num("current_premium")
	if len(bad) > 0 {
		return in, &ValidationError{Fields: bad}
	}
	return in, nil
}
