package service

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/symptom-checker-server/internal/domain"
)

// FormValidator checks a raw intake form against the profile, symptom and history rules.
// It reports every violation it finds, keyed by field path, and has no side effects.
type FormValidator struct {
	validate *validator.Validate
}

// formCandidate is the raw form after type coercion. Pointer fields are nil when the raw
// value was blank or could not be coerced.
type formCandidate struct {
	Name       string             `json:"name" validate:"required"`
	Age        *int               `json:"age" validate:"required,gt=0"`
	Gender     string             `json:"gender" validate:"required,gender"`
	Weight     *float64           `json:"weight" validate:"omitempty,gt=0"`
	WeightUnit string             `json:"weightUnit"`
	Height     *float64           `json:"height" validate:"omitempty,gt=0"`
	HeightUnit string             `json:"heightUnit"`
	Symptoms   []symptomCandidate `json:"symptoms" validate:"min=1,dive"`

	weightGiven bool
	heightGiven bool
}

type symptomCandidate struct {
	Name     string `json:"name" validate:"required"`
	Severity string `json:"severity" validate:"required,severity"`
}

// NewFormValidator creates a validator with the custom tags and the unit pairing rule.
func NewFormValidator() *FormValidator {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Registration only fails for empty or reserved tag names.
	_ = v.RegisterValidation("gender", func(fl validator.FieldLevel) bool {
		return domain.Gender(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("severity", func(fl validator.FieldLevel) bool {
		return domain.Severity(fl.Field().String()).IsValid()
	})

	v.RegisterStructValidation(unitPairValidation, formCandidate{})

	return &FormValidator{validate: v}
}

// unitPairValidation runs after the per-field checks. A magnitude that was entered, even an
// invalid one, requires its unit; the error is attached to the unit field.
func unitPairValidation(sl validator.StructLevel) {
	c := sl.Current().Interface().(formCandidate)

	if c.weightGiven && strings.TrimSpace(c.WeightUnit) == "" {
		sl.ReportError(c.WeightUnit, "weightUnit", "WeightUnit", "unit_required", "weight")
	}
	if c.heightGiven && strings.TrimSpace(c.HeightUnit) == "" {
		sl.ReportError(c.HeightUnit, "heightUnit", "HeightUnit", "unit_required", "height")
	}
}

// Validate checks raw and returns the typed form, or every violation found.
func (fv *FormValidator) Validate(raw domain.RawForm) (*domain.ValidatedForm, domain.ValidationErrors) {
	candidate, errs := coerce(raw)

	if err := fv.validate.Struct(&candidate); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			errs = append(errs, domain.NewValidationError("form", domain.InvalidType, err.Error(), nil))
		}
		for _, fe := range fieldErrs {
			field := fieldPath(fe.Namespace())
			// Fields that failed coercion already carry an InvalidType error.
			if len(errs.For(field)) > 0 {
				continue
			}
			code := fieldErrorCode(fe.Tag())
			errs = append(errs, domain.NewValidationError(field, code, fieldMessage(field, code), fe.Value()))
		}
	}

	if len(errs) > 0 {
		sortByFieldOrder(errs)
		return nil, errs
	}

	return candidate.toValidated(raw), nil
}

// ValidateField returns only the violations for one field path.
func (fv *FormValidator) ValidateField(raw domain.RawForm, field string) domain.ValidationErrors {
	_, errs := fv.Validate(raw)
	return errs.For(field)
}

func coerce(raw domain.RawForm) (formCandidate, domain.ValidationErrors) {
	var errs domain.ValidationErrors

	c := formCandidate{
		Name:        strings.TrimSpace(raw.Name),
		Gender:      strings.TrimSpace(raw.Gender),
		WeightUnit:  strings.TrimSpace(raw.WeightUnit),
		HeightUnit:  strings.TrimSpace(raw.HeightUnit),
		weightGiven: !raw.Weight.IsBlank(),
		heightGiven: !raw.Height.IsBlank(),
	}

	if !raw.Age.IsBlank() {
		age, err := parseWholeNumber(raw.Age.String())
		if err != nil {
			errs = append(errs, domain.NewValidationError("age", domain.InvalidType,
				fieldMessage("age", domain.InvalidType), raw.Age.String()))
		} else {
			c.Age = &age
		}
	}

	if c.weightGiven {
		w, err := parseMagnitude(raw.Weight.String())
		if err != nil {
			errs = append(errs, domain.NewValidationError("weight", domain.InvalidType,
				fieldMessage("weight", domain.InvalidType), raw.Weight.String()))
		} else {
			c.Weight = &w
		}
	}

	if c.heightGiven {
		h, err := parseMagnitude(raw.Height.String())
		if err != nil {
			errs = append(errs, domain.NewValidationError("height", domain.InvalidType,
				fieldMessage("height", domain.InvalidType), raw.Height.String()))
		} else {
			c.Height = &h
		}
	}

	c.Symptoms = make([]symptomCandidate, 0, len(raw.Symptoms))
	for _, s := range raw.Symptoms {
		c.Symptoms = append(c.Symptoms, symptomCandidate{
			Name:     strings.TrimSpace(s.Name),
			Severity: strings.TrimSpace(s.Severity),
		})
	}

	return c, errs
}

// parseWholeNumber accepts integers and integral decimals such as "42.0".
func parseWholeNumber(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("not a whole number: %q", s)
	}
	return int(f), nil
}

func parseMagnitude(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return f, nil
}

func (c formCandidate) toValidated(raw domain.RawForm) *domain.ValidatedForm {
	profile := domain.PatientProfile{
		Name:   c.Name,
		Age:    *c.Age,
		Gender: domain.Gender(c.Gender),
	}
	if c.Weight != nil {
		profile.Weight = &domain.Measurement{Value: *c.Weight, Unit: c.WeightUnit}
	}
	if c.Height != nil {
		profile.Height = &domain.Measurement{Value: *c.Height, Unit: c.HeightUnit}
	}

	symptoms := make([]domain.Symptom, 0, len(c.Symptoms))
	for _, s := range c.Symptoms {
		symptoms = append(symptoms, domain.Symptom{Name: s.Name, Severity: domain.Severity(s.Severity)})
	}

	return &domain.ValidatedForm{
		Profile:  profile,
		Symptoms: symptoms,
		History: domain.RawMedicalHistory{
			PastConditions:     raw.PastConditions,
			CurrentMedications: raw.CurrentMedications,
		},
	}
}

// fieldPath strips the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func fieldErrorCode(tag string) domain.FieldErrorCode {
	switch tag {
	case "required":
		return domain.RequiredField
	case "gt":
		return domain.OutOfRange
	case "min":
		return domain.RequiredCollection
	case "gender", "severity":
		return domain.InvalidChoice
	case "unit_required":
		return domain.UnitRequired
	default:
		return domain.InvalidType
	}
}

var symptomIndex = regexp.MustCompile(`^symptoms\[(\d+)\]\.(\w+)$`)

// baseField maps "symptoms[3].name" to "symptoms.name" for message lookup.
func baseField(field string) string {
	if m := symptomIndex.FindStringSubmatch(field); m != nil {
		return "symptoms." + m[2]
	}
	return field
}

var fieldMessages = map[string]map[domain.FieldErrorCode]string{
	"name": {
		domain.RequiredField: "Name is required.",
	},
	"age": {
		domain.RequiredField: "Age is required.",
		domain.InvalidType:   "Age must be a whole number.",
		domain.OutOfRange:    "Age must be a positive number.",
	},
	"gender": {
		domain.RequiredField: "Please select a gender.",
		domain.InvalidChoice: "Please select a valid gender.",
	},
	"weight": {
		domain.InvalidType: "Weight must be a number.",
		domain.OutOfRange:  "Weight must be a positive number.",
	},
	"weightUnit": {
		domain.UnitRequired: "Please select a unit for weight.",
	},
	"height": {
		domain.InvalidType: "Height must be a number.",
		domain.OutOfRange:  "Height must be a positive number.",
	},
	"heightUnit": {
		domain.UnitRequired: "Please select a unit for height.",
	},
	"symptoms": {
		domain.RequiredCollection: "Please add at least one symptom.",
	},
	"symptoms.name": {
		domain.RequiredField: "Symptom name is required.",
	},
	"symptoms.severity": {
		domain.RequiredField: "Please select a severity.",
		domain.InvalidChoice: "Please select a valid severity.",
	},
}

func fieldMessage(field string, code domain.FieldErrorCode) string {
	if byCode, ok := fieldMessages[baseField(field)]; ok {
		if msg, ok := byCode[code]; ok {
			return msg
		}
	}
	return fmt.Sprintf("Invalid value for %s.", field)
}

var fieldOrder = map[string]int{
	"name":       0,
	"age":        1,
	"gender":     2,
	"weight":     3,
	"weightUnit": 4,
	"height":     5,
	"heightUnit": 6,
	"symptoms":   7,
}

// sortByFieldOrder puts errors in form order: profile first, then symptom rows by index.
func sortByFieldOrder(errs domain.ValidationErrors) {
	rank := func(field string) (int, int) {
		if r, ok := fieldOrder[field]; ok {
			return r, -1
		}
		if m := symptomIndex.FindStringSubmatch(field); m != nil {
			idx, _ := strconv.Atoi(m[1])
			return len(fieldOrder), idx
		}
		return len(fieldOrder) + 1, 0
	}
	sort.SliceStable(errs, func(i, j int) bool {
		ri, si := rank(errs[i].Field)
		rj, sj := rank(errs[j].Field)
		if ri != rj {
			return ri < rj
		}
		return si < sj
	})
}
