// Package domain contains the core entities of the symptom intake pipeline: the raw form a
// patient fills in, the validated and normalized request sent to the inference gateway,
// and the diagnoses that come back.
//
// The model does no medical reasoning of its own. It only carries what the patient entered
// to an external inference service and carries the answer back in a renderable shape.
package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Gender represents the patient's self-reported gender.
type Gender string

const (
	MALE              Gender = "male"
	FEMALE            Gender = "female"
	OTHER             Gender = "other"
	PREFER_NOT_TO_SAY Gender = "prefer_not_to_say"
)

// Severity represents how strongly a symptom is felt.
type Severity string

const (
	MILD        Severity = "Mild"
	MODERATE    Severity = "Moderate"
	SEVERE      Severity = "Severe"
	VERY_SEVERE Severity = "Very Severe"
)

var (
	ErrInvalidGender   = errors.New("invalid gender")
	ErrInvalidSeverity = errors.New("invalid symptom severity")
)

// IsValid reports whether g is one of the accepted gender values.
func (g Gender) IsValid() bool {
	switch g {
	case MALE, FEMALE, OTHER, PREFER_NOT_TO_SAY:
		return true
	default:
		return false
	}
}

// String returns the string representation of Gender
func (g Gender) String() string {
	return string(g)
}

// IsValid reports whether s is one of the four severity levels.
func (s Severity) IsValid() bool {
	switch s {
	case MILD, MODERATE, SEVERE, VERY_SEVERE:
		return true
	default:
		return false
	}
}

// String returns the string representation of Severity
func (s Severity) String() string {
	return string(s)
}

// AllGenders lists the accepted gender values in display order.
func AllGenders() []Gender {
	return []Gender{MALE, FEMALE, OTHER, PREFER_NOT_TO_SAY}
}

// AllSeverities lists the severity levels from least to most severe.
func AllSeverities() []Severity {
	return []Severity{MILD, MODERATE, SEVERE, VERY_SEVERE}
}

// LooseString holds a raw form value that may arrive as a JSON string or a JSON number.
// Form inputs are text, but API clients frequently send numbers for age or weight.
type LooseString string

// UnmarshalJSON accepts strings, numbers, booleans and null.
func (l *LooseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = LooseString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*l = LooseString(n.String())
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*l = LooseString(strconv.FormatBool(b))
		return nil
	}
	return errors.New("value must be a string or a number")
}

// String returns the raw text.
func (l LooseString) String() string {
	return string(l)
}

// IsBlank reports whether the value is empty after trimming whitespace.
func (l LooseString) IsBlank() bool {
	return strings.TrimSpace(string(l)) == ""
}

// RawSymptom is a symptom row as entered, before validation.
type RawSymptom struct {
	Name     string `json:"name"`
	Severity string `json:"severity"`
}

// RawForm is the loosely typed form state a patient edits.
type RawForm struct {
	Name               string       `json:"name"`
	Age                LooseString  `json:"age"`
	Gender             string       `json:"gender"`
	Weight             LooseString  `json:"weight,omitempty"`
	WeightUnit         string       `json:"weightUnit,omitempty"`
	Height             LooseString  `json:"height,omitempty"`
	HeightUnit         string       `json:"heightUnit,omitempty"`
	Symptoms           []RawSymptom `json:"symptoms"`
	PastConditions     string       `json:"pastConditions,omitempty"`
	CurrentMedications string       `json:"currentMedications,omitempty"`
}

// Clone returns a deep copy so the symptom slice is not shared.
func (f RawForm) Clone() RawForm {
	out := f
	if f.Symptoms != nil {
		out.Symptoms = make([]RawSymptom, len(f.Symptoms))
		copy(out.Symptoms, f.Symptoms)
	}
	return out
}

// Measurement is a magnitude together with its unit. Weight and height are either fully
// present or absent; a magnitude without a unit cannot be represented.
type Measurement struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Symptom is a validated symptom.
type Symptom struct {
	Name     string   `json:"name"`
	Severity Severity `json:"severity"`
}

// PatientProfile is the validated demographic part of a submission.
type PatientProfile struct {
	Name   string       `json:"name"`
	Age    int          `json:"age"`
	Gender Gender       `json:"gender"`
	Weight *Measurement `json:"weight,omitempty"`
	Height *Measurement `json:"height,omitempty"`
}

// RawMedicalHistory is free text as entered, comma-delimited by convention.
type RawMedicalHistory struct {
	PastConditions     string `json:"pastConditions,omitempty"`
	CurrentMedications string `json:"currentMedications,omitempty"`
}

// MedicalHistory is the normalized history. Both lists are always non-nil.
type MedicalHistory struct {
	PastConditions     []string `json:"pastConditions"`
	CurrentMedications []string `json:"currentMedications"`
}

// ValidatedForm is the output of schema validation: typed, but not yet normalized.
type ValidatedForm struct {
	Profile  PatientProfile
	Symptoms []Symptom
	History  RawMedicalHistory
}

// AnalyzeSymptomsInput is the canonical request sent to the inference gateway.
// Image is nil when no image was attached; it is never an empty string.
type AnalyzeSymptomsInput struct {
	Name           string         `json:"name"`
	Age            int            `json:"age"`
	Gender         Gender         `json:"gender"`
	Weight         *Measurement   `json:"weight,omitempty"`
	Height         *Measurement   `json:"height,omitempty"`
	Symptoms       []Symptom      `json:"symptoms"`
	MedicalHistory MedicalHistory `json:"medicalHistory"`
	Image          *string        `json:"image,omitempty"`
}

// Diagnosis is a single candidate condition as returned by the gateway.
// Confidence is kept as the raw label; use ParseConfidence to classify it.
type Diagnosis struct {
	Condition  string `json:"condition"`
	Confidence string `json:"confidence"`
}

// AnalyzeSymptomsOutput is the gateway's ordered list of candidate conditions.
type AnalyzeSymptomsOutput struct {
	Diagnoses []Diagnosis `json:"diagnoses"`
}
