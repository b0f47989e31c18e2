package features

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// UnknownCode is assigned to categories absent from the trained encoder.
const UnknownCode = -1

// Categorical field names, in feature column order.
const (
	FieldStudent  = "student"
	FieldSubject  = "subject"
	FieldClass    = "class"
	FieldExamType = "examType"
	FieldTerm     = "term"
)

// CategoricalFields lists every field encoded to category codes.
var CategoricalFields = []string{FieldStudent, FieldSubject, FieldClass, FieldExamType, FieldTerm}

// ErrEncodingMismatch matches every *EncodingMismatchError.
var ErrEncodingMismatch = errors.New("encoding mismatch")

// EncodingMismatchError reports inference attempted without the category codes
// fixed at training time. Codes are never re-fitted per request.
type EncodingMismatchError struct {
	Field  string
	Reason string
}

func (e *EncodingMismatchError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("encoding mismatch: %s", e.Reason)
	}
	return fmt.Sprintf("encoding mismatch on %q: %s", e.Field, e.Reason)
}

func (e *EncodingMismatchError) Is(target error) bool { return target == ErrEncodingMismatch }

// Encoder maps the category values of one field to codes 0..n-1 in sorted
// value order.
type Encoder struct {
	classes []string
	index   map[string]int
}

// FitEncoder builds an Encoder from the distinct values in values.
func FitEncoder(values []string) *Encoder {
	classes := slices.Clone(values)
	slices.Sort(classes)
	classes = slices.Compact(classes)

	enc, _ := NewEncoder(classes)
	return enc
}

// NewEncoder restores an Encoder from its class list. Classes must be unique;
// their position is their code.
func NewEncoder(classes []string) (*Encoder, error) {
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("duplicate category %q", c)
		}
		index[c] = i
	}
	return &Encoder{classes: slices.Clone(classes), index: index}, nil
}

// Code returns the code for v, or UnknownCode and false when v was not seen
// at fit time.
func (e *Encoder) Code(v string) (int, bool) {
	code, ok := e.index[v]
	if !ok {
		return UnknownCode, false
	}
	return code, true
}

// Classes returns the fitted values in code order.
func (e *Encoder) Classes() []string {
	return slices.Clone(e.classes)
}

// Len returns the number of known categories.
func (e *Encoder) Len() int {
	return len(e.classes)
}

func (e *Encoder) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Classes []string `json:"classes"`
	}{Classes: e.classes})
}

func (e *Encoder) UnmarshalJSON(data []byte) error {
	var aux struct {
		Classes []string `json:"classes"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	restored, err := NewEncoder(aux.Classes)
	if err != nil {
		return err
	}
	*e = *restored
	return nil
}

// Encoders holds one Encoder per categorical field.
type Encoders map[string]*Encoder

// Validate checks that an Encoder exists for every categorical field.
func (e Encoders) Validate() error {
	if e == nil {
		return &EncodingMismatchError{Reason: "no trained encoders supplied"}
	}
	for _, field := range CategoricalFields {
		if e[field] == nil {
			return &EncodingMismatchError{Field: field, Reason: "no trained encoder for field"}
		}
	}
	return nil
}

// Sizes returns the number of known categories per field.
func (e Encoders) Sizes() map[string]int {
	sizes := make(map[string]int, len(e))
	for field, enc := range e {
		if enc != nil {
			sizes[field] = enc.Len()
		}
	}
	return sizes
}
