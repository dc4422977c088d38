// Package validator provides validation infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package validator

import (
	"github.com/go-playground/validator/v10"
	"github.com/nyaruka/phonenumbers"
)

// Validator wraps the go-playground validator for structured validation.
// Using a struct allows for dependency injection and easier testing.
type Validator struct {
	v *validator.Validate
}

// New creates a new Validator instance with the domain rules registered:
// "orgnum" (Norwegian organisation number, mod-11 control digit) and
// "nophone" (Norwegian phone number).
func New() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("orgnum", validOrgNumber)
	_ = v.RegisterValidation("nophone", validNorwegianPhone)
	return &Validator{v: v}
}

// Struct validates a struct based on validation tags.
func (val *Validator) Struct(s interface{}) error {
	return val.v.Struct(s)
}

// Var validates a single variable against a tag.
func (val *Validator) Var(field interface{}, tag string) error {
	return val.v.Var(field, tag)
}

// RegisterValidation registers a custom validation function.
func (val *Validator) RegisterValidation(tag string, fn validator.Func) error {
	return val.v.RegisterValidation(tag, fn)
}

// orgNumberWeights are the mod-11 weights for the first eight digits.
var orgNumberWeights = [8]int{3, 2, 7, 6, 5, 4, 3, 2}

func validOrgNumber(fl validator.FieldLevel) bool {
	return OrgNumberOK(fl.Field().String())
}

// OrgNumberOK reports whether s is a well-formed Norwegian organisation
// number: nine digits where the last is a mod-11 control digit.
func OrgNumberOK(s string) bool {
	if len(s) != 9 {
		return false
	}
	sum := 0
	for i := 0; i < 8; i++ {
		d := s[i]
		if d < '0' || d > '9' {
			return false
		}
		sum += int(d-'0') * orgNumberWeights[i]
	}
	last := s[8]
	if last < '0' || last > '9' {
		return false
	}
	control := 11 - sum%11
	if control == 11 {
		control = 0
	}
	if control == 10 {
		return false
	}
	return int(last-'0') == control
}

func validNorwegianPhone(fl validator.FieldLevel) bool {
	num, err := phonenumbers.Parse(fl.Field().String(), "NO")
	if err != nil {
		return false
	}
	return phonenumbers.IsValidNumber(num)
}
