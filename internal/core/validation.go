package core

// validation.go checks mapped patients and request payloads before they
// reach the store.
//
// Patient checks run in a fixed order and stop at the first failure:
//  1. required fields present
//  2. date of birth parses
//  3. gender, TB status and HIV status are in their vocabularies

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("caldate", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		_, ok := ParseDate(s)
		return ok
	})
	return v
}

// ValidationError describes one invalid field.
type ValidationError struct {
	Field   string // canonical field name
	Value   string // offending value, empty when missing
	Message string
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return e.Field + " " + e.Message
	}
	return e.Message
}

// IsValidationError reports whether err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

type namedValue struct {
	field string
	value string
}

type vocabulary struct {
	namedValue
	allowed []string
}

// ValidatePatient converts a candidate into a PatientRecord or returns the
// first ValidationError found.
func ValidatePatient(c CandidatePatient) (PatientRecord, error) {
	required := []namedValue{
		{FieldFirstName, c.FirstName},
		{FieldLastName, c.LastName},
		{FieldDateOfBirth, c.DateOfBirth},
		{FieldGender, c.Gender},
		{FieldPatientID, c.PatientID},
	}
	for _, f := range required {
		if err := validate.Var(f.value, "required"); err != nil {
			return PatientRecord{}, ValidationError{Field: f.field, Message: "is required"}
		}
	}

	dob, ok := ParseDate(c.DateOfBirth)
	if !ok {
		return PatientRecord{}, ValidationError{
			Field:   FieldDateOfBirth,
			Value:   c.DateOfBirth,
			Message: fmt.Sprintf("is not a valid date (got %q)", c.DateOfBirth),
		}
	}

	vocabularies := []vocabulary{
		{namedValue{FieldGender, c.Gender}, Genders},
		{namedValue{FieldTBStatus, c.TBStatus}, TBStatuses},
		{namedValue{FieldHIVStatus, c.HIVStatus}, HIVStatuses},
	}
	for _, v := range vocabularies {
		if err := checkVocabulary(v.field, v.value, v.allowed); err != nil {
			return PatientRecord{}, err
		}
	}

	return PatientRecord{
		PatientID:   c.PatientID,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		DateOfBirth: dob,
		Gender:      c.Gender,
		PhoneNumber: c.PhoneNumber,
		Address:     c.Address,
		Province:    c.Province,
		District:    c.District,
		Facility:    c.Facility,
		TBStatus:    c.TBStatus,
		HIVStatus:   c.HIVStatus,
		DataSource:  withDefault(c.DataSource, DataSourceManual),
		CreatedBy:   c.CreatedBy,
	}, nil
}

// checkVocabulary requires an exact, case-sensitive match against allowed.
func checkVocabulary(field, value string, allowed []string) error {
	if err := validate.Var(value, "oneof="+strings.Join(allowed, " ")); err != nil {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("must be one of: %s (got %q)", strings.Join(allowed, ", "), value),
		}
	}
	return nil
}

// validateStruct runs struct tag validation and reports the first failure
// as a ValidationError named after the field's json tag.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	fe := verrs[0]
	field := fe.Field()
	value := fmt.Sprint(fe.Value())

	switch fe.Tag() {
	case "required":
		return ValidationError{Field: field, Message: "is required"}
	case "oneof":
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("must be one of: %s (got %q)", strings.ReplaceAll(fe.Param(), " ", ", "), value),
		}
	case "caldate":
		return ValidationError{Field: field, Value: value, Message: fmt.Sprintf("is not a valid date (got %q)", value)}
	default:
		return ValidationError{Field: field, Value: value, Message: "failed " + fe.Tag() + " check"}
	}
}
