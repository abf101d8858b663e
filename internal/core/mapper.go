package core

import (
	"strings"
	"unicode"
)

// Canonical patient column names, in template order.
const (
	FieldFirstName   = "first_name"
	FieldLastName    = "last_name"
	FieldDateOfBirth = "date_of_birth"
	FieldGender      = "gender"
	FieldPhoneNumber = "phone_number"
	FieldAddress     = "address"
	FieldProvince    = "province"
	FieldDistrict    = "district"
	FieldFacility    = "facility"
	FieldTBStatus    = "tb_status"
	FieldHIVStatus   = "hiv_status"
	FieldPatientID   = "patient_id"
)

// TemplateColumns is the header row of the import template.
var TemplateColumns = []string{
	FieldFirstName, FieldLastName, FieldDateOfBirth, FieldGender, FieldPhoneNumber,
	FieldAddress, FieldProvince, FieldDistrict, FieldFacility, FieldTBStatus, FieldHIVStatus,
}

// CandidatePatient is a mapped but unvalidated row. Empty strings mean the
// value was absent.
type CandidatePatient struct {
	PatientID   string
	FirstName   string
	LastName    string
	DateOfBirth string
	Gender      string
	PhoneNumber string
	Address     string
	Province    string
	District    string
	Facility    string
	TBStatus    string
	HIVStatus   string
	DataSource  string
	CreatedBy   string
}

// MapRow normalizes a raw row into a CandidatePatient. Each field is looked
// up by its snake_case name first, then camelCase. Blank cells count as
// absent. Missing clinical statuses take their defaults.
func MapRow(row RawRow, userID string) CandidatePatient {
	return CandidatePatient{
		FirstName:   lookupField(row, FieldFirstName),
		LastName:    lookupField(row, FieldLastName),
		DateOfBirth: lookupField(row, FieldDateOfBirth),
		Gender:      lookupField(row, FieldGender),
		PhoneNumber: lookupField(row, FieldPhoneNumber),
		Address:     lookupField(row, FieldAddress),
		Province:    lookupField(row, FieldProvince),
		District:    lookupField(row, FieldDistrict),
		Facility:    lookupField(row, FieldFacility),
		TBStatus:    withDefault(lookupField(row, FieldTBStatus), DefaultTBStatus),
		HIVStatus:   withDefault(lookupField(row, FieldHIVStatus), DefaultHIVStatus),
		DataSource:  DataSourceManual,
		CreatedBy:   userID,
	}
}

// candidateKeys returns the header names tried for a canonical field.
func candidateKeys(field string) []string {
	camel := snakeToCamel(field)
	if camel == field {
		return []string{field}
	}
	return []string{field, camel}
}

func lookupField(row RawRow, field string) string {
	for _, key := range candidateKeys(field) {
		if v := CleanCell(row[key]); v != "" {
			return v
		}
	}
	return ""
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// snakeToCamel converts first_name to firstName.
func snakeToCamel(s string) string {
	var b strings.Builder
	upper := false
	for _, r := range s {
		if r == '_' {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
