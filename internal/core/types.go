package core

import (
	"time"

	"github.com/google/uuid"
)

// Vocabularies for the constrained patient and clinical fields. Values are
// matched exactly.
var (
	Genders = []string{"male", "female", "other"}

	TBStatuses = []string{
		"negative", "suspected", "confirmed", "active_treatment",
		"treatment_complete", "treatment_failed", "lost_to_followup",
	}

	HIVStatuses = []string{"negative", "positive", "unknown"}

	DataSources = []string{"tier_net", "edr_web", "nhls", "private_lab", "manual_entry"}

	TreatmentStatuses = []string{"not_started", "active", "completed", "discontinued", "failed"}

	LabTestTypes = []string{
		"cd4_count", "viral_load", "genexpert_mtb_rif", "smear_microscopy",
		"culture", "dst", "xray",
	}
)

const (
	DefaultTBStatus  = "negative"
	DefaultHIVStatus = "unknown"

	// DataSourceManual tags records entered through the UI or imported from a file.
	DataSourceManual = "manual_entry"
)

// PatientRecord is a validated patient ready to be persisted.
type PatientRecord struct {
	PatientID   string `json:"patientId"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DateOfBirth Date   `json:"dateOfBirth"`
	Gender      string `json:"gender"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Address     string `json:"address,omitempty"`
	Province    string `json:"province,omitempty"`
	District    string `json:"district,omitempty"`
	Facility    string `json:"facility,omitempty"`
	TBStatus    string `json:"tbStatus"`
	HIVStatus   string `json:"hivStatus"`
	DataSource  string `json:"dataSource"`
	CreatedBy   string `json:"createdBy,omitempty"`
}

// Patient is a persisted patient.
type Patient struct {
	ID uuid.UUID `json:"id"`
	PatientRecord
	RegistrationDate Date      `json:"registrationDate"`
	LastUpdated      time.Time `json:"lastUpdated"`
	IsActive         bool      `json:"isActive"`
}

// CoInfected reports whether the patient is TB-confirmed and HIV-positive.
func (p *Patient) CoInfected() bool {
	return p.TBStatus == "confirmed" && p.HIVStatus == "positive"
}

// PatientFilter narrows patient listings and counts.
type PatientFilter struct {
	Search          string
	TBStatus        string
	HIVStatus       string
	IncludeInactive bool
	Limit           int
	Offset          int
}

// PatientUpdate carries a partial update. Nil fields are left unchanged.
type PatientUpdate struct {
	FirstName   *string `json:"firstName"`
	LastName    *string `json:"lastName"`
	DateOfBirth *string `json:"dateOfBirth"`
	Gender      *string `json:"gender"`
	PhoneNumber *string `json:"phoneNumber"`
	Address     *string `json:"address"`
	Province    *string `json:"province"`
	District    *string `json:"district"`
	Facility    *string `json:"facility"`
	TBStatus    *string `json:"tbStatus"`
	HIVStatus   *string `json:"hivStatus"`
}

// PatientPage is one page of a patient listing.
type PatientPage struct {
	Patients   []Patient `json:"patients"`
	Total      int64     `json:"total"`
	Page       int       `json:"page"`
	Limit      int       `json:"limit"`
	TotalPages int       `json:"totalPages"`
}

// PatientDetail is a patient with its clinical history.
type PatientDetail struct {
	Patient
	Treatments []Treatment `json:"treatments"`
	LabResults []LabResult `json:"labResults"`
}

// Treatment is a TB, HIV or preventive therapy course.
type Treatment struct {
	ID            uuid.UUID `json:"id"`
	PatientID     uuid.UUID `json:"patientId"`
	TreatmentType string    `json:"treatmentType"`
	Regimen       string    `json:"regimen,omitempty"`
	StartDate     Date      `json:"startDate"`
	EndDate       *Date     `json:"endDate,omitempty"`
	Status        string    `json:"status"`
	Notes         string    `json:"notes,omitempty"`
	PrescribedBy  string    `json:"prescribedBy,omitempty"`
	Facility      string    `json:"facility,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// LabResult is one laboratory test outcome.
type LabResult struct {
	ID             uuid.UUID `json:"id"`
	PatientID      uuid.UUID `json:"patientId"`
	TestType       string    `json:"testType"`
	Result         string    `json:"result"`
	NumericValue   *float64  `json:"numericValue,omitempty"`
	ReferenceRange string    `json:"referenceRange,omitempty"`
	TestDate       Date      `json:"testDate"`
	Laboratory     string    `json:"laboratory,omitempty"`
	DataSource     string    `json:"dataSource"`
	IsNormal       *bool     `json:"isNormal,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Integration is the sync state of an external source system.
type Integration struct {
	ID            uuid.UUID  `json:"id"`
	SystemName    string     `json:"systemName"`
	Status        string     `json:"status"`
	LastSync      *time.Time `json:"lastSync,omitempty"`
	NextSync      *time.Time `json:"nextSync,omitempty"`
	ErrorMessage  string     `json:"errorMessage,omitempty"`
	SyncedRecords int        `json:"syncedRecords"`
}

// QualityIssue is a data quality finding on a patient record.
type QualityIssue struct {
	ID              uuid.UUID  `json:"id"`
	PatientID       *uuid.UUID `json:"patientId,omitempty"`
	IssueType       string     `json:"issueType"`
	Severity        string     `json:"severity"`
	Description     string     `json:"description"`
	Field           string     `json:"field,omitempty"`
	SuggestedAction string     `json:"suggestedAction,omitempty"`
	IsResolved      bool       `json:"isResolved"`
	ResolvedBy      string     `json:"resolvedBy,omitempty"`
	ResolvedAt      *time.Time `json:"resolvedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// QualityIssueFilter narrows data quality listings. Nil Resolved means both.
type QualityIssueFilter struct {
	Severity string
	Resolved *bool
	Limit    int
	Offset   int
}

// QualityIssuePage is one page of data quality issues.
type QualityIssuePage struct {
	Issues     []QualityIssue `json:"issues"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"totalPages"`
}

// DashboardMetrics are the headline numbers for the dashboard.
type DashboardMetrics struct {
	TotalPatients    int64 `json:"totalPatients"`
	CoInfections     int64 `json:"coInfections"`
	ActiveTreatments int64 `json:"activeTreatments"`
	DataQualityScore int   `json:"dataQualityScore"`
}

// IssueCounts feeds the data quality score.
type IssueCounts struct {
	Total    int64
	Resolved int64
}

// TrendPoint is the number of co-infected registrations in one month.
type TrendPoint struct {
	Month string `json:"month"`
	Count int64  `json:"count"`
}

// ProvinceCount is the patient distribution for one province.
type ProvinceCount struct {
	Province     string `json:"province"`
	TBCases      int64  `json:"tbCases"`
	HIVCases     int64  `json:"hivCases"`
	CoInfections int64  `json:"coInfections"`
}

// User is an application user.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// pageCount returns the number of pages needed for total items.
func pageCount(total int64, limit int) int {
	if limit <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
