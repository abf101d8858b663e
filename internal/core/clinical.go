package core

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// TreatmentInput is the body of a create treatment request.
type TreatmentInput struct {
	TreatmentType string `json:"treatmentType" validate:"required"`
	Regimen       string `json:"regimen"`
	StartDate     string `json:"startDate" validate:"required,caldate"`
	EndDate       string `json:"endDate" validate:"caldate"`
	Status        string `json:"status" validate:"omitempty,oneof=not_started active completed discontinued failed"`
	Notes         string `json:"notes"`
	PrescribedBy  string `json:"prescribedBy"`
	Facility      string `json:"facility"`
}

// LabResultInput is the body of a create lab result request.
type LabResultInput struct {
	TestType       string `json:"testType" validate:"required,oneof=cd4_count viral_load genexpert_mtb_rif smear_microscopy culture dst xray"`
	Result         string `json:"result" validate:"required"`
	NumericValue   string `json:"numericValue" validate:"omitempty,numeric"`
	ReferenceRange string `json:"referenceRange"`
	TestDate       string `json:"testDate" validate:"required,caldate"`
	Laboratory     string `json:"laboratory"`
	DataSource     string `json:"dataSource" validate:"omitempty,oneof=tier_net edr_web nhls private_lab manual_entry"`
	IsNormal       *bool  `json:"isNormal"`
	Notes          string `json:"notes"`
}

// CreateTreatment records a treatment course for an existing patient.
func (s *Service) CreateTreatment(ctx context.Context, patientID uuid.UUID, in TreatmentInput, userID string) (*Treatment, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if _, err := s.store.GetPatient(ctx, patientID); err != nil {
		return nil, err
	}

	start, _ := ParseDate(in.StartDate)
	t := Treatment{
		ID:            uuid.New(),
		PatientID:     patientID,
		TreatmentType: strings.TrimSpace(in.TreatmentType),
		Regimen:       strings.TrimSpace(in.Regimen),
		StartDate:     start,
		Status:        withDefault(in.Status, "not_started"),
		Notes:         in.Notes,
		PrescribedBy:  strings.TrimSpace(in.PrescribedBy),
		Facility:      strings.TrimSpace(in.Facility),
	}
	if end, ok := ParseDate(in.EndDate); ok {
		t.EndDate = &end
	}

	created, err := s.store.CreateTreatment(ctx, t)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, AuditEvent{
		UserID:       userID,
		Action:       ActionCreate,
		ResourceType: ResourceTreatment,
		ResourceID:   created.ID.String(),
		NewValues:    created,
	})
	return created, nil
}

// CreateLabResult records a lab result for an existing patient.
func (s *Service) CreateLabResult(ctx context.Context, patientID uuid.UUID, in LabResultInput, userID string) (*LabResult, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if _, err := s.store.GetPatient(ctx, patientID); err != nil {
		return nil, err
	}

	testDate, _ := ParseDate(in.TestDate)
	l := LabResult{
		ID:             uuid.New(),
		PatientID:      patientID,
		TestType:       in.TestType,
		Result:         strings.TrimSpace(in.Result),
		ReferenceRange: strings.TrimSpace(in.ReferenceRange),
		TestDate:       testDate,
		Laboratory:     strings.TrimSpace(in.Laboratory),
		DataSource:     withDefault(in.DataSource, DataSourceManual),
		IsNormal:       in.IsNormal,
		Notes:          in.Notes,
	}
	if in.NumericValue != "" {
		if v, err := strconv.ParseFloat(in.NumericValue, 64); err == nil {
			l.NumericValue = &v
		}
	}

	created, err := s.store.CreateLabResult(ctx, l)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, AuditEvent{
		UserID:       userID,
		Action:       ActionCreate,
		ResourceType: ResourceLabResult,
		ResourceID:   created.ID.String(),
		NewValues:    created,
	})
	return created, nil
}
