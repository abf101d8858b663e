package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cocaresync/cocaresync/internal/logging"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// UploadArchiver keeps a copy of each uploaded import file.
type UploadArchiver interface {
	Archive(ctx context.Context, batchID, fileName string, data []byte) error
}

// Options configures a Service. Zero values pick defaults.
type Options struct {
	// IDs allocates patient identifiers. Defaults to a CountAllocator over the store.
	IDs IDAllocator

	// Archiver stores raw uploads when set.
	Archiver UploadArchiver

	MaxConcurrentImports int
	MaxImportWait        time.Duration

	// Clock is used for identifier years and dashboard windows.
	Clock func() time.Time
}

// Service is the entry point for every domain operation.
type Service struct {
	store    Store
	ids      IDAllocator
	importer *Importer
	limiter  *ImportLimiter
	archiver UploadArchiver
	now      func() time.Time
}

// NewService creates a Service over store.
func NewService(store Store, opts Options) *Service {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	ids := opts.IDs
	if ids == nil {
		ids = NewCountAllocator(store, now)
	}

	return &Service{
		store:    store,
		ids:      ids,
		importer: NewImporter(store, ids, store),
		limiter:  NewImportLimiter(opts.MaxConcurrentImports, opts.MaxImportWait),
		archiver: opts.Archiver,
		now:      now,
	}
}

// Ping checks that the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ============================================================================
// Import
// ============================================================================

// ImportPatients runs a bulk import once a slot is free. The raw upload is
// archived first when an archiver is configured; archive failures are logged.
func (s *Service) ImportPatients(ctx context.Context, data []byte, fileName, userID string) (*ImportBatchResult, error) {
	if _, err := DetectFormat(fileName); err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	batchID := uuid.NewString()

	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, batchID, fileName, data); err != nil {
			logging.FromContext(ctx).Warn("upload archive failed",
				"batch_id", batchID,
				"file", fileName,
				"error", err,
			)
		}
	}

	return s.importer.importBatch(ctx, batchID, data, fileName, userID)
}

// ImportLimiterStatus reports import slot usage.
func (s *Service) ImportLimiterStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until running imports finish or ctx ends.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// ============================================================================
// Patients
// ============================================================================

// PatientInput is the body of a create request.
type PatientInput struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DateOfBirth string `json:"dateOfBirth"`
	Gender      string `json:"gender"`
	PhoneNumber string `json:"phoneNumber"`
	Address     string `json:"address"`
	Province    string `json:"province"`
	District    string `json:"district"`
	Facility    string `json:"facility"`
	TBStatus    string `json:"tbStatus"`
	HIVStatus   string `json:"hivStatus"`
}

func (in PatientInput) candidate(userID string) CandidatePatient {
	return CandidatePatient{
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		DateOfBirth: strings.TrimSpace(in.DateOfBirth),
		Gender:      strings.TrimSpace(in.Gender),
		PhoneNumber: strings.TrimSpace(in.PhoneNumber),
		Address:     strings.TrimSpace(in.Address),
		Province:    strings.TrimSpace(in.Province),
		District:    strings.TrimSpace(in.District),
		Facility:    strings.TrimSpace(in.Facility),
		TBStatus:    withDefault(strings.TrimSpace(in.TBStatus), DefaultTBStatus),
		HIVStatus:   withDefault(strings.TrimSpace(in.HIVStatus), DefaultHIVStatus),
		DataSource:  DataSourceManual,
		CreatedBy:   userID,
	}
}

// ListPatients returns one page of active patients, most recently updated first.
func (s *Service) ListPatients(ctx context.Context, filter PatientFilter, page int) (*PatientPage, error) {
	filter.Limit, filter.Offset, page = paginate(page, filter.Limit)
	filter.IncludeInactive = false

	patients, err := s.store.ListPatients(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	total, err := s.store.CountPatients(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count patients: %w", err)
	}

	return &PatientPage{
		Patients:   patients,
		Total:      total,
		Page:       page,
		Limit:      filter.Limit,
		TotalPages: pageCount(total, filter.Limit),
	}, nil
}

// GetPatientDetail returns a patient with treatments and lab results.
func (s *Service) GetPatientDetail(ctx context.Context, id uuid.UUID) (*PatientDetail, error) {
	p, err := s.store.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}

	treatments, err := s.store.ListTreatments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list treatments: %w", err)
	}
	labs, err := s.store.ListLabResults(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list lab results: %w", err)
	}

	return &PatientDetail{Patient: *p, Treatments: treatments, LabResults: labs}, nil
}

// CreatePatient validates in, assigns the next patient identifier and saves it.
func (s *Service) CreatePatient(ctx context.Context, in PatientInput, userID string) (*Patient, error) {
	ids, err := s.ids.Begin(ctx)
	if err != nil {
		return nil, err
	}
	patientID, err := ids.Next(ctx, 0)
	if err != nil {
		return nil, err
	}

	c := in.candidate(userID)
	c.PatientID = patientID
	rec, err := ValidatePatient(c)
	if err != nil {
		return nil, err
	}

	p, err := s.store.CreatePatient(ctx, rec)
	if err != nil {
		return nil, &PersistenceError{PatientID: rec.PatientID, Err: err}
	}

	s.audit(ctx, AuditEvent{
		UserID:       userID,
		Action:       ActionCreate,
		ResourceType: ResourcePatient,
		ResourceID:   p.ID.String(),
		NewValues:    p,
	})
	return p, nil
}

// UpdatePatient applies a partial update and re-validates the whole record.
// The patient identifier never changes.
func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, upd PatientUpdate, userID string) (*Patient, error) {
	old, err := s.store.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}

	c := CandidatePatient{
		PatientID:   old.PatientID,
		FirstName:   applyString(old.FirstName, upd.FirstName),
		LastName:    applyString(old.LastName, upd.LastName),
		DateOfBirth: applyString(old.DateOfBirth.String(), upd.DateOfBirth),
		Gender:      applyString(old.Gender, upd.Gender),
		PhoneNumber: applyString(old.PhoneNumber, upd.PhoneNumber),
		Address:     applyString(old.Address, upd.Address),
		Province:    applyString(old.Province, upd.Province),
		District:    applyString(old.District, upd.District),
		Facility:    applyString(old.Facility, upd.Facility),
		TBStatus:    applyString(old.TBStatus, upd.TBStatus),
		HIVStatus:   applyString(old.HIVStatus, upd.HIVStatus),
		DataSource:  old.DataSource,
		CreatedBy:   old.CreatedBy,
	}
	rec, err := ValidatePatient(c)
	if err != nil {
		return nil, err
	}

	p, err := s.store.UpdatePatient(ctx, id, rec)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, AuditEvent{
		UserID:       userID,
		Action:       ActionUpdate,
		ResourceType: ResourcePatient,
		ResourceID:   id.String(),
		OldValues:    old,
		NewValues:    p,
	})
	return p, nil
}

// DeletePatient marks a patient inactive. The row is kept.
func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID, userID string) error {
	old, err := s.store.GetPatient(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeactivatePatient(ctx, id); err != nil {
		return err
	}

	s.audit(ctx, AuditEvent{
		UserID:       userID,
		Action:       ActionDelete,
		ResourceType: ResourcePatient,
		ResourceID:   id.String(),
		OldValues:    old,
	})
	return nil
}

func applyString(current string, update *string) string {
	if update == nil {
		return current
	}
	return strings.TrimSpace(*update)
}

// paginate normalizes a 1-based page and page size into limit and offset.
func paginate(page, limit int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return limit, (page - 1) * limit, page
}
