package core

// importer.go drives one bulk patient import.
//
// Per row: Parsed -> Mapped -> IDAssigned -> Validated -> Persisted, or
// Failed at any step. A failed row is recorded and the loop continues;
// only a parse failure or an unreadable patient count aborts the batch.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cocaresync/cocaresync/internal/logging"
	"github.com/google/uuid"
)

// ImportRowError is one row that did not become a patient.
type ImportRowError struct {
	Row   int    `json:"row"` // 1-based data row, header excluded
	Error string `json:"error"`
	Data  RawRow `json:"data"`
}

// ImportBatchResult summarizes one import.
type ImportBatchResult struct {
	BatchID string           `json:"batchId,omitempty"`
	Total   int              `json:"total"`
	Success int              `json:"success"`
	Errors  []ImportRowError `json:"errors"`
}

// PatientWriter is the persistence boundary the importer needs.
type PatientWriter interface {
	PatientCounter
	CreatePatient(ctx context.Context, rec PatientRecord) (*Patient, error)
}

// Importer turns uploaded files into patients.
type Importer struct {
	patients PatientWriter
	ids      IDAllocator
	audit    AuditSink
}

// NewImporter creates an Importer. audit may be nil.
func NewImporter(patients PatientWriter, ids IDAllocator, audit AuditSink) *Importer {
	return &Importer{patients: patients, ids: ids, audit: audit}
}

// Import parses data as fileName and creates one patient per valid row,
// attributed to userID.
func (im *Importer) Import(ctx context.Context, data []byte, fileName, userID string) (*ImportBatchResult, error) {
	return im.importBatch(ctx, uuid.NewString(), data, fileName, userID)
}

func (im *Importer) importBatch(ctx context.Context, batchID string, data []byte, fileName, userID string) (*ImportBatchResult, error) {
	log := logging.WithFields(ctx, "batch_id", batchID, "file", fileName, "user_id", userID)
	start := time.Now()

	rows, err := ParseRecords(data, fileName)
	if err != nil {
		log.Warn("import rejected", "error", err)
		return nil, err
	}

	// Rows are not interrupted by request cancellation once started.
	rowCtx := context.WithoutCancel(ctx)

	ids, err := im.ids.Begin(rowCtx)
	if err != nil {
		log.Error("import aborted", "error", err)
		return nil, &PersistenceError{Err: fmt.Errorf("allocate patient ids: %w", err)}
	}

	result := &ImportBatchResult{
		BatchID: batchID,
		Total:   len(rows),
		Errors:  []ImportRowError{},
	}

	for i, row := range rows {
		if _, err := im.importRow(rowCtx, ids, row, result.Success, userID); err != nil {
			result.Errors = append(result.Errors, ImportRowError{
				Row:   i + 1,
				Error: err.Error(),
				Data:  row,
			})
			continue
		}
		result.Success++
	}

	im.recordAudit(rowCtx, result, fileName, userID)

	log.Info("import completed",
		"total", result.Total,
		"success", result.Success,
		"failed", len(result.Errors),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// importRow maps, numbers, validates and persists one row.
func (im *Importer) importRow(ctx context.Context, ids BatchAllocator, row RawRow, successes int, userID string) (*Patient, error) {
	candidate := MapRow(row, userID)

	patientID, err := ids.Next(ctx, successes)
	if err != nil {
		return nil, &PersistenceError{Err: fmt.Errorf("allocate patient id: %w", err)}
	}
	candidate.PatientID = patientID

	rec, err := ValidatePatient(candidate)
	if err != nil {
		return nil, err
	}

	p, err := im.patients.CreatePatient(ctx, rec)
	if err != nil {
		var pe *PersistenceError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, &PersistenceError{PatientID: rec.PatientID, Err: err}
	}
	return p, nil
}

// recordAudit writes the batch summary. Failures are logged only.
func (im *Importer) recordAudit(ctx context.Context, result *ImportBatchResult, fileName, userID string) {
	if im.audit == nil {
		return
	}

	err := im.audit.Record(ctx, AuditEvent{
		UserID:       userID,
		Action:       ActionImport,
		ResourceType: ResourcePatient,
		ResourceID:   result.BatchID,
		NewValues: map[string]any{
			"importResults": map[string]any{
				"total":        result.Total,
				"success":      result.Success,
				"failureCount": len(result.Errors),
			},
			"fileName": fileName,
		},
		IPAddress: IPAddressFromContext(ctx),
		UserAgent: UserAgentFromContext(ctx),
	})
	if err != nil {
		logging.FromContext(ctx).Error("import audit failed", "batch_id", result.BatchID, "error", err)
	}
}
