package core

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/cocaresync/cocaresync/internal/logging"
)

// AuditAction is the kind of change being audited.
type AuditAction string

const (
	ActionCreate  AuditAction = "create"
	ActionUpdate  AuditAction = "update"
	ActionDelete  AuditAction = "delete"
	ActionExport  AuditAction = "export"
	ActionImport  AuditAction = "import"
	ActionResolve AuditAction = "resolve"
)

// Audited resource types.
const (
	ResourcePatient      = "patient"
	ResourceTreatment    = "treatment"
	ResourceLabResult    = "lab_result"
	ResourceQualityIssue = "data_quality_issue"
)

// AuditEvent is one change to record. OldValues and NewValues are encoded
// as JSON by the sink.
type AuditEvent struct {
	UserID       string
	Action       AuditAction
	ResourceType string
	ResourceID   string
	OldValues    any
	NewValues    any
	IPAddress    string
	UserAgent    string
}

// AuditSink stores audit events.
type AuditSink interface {
	Record(ctx context.Context, ev AuditEvent) error
}

// AuditEntry is a stored audit event.
type AuditEntry struct {
	ID           uuid.UUID       `json:"id"`
	UserID       string          `json:"userId,omitempty"`
	Action       AuditAction     `json:"action"`
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId,omitempty"`
	OldValues    json.RawMessage `json:"oldValues,omitempty"`
	NewValues    json.RawMessage `json:"newValues,omitempty"`
	IPAddress    string          `json:"ipAddress,omitempty"`
	UserAgent    string          `json:"userAgent,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// AuditFilter narrows audit log listings.
type AuditFilter struct {
	ResourceType string
	Action       AuditAction
	UserID       string
	Since        time.Time
	Until        time.Time
	Limit        int
	Offset       int
}

// AuditPage is one page of audit entries.
type AuditPage struct {
	Entries    []AuditEntry `json:"entries"`
	Total      int64        `json:"total"`
	Page       int          `json:"page"`
	Limit      int          `json:"limit"`
	TotalPages int          `json:"totalPages"`
}

// EncodeAuditValues marshals an old/new value payload. nil stays nil.
func EncodeAuditValues(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}

// audit records ev with request metadata from ctx. Audit failures never fail
// the operation being audited.
func (s *Service) audit(ctx context.Context, ev AuditEvent) {
	if ev.IPAddress == "" {
		ev.IPAddress = IPAddressFromContext(ctx)
	}
	if ev.UserAgent == "" {
		ev.UserAgent = UserAgentFromContext(ctx)
	}

	if err := s.store.Record(ctx, ev); err != nil {
		logging.FromContext(ctx).Error("audit write failed",
			"action", ev.Action,
			"resource_type", ev.ResourceType,
			"resource_id", ev.ResourceID,
			"error", err,
		)
	}
}

// ListAuditLogs returns one page of audit entries, newest first.
func (s *Service) ListAuditLogs(ctx context.Context, filter AuditFilter, page int) (*AuditPage, error) {
	filter.Limit, filter.Offset, page = paginate(page, filter.Limit)

	entries, total, err := s.store.ListAuditLogs(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &AuditPage{
		Entries:    entries,
		Total:      total,
		Page:       page,
		Limit:      filter.Limit,
		TotalPages: pageCount(total, filter.Limit),
	}, nil
}
