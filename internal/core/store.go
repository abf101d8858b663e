package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PatientRepository persists patients.
type PatientRepository interface {
	PatientWriter
	ListPatients(ctx context.Context, filter PatientFilter) ([]Patient, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	UpdatePatient(ctx context.Context, id uuid.UUID, rec PatientRecord) (*Patient, error)
	DeactivatePatient(ctx context.Context, id uuid.UUID) error
}

// ClinicalRepository persists treatments and lab results.
type ClinicalRepository interface {
	CreateTreatment(ctx context.Context, t Treatment) (*Treatment, error)
	ListTreatments(ctx context.Context, patientID uuid.UUID) ([]Treatment, error)
	CreateLabResult(ctx context.Context, l LabResult) (*LabResult, error)
	ListLabResults(ctx context.Context, patientID uuid.UUID) ([]LabResult, error)
}

// QualityRepository reads source system state and data quality issues.
type QualityRepository interface {
	ListIntegrations(ctx context.Context) ([]Integration, error)
	ListQualityIssues(ctx context.Context, filter QualityIssueFilter) ([]QualityIssue, int64, error)
	ResolveQualityIssue(ctx context.Context, id uuid.UUID, userID string) (*QualityIssue, error)
}

// AnalyticsRepository computes dashboard aggregates.
type AnalyticsRepository interface {
	CountCoInfections(ctx context.Context) (int64, error)
	CountActiveTreatments(ctx context.Context) (int64, error)
	CountQualityIssues(ctx context.Context) (IssueCounts, error)
	CoInfectionTrends(ctx context.Context, since time.Time) ([]TrendPoint, error)
	ProvincialDistribution(ctx context.Context) ([]ProvinceCount, error)
}

// AuditRepository stores and reads audit entries.
type AuditRepository interface {
	AuditSink
	ListAuditLogs(ctx context.Context, filter AuditFilter) ([]AuditEntry, int64, error)
	PurgeAuditLogs(ctx context.Context, before time.Time) (int64, error)
}

// UserRepository stores application users.
type UserRepository interface {
	GetUser(ctx context.Context, id string) (*User, error)
	UpsertUser(ctx context.Context, u User) (*User, error)
}

// Store is everything the service reads and writes.
type Store interface {
	PatientRepository
	ClinicalRepository
	QualityRepository
	AnalyticsRepository
	AuditRepository
	UserRepository
	Ping(ctx context.Context) error
}
