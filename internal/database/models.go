package database

import (
	"net/netip"

	"github.com/jackc/pgx/v5/pgtype"
)

type Patient struct {
	ID               pgtype.UUID
	PatientID        string
	FirstName        string
	LastName         string
	DateOfBirth      pgtype.Date
	Gender           string
	PhoneNumber      pgtype.Text
	Address          pgtype.Text
	Province         pgtype.Text
	District         pgtype.Text
	Facility         pgtype.Text
	TbStatus         string
	HivStatus        string
	DataSource       string
	RegistrationDate pgtype.Date
	LastUpdated      pgtype.Timestamptz
	CreatedBy        pgtype.Text
	IsActive         bool
}

type Treatment struct {
	ID            pgtype.UUID
	PatientID     pgtype.UUID
	TreatmentType string
	Regimen       pgtype.Text
	StartDate     pgtype.Date
	EndDate       pgtype.Date
	Status        string
	Notes         pgtype.Text
	PrescribedBy  pgtype.Text
	Facility      pgtype.Text
	CreatedAt     pgtype.Timestamptz
}

type LabResult struct {
	ID             pgtype.UUID
	PatientID      pgtype.UUID
	TestType       string
	Result         string
	NumericValue   pgtype.Numeric
	ReferenceRange pgtype.Text
	TestDate       pgtype.Date
	Laboratory     pgtype.Text
	DataSource     string
	IsNormal       pgtype.Bool
	Notes          pgtype.Text
	CreatedAt      pgtype.Timestamptz
}

type SystemIntegration struct {
	ID            pgtype.UUID
	SystemName    string
	Status        string
	LastSync      pgtype.Timestamptz
	NextSync      pgtype.Timestamptz
	ErrorMessage  pgtype.Text
	SyncedRecords int32
}

type DataQualityIssue struct {
	ID              pgtype.UUID
	PatientID       pgtype.UUID
	IssueType       string
	Severity        string
	Description     string
	Field           pgtype.Text
	SuggestedAction pgtype.Text
	IsResolved      bool
	ResolvedBy      pgtype.Text
	ResolvedAt      pgtype.Timestamptz
	CreatedAt       pgtype.Timestamptz
}

type AuditLog struct {
	ID           pgtype.UUID
	UserID       pgtype.Text
	Action       string
	ResourceType string
	ResourceID   pgtype.Text
	OldValues    []byte
	NewValues    []byte
	IpAddress    *netip.Addr
	UserAgent    pgtype.Text
	CreatedAt    pgtype.Timestamptz
}

type User struct {
	ID        string
	Email     pgtype.Text
	FirstName pgtype.Text
	LastName  pgtype.Text
	Role      string
	CreatedAt pgtype.Timestamptz
}
