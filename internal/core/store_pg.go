package core

// store_pg.go implements Store on Postgres through the database package.

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	db "github.com/cocaresync/cocaresync/internal/database"
)

const pgUniqueViolation = "23505"

// PGStore is a Store backed by a pgx pool.
type PGStore struct {
	pool *pgxpool.Pool
	q    *db.Queries
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool, q: db.New(pool)}
}

var _ Store = (*PGStore)(nil)

func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies the embedded schema.
func (s *PGStore) Migrate(ctx context.Context) error {
	return db.Migrate(ctx, s.pool)
}

// translateError maps driver errors onto the package sentinels.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}

// ----------------------------------------------------------------------------
// Patients
// ----------------------------------------------------------------------------

func (s *PGStore) CreatePatient(ctx context.Context, rec PatientRecord) (*Patient, error) {
	row, err := s.q.InsertPatient(ctx, db.InsertPatientParams{
		PatientID:   rec.PatientID,
		FirstName:   rec.FirstName,
		LastName:    rec.LastName,
		DateOfBirth: ToPgDate(rec.DateOfBirth),
		Gender:      rec.Gender,
		PhoneNumber: ToPgText(rec.PhoneNumber),
		Address:     ToPgText(rec.Address),
		Province:    ToPgText(rec.Province),
		District:    ToPgText(rec.District),
		Facility:    ToPgText(rec.Facility),
		TbStatus:    rec.TBStatus,
		HivStatus:   rec.HIVStatus,
		DataSource:  rec.DataSource,
		CreatedBy:   ToPgText(rec.CreatedBy),
	})
	if err != nil {
		return nil, translateError(err)
	}
	p := patientFromRow(row)
	return &p, nil
}

func patientQuery(f PatientFilter) db.PatientQuery {
	return db.PatientQuery{
		Search:          f.Search,
		TbStatus:        f.TBStatus,
		HivStatus:       f.HIVStatus,
		IncludeInactive: f.IncludeInactive,
		Limit:           f.Limit,
		Offset:          f.Offset,
	}
}

func (s *PGStore) CountPatients(ctx context.Context, f PatientFilter) (int64, error) {
	return s.q.CountPatients(ctx, patientQuery(f))
}

func (s *PGStore) ListPatients(ctx context.Context, f PatientFilter) ([]Patient, error) {
	rows, err := s.q.ListPatients(ctx, patientQuery(f))
	if err != nil {
		return nil, err
	}
	out := make([]Patient, len(rows))
	for i, r := range rows {
		out[i] = patientFromRow(r)
	}
	return out, nil
}

func (s *PGStore) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row, err := s.q.GetActivePatient(ctx, ToPgUUID(id))
	if err != nil {
		return nil, translateError(err)
	}
	p := patientFromRow(row)
	return &p, nil
}

func (s *PGStore) UpdatePatient(ctx context.Context, id uuid.UUID, rec PatientRecord) (*Patient, error) {
	row, err := s.q.UpdatePatient(ctx, db.UpdatePatientParams{
		ID:          ToPgUUID(id),
		FirstName:   rec.FirstName,
		LastName:    rec.LastName,
		DateOfBirth: ToPgDate(rec.DateOfBirth),
		Gender:      rec.Gender,
		PhoneNumber: ToPgText(rec.PhoneNumber),
		Address:     ToPgText(rec.Address),
		Province:    ToPgText(rec.Province),
		District:    ToPgText(rec.District),
		Facility:    ToPgText(rec.Facility),
		TbStatus:    rec.TBStatus,
		HivStatus:   rec.HIVStatus,
	})
	if err != nil {
		return nil, translateError(err)
	}
	p := patientFromRow(row)
	return &p, nil
}

func (s *PGStore) DeactivatePatient(ctx context.Context, id uuid.UUID) error {
	n, err := s.q.DeactivatePatient(ctx, ToPgUUID(id))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func patientFromRow(r db.Patient) Patient {
	return Patient{
		ID: FromPgUUID(r.ID),
		PatientRecord: PatientRecord{
			PatientID:   r.PatientID,
			FirstName:   r.FirstName,
			LastName:    r.LastName,
			DateOfBirth: FromPgDate(r.DateOfBirth),
			Gender:      r.Gender,
			PhoneNumber: r.PhoneNumber.String,
			Address:     r.Address.String,
			Province:    r.Province.String,
			District:    r.District.String,
			Facility:    r.Facility.String,
			TBStatus:    r.TbStatus,
			HIVStatus:   r.HivStatus,
			DataSource:  r.DataSource,
			CreatedBy:   r.CreatedBy.String,
		},
		RegistrationDate: FromPgDate(r.RegistrationDate),
		LastUpdated:      r.LastUpdated.Time,
		IsActive:         r.IsActive,
	}
}

// ----------------------------------------------------------------------------
// Treatments and lab results
// ----------------------------------------------------------------------------

func (s *PGStore) CreateTreatment(ctx context.Context, t Treatment) (*Treatment, error) {
	params := db.InsertTreatmentParams{
		ID:            ToPgUUID(t.ID),
		PatientID:     ToPgUUID(t.PatientID),
		TreatmentType: t.TreatmentType,
		Regimen:       ToPgText(t.Regimen),
		StartDate:     ToPgDate(t.StartDate),
		Status:        t.Status,
		Notes:         ToPgText(t.Notes),
		PrescribedBy:  ToPgText(t.PrescribedBy),
		Facility:      ToPgText(t.Facility),
	}
	if t.EndDate != nil {
		params.EndDate = ToPgDate(*t.EndDate)
	}
	row, err := s.q.InsertTreatment(ctx, params)
	if err != nil {
		return nil, translateError(err)
	}
	out := treatmentFromRow(row)
	return &out, nil
}

func (s *PGStore) ListTreatments(ctx context.Context, patientID uuid.UUID) ([]Treatment, error) {
	rows, err := s.q.ListTreatmentsByPatient(ctx, ToPgUUID(patientID))
	if err != nil {
		return nil, err
	}
	out := make([]Treatment, len(rows))
	for i, r := range rows {
		out[i] = treatmentFromRow(r)
	}
	return out, nil
}

func treatmentFromRow(r db.Treatment) Treatment {
	t := Treatment{
		ID:            FromPgUUID(r.ID),
		PatientID:     FromPgUUID(r.PatientID),
		TreatmentType: r.TreatmentType,
		Regimen:       r.Regimen.String,
		StartDate:     FromPgDate(r.StartDate),
		Status:        r.Status,
		Notes:         r.Notes.String,
		PrescribedBy:  r.PrescribedBy.String,
		Facility:      r.Facility.String,
		CreatedAt:     r.CreatedAt.Time,
	}
	if r.EndDate.Valid {
		end := FromPgDate(r.EndDate)
		t.EndDate = &end
	}
	return t
}

func (s *PGStore) CreateLabResult(ctx context.Context, l LabResult) (*LabResult, error) {
	params := db.InsertLabResultParams{
		ID:             ToPgUUID(l.ID),
		PatientID:      ToPgUUID(l.PatientID),
		TestType:       l.TestType,
		Result:         l.Result,
		ReferenceRange: ToPgText(l.ReferenceRange),
		TestDate:       ToPgDate(l.TestDate),
		Laboratory:     ToPgText(l.Laboratory),
		DataSource:     l.DataSource,
		Notes:          ToPgText(l.Notes),
	}
	if l.NumericValue != nil {
		params.NumericValue = ToPgNumeric(*l.NumericValue)
	}
	if l.IsNormal != nil {
		params.IsNormal = pgtype.Bool{Bool: *l.IsNormal, Valid: true}
	}
	row, err := s.q.InsertLabResult(ctx, params)
	if err != nil {
		return nil, translateError(err)
	}
	out := labResultFromRow(row)
	return &out, nil
}

func (s *PGStore) ListLabResults(ctx context.Context, patientID uuid.UUID) ([]LabResult, error) {
	rows, err := s.q.ListLabResultsByPatient(ctx, ToPgUUID(patientID))
	if err != nil {
		return nil, err
	}
	out := make([]LabResult, len(rows))
	for i, r := range rows {
		out[i] = labResultFromRow(r)
	}
	return out, nil
}

func labResultFromRow(r db.LabResult) LabResult {
	l := LabResult{
		ID:             FromPgUUID(r.ID),
		PatientID:      FromPgUUID(r.PatientID),
		TestType:       r.TestType,
		Result:         r.Result,
		ReferenceRange: r.ReferenceRange.String,
		TestDate:       FromPgDate(r.TestDate),
		Laboratory:     r.Laboratory.String,
		DataSource:     r.DataSource,
		Notes:          r.Notes.String,
		CreatedAt:      r.CreatedAt.Time,
	}
	if f, ok := FromPgNumeric(r.NumericValue); ok {
		l.NumericValue = &f
	}
	if r.IsNormal.Valid {
		v := r.IsNormal.Bool
		l.IsNormal = &v
	}
	return l
}

// ----------------------------------------------------------------------------
// Integrations and data quality
// ----------------------------------------------------------------------------

func (s *PGStore) ListIntegrations(ctx context.Context) ([]Integration, error) {
	rows, err := s.q.ListIntegrations(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Integration, len(rows))
	for i, r := range rows {
		out[i] = Integration{
			ID:            FromPgUUID(r.ID),
			SystemName:    r.SystemName,
			Status:        r.Status,
			LastSync:      FromPgTimestamptz(r.LastSync),
			NextSync:      FromPgTimestamptz(r.NextSync),
			ErrorMessage:  r.ErrorMessage.String,
			SyncedRecords: int(r.SyncedRecords),
		}
	}
	return out, nil
}

func (s *PGStore) ListQualityIssues(ctx context.Context, f QualityIssueFilter) ([]QualityIssue, int64, error) {
	rows, total, err := s.q.ListQualityIssues(ctx, db.QualityIssueQuery{
		Severity: f.Severity,
		Resolved: f.Resolved,
		Limit:    f.Limit,
		Offset:   f.Offset,
	})
	if err != nil {
		return nil, 0, err
	}
	out := make([]QualityIssue, len(rows))
	for i, r := range rows {
		out[i] = qualityIssueFromRow(r)
	}
	return out, total, nil
}

func (s *PGStore) ResolveQualityIssue(ctx context.Context, id uuid.UUID, userID string) (*QualityIssue, error) {
	row, err := s.q.ResolveQualityIssue(ctx, ToPgUUID(id), ToPgText(userID))
	if err != nil {
		return nil, translateError(err)
	}
	q := qualityIssueFromRow(row)
	return &q, nil
}

func qualityIssueFromRow(r db.DataQualityIssue) QualityIssue {
	q := QualityIssue{
		ID:              FromPgUUID(r.ID),
		IssueType:       r.IssueType,
		Severity:        r.Severity,
		Description:     r.Description,
		Field:           r.Field.String,
		SuggestedAction: r.SuggestedAction.String,
		IsResolved:      r.IsResolved,
		ResolvedBy:      r.ResolvedBy.String,
		ResolvedAt:      FromPgTimestamptz(r.ResolvedAt),
		CreatedAt:       r.CreatedAt.Time,
	}
	if r.PatientID.Valid {
		pid := FromPgUUID(r.PatientID)
		q.PatientID = &pid
	}
	return q
}

// ----------------------------------------------------------------------------
// Analytics
// ----------------------------------------------------------------------------

func (s *PGStore) CountCoInfections(ctx context.Context) (int64, error) {
	return s.q.CountCoInfections(ctx)
}

func (s *PGStore) CountActiveTreatments(ctx context.Context) (int64, error) {
	return s.q.CountActiveTreatments(ctx)
}

func (s *PGStore) CountQualityIssues(ctx context.Context) (IssueCounts, error) {
	total, resolved, err := s.q.CountQualityIssues(ctx)
	return IssueCounts{Total: total, Resolved: resolved}, err
}

func (s *PGStore) CoInfectionTrends(ctx context.Context, since time.Time) ([]TrendPoint, error) {
	rows, err := s.q.CoInfectionTrends(ctx, since)
	if err != nil {
		return nil, err
	}
	out := make([]TrendPoint, len(rows))
	for i, r := range rows {
		out[i] = TrendPoint{Month: r.Month, Count: r.Count}
	}
	return out, nil
}

func (s *PGStore) ProvincialDistribution(ctx context.Context) ([]ProvinceCount, error) {
	rows, err := s.q.ProvincialDistribution(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ProvinceCount, len(rows))
	for i, r := range rows {
		out[i] = ProvinceCount{
			Province:     r.Province,
			TBCases:      r.TbCases,
			HIVCases:     r.HivCases,
			CoInfections: r.CoInfections,
		}
	}
	return out, nil
}

// ----------------------------------------------------------------------------
// Audit and users
// ----------------------------------------------------------------------------

func (s *PGStore) Record(ctx context.Context, ev AuditEvent) error {
	oldValues, err := EncodeAuditValues(ev.OldValues)
	if err != nil {
		return fmt.Errorf("encode old values: %w", err)
	}
	newValues, err := EncodeAuditValues(ev.NewValues)
	if err != nil {
		return fmt.Errorf("encode new values: %w", err)
	}

	return s.q.InsertAuditLog(ctx, db.InsertAuditLogParams{
		UserID:       ToPgText(ev.UserID),
		Action:       string(ev.Action),
		ResourceType: ev.ResourceType,
		ResourceID:   ToPgText(ev.ResourceID),
		OldValues:    oldValues,
		NewValues:    newValues,
		IpAddress:    parseIPAddress(ev.IPAddress),
		UserAgent:    ToPgText(ev.UserAgent),
	})
}

// parseIPAddress strips an optional port. Unparseable input yields nil.
func parseIPAddress(s string) *netip.Addr {
	if s == "" {
		return nil
	}
	host := s
	if h, _, err := net.SplitHostPort(s); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return nil
	}
	return &addr
}

func (s *PGStore) ListAuditLogs(ctx context.Context, f AuditFilter) ([]AuditEntry, int64, error) {
	rows, total, err := s.q.ListAuditLogs(ctx, db.AuditLogQuery{
		ResourceType: f.ResourceType,
		Action:       string(f.Action),
		UserID:       f.UserID,
		Since:        f.Since,
		Until:        f.Until,
		Limit:        f.Limit,
		Offset:       f.Offset,
	})
	if err != nil {
		return nil, 0, err
	}
	out := make([]AuditEntry, len(rows))
	for i, r := range rows {
		e := AuditEntry{
			ID:           FromPgUUID(r.ID),
			UserID:       r.UserID.String,
			Action:       AuditAction(r.Action),
			ResourceType: r.ResourceType,
			ResourceID:   r.ResourceID.String,
			OldValues:    r.OldValues,
			NewValues:    r.NewValues,
			UserAgent:    r.UserAgent.String,
			CreatedAt:    r.CreatedAt.Time,
		}
		if r.IpAddress != nil {
			e.IPAddress = r.IpAddress.String()
		}
		out[i] = e
	}
	return out, total, nil
}

func (s *PGStore) PurgeAuditLogs(ctx context.Context, before time.Time) (int64, error) {
	return s.q.PurgeAuditLogs(ctx, before)
}

func (s *PGStore) GetUser(ctx context.Context, id string) (*User, error) {
	row, err := s.q.GetUser(ctx, id)
	if err != nil {
		return nil, translateError(err)
	}
	u := userFromRow(row)
	return &u, nil
}

func (s *PGStore) UpsertUser(ctx context.Context, u User) (*User, error) {
	row, err := s.q.UpsertUser(ctx, db.UpsertUserParams{
		ID:        u.ID,
		Email:     ToPgText(u.Email),
		FirstName: ToPgText(u.FirstName),
		LastName:  ToPgText(u.LastName),
		Role:      u.Role,
	})
	if err != nil {
		return nil, translateError(err)
	}
	out := userFromRow(row)
	return &out, nil
}

func userFromRow(r db.User) User {
	return User{
		ID:        r.ID,
		Email:     r.Email.String,
		FirstName: r.FirstName.String,
		LastName:  r.LastName.String,
		Role:      r.Role,
		CreatedAt: r.CreatedAt.Time,
	}
}

// ----------------------------------------------------------------------------
// pgtype conversions
// ----------------------------------------------------------------------------

// ToPgText maps "" to NULL.
func ToPgText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func ToPgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: id != uuid.Nil}
}

func FromPgUUID(id pgtype.UUID) uuid.UUID {
	if !id.Valid {
		return uuid.Nil
	}
	return uuid.UUID(id.Bytes)
}

// ToPgDate maps the zero Date to NULL.
func ToPgDate(d Date) pgtype.Date {
	return pgtype.Date{Time: d.Time, Valid: !d.IsZero()}
}

func FromPgDate(d pgtype.Date) Date {
	if !d.Valid {
		return Date{}
	}
	return NewDate(d.Time)
}

func FromPgTimestamptz(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}

// ToPgNumeric encodes f exactly as its shortest decimal representation.
func ToPgNumeric(f float64) pgtype.Numeric {
	var n pgtype.Numeric
	if err := n.Scan(strconv.FormatFloat(f, 'f', -1, 64)); err != nil {
		return pgtype.Numeric{}
	}
	return n
}

func FromPgNumeric(n pgtype.Numeric) (float64, bool) {
	if !n.Valid || n.NaN {
		return 0, false
	}
	f, err := n.Float64Value()
	if err != nil || !f.Valid {
		return 0, false
	}
	return f.Float64, true
}
