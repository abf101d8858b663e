package core

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

func newTestService(store *memStore) *Service {
	return NewService(store, Options{Clock: fixedClock})
}

func samplePatientInput() PatientInput {
	return PatientInput{
		FirstName:   "Thabo",
		LastName:    "Mokoena",
		DateOfBirth: "1985-03-15",
		Gender:      "male",
		PhoneNumber: "+27821234567",
		Address:     "12 Vilakazi St",
		Province:    "Gauteng",
		District:    "Soweto",
	}
}

type recordingArchiver struct {
	batchID, fileName string
	size              int
	err               error
}

func (a *recordingArchiver) Archive(_ context.Context, batchID, fileName string, data []byte) error {
	a.batchID, a.fileName, a.size = batchID, fileName, len(data)
	return a.err
}

// ============================================================================
// Import
// ============================================================================

func TestService_ImportPatients_Archives(t *testing.T) {
	store := newMemStore()
	arch := &recordingArchiver{err: errBoom}
	svc := NewService(store, Options{Clock: fixedClock, Archiver: arch})

	res, err := svc.ImportPatients(context.Background(), []byte(threeRowCSV), "patients.csv", "user-1")
	if err != nil {
		t.Fatalf("ImportPatients: %v", err)
	}
	if arch.batchID != res.BatchID || arch.fileName != "patients.csv" || arch.size != len(threeRowCSV) {
		t.Errorf("archiver saw %+v, batch %s", arch, res.BatchID)
	}
	if res.Success != 2 {
		t.Errorf("Success = %d, want 2 despite archive failure", res.Success)
	}
	if st := svc.ImportLimiterStatus(); st.Active != 0 {
		t.Errorf("Active = %d after import, want 0", st.Active)
	}
}

func TestService_ImportPatients_RejectsFormatBeforeSlot(t *testing.T) {
	svc := NewService(newMemStore(), Options{MaxConcurrentImports: 1, MaxImportWait: time.Millisecond})
	svc.limiter.TryAcquire()
	defer svc.limiter.Release()

	_, err := svc.ImportPatients(context.Background(), nil, "notes.txt", "user-1")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestService_ImportPatients_Busy(t *testing.T) {
	svc := NewService(newMemStore(), Options{MaxConcurrentImports: 1, MaxImportWait: 10 * time.Millisecond})
	svc.limiter.TryAcquire()
	defer svc.limiter.Release()

	_, err := svc.ImportPatients(context.Background(), []byte(threeRowCSV), "patients.csv", "user-1")
	if !errors.Is(err, ErrTooManyImports) {
		t.Errorf("err = %v, want ErrTooManyImports", err)
	}
}

// ============================================================================
// Patients
// ============================================================================

func TestService_CreatePatient(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := ContextWithRequestMetadata(context.Background(), "10.1.1.1", "test-agent")

	p, err := svc.CreatePatient(ctx, samplePatientInput(), "user-1")
	if err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}
	if p.PatientID != "TB-2024-000001" {
		t.Errorf("PatientID = %q", p.PatientID)
	}
	if p.TBStatus != DefaultTBStatus || p.HIVStatus != DefaultHIVStatus {
		t.Errorf("statuses = %q/%q", p.TBStatus, p.HIVStatus)
	}

	audits := store.auditsFor(ActionCreate)
	if len(audits) != 1 || audits[0].ResourceID != p.ID.String() || audits[0].UserAgent != "test-agent" {
		t.Errorf("create audits = %+v", audits)
	}

	second, err := svc.CreatePatient(ctx, samplePatientInput(), "user-1")
	if err != nil {
		t.Fatalf("CreatePatient #2: %v", err)
	}
	if second.PatientID != "TB-2024-000002" {
		t.Errorf("second PatientID = %q", second.PatientID)
	}
}

func TestService_CreatePatient_Invalid(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	in := samplePatientInput()
	in.Gender = "unknown"
	_, err := svc.CreatePatient(context.Background(), in, "user-1")
	if !IsValidationError(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if len(store.patients) != 0 || len(store.audits) != 0 {
		t.Error("invalid patient should not be stored or audited")
	}
}

func TestService_UpdatePatient(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()

	p, err := svc.CreatePatient(ctx, samplePatientInput(), "user-1")
	if err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}

	status := "confirmed"
	updated, err := svc.UpdatePatient(ctx, p.ID, PatientUpdate{TBStatus: &status}, "user-2")
	if err != nil {
		t.Fatalf("UpdatePatient: %v", err)
	}
	if updated.TBStatus != "confirmed" || updated.FirstName != "Thabo" || updated.PatientID != p.PatientID {
		t.Errorf("updated = %+v", updated)
	}

	audits := store.auditsFor(ActionUpdate)
	if len(audits) != 1 {
		t.Fatalf("got %d update audits, want 1", len(audits))
	}
	if !strings.Contains(string(audits[0].OldValues), `"tbStatus":"negative"`) ||
		!strings.Contains(string(audits[0].NewValues), `"tbStatus":"confirmed"`) {
		t.Errorf("audit values old=%s new=%s", audits[0].OldValues, audits[0].NewValues)
	}

	bad := "maybe"
	if _, err := svc.UpdatePatient(ctx, p.ID, PatientUpdate{HIVStatus: &bad}, "user-2"); !IsValidationError(err) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestService_DeletePatient(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()

	p, _ := svc.CreatePatient(ctx, samplePatientInput(), "user-1")
	if err := svc.DeletePatient(ctx, p.ID, "user-1"); err != nil {
		t.Fatalf("DeletePatient: %v", err)
	}

	if _, err := svc.GetPatientDetail(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPatientDetail after delete err = %v, want ErrNotFound", err)
	}
	page, err := svc.ListPatients(ctx, PatientFilter{}, 1)
	if err != nil {
		t.Fatalf("ListPatients: %v", err)
	}
	if page.Total != 0 {
		t.Errorf("Total = %d, want 0", page.Total)
	}
	if len(store.auditsFor(ActionDelete)) != 1 {
		t.Error("delete not audited")
	}
	if err := svc.DeletePatient(ctx, uuid.New(), "user-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete unknown err = %v, want ErrNotFound", err)
	}
}

func TestService_ListPatients_Paging(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		if _, err := svc.CreatePatient(ctx, samplePatientInput(), "user-1"); err != nil {
			t.Fatalf("CreatePatient: %v", err)
		}
	}

	page, err := svc.ListPatients(ctx, PatientFilter{}, 2)
	if err != nil {
		t.Fatalf("ListPatients: %v", err)
	}
	if page.Limit != DefaultPageSize || page.Page != 2 || page.Total != 12 || page.TotalPages != 2 {
		t.Errorf("page = %+v", page)
	}
	if len(page.Patients) != 2 {
		t.Errorf("got %d patients on page 2, want 2", len(page.Patients))
	}

	page, _ = svc.ListPatients(ctx, PatientFilter{Limit: 1000}, 0)
	if page.Limit != MaxPageSize || page.Page != 1 {
		t.Errorf("limit not clamped: %+v", page)
	}
}

// ============================================================================
// Clinical
// ============================================================================

func TestService_ClinicalRecords(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()

	p, _ := svc.CreatePatient(ctx, samplePatientInput(), "user-1")

	tr, err := svc.CreateTreatment(ctx, p.ID, TreatmentInput{
		TreatmentType: "tb_treatment",
		StartDate:     "2024-02-01",
		EndDate:       "2024-08-01",
		Status:        "active",
	}, "user-1")
	if err != nil {
		t.Fatalf("CreateTreatment: %v", err)
	}
	if tr.EndDate == nil || tr.EndDate.String() != "2024-08-01" {
		t.Errorf("EndDate = %v", tr.EndDate)
	}

	lab, err := svc.CreateLabResult(ctx, p.ID, LabResultInput{
		TestType:     "cd4_count",
		Result:       "350 cells/mm3",
		NumericValue: "350",
		TestDate:     "2024-02-03",
	}, "user-1")
	if err != nil {
		t.Fatalf("CreateLabResult: %v", err)
	}
	if lab.NumericValue == nil || *lab.NumericValue != 350 || lab.DataSource != DataSourceManual {
		t.Errorf("lab = %+v", lab)
	}

	detail, err := svc.GetPatientDetail(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPatientDetail: %v", err)
	}
	if len(detail.Treatments) != 1 || len(detail.LabResults) != 1 {
		t.Errorf("detail has %d treatments, %d labs", len(detail.Treatments), len(detail.LabResults))
	}

	if _, err := svc.CreateTreatment(ctx, uuid.New(), TreatmentInput{TreatmentType: "art", StartDate: "2024-01-01"}, "u"); !errors.Is(err, ErrNotFound) {
		t.Errorf("treatment for unknown patient err = %v, want ErrNotFound", err)
	}
	if _, err := svc.CreateLabResult(ctx, p.ID, LabResultInput{TestType: "mri", Result: "x", TestDate: "2024-01-01"}, "u"); !IsValidationError(err) {
		t.Errorf("bad test type err = %v, want validation error", err)
	}
}

// ============================================================================
// Quality and dashboard
// ============================================================================

func TestService_ResolveQualityIssue(t *testing.T) {
	store := newMemStore()
	id := uuid.New()
	store.issues = []QualityIssue{{ID: id, IssueType: "missing_phone", Severity: "low"}}
	svc := newTestService(store)

	issue, err := svc.ResolveQualityIssue(context.Background(), id, "user-1")
	if err != nil {
		t.Fatalf("ResolveQualityIssue: %v", err)
	}
	if !issue.IsResolved || issue.ResolvedBy != "user-1" {
		t.Errorf("issue = %+v", issue)
	}
	if len(store.auditsFor(ActionResolve)) != 1 {
		t.Error("resolve not audited")
	}

	resolved := true
	page, err := svc.ListQualityIssues(context.Background(), QualityIssueFilter{Resolved: &resolved}, 1)
	if err != nil || page.Total != 1 {
		t.Errorf("ListQualityIssues = %+v, %v", page, err)
	}
}

func TestService_DashboardMetrics(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()

	co := samplePatientInput()
	co.TBStatus, co.HIVStatus = "confirmed", "positive"
	if _, err := svc.CreatePatient(ctx, co, "u"); err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}
	if _, err := svc.CreatePatient(ctx, samplePatientInput(), "u"); err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}
	store.issues = []QualityIssue{{IsResolved: true}, {IsResolved: true}, {}}

	m, err := svc.DashboardMetrics(ctx)
	if err != nil {
		t.Fatalf("DashboardMetrics: %v", err)
	}
	if m.TotalPatients != 2 || m.CoInfections != 1 || m.DataQualityScore != 67 {
		t.Errorf("metrics = %+v", m)
	}

	dist, err := svc.ProvincialDistribution(ctx)
	if err != nil || len(dist) != 1 || dist[0].CoInfections != 1 {
		t.Errorf("distribution = %+v, %v", dist, err)
	}
}

func TestQualityScore(t *testing.T) {
	tests := []struct {
		counts IssueCounts
		want   int
	}{
		{IssueCounts{}, 100},
		{IssueCounts{Total: 4, Resolved: 4}, 100},
		{IssueCounts{Total: 4, Resolved: 1}, 25},
		{IssueCounts{Total: 3, Resolved: 1}, 33},
	}
	for _, tt := range tests {
		if got := qualityScore(tt.counts); got != tt.want {
			t.Errorf("qualityScore(%+v) = %d, want %d", tt.counts, got, tt.want)
		}
	}
}

// ============================================================================
// Export, FHIR, users
// ============================================================================

func TestService_ExportPatients(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()
	p, _ := svc.CreatePatient(ctx, samplePatientInput(), "u")

	var buf bytes.Buffer
	if err := svc.ExportPatients(ctx, &buf, ExportCSV, "u"); err != nil {
		t.Fatalf("ExportPatients csv: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 || records[0][0] != "Patient ID" || records[1][0] != p.PatientID {
		t.Errorf("csv records = %v", records)
	}

	buf.Reset()
	if err := svc.ExportPatients(ctx, &buf, ExportXLSX, "u"); err != nil {
		t.Fatalf("ExportPatients xlsx: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Patients")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 2 || rows[1][1] != "Thabo" {
		t.Errorf("xlsx rows = %v", rows)
	}

	if got := len(store.auditsFor(ActionExport)); got != 2 {
		t.Errorf("got %d export audits, want 2", got)
	}
}

func TestParseExportFormat(t *testing.T) {
	if f, err := ParseExportFormat(""); err != nil || f != ExportCSV {
		t.Errorf("default = %q, %v", f, err)
	}
	if f, err := ParseExportFormat("XLSX"); err != nil || f != ExportXLSX {
		t.Errorf("xlsx = %q, %v", f, err)
	}
	if _, err := ParseExportFormat("pdf"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("pdf err = %v", err)
	}
}

func TestImportTemplate_RoundTrips(t *testing.T) {
	res, err := newTestImporter(newMemStore()).Import(context.Background(), ImportTemplate(), "template.csv", "u")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Total != 2 || res.Success != 2 {
		t.Errorf("template import = %+v, want 2 successes", res)
	}
}

func TestService_FHIRPatients(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()

	p, _ := svc.CreatePatient(ctx, samplePatientInput(), "u")
	bare := samplePatientInput()
	bare.Gender, bare.PhoneNumber, bare.Address = "other", "", ""
	svc.CreatePatient(ctx, bare, "u")

	b, err := svc.FHIRPatients(ctx)
	if err != nil {
		t.Fatalf("FHIRPatients: %v", err)
	}
	if b.ResourceType != "Bundle" || b.Type != "searchset" || b.Total != 2 || len(b.Entry) != 2 {
		t.Fatalf("bundle = %+v", b)
	}

	r := b.Entry[0].Resource
	if r.ID != p.ID.String() || r.Identifier[0].Value != p.PatientID || r.Identifier[0].System != PatientIdentifierSystem {
		t.Errorf("identity = %+v", r)
	}
	if r.Name[0].Family != "Mokoena" || r.Name[0].Given[0] != "Thabo" || r.BirthDate != "1985-03-15" {
		t.Errorf("name/birth = %+v", r)
	}
	if len(r.Telecom) != 1 || len(r.Address) != 1 || r.Address[0].State != "Gauteng" {
		t.Errorf("contact = %+v / %+v", r.Telecom, r.Address)
	}

	r = b.Entry[1].Resource
	if r.Gender != "other" || len(r.Telecom) != 0 || len(r.Address) != 0 {
		t.Errorf("bare resource = %+v", r)
	}
}

func TestService_Users(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()

	u, err := svc.CurrentUser(ctx, "someone")
	if err != nil || u.Role != RoleClinician {
		t.Errorf("unknown user = %+v, %v", u, err)
	}

	if _, err := svc.EnsureUser(ctx, DefaultAdmin); err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	u, err = svc.CurrentUser(ctx, DefaultAdmin.ID)
	if err != nil || u.Role != RoleAdmin || u.Email != DefaultAdmin.Email {
		t.Errorf("admin = %+v, %v", u, err)
	}
}

func TestService_RetentionJob(t *testing.T) {
	store := newMemStore()
	store.audits = []AuditEntry{
		{ID: uuid.New(), CreatedAt: fixedClock().AddDate(0, 0, -40)},
		{ID: uuid.New(), CreatedAt: fixedClock().AddDate(0, 0, -1)},
	}
	svc := newTestService(store)

	purged := svc.runRetentionJob(context.Background(), RetentionConfig{RetentionDays: 30})
	if purged != 1 || len(store.audits) != 1 {
		t.Errorf("purged %d, %d left", purged, len(store.audits))
	}
}

func TestService_RetentionSchedulerStops(t *testing.T) {
	svc := newTestService(newMemStore())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		svc.StartRetentionScheduler(ctx, RetentionConfig{RetentionDays: 30, CheckInterval: time.Hour})
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
