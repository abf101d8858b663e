package core

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

var fixedClock = func() time.Time { return time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC) }

func newTestImporter(store *memStore) *Importer {
	return NewImporter(store, NewCountAllocator(store, fixedClock), store)
}

// buildWorkbook writes rows to the first sheet of a new xlsx file.
func buildWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	return buf.Bytes()
}

const threeRowCSV = `first_name,last_name,date_of_birth,gender
Thabo,Mokoena,1985-03-15,male
Lerato,Dlamini,1990-07-22,x
Sipho,Nkosi,1978-11-02,male
`

// ============================================================================
// Batch outcomes
// ============================================================================

func TestImport_MixedBatch(t *testing.T) {
	store := newMemStore()
	im := newTestImporter(store)

	res, err := im.Import(context.Background(), []byte(threeRowCSV), "patients.csv", "user-1")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if res.Total != 3 || res.Success != 2 {
		t.Fatalf("got total=%d success=%d, want 3/2", res.Total, res.Success)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("got %d row errors, want 1", len(res.Errors))
	}
	rowErr := res.Errors[0]
	if rowErr.Row != 2 {
		t.Errorf("row = %d, want 2", rowErr.Row)
	}
	if !strings.Contains(rowErr.Error, "gender") {
		t.Errorf("error %q does not mention gender", rowErr.Error)
	}
	if rowErr.Data["gender"] != "x" {
		t.Errorf("row data not preserved: %v", rowErr.Data)
	}

	var ids []string
	for _, p := range store.patients {
		ids = append(ids, p.PatientID)
		if p.CreatedBy != "user-1" {
			t.Errorf("CreatedBy = %q, want user-1", p.CreatedBy)
		}
		if p.DataSource != DataSourceManual {
			t.Errorf("DataSource = %q, want %q", p.DataSource, DataSourceManual)
		}
	}
	want := []string{"TB-2024-000001", "TB-2024-000002"}
	if strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Errorf("ids = %v, want %v", ids, want)
	}
}

func TestImport_SpreadsheetMissingFirstName(t *testing.T) {
	store := newMemStore()
	im := newTestImporter(store)

	data := buildWorkbook(t, [][]any{
		{"first_name", "last_name", "date_of_birth", "gender"},
		{"", "Mokoena", "1985-03-15", "male"},
	})

	res, err := im.Import(context.Background(), data, "patients.xlsx", "user-1")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Total != 1 || res.Success != 0 || len(res.Errors) != 1 {
		t.Fatalf("got %+v, want total 1, success 0, one error", res)
	}
	if res.Errors[0].Row != 1 {
		t.Errorf("row = %d, want 1", res.Errors[0].Row)
	}
	if !strings.Contains(res.Errors[0].Error, "first") {
		t.Errorf("error %q does not mention first name", res.Errors[0].Error)
	}
}

func TestImport_HeaderOnly(t *testing.T) {
	im := newTestImporter(newMemStore())

	res, err := im.Import(context.Background(), []byte("first_name,last_name,date_of_birth,gender\n"), "empty.csv", "user-1")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Total != 0 || res.Success != 0 {
		t.Errorf("got total=%d success=%d, want 0/0", res.Total, res.Success)
	}
	if res.Errors == nil || len(res.Errors) != 0 {
		t.Errorf("Errors = %#v, want empty non-nil slice", res.Errors)
	}
}

func TestImport_UnsupportedExtension(t *testing.T) {
	store := newMemStore()
	im := newTestImporter(store)

	res, err := im.Import(context.Background(), []byte(threeRowCSV), "patients.txt", "user-1")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
	if len(store.patients) != 0 {
		t.Errorf("created %d patients, want 0", len(store.patients))
	}
}

func TestImport_CorruptWorkbook(t *testing.T) {
	im := newTestImporter(newMemStore())

	_, err := im.Import(context.Background(), []byte("not a zip"), "patients.xlsx", "user-1")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *ParseError", err)
	}
	if pe.Format != string(FormatSpreadsheet) {
		t.Errorf("Format = %q, want spreadsheet", pe.Format)
	}
}

// ============================================================================
// Identifiers
// ============================================================================

var patientIDPattern = regexp.MustCompile(`^TB-\d{4}-\d{6}$`)

func TestImport_IdentifiersIncreaseAcrossBatches(t *testing.T) {
	store := newMemStore()
	im := newTestImporter(store)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := im.Import(ctx, []byte(threeRowCSV), "patients.csv", "user-1"); err != nil {
			t.Fatalf("Import #%d: %v", i+1, err)
		}
	}

	if len(store.patients) != 4 {
		t.Fatalf("got %d patients, want 4", len(store.patients))
	}
	seen := map[string]bool{}
	prev := ""
	for _, p := range store.patients {
		if !patientIDPattern.MatchString(p.PatientID) {
			t.Errorf("id %q does not match TB-YYYY-NNNNNN", p.PatientID)
		}
		if seen[p.PatientID] {
			t.Errorf("duplicate id %q", p.PatientID)
		}
		if p.PatientID <= prev {
			t.Errorf("id %q not greater than %q", p.PatientID, prev)
		}
		seen[p.PatientID] = true
		prev = p.PatientID
	}
}

func TestFormatPatientID(t *testing.T) {
	tests := []struct {
		year int
		seq  int64
		want string
	}{
		{2024, 1, "TB-2024-000001"},
		{2025, 123456, "TB-2025-123456"},
		{2025, 1234567, "TB-2025-1234567"},
	}
	for _, tt := range tests {
		if got := FormatPatientID(tt.year, tt.seq); got != tt.want {
			t.Errorf("FormatPatientID(%d, %d) = %q, want %q", tt.year, tt.seq, got, tt.want)
		}
	}
}

// ============================================================================
// Failure handling
// ============================================================================

func TestImport_PersistenceFailureIsRowError(t *testing.T) {
	store := newMemStore()
	store.failCreate["TB-2024-000001"] = errBoom
	im := newTestImporter(store)

	csv := "first_name,last_name,date_of_birth,gender\nThabo,Mokoena,1985-03-15,male\n"
	res, err := im.Import(context.Background(), []byte(csv), "patients.csv", "user-1")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Success != 0 || len(res.Errors) != 1 {
		t.Fatalf("got %+v, want one failed row", res)
	}
	msg := res.Errors[0].Error
	if !strings.Contains(msg, "boom") || !strings.Contains(msg, "TB-2024-000001") {
		t.Errorf("error %q should name the patient id and cause", msg)
	}
}

func TestImport_ConflictIsRowError(t *testing.T) {
	store := newMemStore()
	store.failCreate["TB-2024-000001"] = ErrConflict
	im := newTestImporter(store)

	csv := "first_name,last_name,date_of_birth,gender\nThabo,Mokoena,1985-03-15,male\n"
	res, err := im.Import(context.Background(), []byte(csv), "patients.csv", "user-1")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(res.Errors) != 1 || MapError(errors.New(res.Errors[0].Error)).Code != "DB001" {
		t.Errorf("errors = %+v, want one duplicate key failure", res.Errors)
	}
}

// interleavedStore inserts one patient from another writer just before the
// importer's first create, as a concurrent batch would.
type interleavedStore struct {
	*memStore
	once sync.Once
}

func (s *interleavedStore) CreatePatient(ctx context.Context, rec PatientRecord) (*Patient, error) {
	s.once.Do(func() {
		other := rec
		other.FirstName = "Other"
		if _, err := s.memStore.CreatePatient(ctx, other); err != nil {
			panic(err)
		}
	})
	return s.memStore.CreatePatient(ctx, rec)
}

func TestImport_ConcurrentInsertFailsOnlyOneRow(t *testing.T) {
	store := newMemStore()
	racing := &interleavedStore{memStore: store}
	im := NewImporter(racing, NewCountAllocator(store, fixedClock), store)

	csv := `first_name,last_name,date_of_birth,gender
Thabo,Mokoena,1985-03-15,male
Lerato,Dlamini,1990-07-22,female
Sipho,Nkosi,1978-11-02,male
Naledi,Khumalo,1992-01-30,female
`
	res, err := im.Import(context.Background(), []byte(csv), "patients.csv", "user-1")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Total != 4 || res.Success != 3 {
		t.Fatalf("got total=%d success=%d, want 4/3", res.Total, res.Success)
	}
	if len(res.Errors) != 1 || res.Errors[0].Row != 1 {
		t.Fatalf("errors = %+v, want only row 1 to fail", res.Errors)
	}

	var ids []string
	for _, p := range store.patients {
		ids = append(ids, p.PatientID)
	}
	want := []string{"TB-2024-000001", "TB-2024-000002", "TB-2024-000003", "TB-2024-000004"}
	if strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Errorf("ids = %v, want %v", ids, want)
	}
}

func TestImport_CountFailureAbortsBatch(t *testing.T) {
	store := newMemStore()
	store.countErr = errBoom
	im := newTestImporter(store)

	_, err := im.Import(context.Background(), []byte(threeRowCSV), "patients.csv", "user-1")
	var pe *PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *PersistenceError", err)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("err = %v, want wrapped boom", err)
	}
}

func TestImport_AuditFailureDoesNotFailImport(t *testing.T) {
	store := newMemStore()
	store.auditErr = errBoom
	im := newTestImporter(store)

	res, err := im.Import(context.Background(), []byte(threeRowCSV), "patients.csv", "user-1")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Success != 2 {
		t.Errorf("Success = %d, want 2", res.Success)
	}
}

func TestImport_WritesSummaryAudit(t *testing.T) {
	store := newMemStore()
	im := newTestImporter(store)

	ctx := ContextWithRequestMetadata(context.Background(), "10.0.0.1", "curl/8.0")
	res, err := im.Import(ctx, []byte(threeRowCSV), "patients.csv", "user-1")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	entries := store.auditsFor(ActionImport)
	if len(entries) != 1 {
		t.Fatalf("got %d import audits, want 1", len(entries))
	}
	e := entries[0]
	if e.ResourceID != res.BatchID || e.UserID != "user-1" || e.IPAddress != "10.0.0.1" {
		t.Errorf("audit entry = %+v", e)
	}
	body := string(e.NewValues)
	for _, want := range []string{`"failureCount":1`, `"success":2`, `"fileName":"patients.csv"`} {
		if !strings.Contains(body, want) {
			t.Errorf("audit values %s missing %s", body, want)
		}
	}
}

func TestImport_RunsToCompletionAfterCancel(t *testing.T) {
	store := newMemStore()
	im := newTestImporter(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := im.Import(ctx, []byte(threeRowCSV), "patients.csv", "user-1")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Success != 2 {
		t.Errorf("Success = %d, want 2", res.Success)
	}
}
