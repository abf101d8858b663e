package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

func TestTranslateError(t *testing.T) {
	if translateError(nil) != nil {
		t.Error("nil should stay nil")
	}
	if !errors.Is(translateError(fmt.Errorf("scan: %w", pgx.ErrNoRows)), ErrNotFound) {
		t.Error("ErrNoRows should map to ErrNotFound")
	}

	dup := &pgconn.PgError{Code: "23505", ConstraintName: "patients_patient_id_key"}
	err := translateError(dup)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("unique violation = %v, want ErrConflict", err)
	}
	if MapError(err).Code != "DB001" {
		t.Errorf("code = %s, want DB001", MapError(err).Code)
	}

	other := &pgconn.PgError{Code: "23503"}
	if !errors.Is(translateError(other), other) {
		t.Error("other driver errors should pass through")
	}
}

func TestParseIPAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"10.0.0.7", "10.0.0.7"},
		{"10.0.0.7:53211", "10.0.0.7"},
		{"[::1]:8080", "::1"},
		{"not-an-ip", ""},
	}
	for _, tt := range tests {
		got := parseIPAddress(tt.in)
		if tt.want == "" {
			if got != nil {
				t.Errorf("parseIPAddress(%q) = %v, want nil", tt.in, got)
			}
			continue
		}
		if got == nil || got.String() != tt.want {
			t.Errorf("parseIPAddress(%q) = %v, want %s", tt.in, got, tt.want)
		}
	}
}

func TestPgConversions(t *testing.T) {
	if ToPgText("").Valid || !ToPgText("x").Valid {
		t.Error("ToPgText should map empty to NULL")
	}

	id := uuid.New()
	if FromPgUUID(ToPgUUID(id)) != id {
		t.Error("uuid round trip failed")
	}
	if ToPgUUID(uuid.Nil).Valid {
		t.Error("nil uuid should be NULL")
	}

	d := NewDate(time.Date(1985, 3, 15, 0, 0, 0, 0, time.UTC))
	if FromPgDate(ToPgDate(d)).String() != "1985-03-15" {
		t.Error("date round trip failed")
	}
	if ToPgDate(Date{}).Valid {
		t.Error("zero date should be NULL")
	}

	if FromPgTimestamptz(pgtype.Timestamptz{}) != nil {
		t.Error("NULL timestamp should be nil")
	}

	f, ok := FromPgNumeric(ToPgNumeric(350.5))
	if !ok || f != 350.5 {
		t.Errorf("numeric round trip = %v, %v", f, ok)
	}
	if _, ok := FromPgNumeric(pgtype.Numeric{}); ok {
		t.Error("NULL numeric should not be ok")
	}
}
