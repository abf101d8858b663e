package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const treatmentColumns = `id, patient_id, treatment_type, regimen, start_date, end_date, status,
	notes, prescribed_by, facility, created_at`

func scanTreatment(row pgx.Row) (Treatment, error) {
	var t Treatment
	err := row.Scan(&t.ID, &t.PatientID, &t.TreatmentType, &t.Regimen, &t.StartDate, &t.EndDate,
		&t.Status, &t.Notes, &t.PrescribedBy, &t.Facility, &t.CreatedAt)
	return t, err
}

const insertTreatment = `INSERT INTO treatments (
	id, patient_id, treatment_type, regimen, start_date, end_date, status, notes, prescribed_by, facility
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + treatmentColumns

type InsertTreatmentParams struct {
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
}

func (q *Queries) InsertTreatment(ctx context.Context, arg InsertTreatmentParams) (Treatment, error) {
	return scanTreatment(q.db.QueryRow(ctx, insertTreatment,
		arg.ID, arg.PatientID, arg.TreatmentType, arg.Regimen, arg.StartDate, arg.EndDate,
		arg.Status, arg.Notes, arg.PrescribedBy, arg.Facility,
	))
}

const listTreatmentsByPatient = `SELECT ` + treatmentColumns + `
FROM treatments WHERE patient_id = $1 ORDER BY start_date DESC, created_at DESC`

func (q *Queries) ListTreatmentsByPatient(ctx context.Context, patientID pgtype.UUID) ([]Treatment, error) {
	rows, err := q.db.Query(ctx, listTreatmentsByPatient, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Treatment{}
	for rows.Next() {
		t, err := scanTreatment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

const labResultColumns = `id, patient_id, test_type, result, numeric_value, reference_range, test_date,
	laboratory, data_source, is_normal, notes, created_at`

func scanLabResult(row pgx.Row) (LabResult, error) {
	var l LabResult
	err := row.Scan(&l.ID, &l.PatientID, &l.TestType, &l.Result, &l.NumericValue, &l.ReferenceRange,
		&l.TestDate, &l.Laboratory, &l.DataSource, &l.IsNormal, &l.Notes, &l.CreatedAt)
	return l, err
}

const insertLabResult = `INSERT INTO lab_results (
	id, patient_id, test_type, result, numeric_value, reference_range, test_date,
	laboratory, data_source, is_normal, notes
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + labResultColumns

type InsertLabResultParams struct {
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
}

func (q *Queries) InsertLabResult(ctx context.Context, arg InsertLabResultParams) (LabResult, error) {
	return scanLabResult(q.db.QueryRow(ctx, insertLabResult,
		arg.ID, arg.PatientID, arg.TestType, arg.Result, arg.NumericValue, arg.ReferenceRange,
		arg.TestDate, arg.Laboratory, arg.DataSource, arg.IsNormal, arg.Notes,
	))
}

const listLabResultsByPatient = `SELECT ` + labResultColumns + `
FROM lab_results WHERE patient_id = $1 ORDER BY test_date DESC, created_at DESC`

func (q *Queries) ListLabResultsByPatient(ctx context.Context, patientID pgtype.UUID) ([]LabResult, error) {
	rows, err := q.db.Query(ctx, listLabResultsByPatient, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []LabResult{}
	for rows.Next() {
		l, err := scanLabResult(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}
