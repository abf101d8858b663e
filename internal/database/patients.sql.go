package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const patientColumns = `id, patient_id, first_name, last_name, date_of_birth, gender, phone_number,
	address, province, district, facility, tb_status, hiv_status, data_source,
	registration_date, last_updated, created_by, is_active`

func scanPatient(row pgx.Row) (Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.PatientID, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender, &p.PhoneNumber,
		&p.Address, &p.Province, &p.District, &p.Facility, &p.TbStatus, &p.HivStatus, &p.DataSource,
		&p.RegistrationDate, &p.LastUpdated, &p.CreatedBy, &p.IsActive,
	)
	return p, err
}

const insertPatient = `INSERT INTO patients (
	patient_id, first_name, last_name, date_of_birth, gender, phone_number,
	address, province, district, facility, tb_status, hiv_status, data_source, created_by
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING ` + patientColumns

type InsertPatientParams struct {
	PatientID   string
	FirstName   string
	LastName    string
	DateOfBirth pgtype.Date
	Gender      string
	PhoneNumber pgtype.Text
	Address     pgtype.Text
	Province    pgtype.Text
	District    pgtype.Text
	Facility    pgtype.Text
	TbStatus    string
	HivStatus   string
	DataSource  string
	CreatedBy   pgtype.Text
}

func (q *Queries) InsertPatient(ctx context.Context, arg InsertPatientParams) (Patient, error) {
	return scanPatient(q.db.QueryRow(ctx, insertPatient,
		arg.PatientID, arg.FirstName, arg.LastName, arg.DateOfBirth, arg.Gender, arg.PhoneNumber,
		arg.Address, arg.Province, arg.District, arg.Facility, arg.TbStatus, arg.HivStatus,
		arg.DataSource, arg.CreatedBy,
	))
}

const getActivePatient = `SELECT ` + patientColumns + ` FROM patients WHERE id = $1 AND is_active`

func (q *Queries) GetActivePatient(ctx context.Context, id pgtype.UUID) (Patient, error) {
	return scanPatient(q.db.QueryRow(ctx, getActivePatient, id))
}

const updatePatient = `UPDATE patients SET
	first_name = $2, last_name = $3, date_of_birth = $4, gender = $5, phone_number = $6,
	address = $7, province = $8, district = $9, facility = $10, tb_status = $11, hiv_status = $12,
	last_updated = now()
WHERE id = $1 AND is_active
RETURNING ` + patientColumns

type UpdatePatientParams struct {
	ID          pgtype.UUID
	FirstName   string
	LastName    string
	DateOfBirth pgtype.Date
	Gender      string
	PhoneNumber pgtype.Text
	Address     pgtype.Text
	Province    pgtype.Text
	District    pgtype.Text
	Facility    pgtype.Text
	TbStatus    string
	HivStatus   string
}

func (q *Queries) UpdatePatient(ctx context.Context, arg UpdatePatientParams) (Patient, error) {
	return scanPatient(q.db.QueryRow(ctx, updatePatient,
		arg.ID, arg.FirstName, arg.LastName, arg.DateOfBirth, arg.Gender, arg.PhoneNumber,
		arg.Address, arg.Province, arg.District, arg.Facility, arg.TbStatus, arg.HivStatus,
	))
}

const deactivatePatient = `UPDATE patients SET is_active = false, last_updated = now()
WHERE id = $1 AND is_active`

// DeactivatePatient returns the number of rows changed.
func (q *Queries) DeactivatePatient(ctx context.Context, id pgtype.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, deactivatePatient, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PatientSearchColumns are matched by the free-text patient search.
var PatientSearchColumns = []string{"first_name", "last_name", "patient_id"}

type PatientQuery struct {
	Search          string
	TbStatus        string
	HivStatus       string
	IncludeInactive bool
	Limit           int // <= 0 returns every match
	Offset          int
}

func (pq PatientQuery) where() *WhereBuilder {
	wb := NewWhereBuilder()
	if !pq.IncludeInactive {
		wb.AddRaw("is_active")
	}
	wb.Add("tb_status", pq.TbStatus)
	wb.Add("hiv_status", pq.HivStatus)
	wb.AddSearch(pq.Search, PatientSearchColumns...)
	return wb
}

// ListPatients returns matches, most recently updated first.
func (q *Queries) ListPatients(ctx context.Context, pq PatientQuery) ([]Patient, error) {
	wb := pq.where()
	whereClause, args := wb.Build()

	query := "SELECT " + patientColumns + " FROM patients" + whereClause + " ORDER BY last_updated DESC, patient_id"
	if pq.Limit > 0 {
		idx := wb.NextArgIndex()
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", idx, idx+1)
		args = append(args, pq.Limit, pq.Offset)
	}

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (q *Queries) CountPatients(ctx context.Context, pq PatientQuery) (int64, error) {
	whereClause, args := pq.where().Build()
	var n int64
	err := q.db.QueryRow(ctx, "SELECT COUNT(*) FROM patients"+whereClause, args...).Scan(&n)
	return n, err
}
