package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const listIntegrations = `SELECT id, system_name, status, last_sync, next_sync, error_message, synced_records
FROM system_integrations ORDER BY system_name`

func (q *Queries) ListIntegrations(ctx context.Context) ([]SystemIntegration, error) {
	rows, err := q.db.Query(ctx, listIntegrations)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []SystemIntegration{}
	for rows.Next() {
		var i SystemIntegration
		if err := rows.Scan(&i.ID, &i.SystemName, &i.Status, &i.LastSync, &i.NextSync,
			&i.ErrorMessage, &i.SyncedRecords); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const qualityIssueColumns = `id, patient_id, issue_type, severity, description, field, suggested_action,
	is_resolved, resolved_by, resolved_at, created_at`

func scanQualityIssue(row pgx.Row) (DataQualityIssue, error) {
	var d DataQualityIssue
	err := row.Scan(&d.ID, &d.PatientID, &d.IssueType, &d.Severity, &d.Description, &d.Field,
		&d.SuggestedAction, &d.IsResolved, &d.ResolvedBy, &d.ResolvedAt, &d.CreatedAt)
	return d, err
}

type QualityIssueQuery struct {
	Severity string
	Resolved *bool
	Limit    int
	Offset   int
}

func (qq QualityIssueQuery) where() *WhereBuilder {
	wb := NewWhereBuilder()
	wb.Add("severity", qq.Severity)
	if qq.Resolved != nil {
		wb.Add("is_resolved", *qq.Resolved)
	}
	return wb
}

// ListQualityIssues returns one page of issues, newest first, and the total
// number of matches.
func (q *Queries) ListQualityIssues(ctx context.Context, qq QualityIssueQuery) ([]DataQualityIssue, int64, error) {
	wb := qq.where()
	whereClause, args := wb.Build()

	var total int64
	if err := q.db.QueryRow(ctx, "SELECT COUNT(*) FROM data_quality_issues"+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	idx := wb.NextArgIndex()
	query := fmt.Sprintf("SELECT %s FROM data_quality_issues%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		qualityIssueColumns, whereClause, idx, idx+1)
	rows, err := q.db.Query(ctx, query, append(args, qq.Limit, qq.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []DataQualityIssue{}
	for rows.Next() {
		d, err := scanQualityIssue(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

const resolveQualityIssue = `UPDATE data_quality_issues
SET is_resolved = true, resolved_by = $2, resolved_at = now()
WHERE id = $1
RETURNING ` + qualityIssueColumns

func (q *Queries) ResolveQualityIssue(ctx context.Context, id pgtype.UUID, resolvedBy pgtype.Text) (DataQualityIssue, error) {
	return scanQualityIssue(q.db.QueryRow(ctx, resolveQualityIssue, id, resolvedBy))
}

const countQualityIssues = `SELECT COUNT(*), COUNT(*) FILTER (WHERE is_resolved) FROM data_quality_issues`

func (q *Queries) CountQualityIssues(ctx context.Context) (total, resolved int64, err error) {
	err = q.db.QueryRow(ctx, countQualityIssues).Scan(&total, &resolved)
	return total, resolved, err
}
