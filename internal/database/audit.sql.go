package database

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const auditLogColumns = `id, user_id, action, resource_type, resource_id, old_values, new_values,
	ip_address, user_agent, created_at`

const insertAuditLog = `INSERT INTO audit_logs (
	user_id, action, resource_type, resource_id, old_values, new_values, ip_address, user_agent
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

type InsertAuditLogParams struct {
	UserID       pgtype.Text
	Action       string
	ResourceType string
	ResourceID   pgtype.Text
	OldValues    []byte
	NewValues    []byte
	IpAddress    *netip.Addr
	UserAgent    pgtype.Text
}

func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) error {
	_, err := q.db.Exec(ctx, insertAuditLog,
		arg.UserID, arg.Action, arg.ResourceType, arg.ResourceID,
		arg.OldValues, arg.NewValues, arg.IpAddress, arg.UserAgent,
	)
	return err
}

type AuditLogQuery struct {
	ResourceType string
	Action       string
	UserID       string
	Since        time.Time
	Until        time.Time
	Limit        int
	Offset       int
}

// ListAuditLogs returns one page of entries, newest first, and the total
// number of matches.
func (q *Queries) ListAuditLogs(ctx context.Context, aq AuditLogQuery) ([]AuditLog, int64, error) {
	wb := NewWhereBuilder()
	wb.Add("resource_type", aq.ResourceType)
	wb.Add("action", aq.Action)
	wb.Add("user_id", aq.UserID)
	wb.AddTimestampRange("created_at", aq.Since, aq.Until)
	whereClause, args := wb.Build()

	var total int64
	if err := q.db.QueryRow(ctx, "SELECT COUNT(*) FROM audit_logs"+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}

	idx := wb.NextArgIndex()
	query := fmt.Sprintf("SELECT %s FROM audit_logs%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		auditLogColumns, whereClause, idx, idx+1)
	rows, err := q.db.Query(ctx, query, append(args, aq.Limit, aq.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	items := []AuditLog{}
	for rows.Next() {
		var a AuditLog
		if err := rows.Scan(&a.ID, &a.UserID, &a.Action, &a.ResourceType, &a.ResourceID,
			&a.OldValues, &a.NewValues, &a.IpAddress, &a.UserAgent, &a.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

const purgeAuditLogs = `DELETE FROM audit_logs WHERE created_at < $1`

func (q *Queries) PurgeAuditLogs(ctx context.Context, before time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, purgeAuditLogs, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
