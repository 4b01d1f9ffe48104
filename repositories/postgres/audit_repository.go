package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/helpdesk/ticket-gateway/models"
	"github.com/helpdesk/ticket-gateway/repositories"
	"go.uber.org/zap"
)

const auditColumns = `id, user_id, action, resource_type, resource_id,
		       details, ip_address, user_agent, request_id, status_code, timestamp`

// AuditRepository stores the audit trail in audit_logs
type AuditRepository struct {
	db     *DB
	tx     *Transaction
	logger *zap.Logger
}

func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	query := `INSERT INTO audit_logs (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	executor := boundExecutor(ctx, r.db, r.tx)
	_, err := executor.ExecContext(ctx, query,
		log.ID,
		log.UserID,
		log.Action,
		log.ResourceType,
		nullString(log.ResourceID),
		nullJSON(log.Details),
		log.IPAddress,
		log.UserAgent,
		log.RequestID,
		log.StatusCode,
		log.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to insert audit log %s: %w", log.ID, err)
	}
	r.logger.Debug("audit entry stored",
		zap.Stringer("id", log.ID),
		zap.String("action", string(log.Action)))
	return nil
}

func (r *AuditRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_logs WHERE id = $1`

	executor := boundExecutor(ctx, r.db, r.tx)
	log, err := scanAuditLog(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("audit log not found: %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get audit log: %w", err)
	}

	return log, nil
}

// List returns entries matching filter, newest first
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]*models.AuditLog, error) {
	where, args := auditWhere(filter)
	limit, offset := filter.Page()
	args = append(args, limit, offset)

	query := fmt.Sprintf(`SELECT %s FROM audit_logs%s ORDER BY timestamp DESC LIMIT $%d OFFSET $%d`,
		auditColumns, where, len(args)-1, len(args))
	return r.queryAuditLogs(ctx, query, args...)
}

// auditWhere renders the filter as a WHERE clause with positional args
func auditWhere(f models.AuditFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(column, op string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s %s $%d", column, op, len(args)))
	}

	if f.UserID != nil {
		add("user_id", "=", *f.UserID)
	}
	if f.Action != "" {
		add("action", "=", string(f.Action))
	}
	if f.RequestID != "" {
		add("request_id", "=", f.RequestID)
	}
	if !f.From.IsZero() {
		add("timestamp", ">=", f.From)
	}
	if !f.To.IsZero() {
		add("timestamp", "<", f.To)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// WithTx returns a copy of the repository that runs every statement on tx
func (r *AuditRepository) WithTx(tx repositories.Transaction) repositories.AuditRepository {
	return &AuditRepository{
		db:     r.db,
		tx:     asTransaction(tx),
		logger: r.logger,
	}
}

func (r *AuditRepository) queryAuditLogs(ctx context.Context, query string, args ...interface{}) ([]*models.AuditLog, error) {
	executor := boundExecutor(ctx, r.db, r.tx)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.AuditLog, 0)
	for rows.Next() {
		log, err := scanAuditLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit logs: %w", err)
	}
	return logs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuditLog(row rowScanner) (*models.AuditLog, error) {
	log := &models.AuditLog{}
	var userID sql.NullInt64
	var resourceID, ipAddress, userAgent, requestID sql.NullString
	var statusCode sql.NullInt64
	var details []byte

	err := row.Scan(
		&log.ID,
		&userID,
		&log.Action,
		&log.ResourceType,
		&resourceID,
		&details,
		&ipAddress,
		&userAgent,
		&requestID,
		&statusCode,
		&log.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		id := userID.Int64
		log.UserID = &id
	}
	if statusCode.Valid {
		code := int(statusCode.Int64)
		log.StatusCode = &code
	}
	log.ResourceID = resourceID.String
	log.IPAddress = ipAddress.String
	log.UserAgent = userAgent.String
	log.RequestID = requestID.String
	log.Details = details
	return log, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullJSON keeps empty details as SQL NULL rather than an invalid JSONB literal
func nullJSON(data []byte) interface{} {
	if len(data) == 0 {
		return nil
	}
	return data
}
