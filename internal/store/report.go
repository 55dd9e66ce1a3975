package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/assaytrack/apiserver/internal/apperr"
	"github.com/assaytrack/apiserver/types"
)

// ReportRepository handles persistence for certification reports.
type ReportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// CreateIssued persists the report and flips its sample to REPORTED in a
// single transaction: report insert, sample update (status, grade,
// completed_at), and the timeline event all commit or roll back together.
// The unique index on reports.sample_id makes issuance exactly-once even
// under concurrent calls.
func (r *ReportRepository) CreateIssued(ctx context.Context, report types.Report, eventNotes string) (types.Report, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Report{}, mapUpstream(err, "report")
	}
	defer tx.Rollback()

	const insertQuery = `
		INSERT INTO reports (code, sample_id, grade, unit, certified, hash, qr_code, notes, issued_by, issued_at, valid_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`
	if err := tx.QueryRowContext(
		ctx,
		insertQuery,
		report.Code,
		report.SampleID,
		report.Grade,
		report.Unit,
		report.Certified,
		report.Hash,
		report.QRCode,
		report.Notes,
		report.IssuedBy,
		report.IssuedAt,
		report.ValidUntil,
	).Scan(&report.ID); err != nil {
		return types.Report{}, mapWriteErr(err, "report", "report already exists for this sample")
	}

	const sampleQuery = `
		UPDATE samples
		SET status = $1,
			grade = $2,
			completed_at = $3,
			updated_at = $3
		WHERE id = $4`
	if _, err := tx.ExecContext(ctx, sampleQuery, types.StatusReported, report.Grade, report.IssuedAt, report.SampleID); err != nil {
		return types.Report{}, mapUpstream(err, "sample")
	}

	const eventQuery = `
		INSERT INTO timeline_events (sample_id, status, notes, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.ExecContext(ctx, eventQuery, report.SampleID, types.StatusReported, eventNotes, report.IssuedBy, report.IssuedAt); err != nil {
		return types.Report{}, mapUpstream(err, "timeline event")
	}

	if err := tx.Commit(); err != nil {
		return types.Report{}, mapWriteErr(err, "report", "report already exists for this sample")
	}
	return report, nil
}

// ExistsForSample reports whether a sample already has a report.
func (r *ReportRepository) ExistsForSample(ctx context.Context, sampleID int) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM reports WHERE sample_id = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, sampleID).Scan(&exists); err != nil {
		return false, mapUpstream(err, "report")
	}
	return exists, nil
}

const reportViewColumns = `
		r.id, r.code, r.sample_id, r.grade, r.unit, r.certified, r.hash, r.qr_code, r.notes, r.issued_by, r.issued_at, r.valid_until,
		s.code, s.mineral, s.site_name, s.client_id,
		u.name, u.email, u.company`

func scanReportView(row interface{ Scan(...any) error }) (types.ReportView, int, error) {
	var view types.ReportView
	var clientID int
	err := row.Scan(
		&view.ID,
		&view.Report.Code,
		&view.SampleID,
		&view.Grade,
		&view.Unit,
		&view.Certified,
		&view.Hash,
		&view.QRCode,
		&view.Report.Notes,
		&view.IssuedBy,
		&view.IssuedAt,
		&view.ValidUntil,
		&view.SampleCode,
		&view.Mineral,
		&view.SiteName,
		&clientID,
		&view.ClientName,
		&view.ClientEmail,
		&view.ClientCompany,
	)
	return view, clientID, err
}

// GetViewByID loads a report joined with its sample and owning client.
// The second return value is the owning client id for policy checks.
func (r *ReportRepository) GetViewByID(ctx context.Context, id int) (types.ReportView, int, error) {
	const query = `
		SELECT ` + reportViewColumns + `
		FROM reports r
		JOIN samples s ON s.id = r.sample_id
		JOIN users u ON u.id = s.client_id
		WHERE r.id = $1`
	view, clientID, err := scanReportView(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return types.ReportView{}, 0, mapNotFound(err, "report")
	}
	return view, clientID, nil
}

// GetViewByCode is GetViewByID keyed by report code.
func (r *ReportRepository) GetViewByCode(ctx context.Context, code string) (types.ReportView, int, error) {
	const query = `
		SELECT ` + reportViewColumns + `
		FROM reports r
		JOIN samples s ON s.id = r.sample_id
		JOIN users u ON u.id = s.client_id
		WHERE r.code = $1`
	view, clientID, err := scanReportView(r.db.QueryRowContext(ctx, query, strings.TrimSpace(code)))
	if err != nil {
		return types.ReportView{}, 0, mapNotFound(err, "report")
	}
	return view, clientID, nil
}

// UpdateCertified overwrites the certified flag, the one mutable report
// field after issuance.
func (r *ReportRepository) UpdateCertified(ctx context.Context, id int, certified bool) error {
	const query = `UPDATE reports SET certified = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, certified, id)
	if err != nil {
		return mapUpstream(err, "report")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return mapUpstream(err, "report")
	}
	if affected == 0 {
		return apperr.NotFound("report")
	}
	return nil
}

// List returns reports newest first, optionally scoped to one client.
func (r *ReportRepository) List(ctx context.Context, clientID, offset, limit int) ([]types.ReportView, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	where := ""
	args := []any{}
	if clientID > 0 {
		where = ` WHERE s.client_id = $1`
		args = append(args, clientID)
	}

	countQuery := `SELECT COUNT(1) FROM reports r JOIN samples s ON s.id = r.sample_id` + where
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, mapUpstream(err, "reports")
	}

	listQuery := `
		SELECT ` + reportViewColumns + `
		FROM reports r
		JOIN samples s ON s.id = r.sample_id
		JOIN users u ON u.id = s.client_id` + where + `
		ORDER BY r.issued_at DESC, r.id DESC`
	listQuery += offsetLimitClause(len(args))
	rows, err := r.db.QueryContext(ctx, listQuery, append(args, offset, limit)...)
	if err != nil {
		return nil, 0, mapUpstream(err, "reports")
	}
	defer rows.Close()

	views := make([]types.ReportView, 0, limit)
	for rows.Next() {
		view, _, err := scanReportView(rows)
		if err != nil {
			return nil, 0, mapUpstream(err, "reports")
		}
		views = append(views, view)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapUpstream(err, "reports")
	}

	return views, total, nil
}

func offsetLimitClause(argCount int) string {
	return fmt.Sprintf(" OFFSET $%d LIMIT $%d", argCount+1, argCount+2)
}
