package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/assaytrack/apiserver/internal/apperr"
	"github.com/assaytrack/apiserver/types"
)

// SampleRepository handles persistence for samples and their timeline.
type SampleRepository struct {
	db *sql.DB
}

func NewSampleRepository(db *sql.DB) *SampleRepository {
	return &SampleRepository{db: db}
}

const sampleColumns = `id, code, mineral, site_name, status, grade, unit, mass, notes, priority, client_id, analyst_id, received_at, due_date, completed_at, created_at, updated_at`

func scanSample(row interface{ Scan(...any) error }) (types.Sample, error) {
	var s types.Sample
	err := row.Scan(
		&s.ID,
		&s.Code,
		&s.Mineral,
		&s.SiteName,
		&s.Status,
		&s.Grade,
		&s.Unit,
		&s.Mass,
		&s.Notes,
		&s.Priority,
		&s.ClientID,
		&s.AnalystID,
		&s.ReceivedAt,
		&s.DueDate,
		&s.CompletedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	return s, err
}

// NextCode computes the next tracking code for the given prefix and year.
// The result is only a candidate: the unique index on samples.code is the
// actual guarantee, and callers retry on conflict.
func (r *SampleRepository) NextCode(ctx context.Context, prefix string, year int) (string, error) {
	yearPrefix := fmt.Sprintf("%s-%02d", prefix, year%100)

	const query = `
		SELECT code FROM samples
		WHERE code LIKE $1
		ORDER BY code DESC
		LIMIT 1`
	var last string
	err := r.db.QueryRowContext(ctx, query, yearPrefix+"%").Scan(&last)
	seq := 1
	switch {
	case err == nil:
		tail := strings.TrimPrefix(last, yearPrefix)
		n, convErr := strconv.Atoi(tail)
		if convErr != nil {
			return "", fmt.Errorf("sample code %q: %v: %w", last, convErr, apperr.ErrUpstream)
		}
		seq = n + 1
	case errors.Is(err, sql.ErrNoRows):
		// first sample of the year
	default:
		return "", mapUpstream(err, "sample code")
	}

	return fmt.Sprintf("%s%04d", yearPrefix, seq), nil
}

// Create inserts the sample and its initial RECEIVED timeline event in one
// transaction. A duplicate code surfaces as a conflict so the caller can
// regenerate and retry.
func (r *SampleRepository) Create(ctx context.Context, sample types.Sample) (types.Sample, error) {
	now := time.Now()
	sample.CreatedAt = now
	sample.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Sample{}, mapUpstream(err, "sample")
	}
	defer tx.Rollback()

	const insertQuery = `
		INSERT INTO samples (code, mineral, site_name, status, grade, unit, mass, notes, priority, client_id, analyst_id, received_at, due_date, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id`
	if err := tx.QueryRowContext(
		ctx,
		insertQuery,
		sample.Code,
		sample.Mineral,
		sample.SiteName,
		sample.Status,
		sample.Grade,
		sample.Unit,
		sample.Mass,
		sample.Notes,
		sample.Priority,
		sample.ClientID,
		sample.AnalystID,
		sample.ReceivedAt,
		sample.DueDate,
		sample.CompletedAt,
		sample.CreatedAt,
		sample.UpdatedAt,
	).Scan(&sample.ID); err != nil {
		return types.Sample{}, mapWriteErr(err, "sample", "sample code already exists")
	}

	const eventQuery = `
		INSERT INTO timeline_events (sample_id, status, notes, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.ExecContext(ctx, eventQuery, sample.ID, types.StatusReceived, "", nil, now); err != nil {
		return types.Sample{}, mapUpstream(err, "timeline event")
	}

	if err := tx.Commit(); err != nil {
		return types.Sample{}, mapWriteErr(err, "sample", "sample code already exists")
	}
	return sample, nil
}

func (r *SampleRepository) GetByID(ctx context.Context, id int) (types.Sample, error) {
	const query = `
		SELECT ` + sampleColumns + `
		FROM samples
		WHERE id = $1`
	sample, err := scanSample(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return types.Sample{}, mapNotFound(err, "sample")
	}
	return sample, nil
}

func (r *SampleRepository) GetByCode(ctx context.Context, code string) (types.Sample, error) {
	const query = `
		SELECT ` + sampleColumns + `
		FROM samples
		WHERE code = $1`
	sample, err := scanSample(r.db.QueryRowContext(ctx, query, strings.TrimSpace(code)))
	if err != nil {
		return types.Sample{}, mapNotFound(err, "sample")
	}
	return sample, nil
}

// Update writes the full sample row and, when event is non-nil, the
// accompanying timeline entry in the same transaction.
func (r *SampleRepository) Update(ctx context.Context, sample types.Sample, event *types.TimelineEvent) (types.Sample, error) {
	sample.UpdatedAt = time.Now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Sample{}, mapUpstream(err, "sample")
	}
	defer tx.Rollback()

	const query = `
		UPDATE samples
		SET mineral = $1,
			site_name = $2,
			status = $3,
			grade = $4,
			unit = $5,
			mass = $6,
			notes = $7,
			priority = $8,
			analyst_id = $9,
			due_date = $10,
			completed_at = $11,
			updated_at = $12
		WHERE id = $13`
	result, err := tx.ExecContext(
		ctx,
		query,
		sample.Mineral,
		sample.SiteName,
		sample.Status,
		sample.Grade,
		sample.Unit,
		sample.Mass,
		sample.Notes,
		sample.Priority,
		sample.AnalystID,
		sample.DueDate,
		sample.CompletedAt,
		sample.UpdatedAt,
		sample.ID,
	)
	if err != nil {
		return types.Sample{}, mapUpstream(err, "sample")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Sample{}, mapUpstream(err, "sample")
	}
	if affected == 0 {
		return types.Sample{}, apperr.NotFound("sample")
	}

	if event != nil {
		if err := insertEvent(ctx, tx, event); err != nil {
			return types.Sample{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return types.Sample{}, mapUpstream(err, "sample")
	}
	return sample, nil
}

// AppendEvent writes a timeline entry outside of any sample mutation.
func (r *SampleRepository) AppendEvent(ctx context.Context, event *types.TimelineEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return mapUpstream(err, "timeline event")
	}
	defer tx.Rollback()

	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapUpstream(err, "timeline event")
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, event *types.TimelineEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	const query = `
		INSERT INTO timeline_events (sample_id, status, notes, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if err := tx.QueryRowContext(
		ctx,
		query,
		event.SampleID,
		event.Status,
		event.Notes,
		event.ActorID,
		event.CreatedAt,
	).Scan(&event.ID); err != nil {
		return mapUpstream(err, "timeline event")
	}
	return nil
}

// ListEvents returns a sample's timeline ordered oldest first.
func (r *SampleRepository) ListEvents(ctx context.Context, sampleID int) ([]types.TimelineEvent, error) {
	const query = `
		SELECT id, sample_id, status, notes, actor_id, created_at
		FROM timeline_events
		WHERE sample_id = $1
		ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, sampleID)
	if err != nil {
		return nil, mapUpstream(err, "timeline events")
	}
	defer rows.Close()

	var events []types.TimelineEvent
	for rows.Next() {
		var e types.TimelineEvent
		if err := rows.Scan(&e.ID, &e.SampleID, &e.Status, &e.Notes, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, mapUpstream(err, "timeline events")
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapUpstream(err, "timeline events")
	}
	return events, nil
}

// SampleFilter narrows List results. Zero values mean "no filter".
type SampleFilter struct {
	ClientID  int
	AnalystID int
	Status    types.SampleStatus
	Mineral   types.Mineral
	Search    string
}

func (r *SampleRepository) List(ctx context.Context, filter SampleFilter, offset, limit int) ([]types.Sample, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	where, args := buildSampleWhere(filter)

	var total int
	countQuery := `SELECT COUNT(1) FROM samples` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, mapUpstream(err, "samples")
	}

	listQuery := `SELECT ` + sampleColumns + ` FROM samples` + where +
		fmt.Sprintf(` ORDER BY received_at DESC, id DESC OFFSET $%d LIMIT $%d`, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, listQuery, append(args, offset, limit)...)
	if err != nil {
		return nil, 0, mapUpstream(err, "samples")
	}
	defer rows.Close()

	samples := make([]types.Sample, 0, limit)
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, 0, mapUpstream(err, "samples")
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapUpstream(err, "samples")
	}

	return samples, total, nil
}

func buildSampleWhere(filter SampleFilter) (string, []any) {
	var clauses []string
	var args []any

	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.ClientID > 0 {
		add("client_id = $%d", filter.ClientID)
	}
	if filter.AnalystID > 0 {
		add("analyst_id = $%d", filter.AnalystID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.Mineral != "" {
		add("mineral = $%d", filter.Mineral)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf("(code ILIKE $%d OR site_name ILIKE $%d)", n, n))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
