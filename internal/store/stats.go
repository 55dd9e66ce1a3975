package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/assaytrack/apiserver/types"
)

// StatsRepository runs the read-only aggregation queries behind dashboards.
// All scoped queries take a clientID; zero means unscoped.
type StatsRepository struct {
	db *sql.DB
}

func NewStatsRepository(db *sql.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// Ping checks database reachability for the health flag.
func (r *StatsRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *StatsRepository) CountByStatus(ctx context.Context, clientID int) (map[types.SampleStatus]int, error) {
	const query = `
		SELECT status, COUNT(1)
		FROM samples
		WHERE ($1 = 0 OR client_id = $1)
		GROUP BY status`
	rows, err := r.db.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, mapUpstream(err, "sample stats")
	}
	defer rows.Close()

	counts := make(map[types.SampleStatus]int)
	for rows.Next() {
		var status types.SampleStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, mapUpstream(err, "sample stats")
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, mapUpstream(err, "sample stats")
	}
	return counts, nil
}

func (r *StatsRepository) CountByMineral(ctx context.Context, clientID int) (map[types.Mineral]int, error) {
	const query = `
		SELECT mineral, COUNT(1)
		FROM samples
		WHERE ($1 = 0 OR client_id = $1)
		GROUP BY mineral`
	rows, err := r.db.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, mapUpstream(err, "sample stats")
	}
	defer rows.Close()

	counts := make(map[types.Mineral]int)
	for rows.Next() {
		var mineral types.Mineral
		var n int
		if err := rows.Scan(&mineral, &n); err != nil {
			return nil, mapUpstream(err, "sample stats")
		}
		counts[mineral] = n
	}
	if err := rows.Err(); err != nil {
		return nil, mapUpstream(err, "sample stats")
	}
	return counts, nil
}

// MonthlySampleCounts buckets samples received since the given time by
// calendar month, keyed "2006-01".
func (r *StatsRepository) MonthlySampleCounts(ctx context.Context, clientID int, since time.Time) (map[string]int, error) {
	const query = `
		SELECT to_char(date_trunc('month', received_at), 'YYYY-MM'), COUNT(1)
		FROM samples
		WHERE received_at >= $2 AND ($1 = 0 OR client_id = $1)
		GROUP BY 1`
	return r.monthlyCounts(ctx, query, clientID, since)
}

// MonthlyReportCounts buckets reports issued since the given time by
// calendar month, keyed "2006-01".
func (r *StatsRepository) MonthlyReportCounts(ctx context.Context, clientID int, since time.Time) (map[string]int, error) {
	const query = `
		SELECT to_char(date_trunc('month', r.issued_at), 'YYYY-MM'), COUNT(1)
		FROM reports r
		JOIN samples s ON s.id = r.sample_id
		WHERE r.issued_at >= $2 AND ($1 = 0 OR s.client_id = $1)
		GROUP BY 1`
	return r.monthlyCounts(ctx, query, clientID, since)
}

func (r *StatsRepository) monthlyCounts(ctx context.Context, query string, clientID int, since time.Time) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, query, clientID, since)
	if err != nil {
		return nil, mapUpstream(err, "monthly stats")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var month string
		var n int
		if err := rows.Scan(&month, &n); err != nil {
			return nil, mapUpstream(err, "monthly stats")
		}
		counts[month] = n
	}
	if err := rows.Err(); err != nil {
		return nil, mapUpstream(err, "monthly stats")
	}
	return counts, nil
}

// AvgProcessingSeconds returns the mean of (completed_at - received_at)
// across reported samples, in seconds. ok is false when none exist.
func (r *StatsRepository) AvgProcessingSeconds(ctx context.Context, clientID int) (float64, bool, error) {
	const query = `
		SELECT AVG(EXTRACT(EPOCH FROM (completed_at - received_at)))
		FROM samples
		WHERE status = $2 AND completed_at IS NOT NULL AND ($1 = 0 OR client_id = $1)`
	var avg sql.NullFloat64
	if err := r.db.QueryRowContext(ctx, query, clientID, types.StatusReported).Scan(&avg); err != nil {
		return 0, false, mapUpstream(err, "processing stats")
	}
	if !avg.Valid {
		return 0, false, nil
	}
	return avg.Float64, true, nil
}

func (r *StatsRepository) CountUsersByRole(ctx context.Context) (map[types.Role]int, error) {
	const query = `
		SELECT role, COUNT(1)
		FROM users
		GROUP BY role`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, mapUpstream(err, "user stats")
	}
	defer rows.Close()

	counts := make(map[types.Role]int)
	for rows.Next() {
		var role types.Role
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, mapUpstream(err, "user stats")
		}
		counts[role] = n
	}
	if err := rows.Err(); err != nil {
		return nil, mapUpstream(err, "user stats")
	}
	return counts, nil
}

// CountPending counts samples still in the pipeline.
func (r *StatsRepository) CountPending(ctx context.Context) (int, error) {
	const query = `
		SELECT COUNT(1) FROM samples
		WHERE status NOT IN ($1, $2)`
	var n int
	if err := r.db.QueryRowContext(ctx, query, types.StatusReported, types.StatusCancelled).Scan(&n); err != nil {
		return 0, mapUpstream(err, "sample stats")
	}
	return n, nil
}

// CountOverdue counts samples whose due date passed without a report.
func (r *StatsRepository) CountOverdue(ctx context.Context, now time.Time) (int, error) {
	const query = `
		SELECT COUNT(1) FROM samples
		WHERE due_date IS NOT NULL AND due_date < $1 AND status <> $2`
	var n int
	if err := r.db.QueryRowContext(ctx, query, now, types.StatusReported).Scan(&n); err != nil {
		return 0, mapUpstream(err, "sample stats")
	}
	return n, nil
}
