package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/assaytrack/apiserver/internal/apperr"
	"github.com/assaytrack/apiserver/types"
)

const (
	trendMonths       = 12
	healthyMaxOverdue = 10
	healthyMaxErrors  = 5
)

// StatsRepository defines the aggregation queries behind dashboards.
type StatsRepository interface {
	Ping(ctx context.Context) error
	CountByStatus(ctx context.Context, clientID int) (map[types.SampleStatus]int, error)
	CountByMineral(ctx context.Context, clientID int) (map[types.Mineral]int, error)
	MonthlySampleCounts(ctx context.Context, clientID int, since time.Time) (map[string]int, error)
	MonthlyReportCounts(ctx context.Context, clientID int, since time.Time) (map[string]int, error)
	AvgProcessingSeconds(ctx context.Context, clientID int) (float64, bool, error)
	CountUsersByRole(ctx context.Context) (map[types.Role]int, error)
	CountPending(ctx context.Context) (int, error)
	CountOverdue(ctx context.Context, now time.Time) (int, error)
}

// ErrorTracker reports the number of recently observed server errors.
type ErrorTracker interface {
	Recent() int
}

// StatsService computes read-only rollups on demand. Results are
// point-in-time reads with no caching.
type StatsService struct {
	repo   StatsRepository
	errors ErrorTracker
	now    func() time.Time
}

func NewStatsService(repo StatsRepository, errors ErrorTracker) *StatsService {
	return &StatsService{repo: repo, errors: errors, now: time.Now}
}

// GroupCount is one slice of a grouped rollup.
type GroupCount struct {
	Key     string `json:"key"`
	Count   int    `json:"count"`
	Percent int    `json:"percent"`
}

// TrendPoint is one month of activity. Months with zero activity are
// included.
type TrendPoint struct {
	Month   string `json:"month"`
	Samples int    `json:"samples"`
	Reports int    `json:"reports"`
}

// Overview is the dashboard payload, scoped by the caller's ownership.
type Overview struct {
	Total             int          `json:"total"`
	Active            int          `json:"active"`
	Analyzing         int          `json:"analyzing"`
	Completed         int          `json:"completed"`
	ByStatus          []GroupCount `json:"by_status"`
	ByMineral         []GroupCount `json:"by_mineral"`
	Trend             []TrendPoint `json:"trend"`
	AvgProcessingTime string       `json:"avg_processing_time"`
	GrowthPercent     float64      `json:"growth_percent"`
}

// SystemStats is the privileged operational rollup.
type SystemStats struct {
	UsersByRole map[types.Role]int `json:"users_by_role"`
	Pending     int                `json:"pending"`
	Overdue     int                `json:"overdue"`
	Healthy     bool               `json:"healthy"`
}

// Overview computes the dashboard rollups. Non-privileged callers see
// only their own samples; analysts are scoped like clients here because
// the dashboard is ownership-based.
func (s *StatsService) Overview(ctx context.Context, requester types.Identity) (Overview, error) {
	if requester.Anonymous() {
		return Overview{}, apperr.ErrAuthentication
	}
	clientID := 0
	if !requester.Role.Privileged() {
		clientID = requester.UserID
	}

	byStatus, err := s.repo.CountByStatus(ctx, clientID)
	if err != nil {
		return Overview{}, err
	}
	byMineral, err := s.repo.CountByMineral(ctx, clientID)
	if err != nil {
		return Overview{}, err
	}

	total := 0
	for _, n := range byStatus {
		total += n
	}

	now := s.now()
	since := monthStart(now).AddDate(0, -(trendMonths - 1), 0)
	sampleMonths, err := s.repo.MonthlySampleCounts(ctx, clientID, since)
	if err != nil {
		return Overview{}, err
	}
	reportMonths, err := s.repo.MonthlyReportCounts(ctx, clientID, since)
	if err != nil {
		return Overview{}, err
	}

	trend := make([]TrendPoint, 0, trendMonths)
	for i := 0; i < trendMonths; i++ {
		month := since.AddDate(0, i, 0).Format("2006-01")
		trend = append(trend, TrendPoint{
			Month:   month,
			Samples: sampleMonths[month],
			Reports: reportMonths[month],
		})
	}

	avgSeconds, hasAvg, err := s.repo.AvgProcessingSeconds(ctx, clientID)
	if err != nil {
		return Overview{}, err
	}

	return Overview{
		Total:             total,
		Active:            total - byStatus[types.StatusReported],
		Analyzing:         byStatus[types.StatusAnalyzing],
		Completed:         byStatus[types.StatusReported],
		ByStatus:          statusGroups(byStatus, total),
		ByMineral:         mineralGroups(byMineral, total),
		Trend:             trend,
		AvgProcessingTime: FormatProcessingTime(avgSeconds, hasAvg),
		GrowthPercent:     GrowthPercent(trend),
	}, nil
}

// System computes the privileged operational stats, including the coarse
// health flag: database reachable, overdue backlog small, few recent
// server errors.
func (s *StatsService) System(ctx context.Context, requester types.Identity) (SystemStats, error) {
	if requester.Anonymous() {
		return SystemStats{}, apperr.ErrAuthentication
	}
	if !requester.Role.Privileged() {
		return SystemStats{}, apperr.Denied("system stats require admin or supervisor role")
	}

	usersByRole, err := s.repo.CountUsersByRole(ctx)
	if err != nil {
		return SystemStats{}, err
	}
	pending, err := s.repo.CountPending(ctx)
	if err != nil {
		return SystemStats{}, err
	}
	overdue, err := s.repo.CountOverdue(ctx, s.now())
	if err != nil {
		return SystemStats{}, err
	}

	recentErrors := 0
	if s.errors != nil {
		recentErrors = s.errors.Recent()
	}
	healthy := s.repo.Ping(ctx) == nil &&
		overdue < healthyMaxOverdue &&
		recentErrors < healthyMaxErrors

	return SystemStats{
		UsersByRole: usersByRole,
		Pending:     pending,
		Overdue:     overdue,
		Healthy:     healthy,
	}, nil
}

// FormatProcessingTime renders a mean duration as whole hours under a
// day, otherwise whole days. "0h" when nothing completed yet.
func FormatProcessingTime(seconds float64, ok bool) string {
	if !ok {
		return "0h"
	}
	hours := int(math.Round(seconds / 3600))
	if hours < 24 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dd", int(math.Round(float64(hours)/24)))
}

// GrowthPercent is the month-over-month growth of the sample trend: 0
// with fewer than two months of data, 100 when climbing off zero,
// otherwise the relative change rounded to one decimal.
func GrowthPercent(trend []TrendPoint) float64 {
	if len(trend) < 2 {
		return 0
	}
	current := trend[len(trend)-1].Samples
	previous := trend[len(trend)-2].Samples
	if previous == 0 {
		if current == 0 {
			return 0
		}
		return 100
	}
	growth := float64(current-previous) / float64(previous) * 100
	return math.Round(growth*10) / 10
}

func statusGroups(counts map[types.SampleStatus]int, total int) []GroupCount {
	order := []types.SampleStatus{
		types.StatusReceived, types.StatusPrep, types.StatusAnalyzing,
		types.StatusQAQC, types.StatusReported, types.StatusCancelled,
	}
	groups := make([]GroupCount, 0, len(order))
	for _, status := range order {
		if n, ok := counts[status]; ok {
			groups = append(groups, GroupCount{Key: string(status), Count: n, Percent: percent(n, total)})
		}
	}
	return groups
}

func mineralGroups(counts map[types.Mineral]int, total int) []GroupCount {
	order := []types.Mineral{
		types.MineralCopper, types.MineralCobalt, types.MineralLithium,
		types.MineralGold, types.MineralTin, types.MineralTantalum,
		types.MineralTungsten, types.MineralZinc, types.MineralLead,
		types.MineralNickel,
	}
	groups := make([]GroupCount, 0, len(order))
	for _, mineral := range order {
		if n, ok := counts[mineral]; ok {
			groups = append(groups, GroupCount{Key: string(mineral), Count: n, Percent: percent(n, total)})
		}
	}
	return groups
}

func percent(n, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(n) / float64(total) * 100))
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
