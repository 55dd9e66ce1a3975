package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/assaytrack/apiserver/internal/apperr"
	"github.com/assaytrack/apiserver/internal/store"
	"github.com/assaytrack/apiserver/types"
)

// codeRetries bounds how often sample creation retries after losing a
// code-generation race to a concurrent create.
const codeRetries = 3

// forwardTransitions is the nominal pipeline graph. Non-privileged callers
// may only follow it; REPORTED is reachable solely through the report
// issuer, and CANCELLED solely through Cancel.
var forwardTransitions = map[types.SampleStatus]types.SampleStatus{
	types.StatusReceived:  types.StatusPrep,
	types.StatusPrep:      types.StatusAnalyzing,
	types.StatusAnalyzing: types.StatusQAQC,
}

// SampleRepository defines persistence operations for samples.
type SampleRepository interface {
	NextCode(ctx context.Context, prefix string, year int) (string, error)
	Create(ctx context.Context, sample types.Sample) (types.Sample, error)
	GetByID(ctx context.Context, id int) (types.Sample, error)
	GetByCode(ctx context.Context, code string) (types.Sample, error)
	Update(ctx context.Context, sample types.Sample, event *types.TimelineEvent) (types.Sample, error)
	AppendEvent(ctx context.Context, event *types.TimelineEvent) error
	ListEvents(ctx context.Context, sampleID int) ([]types.TimelineEvent, error)
	List(ctx context.Context, filter store.SampleFilter, offset, limit int) ([]types.Sample, int, error)
}

// SampleService owns sample creation, code generation, status transitions,
// and timeline recording.
type SampleService struct {
	repo       SampleRepository
	codePrefix string
	logger     *slog.Logger
}

func NewSampleService(repo SampleRepository, codePrefix string, logger *slog.Logger) *SampleService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SampleService{repo: repo, codePrefix: codePrefix, logger: logger}
}

// CreateSampleInput is the validated intake payload.
type CreateSampleInput struct {
	Mineral   types.Mineral
	SiteName  string
	Unit      types.Unit
	Mass      float64
	Notes     string
	Priority  int
	AnalystID *int
	DueDate   *time.Time
}

func (in CreateSampleInput) validate() error {
	var fields []apperr.FieldError
	if !in.Mineral.Valid() {
		fields = append(fields, apperr.Field("mineral", "unknown mineral"))
	}
	if in.SiteName == "" {
		fields = append(fields, apperr.Field("site_name", "required"))
	}
	if !in.Unit.Valid() {
		fields = append(fields, apperr.Field("unit", "unknown unit"))
	}
	if in.Mass <= 0 {
		fields = append(fields, apperr.Field("mass", "must be positive"))
	}
	if in.Priority < 1 || in.Priority > 3 {
		fields = append(fields, apperr.Field("priority", "must be between 1 and 3"))
	}
	if in.DueDate != nil && in.DueDate.Before(time.Now()) {
		fields = append(fields, apperr.Field("due_date", "must be in the future"))
	}
	if len(fields) > 0 {
		return apperr.Validation(fields...)
	}
	return nil
}

// Create registers a new sample for the owning client. The tracking code
// is generated from the highest existing sequence for the current year;
// the unique index on the code column settles races, and creation retries
// with a fresh candidate after a conflict.
func (s *SampleService) Create(ctx context.Context, in CreateSampleInput, ownerID int) (types.Sample, error) {
	if err := in.validate(); err != nil {
		return types.Sample{}, err
	}

	now := time.Now()
	sample := types.Sample{
		Mineral:    in.Mineral,
		SiteName:   in.SiteName,
		Status:     types.StatusReceived,
		Unit:       in.Unit,
		Mass:       in.Mass,
		Notes:      in.Notes,
		Priority:   in.Priority,
		ClientID:   ownerID,
		AnalystID:  in.AnalystID,
		ReceivedAt: now,
		DueDate:    in.DueDate,
	}

	var lastErr error
	for attempt := 0; attempt < codeRetries; attempt++ {
		code, err := s.repo.NextCode(ctx, s.codePrefix, now.Year())
		if err != nil {
			return types.Sample{}, err
		}
		sample.Code = code

		created, err := s.repo.Create(ctx, sample)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, apperr.ErrConflict) {
			return types.Sample{}, err
		}
		lastErr = err
		s.logger.Warn("sample code conflict, retrying", "code", code, "attempt", attempt+1)
	}
	return types.Sample{}, lastErr
}

// Get fetches a sample by id and applies the access policy.
func (s *SampleService) Get(ctx context.Context, id int, requester types.Identity) (types.Sample, error) {
	sample, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.Sample{}, err
	}
	if err := RequireAccess(requester, Ownership{ClientID: sample.ClientID, AnalystID: sample.AnalystID}); err != nil {
		return types.Sample{}, err
	}
	return sample, nil
}

// GetByCode is Get keyed by tracking code.
func (s *SampleService) GetByCode(ctx context.Context, code string, requester types.Identity) (types.Sample, error) {
	sample, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return types.Sample{}, err
	}
	if err := RequireAccess(requester, Ownership{ClientID: sample.ClientID, AnalystID: sample.AnalystID}); err != nil {
		return types.Sample{}, err
	}
	return sample, nil
}

// SamplePatch holds partial-update fields; nil fields are left untouched.
type SamplePatch struct {
	Mineral   *types.Mineral
	SiteName  *string
	Status    *types.SampleStatus
	Unit      *types.Unit
	Mass      *float64
	Notes     *string
	Priority  *int
	AnalystID *int
	DueDate   *time.Time
}

// Update applies a partial update. A status change is validated against
// the pipeline graph unless the caller holds operator override (ADMIN or
// SUPERVISOR) and always writes exactly one timeline event. Reaching
// REPORTED stamps completed_at; leaving it clears the stamp.
func (s *SampleService) Update(ctx context.Context, id int, patch SamplePatch, requester types.Identity) (types.Sample, error) {
	sample, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.Sample{}, err
	}
	if err := RequireAccess(requester, Ownership{ClientID: sample.ClientID, AnalystID: sample.AnalystID}); err != nil {
		return types.Sample{}, err
	}

	if patch.Mineral != nil {
		if !patch.Mineral.Valid() {
			return types.Sample{}, apperr.Validation(apperr.Field("mineral", "unknown mineral"))
		}
		sample.Mineral = *patch.Mineral
	}
	if patch.SiteName != nil {
		sample.SiteName = *patch.SiteName
	}
	if patch.Unit != nil {
		if !patch.Unit.Valid() {
			return types.Sample{}, apperr.Validation(apperr.Field("unit", "unknown unit"))
		}
		sample.Unit = *patch.Unit
	}
	if patch.Mass != nil {
		if *patch.Mass <= 0 {
			return types.Sample{}, apperr.Validation(apperr.Field("mass", "must be positive"))
		}
		sample.Mass = *patch.Mass
	}
	if patch.Notes != nil {
		sample.Notes = *patch.Notes
	}
	if patch.Priority != nil {
		if *patch.Priority < 1 || *patch.Priority > 3 {
			return types.Sample{}, apperr.Validation(apperr.Field("priority", "must be between 1 and 3"))
		}
		sample.Priority = *patch.Priority
	}
	if patch.AnalystID != nil {
		sample.AnalystID = patch.AnalystID
	}
	if patch.DueDate != nil {
		sample.DueDate = patch.DueDate
	}

	var event *types.TimelineEvent
	if patch.Status != nil && *patch.Status != sample.Status {
		next := *patch.Status
		if !next.Valid() {
			return types.Sample{}, apperr.Validation(apperr.Field("status", "unknown status"))
		}
		if !requester.Role.Privileged() {
			if forwardTransitions[sample.Status] != next {
				return types.Sample{}, apperr.Conflict(
					fmt.Sprintf("cannot move sample from %s to %s", sample.Status, next))
			}
		}
		sample.Status = next
		s.stampCompletion(&sample)

		actorID := requester.UserID
		event = &types.TimelineEvent{
			SampleID: sample.ID,
			Status:   next,
			Notes:    fmt.Sprintf("Status changed to %s", next),
			ActorID:  &actorID,
		}
	}

	return s.repo.Update(ctx, sample, event)
}

// Cancel soft-cancels a sample. Samples being analyzed or already
// reported cannot be cancelled; the row is never deleted.
func (s *SampleService) Cancel(ctx context.Context, id int, requester types.Identity) (types.Sample, error) {
	sample, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.Sample{}, err
	}
	if err := RequireAccess(requester, Ownership{ClientID: sample.ClientID, AnalystID: sample.AnalystID}); err != nil {
		return types.Sample{}, err
	}

	switch sample.Status {
	case types.StatusReceived, types.StatusPrep:
		// cancellable
	case types.StatusCancelled:
		return sample, nil
	default:
		return types.Sample{}, apperr.Conflict("cannot cancel sample being analyzed or reported")
	}

	sample.Status = types.StatusCancelled
	actorID := requester.UserID
	event := &types.TimelineEvent{
		SampleID: sample.ID,
		Status:   types.StatusCancelled,
		Notes:    "Sample cancelled",
		ActorID:  &actorID,
	}
	return s.repo.Update(ctx, sample, event)
}

// AddTimelineEvent appends an event and, when the supplied status differs
// from the sample's current one, also moves the sample. The same
// transition rules as Update apply.
func (s *SampleService) AddTimelineEvent(ctx context.Context, id int, status types.SampleStatus, notes string, requester types.Identity) (types.TimelineEvent, error) {
	sample, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.TimelineEvent{}, err
	}
	if err := RequireAccess(requester, Ownership{ClientID: sample.ClientID, AnalystID: sample.AnalystID}); err != nil {
		return types.TimelineEvent{}, err
	}
	if !status.Valid() {
		return types.TimelineEvent{}, apperr.Validation(apperr.Field("status", "unknown status"))
	}

	actorID := requester.UserID
	event := &types.TimelineEvent{
		SampleID: sample.ID,
		Status:   status,
		Notes:    notes,
		ActorID:  &actorID,
	}

	if status == sample.Status {
		if err := s.repo.AppendEvent(ctx, event); err != nil {
			return types.TimelineEvent{}, err
		}
		return *event, nil
	}

	if !requester.Role.Privileged() {
		if forwardTransitions[sample.Status] != status {
			return types.TimelineEvent{}, apperr.Conflict(
				fmt.Sprintf("cannot move sample from %s to %s", sample.Status, status))
		}
	}
	sample.Status = status
	s.stampCompletion(&sample)

	if _, err := s.repo.Update(ctx, sample, event); err != nil {
		return types.TimelineEvent{}, err
	}
	return *event, nil
}

// Timeline returns a sample's events oldest first.
func (s *SampleService) Timeline(ctx context.Context, id int, requester types.Identity) ([]types.TimelineEvent, error) {
	sample, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := RequireAccess(requester, Ownership{ClientID: sample.ClientID, AnalystID: sample.AnalystID}); err != nil {
		return nil, err
	}
	return s.repo.ListEvents(ctx, sample.ID)
}

// List returns samples visible to the requester. Clients see their own
// samples, analysts the ones assigned to them, privileged roles all.
func (s *SampleService) List(ctx context.Context, filter store.SampleFilter, requester types.Identity, offset, limit int) ([]types.Sample, int, error) {
	if requester.Anonymous() {
		return nil, 0, apperr.ErrAuthentication
	}
	if !requester.Role.Privileged() {
		if requester.Role == types.RoleAnalyst {
			filter.ClientID = 0
			filter.AnalystID = requester.UserID
		} else {
			filter.ClientID = requester.UserID
			filter.AnalystID = 0
		}
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, filter, offset, limit)
}

func (s *SampleService) stampCompletion(sample *types.Sample) {
	if sample.Status == types.StatusReported {
		now := time.Now()
		sample.CompletedAt = &now
	} else {
		sample.CompletedAt = nil
	}
}
