package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/assaytrack/apiserver/internal/apperr"
	"github.com/assaytrack/apiserver/types"
)

// fakeReportRepo is an in-memory ReportRepository backed by the sample
// fake so issuance can flip the sample like the real transaction does.
type fakeReportRepo struct {
	samples *fakeSampleRepo
	reports map[int]types.Report // keyed by report id
	nextID  int
	clients map[int]string // client id -> name, for views
}

func newFakeReportRepo(samples *fakeSampleRepo) *fakeReportRepo {
	return &fakeReportRepo{
		samples: samples,
		reports: make(map[int]types.Report),
		nextID:  1,
		clients: map[int]string{10: "Acme Mining"},
	}
}

func (f *fakeReportRepo) CreateIssued(ctx context.Context, report types.Report, eventNotes string) (types.Report, error) {
	for _, existing := range f.reports {
		if existing.SampleID == report.SampleID {
			return types.Report{}, apperr.Conflict("report already exists for this sample")
		}
	}
	report.ID = f.nextID
	f.nextID++
	f.reports[report.ID] = report

	sample := f.samples.samples[report.SampleID]
	sample.Status = types.StatusReported
	sample.Grade = &report.Grade
	issued := report.IssuedAt
	sample.CompletedAt = &issued
	f.samples.samples[sample.ID] = sample
	f.samples.events = append(f.samples.events, types.TimelineEvent{
		SampleID: sample.ID,
		Status:   types.StatusReported,
		Notes:    eventNotes,
	})
	return report, nil
}

func (f *fakeReportRepo) ExistsForSample(_ context.Context, sampleID int) (bool, error) {
	for _, r := range f.reports {
		if r.SampleID == sampleID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeReportRepo) view(report types.Report) (types.ReportView, int) {
	sample := f.samples.samples[report.SampleID]
	return types.ReportView{
		Report:     report,
		SampleCode: sample.Code,
		Mineral:    sample.Mineral,
		SiteName:   sample.SiteName,
		ClientName: f.clients[sample.ClientID],
	}, sample.ClientID
}

func (f *fakeReportRepo) GetViewByID(_ context.Context, id int) (types.ReportView, int, error) {
	report, ok := f.reports[id]
	if !ok {
		return types.ReportView{}, 0, apperr.NotFound("report")
	}
	view, clientID := f.view(report)
	return view, clientID, nil
}

func (f *fakeReportRepo) GetViewByCode(_ context.Context, code string) (types.ReportView, int, error) {
	for _, report := range f.reports {
		if report.Code == code {
			view, clientID := f.view(report)
			return view, clientID, nil
		}
	}
	return types.ReportView{}, 0, apperr.NotFound("report")
}

func (f *fakeReportRepo) UpdateCertified(_ context.Context, id int, certified bool) error {
	report, ok := f.reports[id]
	if !ok {
		return apperr.NotFound("report")
	}
	report.Certified = certified
	f.reports[id] = report
	return nil
}

func (f *fakeReportRepo) List(_ context.Context, clientID, offset, limit int) ([]types.ReportView, int, error) {
	var out []types.ReportView
	for _, report := range f.reports {
		view, owner := f.view(report)
		if clientID > 0 && owner != clientID {
			continue
		}
		out = append(out, view)
	}
	return out, len(out), nil
}

type fakeNotifier struct {
	issued []string
}

func (f *fakeNotifier) ReportIssued(_ context.Context, report types.Report, _ string) {
	f.issued = append(f.issued, report.Code)
}

func newTestReportService(t *testing.T) (*ReportService, *fakeSampleRepo, *fakeReportRepo, *fakeNotifier) {
	t.Helper()
	samples := newFakeSampleRepo()
	reports := newFakeReportRepo(samples)
	notifier := &fakeNotifier{}
	svc := NewReportService(reports, samples, notifier, "https://assay.example.com/", nil)
	svc.newQR = func(url string) (string, error) { return "data:image/png;base64,stub", nil }
	return svc, samples, reports, notifier
}

// readySample creates a sample and walks it to ANALYZING.
func readySample(t *testing.T, samples *fakeSampleRepo) types.Sample {
	t.Helper()
	svc := newTestSampleService(samples)
	sample, err := svc.Create(context.Background(), validInput(), client.UserID)
	require.NoError(t, err)
	for _, status := range []types.SampleStatus{types.StatusPrep, types.StatusAnalyzing} {
		s := status
		sample, err = svc.Update(context.Background(), sample.ID, SamplePatch{Status: &s}, client)
		require.NoError(t, err)
	}
	return sample
}

func TestCreateReport(t *testing.T) {
	svc, samples, _, notifier := newTestReportService(t)
	sample := readySample(t, samples)

	report, err := svc.Create(context.Background(), CreateReportInput{
		SampleID:  sample.ID,
		Grade:     2.37,
		Unit:      types.UnitPercent,
		Certified: true,
	}, analyst)
	require.NoError(t, err)

	require.Equal(t, "RPT-"+sample.Code, report.Code)
	require.Equal(t, analyst.UserID, report.IssuedBy)
	require.Len(t, report.Hash, 64)
	require.Equal(t, strings.ToUpper(report.Hash), report.Hash)
	require.True(t, strings.HasPrefix(report.QRCode, "data:image/png;base64,"))

	// Issuance flips the sample and stamps completion.
	got, err := samples.GetByID(context.Background(), sample.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusReported, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.Grade)
	require.Equal(t, 2.37, *got.Grade)

	require.Equal(t, []string{report.Code}, notifier.issued)
}

func TestCreateReportRejectsUnreadySample(t *testing.T) {
	svc, samples, _, _ := newTestReportService(t)

	sampleSvc := newTestSampleService(samples)
	sample, err := sampleSvc.Create(context.Background(), validInput(), client.UserID)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateReportInput{
		SampleID: sample.ID,
		Grade:    1.0,
		Unit:     types.UnitPercent,
	}, analyst)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCreateReportOncePerSample(t *testing.T) {
	svc, samples, _, _ := newTestReportService(t)
	sample := readySample(t, samples)

	in := CreateReportInput{SampleID: sample.ID, Grade: 1.5, Unit: types.UnitPercent}
	_, err := svc.Create(context.Background(), in, analyst)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), in, analyst)
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestVerify(t *testing.T) {
	svc, samples, _, _ := newTestReportService(t)
	sample := readySample(t, samples)

	report, err := svc.Create(context.Background(), CreateReportInput{
		SampleID: sample.ID,
		Grade:    3.1,
		Unit:     types.UnitPercent,
	}, analyst)
	require.NoError(t, err)

	result, err := svc.Verify(context.Background(), report.Code, report.Hash)
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.NotNil(t, result.Report)
	require.Equal(t, "Confidential", result.Report.ClientName)
	require.Empty(t, result.Report.ClientEmail)

	// Lowercase and padded hashes still match.
	result, err = svc.Verify(context.Background(), report.Code, "  "+strings.ToLower(report.Hash)+" ")
	require.NoError(t, err)
	require.True(t, result.Valid)
}

func TestVerifyTamperedHash(t *testing.T) {
	svc, samples, _, _ := newTestReportService(t)
	sample := readySample(t, samples)

	report, err := svc.Create(context.Background(), CreateReportInput{
		SampleID: sample.ID,
		Grade:    3.1,
		Unit:     types.UnitPercent,
	}, analyst)
	require.NoError(t, err)

	result, err := svc.Verify(context.Background(), report.Code, strings.Repeat("0", 64))
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Contains(t, result.Message, "tampered")
}

func TestVerifyUnknownCode(t *testing.T) {
	svc, _, _, _ := newTestReportService(t)

	result, err := svc.Verify(context.Background(), "RPT-RC-269999", "")
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Contains(t, result.Message, "no report exists")
}

func TestGetByCodeRedactsForAnonymous(t *testing.T) {
	svc, samples, _, _ := newTestReportService(t)
	sample := readySample(t, samples)

	report, err := svc.Create(context.Background(), CreateReportInput{
		SampleID: sample.ID,
		Grade:    0.8,
		Unit:     types.UnitGramsPerTon,
	}, analyst)
	require.NoError(t, err)

	view, err := svc.GetByCode(context.Background(), report.Code, types.Identity{})
	require.NoError(t, err)
	require.Equal(t, "Confidential", view.ClientName)

	view, err = svc.GetByCode(context.Background(), report.Code, client)
	require.NoError(t, err)
	require.Equal(t, "Acme Mining", view.ClientName)

	other := types.Identity{UserID: 77, Role: types.RoleClient}
	_, err = svc.GetByCode(context.Background(), report.Code, other)
	require.ErrorIs(t, err, apperr.ErrAccessDenied)
}

func TestUpdateCertificationRequiresPrivilege(t *testing.T) {
	svc, samples, reports, _ := newTestReportService(t)
	sample := readySample(t, samples)

	report, err := svc.Create(context.Background(), CreateReportInput{
		SampleID: sample.ID,
		Grade:    1.2,
		Unit:     types.UnitPercent,
	}, analyst)
	require.NoError(t, err)

	err = svc.UpdateCertification(context.Background(), report.ID, true, analyst)
	require.ErrorIs(t, err, apperr.ErrAccessDenied)

	err = svc.UpdateCertification(context.Background(), report.ID, true, supervisor)
	require.NoError(t, err)
	require.True(t, reports.reports[report.ID].Certified)
}

func TestIssuanceHashDeterministic(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	a := IssuanceHash("RPT-RC-260001", 7, 2.5, types.UnitPercent, at)
	b := IssuanceHash("RPT-RC-260001", 7, 2.5, types.UnitPercent, at)
	require.Equal(t, a, b)
	require.Len(t, a, 64)
	require.Equal(t, strings.ToUpper(a), a)

	// Any issuance field changing changes the digest.
	require.NotEqual(t, a, IssuanceHash("RPT-RC-260002", 7, 2.5, types.UnitPercent, at))
	require.NotEqual(t, a, IssuanceHash("RPT-RC-260001", 8, 2.5, types.UnitPercent, at))
	require.NotEqual(t, a, IssuanceHash("RPT-RC-260001", 7, 2.51, types.UnitPercent, at))
	require.NotEqual(t, a, IssuanceHash("RPT-RC-260001", 7, 2.5, types.UnitPPM, at))
	require.NotEqual(t, a, IssuanceHash("RPT-RC-260001", 7, 2.5, types.UnitPercent, at.Add(time.Second)))
}

func TestVerificationURL(t *testing.T) {
	svc, _, _, _ := newTestReportService(t)
	url := svc.VerificationURL("RPT-RC-260001", "ABC123")
	require.Equal(t, "https://assay.example.com/verify/RPT-RC-260001?hash=ABC123", url)
}
