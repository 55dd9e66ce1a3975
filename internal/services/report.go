package services

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/assaytrack/apiserver/internal/apperr"
	"github.com/assaytrack/apiserver/types"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	reportCodePrefix = "RPT-"
	qrImageSize      = 256
	redactedClient   = "Confidential"
)

// ReportRepository defines persistence operations for reports.
type ReportRepository interface {
	CreateIssued(ctx context.Context, report types.Report, eventNotes string) (types.Report, error)
	ExistsForSample(ctx context.Context, sampleID int) (bool, error)
	GetViewByID(ctx context.Context, id int) (types.ReportView, int, error)
	GetViewByCode(ctx context.Context, code string) (types.ReportView, int, error)
	UpdateCertified(ctx context.Context, id int, certified bool) error
	List(ctx context.Context, clientID, offset, limit int) ([]types.ReportView, int, error)
}

// ReportNotifier delivers issuance notifications. Delivery is best-effort
// and must never fail the issuing transaction.
type ReportNotifier interface {
	ReportIssued(ctx context.Context, report types.Report, sampleCode string)
}

// ReportService produces the one-and-only certification report for an
// eligible sample and serves public verification.
type ReportService struct {
	repo        ReportRepository
	samples     SampleRepository
	notifier    ReportNotifier
	frontendURL string
	logger      *slog.Logger

	// newQR is swapped out in tests.
	newQR func(url string) (string, error)
}

func NewReportService(repo ReportRepository, samples SampleRepository, notifier ReportNotifier, frontendURL string, logger *slog.Logger) *ReportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportService{
		repo:        repo,
		samples:     samples,
		notifier:    notifier,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logger,
		newQR:       qrDataURI,
	}
}

// CreateReportInput is the issuance payload.
type CreateReportInput struct {
	SampleID   int
	Grade      float64
	Unit       types.Unit
	Notes      string
	Certified  bool
	ValidUntil *time.Time
}

// Create issues the report: it freezes grade and unit, computes the
// tamper-evident hash and QR payload, and atomically flips the sample to
// REPORTED. The unique constraint on the sample reference makes issuance
// exactly-once under concurrency; the existence pre-check only provides a
// friendlier error in the common case.
func (s *ReportService) Create(ctx context.Context, in CreateReportInput, issuer types.Identity) (types.Report, error) {
	if !in.Unit.Valid() {
		return types.Report{}, apperr.Validation(apperr.Field("unit", "unknown unit"))
	}
	if in.Grade < 0 {
		return types.Report{}, apperr.Validation(apperr.Field("grade", "must not be negative"))
	}

	sample, err := s.samples.GetByID(ctx, in.SampleID)
	if err != nil {
		return types.Report{}, err
	}

	exists, err := s.repo.ExistsForSample(ctx, sample.ID)
	if err != nil {
		return types.Report{}, err
	}
	if exists {
		return types.Report{}, apperr.Conflict("report already exists for this sample")
	}

	if sample.Status != types.StatusAnalyzing && sample.Status != types.StatusQAQC {
		return types.Report{}, apperr.Validation(
			apperr.Field("sample_id", "sample not ready for reporting"))
	}

	issuedAt := time.Now().UTC()
	code := reportCodePrefix + sample.Code
	hash := IssuanceHash(code, sample.ID, in.Grade, in.Unit, issuedAt)

	qr, err := s.newQR(s.VerificationURL(code, hash))
	if err != nil {
		return types.Report{}, fmt.Errorf("render verification image: %v: %w", err, apperr.ErrUpstream)
	}

	report := types.Report{
		Code:       code,
		SampleID:   sample.ID,
		Grade:      in.Grade,
		Unit:       in.Unit,
		Certified:  in.Certified,
		Hash:       hash,
		QRCode:     qr,
		Notes:      in.Notes,
		IssuedBy:   issuer.UserID,
		IssuedAt:   issuedAt,
		ValidUntil: in.ValidUntil,
	}

	created, err := s.repo.CreateIssued(ctx, report, fmt.Sprintf("Report %s generated", code))
	if err != nil {
		return types.Report{}, err
	}

	if s.notifier != nil {
		s.notifier.ReportIssued(ctx, created, sample.Code)
	}
	return created, nil
}

// GetByID returns the report view, policy-checked. Anonymous callers are
// rejected here; public access goes through GetByCode or Verify.
func (s *ReportService) GetByID(ctx context.Context, id int, requester types.Identity) (types.ReportView, error) {
	view, clientID, err := s.repo.GetViewByID(ctx, id)
	if err != nil {
		return types.ReportView{}, err
	}
	if err := RequireAccess(requester, Ownership{ClientID: clientID}); err != nil {
		return types.ReportView{}, err
	}
	return view, nil
}

// GetByCode returns the report view. Anonymous callers get a redacted
// view in support of public verification; authenticated callers are
// subject to the ownership policy.
func (s *ReportService) GetByCode(ctx context.Context, code string, requester types.Identity) (types.ReportView, error) {
	view, clientID, err := s.repo.GetViewByCode(ctx, code)
	if err != nil {
		return types.ReportView{}, err
	}
	if requester.Anonymous() {
		return redactClient(view), nil
	}
	if err := RequireAccess(requester, Ownership{ClientID: clientID}); err != nil {
		return types.ReportView{}, err
	}
	return view, nil
}

// Verify is the public verification operation. A missing report or a hash
// mismatch is a normal negative outcome, not an error.
func (s *ReportService) Verify(ctx context.Context, code, providedHash string) (types.VerificationResult, error) {
	view, _, err := s.repo.GetViewByCode(ctx, code)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return types.VerificationResult{
				Valid:   false,
				Message: "no report exists with this code",
			}, nil
		}
		return types.VerificationResult{}, err
	}

	if providedHash != "" && strings.ToUpper(strings.TrimSpace(providedHash)) != view.Hash {
		return types.VerificationResult{
			Valid:   false,
			Message: "hash mismatch: this report may have been tampered with",
		}, nil
	}

	redacted := redactClient(view)
	return types.VerificationResult{Valid: true, Report: &redacted}, nil
}

// UpdateCertification toggles the certified flag, the one report field
// mutable after issuance. Privileged roles only.
func (s *ReportService) UpdateCertification(ctx context.Context, id int, certified bool, actor types.Identity) error {
	if actor.Anonymous() {
		return apperr.ErrAuthentication
	}
	if !actor.Role.Privileged() {
		return apperr.Denied("certification requires admin or supervisor role")
	}
	return s.repo.UpdateCertified(ctx, id, certified)
}

// List returns reports visible to the requester, newest first.
func (s *ReportService) List(ctx context.Context, requester types.Identity, offset, limit int) ([]types.ReportView, int, error) {
	if requester.Anonymous() {
		return nil, 0, apperr.ErrAuthentication
	}
	clientID := 0
	if !requester.Role.Privileged() && requester.Role != types.RoleAnalyst {
		clientID = requester.UserID
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, clientID, offset, limit)
}

// VerificationURL builds the public verification link encoded in the QR
// image: <frontendBase>/verify/<reportCode>?hash=<hash>.
func (s *ReportService) VerificationURL(code, hash string) string {
	return fmt.Sprintf("%s/verify/%s?hash=%s", s.frontendURL, code, hash)
}

// IssuanceHash computes the tamper-evident digest over the issuance
// fields. The serialization is fixed so the hash is reproducible: field
// order as written, grade in minimal decimal form, issuedAt in RFC 3339
// UTC. The digest is uppercase hex.
func IssuanceHash(code string, sampleID int, grade float64, unit types.Unit, issuedAt time.Time) string {
	payload := fmt.Sprintf(
		`{"reportCode":%q,"sampleId":%d,"grade":%s,"unit":%q,"issuedAt":%q}`,
		code,
		sampleID,
		strconv.FormatFloat(grade, 'f', -1, 64),
		string(unit),
		issuedAt.UTC().Format(time.RFC3339),
	)
	sum := sha256.Sum256([]byte(payload))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func redactClient(view types.ReportView) types.ReportView {
	view.ClientName = redactedClient
	view.ClientEmail = ""
	return view
}

func qrDataURI(url string) (string, error) {
	png, err := qrcode.Encode(url, qrcode.Medium, qrImageSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
