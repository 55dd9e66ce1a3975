package types

import "time"

// Report is the certified outcome of analyzing a sample. At most one
// report exists per sample, enforced by a uniqueness constraint on the
// sample reference.
type Report struct {
	// ID is the unique identifier of the report.
	ID int `json:"id" db:"id"`

	// Code is the report code, "RPT-" followed by the sample code.
	Code string `json:"code" db:"code"`

	// SampleID identifies the certified sample.
	SampleID int `json:"sample_id" db:"sample_id"`

	// Grade is the certified concentration measurement.
	Grade float64 `json:"grade" db:"grade"`

	// Unit is the unit the grade is expressed in.
	Unit Unit `json:"unit" db:"unit"`

	// Certified marks the report as formally validated. This is the one
	// field mutable after issuance, restricted to privileged roles.
	Certified bool `json:"certified" db:"certified"`

	// Hash is the uppercase hex SHA-256 digest over the report's
	// issuance fields. Immutable for the life of the report.
	Hash string `json:"hash" db:"hash"`

	// QRCode is the verification image payload, a PNG data URI encoding
	// the public verification URL. Informational only.
	QRCode string `json:"qr_code,omitempty" db:"qr_code"`

	// Notes is optional commentary from the issuing analyst.
	Notes string `json:"notes,omitempty" db:"notes"`

	// IssuedBy identifies the issuing user.
	IssuedBy int `json:"issued_by" db:"issued_by"`

	// IssuedAt is the issuance timestamp, an input to the hash.
	IssuedAt time.Time `json:"issued_at" db:"issued_at"`

	// ValidUntil is an optional expiry for the certification.
	ValidUntil *time.Time `json:"valid_until,omitempty" db:"valid_until"`
}

// VerificationResult is the outcome of a public report verification.
// A failed verification is a normal business outcome, not an error.
type VerificationResult struct {
	// Valid reports whether the report exists and the supplied hash,
	// if any, matches the stored one.
	Valid bool `json:"valid"`

	// Message explains a negative result.
	Message string `json:"message,omitempty"`

	// Report is the redacted report view on a positive result.
	Report *ReportView `json:"report,omitempty"`
}

// ReportView is a report joined with its sample for presentation.
// Client identity fields are redacted for anonymous callers.
type ReportView struct {
	Report

	// SampleCode is the tracking code of the certified sample.
	SampleCode string `json:"sample_code"`

	// Mineral is the sample's target mineral.
	Mineral Mineral `json:"mineral"`

	// SiteName is the sample's origin site.
	SiteName string `json:"site_name"`

	// ClientName is the owning client's display name. Replaced with
	// "Confidential" for anonymous callers.
	ClientName string `json:"client_name"`

	// ClientEmail is the owning client's email. Redacted like ClientName.
	ClientEmail string `json:"client_email,omitempty"`

	// ClientCompany is preserved even for anonymous callers.
	ClientCompany string `json:"client_company,omitempty"`
}
