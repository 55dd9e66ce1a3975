package types

import "time"

// Mineral identifies the target mineral of a sample.
type Mineral string

// Supported minerals.
const (
	MineralCopper   Mineral = "CU"
	MineralCobalt   Mineral = "CO"
	MineralLithium  Mineral = "LI"
	MineralGold     Mineral = "AU"
	MineralTin      Mineral = "SN"
	MineralTantalum Mineral = "TA"
	MineralTungsten Mineral = "W"
	MineralZinc     Mineral = "ZN"
	MineralLead     Mineral = "PB"
	MineralNickel   Mineral = "NI"
)

// Valid reports whether the mineral is one of the supported values.
func (m Mineral) Valid() bool {
	switch m {
	case MineralCopper, MineralCobalt, MineralLithium, MineralGold,
		MineralTin, MineralTantalum, MineralTungsten, MineralZinc,
		MineralLead, MineralNickel:
		return true
	}
	return false
}

// Unit is the unit a grade is expressed in.
type Unit string

// Supported grade units.
const (
	UnitPercent     Unit = "PERCENT"
	UnitGramsPerTon Unit = "GRAMS_PER_TON"
	UnitPPM         Unit = "PPM"
	UnitOuncesPerTon Unit = "OUNCES_PER_TON"
)

// Valid reports whether the unit is one of the supported values.
func (u Unit) Valid() bool {
	switch u {
	case UnitPercent, UnitGramsPerTon, UnitPPM, UnitOuncesPerTon:
		return true
	}
	return false
}

// SampleStatus is the position of a sample in the processing pipeline.
type SampleStatus string

// Pipeline statuses. RECEIVED through REPORTED is the nominal forward
// path; CANCELLED is reachable only from RECEIVED and PREP.
const (
	StatusReceived  SampleStatus = "RECEIVED"
	StatusPrep      SampleStatus = "PREP"
	StatusAnalyzing SampleStatus = "ANALYZING"
	StatusQAQC      SampleStatus = "QA_QC"
	StatusReported  SampleStatus = "REPORTED"
	StatusCancelled SampleStatus = "CANCELLED"
)

// Valid reports whether the status is one of the supported values.
func (s SampleStatus) Valid() bool {
	switch s {
	case StatusReceived, StatusPrep, StatusAnalyzing, StatusQAQC,
		StatusReported, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further pipeline progress is possible.
func (s SampleStatus) Terminal() bool {
	return s == StatusReported || s == StatusCancelled
}

// Sample represents a physical mineral specimen submitted for analysis.
// It is tracked by a unique human-readable code through the pipeline.
type Sample struct {
	// ID is the unique identifier of the sample.
	ID int `json:"id" db:"id"`

	// Code is the human-readable tracking code, e.g. "RC-250001".
	// It is globally unique and immutable once assigned.
	Code string `json:"code" db:"code"`

	// Mineral is the target mineral of the assay.
	Mineral Mineral `json:"mineral" db:"mineral"`

	// SiteName is the origin site of the specimen.
	SiteName string `json:"site_name" db:"site_name"`

	// Status is the sample's current pipeline position.
	Status SampleStatus `json:"status" db:"status"`

	// Grade is the measured concentration, set at certification.
	Grade *float64 `json:"grade,omitempty" db:"grade"`

	// Unit is the unit the grade is expressed in.
	Unit Unit `json:"unit" db:"unit"`

	// Mass is the specimen mass in kilograms. Always positive.
	Mass float64 `json:"mass" db:"mass"`

	// Notes is free-text commentary attached at intake or later.
	Notes string `json:"notes,omitempty" db:"notes"`

	// Priority ranks processing urgency from 1 (highest) to 3.
	Priority int `json:"priority" db:"priority"`

	// ClientID identifies the owning client. Set at creation, never changed.
	ClientID int `json:"client_id" db:"client_id"`

	// AnalystID identifies the assigned analyst, if any.
	AnalystID *int `json:"analyst_id,omitempty" db:"analyst_id"`

	// ReceivedAt is when the specimen entered the laboratory.
	ReceivedAt time.Time `json:"received_at" db:"received_at"`

	// DueDate is an optional processing deadline.
	DueDate *time.Time `json:"due_date,omitempty" db:"due_date"`

	// CompletedAt is set if and only if Status is REPORTED.
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	// CreatedAt is the timestamp when the record was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TimelineEvent is an immutable log entry recording one status transition
// of a sample. Exactly one event exists per transition, including the
// initial RECEIVED event written at creation.
type TimelineEvent struct {
	// ID is the unique identifier of the event.
	ID int `json:"id" db:"id"`

	// SampleID identifies the sample this event belongs to.
	SampleID int `json:"sample_id" db:"sample_id"`

	// Status is the status value the sample held after this event.
	Status SampleStatus `json:"status" db:"status"`

	// Notes is optional commentary attached to the transition.
	Notes string `json:"notes,omitempty" db:"notes"`

	// ActorID identifies the acting user; nil for system events
	// such as the initial RECEIVED entry.
	ActorID *int `json:"actor_id,omitempty" db:"actor_id"`

	// CreatedAt is the timestamp the event was written. Events are
	// displayed ordered by this field ascending.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
