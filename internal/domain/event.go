package domain

import (
	"encoding/json"
	"time"
)

// Variant is the treatment group a visitor is bound to.
type Variant string

const (
	VariantA Variant = "A"
	VariantB Variant = "B"
)

// Variants lists the treatment groups in report order.
var Variants = []Variant{VariantA, VariantB}

func (v Variant) Valid() bool { return v == VariantA || v == VariantB }

// Event kinds the aggregator understands. Kinds are free-form strings; anything
// else is stored and listed but never counted.
const (
	KindExposure         = "exposure"
	KindView             = "view"
	KindViewDetailsClick = "view_details_click"
	KindKnowMoreClick    = "know_more_click"
	KindEnrollment       = "enrollment"
	KindHomeTimeSpent    = "home_time_spent"
)

// Event is an immutable interaction record.
// Extra is opaque; it is persisted as received and rendered as null when absent.
type Event struct {
	UserToken string          `json:"userId"`
	SessionID string          `json:"sessionId,omitempty"`
	Variant   Variant         `json:"variant"`
	CourseID  string          `json:"courseId"`
	Kind      string          `json:"type"`
	Extra     json.RawMessage `json:"extra"`
	Timestamp time.Time       `json:"ts"`

	// DedupKey is set only for kinds that must be stored at most once per
	// (user, course). Storage enforces uniqueness on it.
	DedupKey string `json:"-"`
}

// Enrollment is an immutable enrollment record, unique per (user, course).
type Enrollment struct {
	UserToken  string    `json:"userId"`
	Variant    Variant   `json:"variant"`
	CourseID   string    `json:"courseId"`
	EnrolledAt time.Time `json:"enrolledAt"`
}

// Assignment binds a user token to a variant. Created once, never updated.
type Assignment struct {
	UserToken string    `json:"userId"`
	Variant   Variant   `json:"variant"`
	CreatedAt time.Time `json:"createdAt"`
}

// Course is read-only catalog data joined into per-course metrics.
type Course struct {
	ID       string  `json:"id" yaml:"id"`
	Title    string  `json:"title" yaml:"title"`
	Rating   float64 `json:"rating" yaml:"rating"`
	Duration string  `json:"duration" yaml:"duration"`
	Price    int     `json:"price" yaml:"price"`
}

// Validation constraints
const (
	MaxVariantLen   = 16
	MaxCourseIDLen  = 128
	MaxKindLen      = 64
	MaxSessionIDLen = 128
	MaxExtraBytes   = 8 << 10
)
