package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"example.com/abtest/internal/domain"
)

type Scope string

const (
	ScopeExposure   Scope = "exposure"
	ScopeEnrollment Scope = "enrollment"
)

// Key returns a fixed-length hex SHA-256 over (scope, user, course).
// Storage puts a unique constraint on it, so a second insert for the same
// triple is reported as "already exists" instead of producing a duplicate.
func Key(scope Scope, userToken, courseID string) string {
	composite := fmt.Sprintf("%s|%s|%s", scope, userToken, courseID)
	sum := sha256.Sum256([]byte(composite))
	return hex.EncodeToString(sum[:])
}

func ExposureKey(userToken, courseID string) string {
	return Key(ScopeExposure, userToken, courseID)
}

func EnrollmentKey(userToken, courseID string) string {
	return Key(ScopeEnrollment, userToken, courseID)
}

// EventKey returns the dedup key for kinds stored at most once per
// (user, course), or "" for kinds that may repeat.
func EventKey(ev *domain.Event) string {
	if ev.Kind == domain.KindExposure {
		return ExposureKey(ev.UserToken, ev.CourseID)
	}
	return ""
}
