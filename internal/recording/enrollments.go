package recording

import (
	"context"
	"time"

	"example.com/abtest/internal/dispatch"
	"example.com/abtest/internal/domain"
	"example.com/abtest/internal/idempotency"
)

type EnrollmentStore interface {
	InsertEnrollmentIfAbsent(ctx context.Context, en domain.Enrollment) (domain.Enrollment, bool, error)
}

type EnrollmentInput struct {
	UserToken string
	Variant   domain.Variant
	CourseID  string
}

type EnrollmentResult struct {
	Accepted        bool
	AlreadyEnrolled bool
}

type EnrollmentRecorder struct {
	store EnrollmentStore
	now   func() time.Time
	sink  dispatch.Sink
}

func NewEnrollmentRecorder(store EnrollmentStore, now func() time.Time, sink dispatch.Sink) *EnrollmentRecorder {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if sink == nil {
		sink = dispatch.Discard
	}
	return &EnrollmentRecorder{store: store, now: now, sink: sink}
}

// Record stores one enrollment per (user, course). A repeat attempt is
// accepted and reported as AlreadyEnrolled without writing.
func (r *EnrollmentRecorder) Record(ctx context.Context, in EnrollmentInput) (EnrollmentResult, error) {
	en := domain.Enrollment{UserToken: in.UserToken, Variant: in.Variant, CourseID: in.CourseID}
	errs := domain.ValidateEnrollment(&en)
	if en.UserToken == "" {
		errs = append(errs, domain.FieldError{Field: "userId", Msg: "missing identity"})
	}
	if err := domain.AsError(errs); err != nil {
		return EnrollmentResult{}, err
	}
	en.EnrolledAt = r.now()

	stored, created, err := r.store.InsertEnrollmentIfAbsent(ctx, en)
	if err != nil {
		return EnrollmentResult{}, err
	}
	if !created {
		return EnrollmentResult{Accepted: true, AlreadyEnrolled: true}, nil
	}
	r.sink.Enqueue(dispatch.Fact{
		Type:    dispatch.TypeEnrollmentRecorded,
		ID:      idempotency.EnrollmentKey(stored.UserToken, stored.CourseID),
		Key:     stored.UserToken,
		At:      stored.EnrolledAt,
		Payload: stored,
	})
	return EnrollmentResult{Accepted: true}, nil
}
