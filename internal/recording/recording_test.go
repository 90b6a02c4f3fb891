package recording

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/abtest/internal/dispatch"
	"example.com/abtest/internal/domain"
	"example.com/abtest/internal/idempotency"
	"example.com/abtest/internal/storage/memory"
)

type sliceSink struct {
	mu    sync.Mutex
	facts []dispatch.Fact
}

func (s *sliceSink) Enqueue(f dispatch.Fact) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts = append(s.facts, f)
	return true
}

func fixedClock() func() time.Time {
	t := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func TestExposureRecordedOncePerUserCourse(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sink := &sliceSink{}
	rec := NewEventRecorder(store, fixedClock(), sink)
	in := EventInput{UserToken: "user1", Variant: domain.VariantA, CourseID: "course1", Kind: domain.KindExposure}

	first, err := rec.Record(ctx, in)
	require.NoError(t, err)
	assert.True(t, first.Accepted)

	second, err := rec.Record(ctx, in)
	require.NoError(t, err)
	assert.False(t, second.Accepted)

	other, err := rec.Record(ctx, EventInput{UserToken: "user1", Variant: domain.VariantA, CourseID: "course2", Kind: domain.KindExposure})
	require.NoError(t, err)
	assert.True(t, other.Accepted)

	events, err := store.ListEvents(ctx)
	require.NoError(t, err)
	exposures := 0
	for _, ev := range events {
		if ev.CourseID == "course1" && ev.Kind == domain.KindExposure {
			exposures++
		}
	}
	assert.Equal(t, 1, exposures)
	assert.Len(t, sink.facts, 2)
}

func TestOtherKindsRepeat(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	rec := NewEventRecorder(store, fixedClock(), nil)

	for i := 0; i < 3; i++ {
		res, err := rec.Record(ctx, EventInput{UserToken: "u", Variant: domain.VariantB, CourseID: "1", Kind: domain.KindViewDetailsClick})
		require.NoError(t, err)
		assert.True(t, res.Accepted)
	}
	events, _ := store.ListEvents(ctx)
	assert.Len(t, events, 3)
}

func TestEventValidation(t *testing.T) {
	rec := NewEventRecorder(memory.New(), fixedClock(), nil)

	_, err := rec.Record(context.Background(), EventInput{UserToken: "u", Variant: domain.VariantA, Kind: domain.KindView})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{"required"}, ve.ByField()["courseId"])

	_, err = rec.Record(context.Background(), EventInput{Variant: domain.VariantA, CourseID: "1", Kind: domain.KindView})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestEventExtraAndSession(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	rec := NewEventRecorder(store, fixedClock(), nil)

	_, err := rec.Record(ctx, EventInput{
		UserToken: "u",
		SessionID: " sess-1 ",
		Variant:   domain.VariantA,
		CourseID:  "home",
		Kind:      domain.KindHomeTimeSpent,
		Extra:     json.RawMessage(`{"ms":1200,"maxScroll":40}`),
	})
	require.NoError(t, err)
	_, err = rec.Record(ctx, EventInput{UserToken: "u", Variant: domain.VariantA, CourseID: "1", Kind: domain.KindView, Extra: json.RawMessage(`null`)})
	require.NoError(t, err)

	events, _ := store.ListEvents(ctx)
	require.Len(t, events, 2)
	assert.Equal(t, "sess-1", events[0].SessionID)
	assert.JSONEq(t, `{"ms":1200,"maxScroll":40}`, string(events[0].Extra))
	assert.Nil(t, events[1].Extra)
	assert.Equal(t, fixedClock()(), events[0].Timestamp)
}

func TestEnrollmentRecordedOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sink := &sliceSink{}
	rec := NewEnrollmentRecorder(store, fixedClock(), sink)
	in := EnrollmentInput{UserToken: "user1", Variant: domain.VariantA, CourseID: "course1"}

	first, err := rec.Record(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, EnrollmentResult{Accepted: true}, first)

	second, err := rec.Record(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, EnrollmentResult{Accepted: true, AlreadyEnrolled: true}, second)

	all, _ := store.ListEnrollments(ctx)
	assert.Len(t, all, 1)
	assert.Len(t, sink.facts, 1)
	assert.Equal(t, dispatch.TypeEnrollmentRecorded, sink.facts[0].Type)
	assert.Equal(t, idempotency.EnrollmentKey("user1", "course1"), sink.facts[0].ID)
}

func TestEnrollmentValidation(t *testing.T) {
	rec := NewEnrollmentRecorder(memory.New(), fixedClock(), nil)
	_, err := rec.Record(context.Background(), EnrollmentInput{UserToken: "u", CourseID: "1"})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

type brokenStore struct{}

func (brokenStore) InsertEvent(context.Context, domain.Event) (bool, error) {
	return false, domain.ErrPersistence
}

func (brokenStore) InsertEnrollmentIfAbsent(context.Context, domain.Enrollment) (domain.Enrollment, bool, error) {
	return domain.Enrollment{}, false, domain.ErrPersistence
}

func TestPersistenceErrorsSurface(t *testing.T) {
	ctx := context.Background()
	_, err := NewEventRecorder(brokenStore{}, nil, nil).Record(ctx, EventInput{UserToken: "u", Variant: "A", CourseID: "1", Kind: "view"})
	assert.True(t, errors.Is(err, domain.ErrPersistence))

	_, err = NewEnrollmentRecorder(brokenStore{}, nil, nil).Record(ctx, EnrollmentInput{UserToken: "u", Variant: "A", CourseID: "1"})
	assert.True(t, errors.Is(err, domain.ErrPersistence))
}
