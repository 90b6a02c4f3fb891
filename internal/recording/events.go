package recording

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"example.com/abtest/internal/dispatch"
	"example.com/abtest/internal/domain"
	"example.com/abtest/internal/idempotency"
)

type EventStore interface {
	InsertEvent(ctx context.Context, ev domain.Event) (bool, error)
}

type EventInput struct {
	UserToken string
	SessionID string
	Variant   domain.Variant
	CourseID  string
	Kind      string
	Extra     json.RawMessage
}

type EventResult struct {
	Accepted bool
}

// EventRecorder appends interaction events. Exposures are stored at most once
// per (user, course) through the store's dedup key constraint; a repeat
// returns Accepted=false and writes nothing.
type EventRecorder struct {
	store EventStore
	now   func() time.Time
	sink  dispatch.Sink
}

func NewEventRecorder(store EventStore, now func() time.Time, sink dispatch.Sink) *EventRecorder {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if sink == nil {
		sink = dispatch.Discard
	}
	return &EventRecorder{store: store, now: now, sink: sink}
}

func (r *EventRecorder) Record(ctx context.Context, in EventInput) (EventResult, error) {
	ev := domain.Event{
		UserToken: in.UserToken,
		SessionID: strings.TrimSpace(in.SessionID),
		Variant:   in.Variant,
		CourseID:  in.CourseID,
		Kind:      in.Kind,
		Extra:     normalizeExtra(in.Extra),
	}
	errs := domain.ValidateEvent(&ev)
	if ev.UserToken == "" {
		errs = append(errs, domain.FieldError{Field: "userId", Msg: "missing identity"})
	}
	if err := domain.AsError(errs); err != nil {
		return EventResult{}, err
	}

	ev.Timestamp = r.now()
	ev.DedupKey = idempotency.EventKey(&ev)

	inserted, err := r.store.InsertEvent(ctx, ev)
	if err != nil {
		return EventResult{}, err
	}
	if inserted {
		r.sink.Enqueue(dispatch.Fact{Type: dispatch.TypeEventRecorded, ID: ev.DedupKey, Key: ev.UserToken, At: ev.Timestamp, Payload: ev})
	}
	return EventResult{Accepted: inserted}, nil
}

// normalizeExtra maps an explicit JSON null to "absent".
func normalizeExtra(raw json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	return raw
}
