package mongodb

import (
	"time"

	"example.com/abtest/internal/domain"
)

type assignmentDoc struct {
	UserToken string    `bson:"userId"`
	Variant   string    `bson:"variant"`
	CreatedAt time.Time `bson:"createdAt"`
}

func newAssignmentDoc(a domain.Assignment) assignmentDoc {
	return assignmentDoc{UserToken: a.UserToken, Variant: string(a.Variant), CreatedAt: a.CreatedAt}
}

func (d assignmentDoc) toDomain() domain.Assignment {
	return domain.Assignment{UserToken: d.UserToken, Variant: domain.Variant(d.Variant), CreatedAt: d.CreatedAt.UTC()}
}

type eventDoc struct {
	UserToken string    `bson:"userId"`
	SessionID string    `bson:"sessionId,omitempty"`
	Variant   string    `bson:"variant"`
	CourseID  string    `bson:"courseId"`
	Kind      string    `bson:"type"`
	Extra     any       `bson:"extra"`
	Timestamp time.Time `bson:"ts"`
	DedupKey  string    `bson:"dedupKey,omitempty"`
}

func newEventDoc(ev domain.Event) (eventDoc, error) {
	extra, err := decodeExtra(ev.Extra)
	if err != nil {
		return eventDoc{}, err
	}
	return eventDoc{
		UserToken: ev.UserToken,
		SessionID: ev.SessionID,
		Variant:   string(ev.Variant),
		CourseID:  ev.CourseID,
		Kind:      ev.Kind,
		Extra:     extra,
		Timestamp: ev.Timestamp,
		DedupKey:  ev.DedupKey,
	}, nil
}

func (d eventDoc) toDomain() domain.Event {
	return domain.Event{
		UserToken: d.UserToken,
		SessionID: d.SessionID,
		Variant:   domain.Variant(d.Variant),
		CourseID:  d.CourseID,
		Kind:      d.Kind,
		Extra:     encodeExtra(d.Extra),
		Timestamp: d.Timestamp.UTC(),
	}
}

type enrollmentDoc struct {
	UserToken  string    `bson:"userId"`
	Variant    string    `bson:"variant"`
	CourseID   string    `bson:"courseId"`
	EnrolledAt time.Time `bson:"enrolledAt"`
}

func newEnrollmentDoc(en domain.Enrollment) enrollmentDoc {
	return enrollmentDoc{UserToken: en.UserToken, Variant: string(en.Variant), CourseID: en.CourseID, EnrolledAt: en.EnrolledAt}
}

func (d enrollmentDoc) toDomain() domain.Enrollment {
	return domain.Enrollment{
		UserToken:  d.UserToken,
		Variant:    domain.Variant(d.Variant),
		CourseID:   d.CourseID,
		EnrolledAt: d.EnrolledAt.UTC(),
	}
}
