package transporthttp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"example.com/abtest/internal/domain"
	"example.com/abtest/internal/identity"
	"example.com/abtest/internal/metrics"
	"example.com/abtest/internal/recording"
)

func decodeJSONStrict(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large", nil)
		return
	}
	writeError(w, http.StatusBadRequest, "invalid json: "+err.Error(), nil)
}

// courseID accepts either a JSON string or a JSON number.
type courseID string

func (c *courseID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*c = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = courseID(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("courseId must be a string or number")
		}
		*c = courseID(n.String())
		return nil
	}
}

func (d *ServerDeps) userToken(w http.ResponseWriter, r *http.Request) string {
	if tok, ok := identity.FromContext(r.Context()); ok {
		return tok
	}
	return d.Identity.Resolve(w, r)
}

// --- Health ---

func (d *ServerDeps) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (d *ServerDeps) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := d.Store.Ready(r.Context()); err != nil {
		log := requestLogger(r)
		log.Warn().Err(err).Msg("readiness check failed")
		writeError(w, http.StatusServiceUnavailable, "store not reachable", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// --- Variant ---

type variantResponse struct {
	Variant domain.Variant `json:"variant"`
}

func (d *ServerDeps) HandleVariant(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	tok := d.userToken(w, r)
	v, err := d.Assigner.Assign(r.Context(), tok)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, variantResponse{Variant: v})
}

// --- Events ---

type eventRequest struct {
	Variant   domain.Variant  `json:"variant"`
	CourseID  courseID        `json:"courseId"`
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Extra     json.RawMessage `json:"extra"`
}

type eventResponse struct {
	OK      bool `json:"ok"`
	Skipped bool `json:"skipped,omitempty"`
}

func (d *ServerDeps) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	var req eventRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	res, err := d.Events.Record(r.Context(), recording.EventInput{
		UserToken: d.userToken(w, r),
		SessionID: req.SessionID,
		Variant:   req.Variant,
		CourseID:  string(req.CourseID),
		Kind:      req.Type,
		Extra:     req.Extra,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eventResponse{OK: true, Skipped: !res.Accepted})
}

func (d *ServerDeps) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := d.Store.ListEvents(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// --- Enrollments ---

const (
	msgEnrollmentRecorded = "Enrollment recorded"
	msgAlreadyEnrolled    = "Already enrolled"
)

type enrollmentRequest struct {
	Variant  domain.Variant `json:"variant"`
	CourseID courseID       `json:"courseId"`
}

type enrollmentResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func (d *ServerDeps) HandlePostEnrollment(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	var req enrollmentRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	res, err := d.Enrollments.Record(r.Context(), recording.EnrollmentInput{
		UserToken: d.userToken(w, r),
		Variant:   req.Variant,
		CourseID:  string(req.CourseID),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	msg := msgEnrollmentRecorded
	if res.AlreadyEnrolled {
		msg = msgAlreadyEnrolled
	}
	writeJSON(w, http.StatusOK, enrollmentResponse{OK: true, Message: msg})
}

func (d *ServerDeps) HandleListEnrollments(w http.ResponseWriter, r *http.Request) {
	enrollments, err := d.Store.ListEnrollments(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if enrollments == nil {
		enrollments = []domain.Enrollment{}
	}
	writeJSON(w, http.StatusOK, enrollments)
}

// --- Report ---

type ReportTotals struct {
	TotalEnrollments      int     `json:"totalEnrollments"`
	TotalExposures        int     `json:"totalExposures"`
	OverallConversionRate float64 `json:"overallConversionRate"`
}

// ReportResponse is the GET /report body.
type ReportResponse struct {
	Variants    map[domain.Variant]metrics.VariantMetrics `json:"variants"`
	Courses     []metrics.CourseMetrics                   `json:"courses"`
	Totals      ReportTotals                              `json:"totals"`
	Comparison  metrics.Comparison                        `json:"comparison"`
	GeneratedAt time.Time                                 `json:"generatedAt"`
}

// NewReportResponse rounds the overall conversion rate to one decimal for display.
func NewReportResponse(rep metrics.Report, at time.Time) ReportResponse {
	return ReportResponse{
		Variants: rep.Variants,
		Courses:  rep.Courses,
		Totals: ReportTotals{
			TotalEnrollments:      rep.Totals.TotalEnrollments,
			TotalExposures:        rep.Totals.TotalExposures,
			OverallConversionRate: metrics.Round(rep.Totals.OverallConversionRate(), 1),
		},
		Comparison:  rep.Comparison,
		GeneratedAt: at,
	}
}

func (d *ServerDeps) HandleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := d.Reports.Report(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewReportResponse(rep, d.Now()))
}
