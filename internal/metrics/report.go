// Package metrics derives funnel metrics from the raw event and enrollment
// logs. ComputeReport is a pure function; nothing is cached between calls.
package metrics

import (
	"fmt"
	"math"

	"example.com/abtest/internal/domain"
)

// SignificanceThreshold is the conversion-rate gap, in percentage points,
// above which the comparison is flagged significant.
const SignificanceThreshold = 2.0

type VariantMetrics struct {
	Exposures         int     `json:"exposures"`
	ViewDetailsClicks int     `json:"viewDetailsClicks"`
	KnowMoreClicks    int     `json:"knowMoreClicks"`
	Enrollments       int     `json:"enrollments"`
	ConversionRate    float64 `json:"conversionRate"`
	ClickThroughRate  float64 `json:"clickThroughRate"`
}

type CourseMetrics struct {
	CourseID             string                 `json:"courseId"`
	CourseTitle          string                 `json:"courseTitle"`
	Rating               float64                `json:"rating"`
	Price                int                    `json:"price"`
	Exposures            int                    `json:"exposures"`
	Enrollments          int                    `json:"enrollments"`
	ConversionRate       float64                `json:"conversionRate"`
	EnrollmentsByVariant map[domain.Variant]int `json:"enrollmentsByVariant"`
}

// Totals keeps the raw components; the overall rate is rounded by whoever
// displays it.
type Totals struct {
	TotalEnrollments int `json:"totalEnrollments"`
	TotalExposures   int `json:"totalExposures"`
}

// OverallConversionRate is unrounded and 0 when there are no exposures.
func (t Totals) OverallConversionRate() float64 {
	if t.TotalExposures == 0 {
		return 0
	}
	return float64(t.TotalEnrollments) / float64(t.TotalExposures) * 100
}

type Comparison struct {
	// Winner is empty when neither variant has exposures. Ties go to B.
	Winner      domain.Variant `json:"winner"`
	Difference  float64        `json:"difference"`
	Significant bool           `json:"significant"`
	Threshold   float64        `json:"threshold"`
	// LeadingCourse is the course with the most enrollments, empty when none.
	LeadingCourse string `json:"leadingCourse"`
}

type Report struct {
	Variants   map[domain.Variant]VariantMetrics `json:"variants"`
	Courses    []CourseMetrics                   `json:"courses"`
	Totals     Totals                            `json:"totals"`
	Comparison Comparison                        `json:"comparison"`
}

// ComputeReport reports on every course in the catalog, in catalog order.
func ComputeReport(events []domain.Event, enrollments []domain.Enrollment, catalog []domain.Course) Report {
	subjects := make([]string, 0, len(catalog))
	for _, c := range catalog {
		subjects = append(subjects, c.ID)
	}
	return ComputeReportFor(subjects, events, enrollments, catalog)
}

// ComputeReportFor reports on an explicit list of course ids. Ids missing from
// the catalog get a synthetic title and zero rating and price.
func ComputeReportFor(subjects []string, events []domain.Event, enrollments []domain.Enrollment, catalog []domain.Course) Report {
	variants := make(map[domain.Variant]*VariantMetrics, len(domain.Variants))
	for _, v := range domain.Variants {
		variants[v] = &VariantMetrics{}
	}

	courses := make([]CourseMetrics, 0, len(subjects))
	bySubject := make(map[string]int, len(subjects))
	for _, id := range subjects {
		if _, dup := bySubject[id]; dup {
			continue
		}
		bySubject[id] = len(courses)
		courses = append(courses, newCourseMetrics(id, catalog))
	}

	for _, ev := range events {
		if vm, ok := variants[ev.Variant]; ok {
			switch ev.Kind {
			case domain.KindExposure:
				vm.Exposures++
			case domain.KindViewDetailsClick:
				vm.ViewDetailsClicks++
			case domain.KindKnowMoreClick:
				vm.KnowMoreClicks++
			}
		}
		if i, ok := bySubject[ev.CourseID]; ok && ev.Kind == domain.KindExposure {
			courses[i].Exposures++
		}
	}

	for _, en := range enrollments {
		if vm, ok := variants[en.Variant]; ok {
			vm.Enrollments++
		}
		if i, ok := bySubject[en.CourseID]; ok {
			cm := &courses[i]
			cm.Enrollments++
			if en.Variant.Valid() {
				cm.EnrollmentsByVariant[en.Variant]++
			}
		}
	}

	report := Report{
		Variants: make(map[domain.Variant]VariantMetrics, len(variants)),
		Courses:  courses,
	}
	for v, vm := range variants {
		vm.ConversionRate = Rate(vm.Enrollments, vm.Exposures)
		vm.ClickThroughRate = Rate(vm.ViewDetailsClicks, vm.Exposures)
		report.Variants[v] = *vm
		report.Totals.TotalEnrollments += vm.Enrollments
		report.Totals.TotalExposures += vm.Exposures
	}
	for i := range report.Courses {
		cm := &report.Courses[i]
		cm.ConversionRate = Rate(cm.Enrollments, cm.Exposures)
	}
	report.Comparison = compare(report)
	return report
}

func newCourseMetrics(id string, catalog []domain.Course) CourseMetrics {
	cm := CourseMetrics{
		CourseID:             id,
		CourseTitle:          fmt.Sprintf("Course %s", id),
		EnrollmentsByVariant: make(map[domain.Variant]int, len(domain.Variants)),
	}
	for _, v := range domain.Variants {
		cm.EnrollmentsByVariant[v] = 0
	}
	for _, c := range catalog {
		if c.ID != id {
			continue
		}
		if c.Title != "" {
			cm.CourseTitle = c.Title
		}
		cm.Rating = c.Rating
		cm.Price = c.Price
		break
	}
	return cm
}

func compare(r Report) Comparison {
	a, b := r.Variants[domain.VariantA], r.Variants[domain.VariantB]
	c := Comparison{
		Difference: Round(math.Abs(a.ConversionRate-b.ConversionRate), 2),
		Threshold:  SignificanceThreshold,
	}
	if a.Exposures > 0 || b.Exposures > 0 {
		c.Winner = domain.VariantB
		if a.ConversionRate > b.ConversionRate {
			c.Winner = domain.VariantA
		}
	}
	c.Significant = c.Difference > SignificanceThreshold

	best := 0
	for _, cm := range r.Courses {
		if cm.Enrollments > best {
			best = cm.Enrollments
			c.LeadingCourse = cm.CourseID
		}
	}
	return c
}

// Rate returns num/den*100 rounded to 2 decimals, or 0 when den is 0.
func Rate(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return Round(float64(num)/float64(den)*100, 2)
}

// Round rounds half away from zero to the given number of decimals.
func Round(x float64, places int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
