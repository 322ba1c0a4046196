// Package extract converts raw portal HTML into structured records.
//
// The portal's markup is fragile and inconsistent between terms, so every
// extractor degrades to empty results on malformed-but-present HTML instead
// of failing. The one hard failure is ErrLoginPage: the portal silently
// serves its login page to expired upstream sessions, and callers must
// treat that as session loss, not as a parse problem.
package extract

import "errors"

// ErrLoginPage reports that the fetched page is the portal's login page,
// meaning the upstream session is gone.
var ErrLoginPage = errors.New("portal returned its login page")

// Profile is the parsed personal information page.
type Profile struct {
	StudentID      string `json:"studentId"`
	Name           string `json:"name"`
	College        string `json:"college"`
	Major          string `json:"major"`
	ClassName      string `json:"className"`
	EnrollmentYear string `json:"enrollmentYear"`
	StudyLevel     string `json:"studyLevel"`
}

// SemesterOption is one entry of the term dropdown.
type SemesterOption struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

// GradeTable is the parsed grade query result.
type GradeTable struct {
	Headers []string            `json:"headers"`
	Rows    []map[string]string `json:"rows"`
}

// CourseEntry is one logical course occurrence on the weekly timetable.
type CourseEntry struct {
	Name         string `json:"name"`
	Teacher      string `json:"teacher"`
	Location     string `json:"location"`
	Weekday      int    `json:"weekday"` // 1=Monday .. 7=Sunday
	StartSection int    `json:"startSection"`
	EndSection   int    `json:"endSection"`
	WeekRange    string `json:"weekRange"`
	Weeks        []int  `json:"weeks"`
}

// Schedule is the parsed weekly timetable.
type Schedule struct {
	Semester    string        `json:"semester"`
	CurrentWeek int           `json:"currentWeek"` // 0 when undetected
	Courses     []CourseEntry `json:"courses"`
}
