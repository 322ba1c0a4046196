package repo

// Snapshot kinds, one per extracted resource.
const (
	KindProfile   = "profile"
	KindSemesters = "semesters"
	KindGrades    = "grades"
	KindSchedule  = "schedule"
)
