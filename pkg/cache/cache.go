// Package cache provides the hot key-value tier consulted before any live
// portal fetch. The cache is never the sole source of truth; its absence
// affects latency and upstream load, not correctness.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache is a TTL-bound string key-value store.
type Cache interface {
	// Get returns the value for key, or ok=false when absent or expired.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key.
	Delete(ctx context.Context, key string) error

	// Close releases resources.
	Close() error
}

// Resource cache keys follow the original portal key scheme:
// academic:<kind>:<student>[:<scope>].

// ProfileKey returns the cache key for a student's profile.
func ProfileKey(studentID string) string {
	return fmt.Sprintf("academic:me:%s", studentID)
}

// SemestersKey returns the cache key for a student's semester list.
func SemestersKey(studentID string) string {
	return fmt.Sprintf("academic:semesters:%s", studentID)
}

// GradesKey returns the cache key for a student's grades in a semester.
// An empty semester means all semesters.
func GradesKey(studentID, semester string) string {
	if semester == "" {
		semester = "all"
	}
	return fmt.Sprintf("academic:grades:%s:%s", studentID, semester)
}

// ScheduleKey returns the cache key for a student's timetable in a term.
// An empty term means the current one.
func ScheduleKey(studentID, term string) string {
	if term == "" {
		term = "current"
	}
	return fmt.Sprintf("academic:schedule:%s:%s", studentID, term)
}
