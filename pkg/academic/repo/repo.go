// Package repo provides durable storage for portal extraction results: an
// append-only snapshot history per resource, plus normalized current-state
// tables with hash-based dedup.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/edubridge/portalsync/pkg/portal/extract"
)

// sampleColumnLimit bounds HTML samples persisted inside snapshot
// payloads so one oversized page cannot bloat the history table.
const sampleColumnLimit = 500

// CacheTTLs configures per-resource hot cache lifetimes.
type CacheTTLs struct {
	Profile   time.Duration
	Semesters time.Duration
	Grades    time.Duration
	Schedule  time.Duration
}

// Repo persists extraction results.
type Repo struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	now func() time.Time
}

// New creates a repository over db.
func New(db *sql.DB) *Repo {
	return &Repo{
		db:  db,
		sb:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now: time.Now,
	}
}

// execer covers both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// EnsureStudent upserts the identity row so dependent writes never hit a
// missing foreign key, regardless of fetch order. Idempotent.
func (r *Repo) EnsureStudent(ctx context.Context, studentID, account string) error {
	return r.ensureStudent(ctx, r.db, studentID, account)
}

func (r *Repo) ensureStudent(ctx context.Context, ex execer, studentID, account string) error {
	if account == "" {
		account = studentID
	}
	query, args, err := r.sb.Insert("academic_students").
		Columns("student_id", "account", "created_at", "updated_at").
		Values(studentID, account, r.now(), r.now()).
		Suffix("ON CONFLICT (student_id) DO UPDATE SET account = EXCLUDED.account, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building student upsert: %w", err)
	}
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting student %s: %w", studentID, err)
	}
	return nil
}

// SaveProfile appends a profile snapshot and folds non-empty fields into
// the identity row.
func (r *Repo) SaveProfile(ctx context.Context, studentID, account string, p *extract.Profile, payload []byte) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := r.ensureStudent(ctx, tx, studentID, account); err != nil {
			return err
		}

		// Empty extractor fields never erase previously known values.
		query, args, err := r.sb.Update("academic_students").
			Set("name", sq.Expr("COALESCE(NULLIF(?, ''), name)", p.Name)).
			Set("college", sq.Expr("COALESCE(NULLIF(?, ''), college)", p.College)).
			Set("major", sq.Expr("COALESCE(NULLIF(?, ''), major)", p.Major)).
			Set("class_name", sq.Expr("COALESCE(NULLIF(?, ''), class_name)", p.ClassName)).
			Set("enrollment_year", sq.Expr("COALESCE(NULLIF(?, ''), enrollment_year)", p.EnrollmentYear)).
			Set("study_level", sq.Expr("COALESCE(NULLIF(?, ''), study_level)", p.StudyLevel)).
			Set("updated_at", r.now()).
			Where(sq.Eq{"student_id": studentID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("building profile update: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("updating profile %s: %w", studentID, err)
		}

		return r.addSnapshot(ctx, tx, studentID, KindProfile, "", payload)
	})
}

// SaveSemesters appends a semester-list snapshot.
func (r *Repo) SaveSemesters(ctx context.Context, studentID, account string, payload []byte) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := r.ensureStudent(ctx, tx, studentID, account); err != nil {
			return err
		}
		return r.addSnapshot(ctx, tx, studentID, KindSemesters, "", payload)
	})
}

// SaveGrades appends a grades snapshot and upserts normalized grade rows.
// Rows are deduplicated on (student, semester, content hash): a re-fetched
// identical row only refreshes its timestamp, while a corrected row hashes
// differently and produces a new logical entry.
func (r *Repo) SaveGrades(ctx context.Context, studentID, account, semester string, rows []map[string]string, payload []byte) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := r.ensureStudent(ctx, tx, studentID, account); err != nil {
			return err
		}
		if err := r.addSnapshot(ctx, tx, studentID, KindGrades, semester, payload); err != nil {
			return err
		}

		for _, row := range rows {
			hash, err := ContentHash(row)
			if err != nil {
				return err
			}
			rawJSON, err := json.Marshal(row)
			if err != nil {
				return fmt.Errorf("encoding grade row: %w", err)
			}
			fields := extractGradeFields(row)

			query, args, err := r.sb.Insert("academic_grades").
				Columns("id", "student_id", "semester",
					"course_code", "course_name", "credit", "score", "grade_point",
					"raw_hash", "raw_json", "fetched_at").
				Values(uuid.NewString(), studentID, semester,
					fields.courseCode, fields.courseName, fields.credit, fields.score, fields.gradePoint,
					hash, rawJSON, r.now()).
				Suffix("ON CONFLICT (student_id, semester, raw_hash) DO UPDATE SET " +
					"raw_json = EXCLUDED.raw_json, fetched_at = EXCLUDED.fetched_at, " +
					"course_code = EXCLUDED.course_code, course_name = EXCLUDED.course_name, " +
					"credit = EXCLUDED.credit, score = EXCLUDED.score, grade_point = EXCLUDED.grade_point").
				ToSql()
			if err != nil {
				return fmt.Errorf("building grade upsert: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("upserting grade row: %w", err)
			}
		}
		return nil
	})
}

// SaveSchedule appends a schedule snapshot and replaces the normalized
// schedule. All prior course rows for the (student, term) schedule are
// discarded in the same transaction, so schedules never accumulate stale
// entries.
func (r *Repo) SaveSchedule(ctx context.Context, studentID, account, term string, sched *extract.Schedule, payload []byte) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := r.ensureStudent(ctx, tx, studentID, account); err != nil {
			return err
		}
		if err := r.addSnapshot(ctx, tx, studentID, KindSchedule, term, payload); err != nil {
			return err
		}

		query, args, err := r.sb.Insert("academic_schedules").
			Columns("id", "student_id", "semester", "current_week", "raw_json", "fetched_at").
			Values(uuid.NewString(), studentID, term, sched.CurrentWeek, payload, r.now()).
			Suffix("ON CONFLICT (student_id, semester) DO UPDATE SET " +
				"current_week = EXCLUDED.current_week, raw_json = EXCLUDED.raw_json, " +
				"fetched_at = EXCLUDED.fetched_at RETURNING id").
			ToSql()
		if err != nil {
			return fmt.Errorf("building schedule upsert: %w", err)
		}

		var scheduleID string
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&scheduleID); err != nil {
			return fmt.Errorf("upserting schedule: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM academic_schedule_courses WHERE schedule_id = $1", scheduleID); err != nil {
			return fmt.Errorf("clearing schedule courses: %w", err)
		}

		for _, course := range sched.Courses {
			if !validCourse(course) {
				continue
			}
			hash, err := ContentHash(course)
			if err != nil {
				return err
			}
			query, args, err := r.sb.Insert("academic_schedule_courses").
				Columns("id", "schedule_id", "name", "teacher", "location",
					"weekday", "start_section", "end_section", "week_range", "weeks", "raw_hash").
				Values(uuid.NewString(), scheduleID, course.Name, course.Teacher, course.Location,
					course.Weekday, course.StartSection, course.EndSection,
					course.WeekRange, pq.Array(course.Weeks), hash).
				Suffix("ON CONFLICT (schedule_id, raw_hash) DO NOTHING").
				ToSql()
			if err != nil {
				return fmt.Errorf("building course insert: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("inserting course row: %w", err)
			}
		}
		return nil
	})
}

// LatestSnapshot returns the most recent snapshot payload for the given
// resource, or ok=false when none has ever been stored.
func (r *Repo) LatestSnapshot(ctx context.Context, studentID, kind, scope string) (json.RawMessage, time.Time, bool, error) {
	// Chained Where calls keep the bind-parameter order stable; a single
	// Eq map would render its keys sorted.
	query, args, err := r.sb.Select("payload", "fetched_at").
		From("academic_snapshots").
		Where(sq.Eq{"student_id": studentID}).
		Where(sq.Eq{"kind": kind}).
		Where(sq.Eq{"scope": scope}).
		OrderBy("fetched_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("building snapshot query: %w", err)
	}

	var payload []byte
	var fetchedAt time.Time
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&payload, &fetchedAt)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("reading latest snapshot: %w", err)
	}
	return payload, fetchedAt, true, nil
}

// addSnapshot appends one immutable extraction record.
func (r *Repo) addSnapshot(ctx context.Context, tx *sql.Tx, studentID, kind, scope string, payload []byte) error {
	query, args, err := r.sb.Insert("academic_snapshots").
		Columns("id", "student_id", "kind", "scope", "payload", "fetched_at").
		Values(uuid.NewString(), studentID, kind, scope, truncateSample(payload), r.now()).
		ToSql()
	if err != nil {
		return fmt.Errorf("building snapshot insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	return nil
}

func (r *Repo) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// validCourse filters rows that cannot satisfy the course table's
// constraints.
func validCourse(c extract.CourseEntry) bool {
	return c.Name != "" && c.Weekday >= 1 && c.Weekday <= 7 &&
		c.StartSection > 0 && c.EndSection >= c.StartSection
}

// gradeFields are the typed columns mirrored out of a raw grade row.
type gradeFields struct {
	courseCode string
	courseName string
	credit     string
	score      string
	gradePoint string
}

// extractGradeFields normalizes the portal's varying column names into
// typed fields, keeping the raw row authoritative.
func extractGradeFields(row map[string]string) gradeFields {
	pick := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := row[k]; ok && v != "" {
				return v
			}
		}
		return ""
	}
	return gradeFields{
		courseCode: pick("课程号", "课程代码", "课程编码", "课程编号"),
		courseName: pick("课程名称", "课程名", "课程"),
		credit:     pick("学分", "课程学分"),
		score:      pick("成绩", "总评成绩", "最终成绩", "总成绩"),
		gradePoint: pick("绩点", "GPA"),
	}
}

// truncateSample bounds any htmlSample field inside a snapshot payload.
func truncateSample(payload []byte) []byte {
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return payload
	}
	changed := false
	for _, key := range []string{"htmlSample", "html_sample"} {
		if s, ok := doc[key].(string); ok && len(s) > sampleColumnLimit {
			doc[key] = s[:sampleColumnLimit]
			changed = true
		}
	}
	if !changed {
		return payload
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return payload
	}
	return out
}
