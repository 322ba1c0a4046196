// Package academic implements the synchronization service: authenticated
// access to the institutional portal with a layered read path. Reads try
// the hot cache, then a live fetch, then the newest durable snapshot, so
// a portal outage degrades freshness rather than availability.
package academic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/edubridge/portalsync/pkg/academic/repo"
	"github.com/edubridge/portalsync/pkg/cache"
	"github.com/edubridge/portalsync/pkg/portal"
	"github.com/edubridge/portalsync/pkg/portal/extract"
	"github.com/edubridge/portalsync/pkg/session"
)

// Data sources reported to callers.
const (
	SourceCache    = "cache"
	SourceLive     = "live"
	SourceSnapshot = "snapshot"
)

// PortalClient is the live upstream used for authentication and raw page
// fetches.
type PortalClient interface {
	Health(ctx context.Context, requestID string) (*portal.HealthResult, error)
	Login(ctx context.Context, username, password, requestID string) (*portal.LoginResult, error)
	FetchProfile(ctx context.Context, cookies map[string]string, requestID string) (*portal.Page, error)
	FetchSemesterOptions(ctx context.Context, cookies map[string]string, requestID string) (*portal.Page, error)
	FetchGrades(ctx context.Context, cookies map[string]string, semester, requestID string) (*portal.Page, error)
	FetchSchedule(ctx context.Context, cookies map[string]string, term, requestID string) (*portal.Page, error)
}

// Snapshots is the durable tier: normalized state plus the append-only
// history the fallback path reads.
type Snapshots interface {
	SaveProfile(ctx context.Context, studentID, account string, p *extract.Profile, payload []byte) error
	SaveSemesters(ctx context.Context, studentID, account string, payload []byte) error
	SaveGrades(ctx context.Context, studentID, account, semester string, rows []map[string]string, payload []byte) error
	SaveSchedule(ctx context.Context, studentID, account, term string, sched *extract.Schedule, payload []byte) error
	LatestSnapshot(ctx context.Context, studentID, kind, scope string) (json.RawMessage, time.Time, bool, error)
}

// Result is one read outcome with its provenance.
type Result struct {
	// Source is where the payload came from: cache, live, or snapshot.
	Source string
	// Cached is true for hot cache hits.
	Cached bool
	// Fallback is true when the payload is a stored snapshot served
	// because the live path failed.
	Fallback bool
	// Payload is the JSON document served to the caller.
	Payload json.RawMessage
	// FetchedAt is the snapshot's original fetch time; zero otherwise.
	FetchedAt time.Time
	// Warning carries a non-fatal reason code, if any.
	Warning string
}

// Deps wires the service's collaborators. Store may be nil: the service
// then runs without a durable tier and snapshot fallback is unavailable.
type Deps struct {
	Portal   PortalClient
	Sessions session.Store
	Cache    cache.Cache
	Store    Snapshots
	Parser   extract.ScheduleParser
	TTLs     repo.CacheTTLs
	Logger   *slog.Logger
}

// Service coordinates sessions, the portal, and the storage tiers.
type Service struct {
	portal   PortalClient
	sessions session.Store
	hot      cache.Cache
	store    Snapshots
	parser   extract.ScheduleParser
	ttls     repo.CacheTTLs
	log      *slog.Logger

	// group collapses concurrent live fetches of the same resource into
	// one upstream request.
	group singleflight.Group
}

// NewService creates the synchronization service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	parser := deps.Parser
	if parser == nil {
		parser = extract.NewScheduleParser("")
	}
	return &Service{
		portal:   deps.Portal,
		sessions: deps.Sessions,
		hot:      deps.Cache,
		store:    deps.Store,
		parser:   parser,
		ttls:     deps.TTLs,
		log:      logger,
	}
}

// Health probes the portal and reports raw reachability.
func (s *Service) Health(ctx context.Context, requestID string) (*portal.HealthResult, error) {
	result, err := s.portal.Health(ctx, requestID)
	if err != nil {
		return nil, NewError(ReasonUpstreamUnreachable, "probing portal", err)
	}
	return result, nil
}

// Login authenticates against the portal and establishes a session.
func (s *Service) Login(ctx context.Context, username, password, requestID string) (*session.Session, error) {
	result, err := s.portal.Login(ctx, username, password, requestID)
	if err != nil {
		return nil, NewError(ReasonUpstreamUnreachable, "reaching portal login", err)
	}
	if !result.Success {
		// Status, redirect target and the bounded page sample are the
		// operator's only clues to a marker drift; credentials are never
		// logged.
		s.log.Info("portal rejected credentials",
			"account", username, "status", result.StatusCode,
			"location", result.Location, "sample", result.Sample,
			"requestId", requestID)
		return nil, NewError(ReasonCredentialsRejected, "portal rejected credentials", nil)
	}

	sess, err := s.sessions.Create(ctx, username, result.Cookies)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	s.log.Info("session established", "account", username, "requestId", requestID)
	return sess, nil
}

// Logout discards the session. Unknown sessions are not an error.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// Me returns the student's profile.
func (s *Service) Me(ctx context.Context, sessionID, requestID string, refresh bool) (*Result, error) {
	return s.resource(ctx, sessionID, resourceSpec{
		key:   func(studentID string) string { return cache.ProfileKey(studentID) },
		kind:  repo.KindProfile,
		scope: "",
		ttl:   s.ttls.Profile,
		fetch: s.fetchProfile(requestID),
	}, refresh)
}

// Semesters returns the term options the portal offers.
func (s *Service) Semesters(ctx context.Context, sessionID, requestID string, refresh bool) (*Result, error) {
	return s.resource(ctx, sessionID, resourceSpec{
		key:   func(studentID string) string { return cache.SemestersKey(studentID) },
		kind:  repo.KindSemesters,
		scope: "",
		ttl:   s.ttls.Semesters,
		fetch: s.fetchSemesters(requestID),
	}, refresh)
}

// Grades returns the grade table for one semester, or all semesters when
// semester is empty.
func (s *Service) Grades(ctx context.Context, sessionID, semester, requestID string, refresh bool) (*Result, error) {
	return s.resource(ctx, sessionID, resourceSpec{
		key:   func(studentID string) string { return cache.GradesKey(studentID, semester) },
		kind:  repo.KindGrades,
		scope: semester,
		ttl:   s.ttls.Grades,
		fetch: s.fetchGrades(semester, requestID),
	}, refresh)
}

// Schedule returns the weekly timetable for one term, or the current term
// when term is empty.
func (s *Service) Schedule(ctx context.Context, sessionID, term, requestID string, refresh bool) (*Result, error) {
	return s.resource(ctx, sessionID, resourceSpec{
		key:   func(studentID string) string { return cache.ScheduleKey(studentID, term) },
		kind:  repo.KindSchedule,
		scope: term,
		ttl:   s.ttls.Schedule,
		fetch: s.fetchSchedule(term, requestID),
	}, refresh)
}

// resourceSpec describes one cached resource's read path.
type resourceSpec struct {
	key   func(studentID string) string
	kind  string
	scope string
	ttl   time.Duration
	fetch func(ctx context.Context, sess *session.Session) ([]byte, string, error)
}

// resource runs the layered read: hot cache, then a collapsed live fetch,
// then the newest snapshot when the live path fails for reasons other
// than an invalid session.
func (s *Service) resource(ctx context.Context, sessionID string, spec resourceSpec, refresh bool) (*Result, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	key := spec.key(sess.Account)

	if !refresh {
		value, ok, err := s.hot.Get(ctx, key)
		if err != nil {
			s.log.Warn("hot cache read failed", "key", key, "error", err)
		} else if ok {
			return &Result{Source: SourceCache, Cached: true, Payload: json.RawMessage(value)}, nil
		}
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		payload, warning, err := spec.fetch(ctx, sess)
		if err != nil {
			return nil, err
		}
		return &Result{Source: SourceLive, Payload: payload, Warning: warning}, nil
	})
	if err == nil {
		return v.(*Result), nil
	}

	if reason, ok := ReasonOf(err); ok && reason != ReasonSessionInvalid {
		if result, found := s.snapshotFallback(ctx, sess.Account, spec.kind, spec.scope); found {
			s.log.Warn("serving stored snapshot", "key", key, "cause", err)
			return result, nil
		}
	}
	return nil, err
}

func (s *Service) session(ctx context.Context, id string) (*session.Session, error) {
	if id == "" {
		return nil, NewError(ReasonSessionInvalid, "missing session", nil)
	}
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if sess == nil {
		return nil, NewError(ReasonSessionInvalid, "session not found or expired", nil)
	}
	return sess, nil
}

// snapshotFallback serves the newest stored snapshot, if any.
func (s *Service) snapshotFallback(ctx context.Context, studentID, kind, scope string) (*Result, bool) {
	if s.store == nil {
		return nil, false
	}
	payload, fetchedAt, ok, err := s.store.LatestSnapshot(ctx, studentID, kind, scope)
	if err != nil {
		s.log.Warn("snapshot lookup failed", "student", studentID, "kind", kind, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return &Result{
		Source:    SourceSnapshot,
		Fallback:  true,
		Payload:   payload,
		FetchedAt: fetchedAt,
	}, true
}

func (s *Service) fetchProfile(requestID string) func(ctx context.Context, sess *session.Session) ([]byte, string, error) {
	return func(ctx context.Context, sess *session.Session) ([]byte, string, error) {
		page, err := s.portal.FetchProfile(ctx, sess.Cookies, requestID)
		if err != nil {
			return nil, "", NewError(ReasonUpstreamUnreachable, "fetching profile page", err)
		}
		profile, err := extract.ParseProfile(page.Body)
		if err != nil {
			return nil, "", s.classifyExtraction(ctx, sess, "parsing profile page", err)
		}
		if profile.StudentID == "" {
			profile.StudentID = sess.Account
		}

		payload, err := json.Marshal(profile)
		if err != nil {
			return nil, "", fmt.Errorf("encoding profile: %w", err)
		}
		warning := s.persist(ctx, cache.ProfileKey(sess.Account), payload, s.ttls.Profile, func() error {
			return s.store.SaveProfile(ctx, sess.Account, sess.Account, profile, payload)
		})
		return payload, warning, nil
	}
}

func (s *Service) fetchSemesters(requestID string) func(ctx context.Context, sess *session.Session) ([]byte, string, error) {
	return func(ctx context.Context, sess *session.Session) ([]byte, string, error) {
		page, err := s.portal.FetchSemesterOptions(ctx, sess.Cookies, requestID)
		if err != nil {
			return nil, "", NewError(ReasonUpstreamUnreachable, "fetching semester options", err)
		}
		options, err := extract.ParseSemesters(page.Body)
		if err != nil {
			return nil, "", s.classifyExtraction(ctx, sess, "parsing semester options", err)
		}

		payload, err := json.Marshal(options)
		if err != nil {
			return nil, "", fmt.Errorf("encoding semester options: %w", err)
		}
		warning := s.persist(ctx, cache.SemestersKey(sess.Account), payload, s.ttls.Semesters, func() error {
			return s.store.SaveSemesters(ctx, sess.Account, sess.Account, payload)
		})
		return payload, warning, nil
	}
}

func (s *Service) fetchGrades(semester, requestID string) func(ctx context.Context, sess *session.Session) ([]byte, string, error) {
	return func(ctx context.Context, sess *session.Session) ([]byte, string, error) {
		page, err := s.portal.FetchGrades(ctx, sess.Cookies, semester, requestID)
		if err != nil {
			return nil, "", NewError(ReasonUpstreamUnreachable, "fetching grades page", err)
		}
		table, err := extract.ParseGrades(page.Body)
		if err != nil {
			return nil, "", s.classifyExtraction(ctx, sess, "parsing grades page", err)
		}

		payload, err := json.Marshal(table)
		if err != nil {
			return nil, "", fmt.Errorf("encoding grade table: %w", err)
		}
		warning := s.persist(ctx, cache.GradesKey(sess.Account, semester), payload, s.ttls.Grades, func() error {
			return s.store.SaveGrades(ctx, sess.Account, sess.Account, semester, table.Rows, payload)
		})
		return payload, warning, nil
	}
}

func (s *Service) fetchSchedule(term, requestID string) func(ctx context.Context, sess *session.Session) ([]byte, string, error) {
	return func(ctx context.Context, sess *session.Session) ([]byte, string, error) {
		page, err := s.portal.FetchSchedule(ctx, sess.Cookies, term, requestID)
		if err != nil {
			return nil, "", NewError(ReasonUpstreamUnreachable, "fetching schedule page", err)
		}
		sched, err := s.parser.ParseSchedule(extract.ScheduleInput{
			HTML:     page.Body,
			Semester: term,
			PageURL:  page.URL,
		})
		if err != nil {
			return nil, "", s.classifyExtraction(ctx, sess, "parsing schedule page", err)
		}

		payload, err := json.Marshal(sched)
		if err != nil {
			return nil, "", fmt.Errorf("encoding schedule: %w", err)
		}
		warning := s.persist(ctx, cache.ScheduleKey(sess.Account, term), payload, s.ttls.Schedule, func() error {
			return s.store.SaveSchedule(ctx, sess.Account, sess.Account, term, sched, payload)
		})
		return payload, warning, nil
	}
}

// classifyExtraction separates "the portal bounced us to its login page"
// from a genuinely unparseable page. The former invalidates the session.
func (s *Service) classifyExtraction(ctx context.Context, sess *session.Session, message string, err error) error {
	if errors.Is(err, extract.ErrLoginPage) {
		if delErr := s.sessions.Delete(ctx, sess.ID); delErr != nil {
			s.log.Warn("discarding invalidated session failed", "session", sess.ID, "error", delErr)
		}
		return NewError(ReasonSessionInvalid, "portal session expired upstream", err)
	}
	return NewError(ReasonExtractionDegraded, message, err)
}

// persist writes through the durable tier and refreshes the hot cache.
// Persistence failure degrades to a cache-only write and a warning; the
// fetched payload is still served either way.
func (s *Service) persist(ctx context.Context, key string, payload []byte, ttl time.Duration, save func() error) string {
	s.cacheSet(ctx, key, payload, ttl)
	if s.store == nil {
		return ""
	}
	if err := save(); err != nil {
		s.log.Warn("durable persistence failed", "key", key, "error", err)
		return string(ReasonPersistenceWarning)
	}
	return ""
}

func (s *Service) cacheSet(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	if err := s.hot.Set(ctx, key, string(payload), ttl); err != nil {
		s.log.Warn("hot cache write failed", "key", key, "error", err)
	}
}
