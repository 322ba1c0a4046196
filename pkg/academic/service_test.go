package academic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edubridge/portalsync/pkg/academic/repo"
	"github.com/edubridge/portalsync/pkg/cache"
	"github.com/edubridge/portalsync/pkg/portal"
	"github.com/edubridge/portalsync/pkg/portal/extract"
	"github.com/edubridge/portalsync/pkg/session"
)

const profilePage = `<html><body>
<table id="xjkpTable">
<tr><td>姓名：张三</td><td>学号：2021001</td></tr>
<tr><td>院系：经济学院</td><td>专业：金融学</td></tr>
</table>
</body></html>`

const gradesPage = `<html><body>
<table id="dataList">
<tr><th>课程名称</th><th>学分</th><th>成绩</th></tr>
<tr><td>高等数学</td><td>4</td><td>92</td></tr>
</table>
</body></html>`

const loginBouncePage = `<html><body>
<form action="/jsxsd/xk/LoginToXk"><input name="userAccount"/><input name="userPassword"/></form>
</body></html>`

// fakePortal scripts upstream behavior per test.
type fakePortal struct {
	loginResult *portal.LoginResult
	loginErr    error
	healthRes   *portal.HealthResult
	healthErr   error

	pages    map[string]*portal.Page
	fetchErr error
	calls    map[string]int
}

func newFakePortal() *fakePortal {
	return &fakePortal{
		pages: make(map[string]*portal.Page),
		calls: make(map[string]int),
	}
}

func (f *fakePortal) Health(_ context.Context, _ string) (*portal.HealthResult, error) {
	return f.healthRes, f.healthErr
}

func (f *fakePortal) Login(_ context.Context, _, _, _ string) (*portal.LoginResult, error) {
	return f.loginResult, f.loginErr
}

func (f *fakePortal) page(name string) (*portal.Page, error) {
	f.calls[name]++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if p, ok := f.pages[name]; ok {
		return p, nil
	}
	return &portal.Page{StatusCode: 200, Body: "<html></html>"}, nil
}

func (f *fakePortal) FetchProfile(_ context.Context, _ map[string]string, _ string) (*portal.Page, error) {
	return f.page("profile")
}

func (f *fakePortal) FetchSemesterOptions(_ context.Context, _ map[string]string, _ string) (*portal.Page, error) {
	return f.page("semesters")
}

func (f *fakePortal) FetchGrades(_ context.Context, _ map[string]string, _, _ string) (*portal.Page, error) {
	return f.page("grades")
}

func (f *fakePortal) FetchSchedule(_ context.Context, _ map[string]string, _, _ string) (*portal.Page, error) {
	return f.page("schedule")
}

// fakeSnapshots records saves and serves scripted snapshots.
type fakeSnapshots struct {
	saveErr   error
	saves     []string
	snapshot  json.RawMessage
	fetchedAt time.Time
}

func (f *fakeSnapshots) SaveProfile(_ context.Context, _, _ string, _ *extract.Profile, _ []byte) error {
	f.saves = append(f.saves, repo.KindProfile)
	return f.saveErr
}

func (f *fakeSnapshots) SaveSemesters(_ context.Context, _, _ string, _ []byte) error {
	f.saves = append(f.saves, repo.KindSemesters)
	return f.saveErr
}

func (f *fakeSnapshots) SaveGrades(_ context.Context, _, _, _ string, _ []map[string]string, _ []byte) error {
	f.saves = append(f.saves, repo.KindGrades)
	return f.saveErr
}

func (f *fakeSnapshots) SaveSchedule(_ context.Context, _, _, _ string, _ *extract.Schedule, _ []byte) error {
	f.saves = append(f.saves, repo.KindSchedule)
	return f.saveErr
}

func (f *fakeSnapshots) LatestSnapshot(_ context.Context, _, _, _ string) (json.RawMessage, time.Time, bool, error) {
	if f.snapshot == nil {
		return nil, time.Time{}, false, nil
	}
	return f.snapshot, f.fetchedAt, true, nil
}

type serviceFixture struct {
	svc      *Service
	portal   *fakePortal
	store    *fakeSnapshots
	sessions *session.MemoryStore
	hot      *cache.Memory
}

func newFixture(t *testing.T) *serviceFixture {
	t.Helper()

	fp := newFakePortal()
	fs := &fakeSnapshots{}
	sessions := session.NewMemoryStore(session.Config{
		AbsoluteTTL: 8 * time.Hour,
		IdleTTL:     time.Hour,
	})
	hot := cache.NewMemory()

	svc := NewService(Deps{
		Portal:   fp,
		Sessions: sessions,
		Cache:    hot,
		Store:    fs,
		TTLs: repo.CacheTTLs{
			Profile:   24 * time.Hour,
			Semesters: 12 * time.Hour,
			Grades:    6 * time.Hour,
			Schedule:  6 * time.Hour,
		},
	})
	return &serviceFixture{svc: svc, portal: fp, store: fs, sessions: sessions, hot: hot}
}

func (f *serviceFixture) login(t *testing.T) *session.Session {
	t.Helper()

	f.portal.loginResult = &portal.LoginResult{
		Success: true,
		Cookies: map[string]string{"JSESSIONID": "abc"},
	}
	sess, err := f.svc.Login(context.Background(), "2021001", "secret", "req-1")
	require.NoError(t, err)
	return sess
}

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t)

	sess := f.login(t)
	assert.Equal(t, "2021001", sess.Account)
	assert.Equal(t, "abc", sess.Cookies["JSESSIONID"])
	assert.NotEmpty(t, sess.ID)
}

func TestLoginRejected(t *testing.T) {
	f := newFixture(t)
	f.portal.loginResult = &portal.LoginResult{Success: false, StatusCode: 200}

	_, err := f.svc.Login(context.Background(), "2021001", "wrong", "req-1")
	require.Error(t, err)
	reason, ok := ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, ReasonCredentialsRejected, reason)
}

func TestLoginRejectedLogsDiagnostics(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	f.svc.log = slog.New(slog.NewTextHandler(&buf, nil))
	f.portal.loginResult = &portal.LoginResult{
		Success:    false,
		StatusCode: 302,
		Location:   "/jsxsd/xk/LoginToXk?error=1",
		Sample:     "<h1>用户登录</h1>",
	}

	_, err := f.svc.Login(context.Background(), "2021001", "hunter2", "req-1")
	require.Error(t, err)

	logged := buf.String()
	assert.Contains(t, logged, "/jsxsd/xk/LoginToXk?error=1")
	assert.Contains(t, logged, "用户登录")
	assert.Contains(t, logged, "status=302")
	assert.NotContains(t, logged, "hunter2", "credentials are never logged")
}

func TestLoginUpstreamDown(t *testing.T) {
	f := newFixture(t)
	f.portal.loginErr = errors.New("dial tcp: connection refused")

	_, err := f.svc.Login(context.Background(), "2021001", "secret", "req-1")
	reason, ok := ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, ReasonUpstreamUnreachable, reason)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	sess := f.login(t)

	require.NoError(t, f.svc.Logout(context.Background(), sess.ID))

	_, err := f.svc.Me(context.Background(), sess.ID, "req-2", false)
	reason, ok := ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, ReasonSessionInvalid, reason)
}

func TestMeLiveFetchThenCache(t *testing.T) {
	f := newFixture(t)
	sess := f.login(t)
	f.portal.pages["profile"] = &portal.Page{StatusCode: 200, Body: profilePage}

	result, err := f.svc.Me(context.Background(), sess.ID, "req-2", false)
	require.NoError(t, err)
	assert.Equal(t, SourceLive, result.Source)
	assert.False(t, result.Cached)

	var profile extract.Profile
	require.NoError(t, json.Unmarshal(result.Payload, &profile))
	assert.Equal(t, "张三", profile.Name)
	assert.Equal(t, "2021001", profile.StudentID)
	assert.Equal(t, []string{repo.KindProfile}, f.store.saves)

	// The service refreshes the hot cache itself after a successful save,
	// whatever the durable tier does.
	_, ok, _ := f.hot.Get(context.Background(), cache.ProfileKey("2021001"))
	assert.True(t, ok)

	// Second read is served from the hot cache, no upstream call.
	result, err = f.svc.Me(context.Background(), sess.ID, "req-3", false)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, result.Source)
	assert.True(t, result.Cached)
	assert.Equal(t, 1, f.portal.calls["profile"])
}

func TestMeRefreshBypassesCache(t *testing.T) {
	f := newFixture(t)
	sess := f.login(t)
	f.portal.pages["profile"] = &portal.Page{StatusCode: 200, Body: profilePage}

	_, err := f.svc.Me(context.Background(), sess.ID, "req-2", false)
	require.NoError(t, err)

	result, err := f.svc.Me(context.Background(), sess.ID, "req-3", true)
	require.NoError(t, err)
	assert.Equal(t, SourceLive, result.Source)
	assert.Equal(t, 2, f.portal.calls["profile"])
}

func TestMeWithoutSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Me(context.Background(), "", "req-1", false)
	reason, ok := ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, ReasonSessionInvalid, reason)

	_, err = f.svc.Me(context.Background(), "no-such-session", "req-1", false)
	reason, ok = ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, ReasonSessionInvalid, reason)
}

func TestMeFallsBackToSnapshotWhenUpstreamDown(t *testing.T) {
	f := newFixture(t)
	sess := f.login(t)
	f.portal.fetchErr = errors.New("dial tcp: i/o timeout")
	f.store.snapshot = json.RawMessage(`{"studentId":"2021001","name":"张三"}`)
	f.store.fetchedAt = time.Date(2026, 2, 20, 8, 0, 0, 0, time.UTC)

	result, err := f.svc.Me(context.Background(), sess.ID, "req-2", false)
	require.NoError(t, err)
	assert.Equal(t, SourceSnapshot, result.Source)
	assert.True(t, result.Fallback)
	assert.Equal(t, f.store.fetchedAt, result.FetchedAt)
	assert.JSONEq(t, string(f.store.snapshot), string(result.Payload))
}

func TestMeUpstreamDownNoSnapshot(t *testing.T) {
	f := newFixture(t)
	sess := f.login(t)
	f.portal.fetchErr = errors.New("dial tcp: i/o timeout")

	_, err := f.svc.Me(context.Background(), sess.ID, "req-2", false)
	reason, ok := ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, ReasonUpstreamUnreachable, reason)
}

func TestMeSessionExpiredUpstream(t *testing.T) {
	// The portal answers with its login page: the stored session is dead
	// upstream. That must invalidate the local session, and stored
	// snapshots must NOT mask the auth failure.
	f := newFixture(t)
	sess := f.login(t)
	f.portal.pages["profile"] = &portal.Page{StatusCode: 200, Body: loginBouncePage}
	f.store.snapshot = json.RawMessage(`{"studentId":"2021001"}`)

	_, err := f.svc.Me(context.Background(), sess.ID, "req-2", false)
	reason, ok := ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, ReasonSessionInvalid, reason)

	got, err := f.sessions.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "session should be discarded after an upstream bounce")
}

func TestGradesPersistenceWarningDoesNotFail(t *testing.T) {
	f := newFixture(t)
	sess := f.login(t)
	f.portal.pages["grades"] = &portal.Page{StatusCode: 200, Body: gradesPage}
	f.store.saveErr = errors.New("pq: connection refused")

	result, err := f.svc.Grades(context.Background(), sess.ID, "2025-2026-1", "req-2", false)
	require.NoError(t, err)
	assert.Equal(t, SourceLive, result.Source)
	assert.Equal(t, string(ReasonPersistenceWarning), result.Warning)

	// The payload is still cached despite the durable-store failure.
	_, ok, _ := f.hot.Get(context.Background(), cache.GradesKey("2021001", "2025-2026-1"))
	assert.True(t, ok)
}

func TestGradesCacheKeyPerSemester(t *testing.T) {
	f := newFixture(t)
	sess := f.login(t)
	f.portal.pages["grades"] = &portal.Page{StatusCode: 200, Body: gradesPage}

	_, err := f.svc.Grades(context.Background(), sess.ID, "2025-2026-1", "req-2", false)
	require.NoError(t, err)

	// A different semester misses the cache and fetches again.
	_, err = f.svc.Grades(context.Background(), sess.ID, "", "req-3", false)
	require.NoError(t, err)
	assert.Equal(t, 2, f.portal.calls["grades"])
}

func TestScheduleLiveFetch(t *testing.T) {
	f := newFixture(t)
	sess := f.login(t)
	f.portal.pages["schedule"] = &portal.Page{
		StatusCode: 200,
		Body: `<html><body>第3周
<table id="kbtable">
<tr><td>节次</td><td>星期一</td></tr>
<tr><td>1-2节</td><td><div class="kbcontent">高等数学<br/><font title="老师">王老师</font><font title="周次(节次)">1-16(周)</font><font title="教室">教1-101</font></div></td></tr>
</table></body></html>`,
	}

	result, err := f.svc.Schedule(context.Background(), sess.ID, "2025-2026-1", "req-2", false)
	require.NoError(t, err)
	assert.Equal(t, SourceLive, result.Source)

	var sched extract.Schedule
	require.NoError(t, json.Unmarshal(result.Payload, &sched))
	assert.Equal(t, "2025-2026-1", sched.Semester)
	assert.Equal(t, 3, sched.CurrentWeek)
	require.Len(t, sched.Courses, 1)
	assert.Equal(t, "高等数学", sched.Courses[0].Name)
	assert.Equal(t, []string{repo.KindSchedule}, f.store.saves)
}

func TestServiceHealth(t *testing.T) {
	f := newFixture(t)
	f.portal.healthRes = &portal.HealthResult{StatusCode: 200}

	res, err := f.svc.Health(context.Background(), "req-1")
	require.NoError(t, err)
	assert.True(t, res.Reachable())

	f.portal.healthRes = nil
	f.portal.healthErr = errors.New("dial tcp: connection refused")
	_, err = f.svc.Health(context.Background(), "req-1")
	reason, ok := ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, ReasonUpstreamUnreachable, reason)
}

func TestServiceWithoutDurableStore(t *testing.T) {
	f := newFixture(t)
	f.svc.store = nil
	sess := f.login(t)
	f.portal.pages["profile"] = &portal.Page{StatusCode: 200, Body: profilePage}

	result, err := f.svc.Me(context.Background(), sess.ID, "req-2", false)
	require.NoError(t, err)
	assert.Equal(t, SourceLive, result.Source)
	assert.Empty(t, result.Warning)

	// Cache still works; fallback does not exist.
	result, err = f.svc.Me(context.Background(), sess.ID, "req-3", false)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, result.Source)
}
