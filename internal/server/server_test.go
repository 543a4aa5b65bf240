package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-arena/internal/ai"
	"github.com/p-n-ai/pai-arena/internal/content"
	"github.com/p-n-ai/pai-arena/internal/grading"
	"github.com/p-n-ai/pai-arena/internal/notify"
	"github.com/p-n-ai/pai-arena/internal/progress"
)

var fixedNow = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

const helloSolution = "def greet(name):\n    return 'Hello, ' + name"

func testItems() []content.Item {
	return []content.Item{
		{Kind: content.KindLesson, ID: "l1", Title: "Intro", XPReward: 10, Order: 1},
		{Kind: content.KindLesson, ID: "l2", Title: "Variables", XPReward: 15, Order: 2},
		{Kind: content.KindLesson, ID: "l3", Title: "Loops", XPReward: 20, Order: 3, UnlockXPRequired: 500},
		{Kind: content.KindChallenge, ID: "c1", Title: "Greeting", Language: "python", ReferenceSolution: helloSolution, Difficulty: content.DifficultyEasy, XPReward: 25, Order: 1},
	}
}

type fakeCheck struct{ err error }

func (f fakeCheck) HealthCheck(context.Context) error { return f.err }

type testServer struct {
	handler http.Handler
	ledger  *progress.Ledger
}

func newTestServer(t *testing.T, collaborator grading.Collaborator, checks map[string]HealthChecker) testServer {
	t.Helper()
	return newTestServerWithStore(t, progress.NewMemoryStore(), collaborator, checks)
}

func newTestServerWithStore(t *testing.T, store *progress.MemoryStore, collaborator grading.Collaborator, checks map[string]HealthChecker) testServer {
	t.Helper()
	catalog, err := content.NewStaticCatalog(testItems()...)
	if err != nil {
		t.Fatalf("NewStaticCatalog() error = %v", err)
	}
	board := progress.NewStoreLeaderboard(store)
	ledger, err := progress.NewLedger(progress.LedgerConfig{
		Store:       store,
		Catalog:     catalog,
		Leaderboard: board,
		Now:         func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("NewLedger() error = %v", err)
	}

	srv, err := New(Config{
		Engine:      grading.NewEngine(grading.EngineConfig{Collaborator: collaborator, AITimeout: time.Second}),
		Ledger:      ledger,
		Catalog:     catalog,
		Leaderboard: board,
		Notifier:    notify.NewHub(),
		Checks:      checks,
		Now:         func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return testServer{handler: srv.Handler(), ledger: ledger}
}

func (ts testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func (ts testServer) createUser(t *testing.T, userID string) {
	t.Helper()
	if rec := ts.do(t, http.MethodPost, "/api/users", `{"userId":"`+userID+`"}`); rec.Code != http.StatusCreated {
		t.Fatalf("create user status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() with no engine should fail")
	}
}

func TestHealthEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		checks     map[string]HealthChecker
		wantStatus int
		wantBody   string
	}{
		{"healthz returns 200", "/healthz", nil, http.StatusOK, `"status":"ok"`},
		{"readyz with no checks", "/readyz", nil, http.StatusOK, `"status":"ready"`},
		{"readyz healthy", "/readyz", map[string]HealthChecker{"database": fakeCheck{}}, http.StatusOK, `"status":"ready"`},
		{"readyz failing", "/readyz", map[string]HealthChecker{"database": fakeCheck{}, "cache": fakeCheck{errors.New("connection refused")}}, http.StatusServiceUnavailable, `"cache":"connection refused"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil, tt.checks)
			rec := ts.do(t, http.MethodGet, tt.path, "")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.do(t, http.MethodGet, "/healthz", "")
	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("response should carry a generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "req-123" {
		t.Errorf("request id = %q, want the caller's", got)
	}
}

func TestCreateUser(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.do(t, http.MethodPost, "/api/users", `{"userId":"u1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	view := decode[map[string]any](t, rec)
	if view["userId"] != "u1" || view["level"] != float64(1) || view["currentLessonOrder"] != float64(1) {
		t.Errorf("view = %v", view)
	}

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"duplicate", `{"userId":"u1"}`, http.StatusConflict},
		{"blank id", `{"userId":"  "}`, http.StatusBadRequest},
		{"not json", `userId=u2`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := ts.do(t, http.MethodPost, "/api/users", tt.body); rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestProgress(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	if rec := ts.do(t, http.MethodGet, "/api/users/nobody/progress", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown learner status = %d, want 404", rec.Code)
	}

	ts.createUser(t, "u1")
	rec := ts.do(t, http.MethodGet, "/api/users/u1/progress", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	view := decode[progressView](t, rec)
	if view.UserID != "u1" || view.XPTotal != 0 || view.Level != 1 {
		t.Errorf("view = %+v", view)
	}
	if !view.CreatedAt.Equal(fixedNow) {
		t.Errorf("CreatedAt = %v, want %v", view.CreatedAt, fixedNow)
	}
}

func TestValidate(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	tests := []struct {
		name        string
		path        string
		body        string
		wantStatus  int
		wantCorrect bool
	}{
		{"reference solution", "/api/challenges/c1/validate", `{"code":"def greet(name):\n    return 'Hello, ' + name"}`, http.StatusOK, true},
		{"empty code", "/api/challenges/c1/validate", `{"code":""}`, http.StatusOK, false},
		{"unknown challenge", "/api/challenges/nope/validate", `{"code":"x"}`, http.StatusNotFound, false},
		{"lesson is not a challenge", "/api/challenges/l1/validate", `{"code":"x"}`, http.StatusNotFound, false},
		{"missing body", "/api/challenges/c1/validate", "", http.StatusOK, false},
		{"numeric code", "/api/challenges/c1/validate", `{"code":123}`, http.StatusOK, false},
		{"array code", "/api/challenges/c1/validate", `{"code":["print(x)"]}`, http.StatusOK, false},
		{"body not an object", "/api/challenges/c1/validate", `[`, http.StatusOK, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if rec.Code != http.StatusOK {
				return
			}
			v := decode[grading.Verdict](t, rec)
			if v.IsCorrect != tt.wantCorrect {
				t.Errorf("IsCorrect = %v, want %v", v.IsCorrect, tt.wantCorrect)
			}
			if v.Source != grading.SourceHeuristic || v.Feedback == "" || v.TotalTests != 2 {
				t.Errorf("verdict = %+v", v)
			}
		})
	}
}

func TestSubmit_CreditsOnce(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.createUser(t, "u1")
	body := `{"code":"def greet(name):\n    return 'Hello, ' + name"}`

	rec := ts.do(t, http.MethodPost, "/api/users/u1/challenges/c1/submit", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	first := decode[submitResponse](t, rec)
	if !first.Verdict.IsCorrect || first.Completion.XPEarned != 25 || first.Completion.XPTotal != 25 || first.Completion.AlreadyCompleted {
		t.Errorf("first submit = %+v", first)
	}

	second := decode[submitResponse](t, ts.do(t, http.MethodPost, "/api/users/u1/challenges/c1/submit", body))
	if second.Completion.XPEarned != 0 || !second.Completion.AlreadyCompleted || second.Completion.XPTotal != 25 {
		t.Errorf("second submit = %+v", second.Completion)
	}

	wrong := decode[submitResponse](t, ts.do(t, http.MethodPost, "/api/users/u1/challenges/c1/submit", `{"code":"x = 1"}`))
	if wrong.Verdict.IsCorrect || wrong.Completion.XPEarned != 0 {
		t.Errorf("wrong submit = %+v", wrong)
	}
}

func TestSubmit_Errors(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.createUser(t, "u1")

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{"unknown learner", "/api/users/nobody/challenges/c1/submit", `{"code":"x"}`, http.StatusNotFound},
		{"unknown challenge", "/api/users/u1/challenges/zz/submit", `{"code":"x"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := ts.do(t, http.MethodPost, tt.path, tt.body); rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestSubmit_MalformedCodeGradesAsEmpty(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.createUser(t, "u1")

	bodies := map[string]string{
		"number":    `{"code":123}`,
		"array":     `{"code":["print(x)"]}`,
		"object":    `{"code":{"src":"print(x)"}}`,
		"null":      `{"code":null}`,
		"no body":   "",
		"not json":  `code=print(x)`,
		"bad flags": `{"code":42,"aiAvailable":"yes"}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/users/u1/challenges/c1/submit", body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
			}
			res := decode[submitResponse](t, rec)
			if res.Verdict.IsCorrect || res.Verdict.TestsPassed != 0 || res.Verdict.Feedback == "" {
				t.Errorf("verdict = %+v, want empty-submission verdict", res.Verdict)
			}
			if res.Completion.XPEarned != 0 || res.Completion.XPTotal != 0 {
				t.Errorf("completion = %+v, want no credit", res.Completion)
			}
		})
	}
}

func TestSubmit_UsesAIVerdict(t *testing.T) {
	mock := ai.NewMockProvider(`{"isCorrect": false, "feedback": "Close, but the greeting lacks a comma.", "testsPassed": 1, "hints": "Compare the expected output"}`)
	collab, err := grading.NewAICollaborator(mock, "")
	if err != nil {
		t.Fatalf("NewAICollaborator() error = %v", err)
	}
	ts := newTestServer(t, collab, nil)
	ts.createUser(t, "u1")

	// Matches the reference, so only the AI verdict can reject it.
	res := decode[submitResponse](t, ts.do(t, http.MethodPost, "/api/users/u1/challenges/c1/submit",
		`{"code":"def greet(name):\n    return 'Hello, ' + name"}`))
	if res.Verdict.Source != grading.SourceAI || res.Verdict.IsCorrect || res.Verdict.TestsPassed != 1 {
		t.Errorf("verdict = %+v, want AI rejection", res.Verdict)
	}
	if res.Completion.XPEarned != 0 {
		t.Errorf("XPEarned = %d, want 0", res.Completion.XPEarned)
	}

	// aiAvailable=false skips the collaborator.
	res = decode[submitResponse](t, ts.do(t, http.MethodPost, "/api/users/u1/challenges/c1/submit",
		`{"code":"def greet(name):\n    return 'Hello, ' + name","aiAvailable":false}`))
	if res.Verdict.Source != grading.SourceHeuristic || !res.Verdict.IsCorrect || res.Completion.XPEarned != 25 {
		t.Errorf("heuristic submit = %+v", res)
	}
	if mock.Calls() != 1 {
		t.Errorf("AI calls = %d, want 1", mock.Calls())
	}
}

func TestCompleteLesson(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.createUser(t, "u1")

	rec := ts.do(t, http.MethodPost, "/api/users/u1/lessons/l1/complete", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	res := decode[progress.CompletionResult](t, rec)
	if res.XPEarned != 10 || res.CurrentLessonOrder != 2 || res.Level != 1 {
		t.Errorf("completion = %+v", res)
	}

	again := decode[progress.CompletionResult](t, ts.do(t, http.MethodPost, "/api/users/u1/lessons/l1/complete", ""))
	if !again.AlreadyCompleted || again.XPEarned != 0 {
		t.Errorf("repeat completion = %+v", again)
	}

	if rec := ts.do(t, http.MethodPost, "/api/users/u1/lessons/c1/complete", ""); rec.Code != http.StatusNotFound {
		t.Errorf("challenge as lesson status = %d, want 404", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, "/api/users/nobody/lessons/l1/complete", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown learner status = %d, want 404", rec.Code)
	}
}

func TestActivity(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.createUser(t, "u1")

	// Same day as creation: streak stays 0.
	res := decode[progress.ActivityResult](t, ts.do(t, http.MethodPost, "/api/users/u1/activity", ""))
	if res.DailyStreak != 0 || !res.LastActivityAt.Equal(fixedNow) {
		t.Errorf("same-day activity = %+v", res)
	}

	res = decode[progress.ActivityResult](t, ts.do(t, http.MethodPost, "/api/users/u1/activity", `{"at":"2026-10-15T08:00:00Z"}`))
	if res.DailyStreak != 1 {
		t.Errorf("next-day streak = %d, want 1", res.DailyStreak)
	}

	if rec := ts.do(t, http.MethodPost, "/api/users/u1/activity", `{"at":"yesterday"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad timestamp status = %d, want 400", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, "/api/users/nobody/activity", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown learner status = %d, want 404", rec.Code)
	}
}

func TestListings(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.createUser(t, "u1")
	ts.do(t, http.MethodPost, "/api/users/u1/lessons/l1/complete", "")

	lessons := decode[[]map[string]any](t, ts.do(t, http.MethodGet, "/api/users/u1/lessons", ""))
	want := map[string]string{"l1": "completed", "l2": "current", "l3": "locked"}
	if len(lessons) != len(want) {
		t.Fatalf("got %d lessons, want %d", len(lessons), len(want))
	}
	for _, entry := range lessons {
		id, _ := entry["id"].(string)
		if entry["state"] != want[id] {
			t.Errorf("lesson %s state = %v, want %s", id, entry["state"], want[id])
		}
		if _, leaked := entry["referenceSolution"]; leaked {
			t.Errorf("lesson %s leaks the reference solution", id)
		}
	}

	challenges := decode[[]map[string]any](t, ts.do(t, http.MethodGet, "/api/users/u1/challenges", ""))
	if len(challenges) != 1 || challenges[0]["state"] != "available" || challenges[0]["unlocked"] != true {
		t.Errorf("challenges = %v", challenges)
	}

	if rec := ts.do(t, http.MethodGet, "/api/users/nobody/lessons", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown learner status = %d, want 404", rec.Code)
	}
}

func TestLeaderboard(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.createUser(t, "u1")
	ts.createUser(t, "u2")
	ts.do(t, http.MethodPost, "/api/users/u1/lessons/l1/complete", "")
	ts.do(t, http.MethodPost, "/api/users/u2/lessons/l1/complete", "")
	ts.do(t, http.MethodPost, "/api/users/u2/lessons/l2/complete", "")

	for _, filter := range []string{"", "?filter=global", "?filter=weekly"} {
		rec := ts.do(t, http.MethodGet, "/api/leaderboard"+filter, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%q status = %d", filter, rec.Code)
		}
		res := decode[leaderboardResponse](t, rec)
		if len(res.Standings) != 2 || res.Standings[0].UserID != "u2" || res.Standings[0].XP != 25 || res.Standings[1].Rank != 2 {
			t.Errorf("%q standings = %+v", filter, res.Standings)
		}
	}

	if rec := ts.do(t, http.MethodGet, "/api/leaderboard?filter=monthly", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown filter status = %d, want 400", rec.Code)
	}
}

func TestLeaderboard_SurvivesRestart(t *testing.T) {
	store := progress.NewMemoryStore()
	first := newTestServerWithStore(t, store, nil, nil)
	first.createUser(t, "alice")
	first.createUser(t, "bob")
	first.do(t, http.MethodPost, "/api/users/alice/lessons/l1/complete", "")
	first.do(t, http.MethodPost, "/api/users/alice/lessons/l2/complete", "")

	restarted := newTestServerWithStore(t, store, nil, nil)
	rec := restarted.do(t, http.MethodGet, "/api/leaderboard", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	res := decode[leaderboardResponse](t, rec)
	if len(res.Standings) != 2 || res.Standings[0].UserID != "alice" || res.Standings[0].XP != 25 {
		t.Errorf("standings after restart = %+v", res.Standings)
	}
}

func TestLeaderboard_WeeklyFollowsWeeklyXP(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.createUser(t, "u1")
	ts.createUser(t, "u2")
	ts.do(t, http.MethodPost, "/api/users/u1/lessons/l1/complete", "")
	ts.do(t, http.MethodPost, "/api/users/u2/onboarding-quiz", `{"score":90}`)

	global := decode[leaderboardResponse](t, ts.do(t, http.MethodGet, "/api/leaderboard", ""))
	if global.Standings[0].UserID != "u2" || global.Standings[0].XP != progress.OnboardingQuizXP {
		t.Errorf("global standings = %+v", global.Standings)
	}

	weekly := decode[leaderboardResponse](t, ts.do(t, http.MethodGet, "/api/leaderboard?filter=weekly", ""))
	if weekly.Standings[0].UserID != "u1" || weekly.Standings[0].XP != 10 || weekly.Standings[1].XP != 0 {
		t.Errorf("weekly standings = %+v", weekly.Standings)
	}
}

func TestOnboardingQuiz(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.createUser(t, "u1")

	rec := ts.do(t, http.MethodPost, "/api/users/u1/onboarding-quiz", `{"score":65}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	first := decode[progress.QuizResult](t, rec)
	if first.XPEarned != progress.OnboardingQuizXP || first.AlreadyCompleted || first.SkillLevel != progress.SkillIntermediate {
		t.Errorf("first result = %+v", first)
	}

	rec = ts.do(t, http.MethodPost, "/api/users/u1/onboarding-quiz", `{"score":95}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat status = %d", rec.Code)
	}
	again := decode[progress.QuizResult](t, rec)
	if again.XPEarned != 0 || !again.AlreadyCompleted || again.Score != 65 || again.XPTotal != progress.OnboardingQuizXP {
		t.Errorf("repeat result = %+v", again)
	}

	view := decode[progressView](t, ts.do(t, http.MethodGet, "/api/users/u1/progress", ""))
	if view.XPTotal != progress.OnboardingQuizXP || !view.OnboardingQuiz.Finished || view.OnboardingQuiz.SkillLevel != progress.SkillIntermediate {
		t.Errorf("progress = %+v", view.LearnerProgress)
	}
}

func TestOnboardingQuiz_Errors(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.createUser(t, "u1")

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{"score above 100", "/api/users/u1/onboarding-quiz", `{"score":101}`, http.StatusBadRequest},
		{"negative score", "/api/users/u1/onboarding-quiz", `{"score":-1}`, http.StatusBadRequest},
		{"fractional score", "/api/users/u1/onboarding-quiz", `{"score":50.5}`, http.StatusBadRequest},
		{"missing score", "/api/users/u1/onboarding-quiz", `{}`, http.StatusBadRequest},
		{"no body", "/api/users/u1/onboarding-quiz", "", http.StatusBadRequest},
		{"unknown learner", "/api/users/nobody/onboarding-quiz", `{"score":50}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := ts.do(t, http.MethodPost, tt.path, tt.body); rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d, body %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}

	p, err := ts.ledger.Progress(t.Context(), "u1")
	if err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	if p.OnboardingQuiz.Finished || p.XPTotal != 0 {
		t.Errorf("rejected attempts changed progress: %+v", p)
	}
}

func TestLeaderboardExport(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.createUser(t, "u1")
	ts.do(t, http.MethodPost, "/api/users/u1/lessons/l1/complete", "")

	rec := ts.do(t, http.MethodGet, "/api/leaderboard/export?filter=weekly", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "leaderboard-weekly-2026-10-14.xlsx") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()
	rows, _ := f.GetRows("Weekly")
	if len(rows) != 2 || rows[1][1] != "u1" || rows[1][2] != "10" {
		t.Errorf("rows = %v", rows)
	}

	if rec := ts.do(t, http.MethodGet, "/api/leaderboard/export?filter=daily", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown filter status = %d, want 400", rec.Code)
	}
}

func TestProgressStreamRoute(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	if rec := ts.do(t, http.MethodGet, "/ws/progress", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for missing user", rec.Code)
	}
}
