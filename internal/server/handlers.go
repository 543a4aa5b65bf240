package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/p-n-ai/pai-arena/internal/content"
	"github.com/p-n-ai/pai-arena/internal/grading"
	"github.com/p-n-ai/pai-arena/internal/progress"
	"github.com/p-n-ai/pai-arena/internal/report"
)

const readyTimeout = 3 * time.Second

// submitRequest keeps its fields raw so a malformed submission is graded as empty
// code instead of failing the request.
type submitRequest struct {
	Code        json.RawMessage `json:"code"`
	AIAvailable json.RawMessage `json:"aiAvailable,omitempty"`
}

// code returns the submitted source, or "" when code is missing or not a string.
func (r submitRequest) code() string {
	var code string
	if err := json.Unmarshal(r.Code, &code); err != nil {
		return ""
	}
	return code
}

// aiAvailable defaults to true unless the client sent an explicit boolean.
func (r submitRequest) aiAvailable() bool {
	var available *bool
	if err := json.Unmarshal(r.AIAvailable, &available); err != nil || available == nil {
		return true
	}
	return *available
}

// decodeSubmission reads a grading request. Bodies that are empty or not a JSON
// object yield a zero request, which grades as an empty submission.
func decodeSubmission(w http.ResponseWriter, r *http.Request) submitRequest {
	var req submitRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		slog.Debug("malformed submission body", "path", r.URL.Path, "error", err)
		return submitRequest{}
	}
	return req
}

type submitResponse struct {
	Verdict    grading.Verdict           `json:"verdict"`
	Completion progress.CompletionResult `json:"completion"`
}

type createUserRequest struct {
	UserID string `json:"userId"`
}

type activityRequest struct {
	At *time.Time `json:"at,omitempty"`
}

type quizRequest struct {
	Score *int `json:"score"`
}

// progressView is a learner record plus its derived level.
type progressView struct {
	progress.LearnerProgress
	Level int `json:"level"`
}

type leaderboardResponse struct {
	Board     progress.Board      `json:"board"`
	Standings []progress.Standing `json:"standings"`
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	failed := make(map[string]string)
	for name, check := range s.checks {
		if err := check.HealthCheck(ctx); err != nil {
			slog.Warn("readiness check failed", "check", name, "error", err)
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "checks": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	item, err := s.catalog.Get(content.KindChallenge, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	req := decodeSubmission(w, r)

	verdict := s.engine.Grade(r.Context(), grading.Submission{
		Code:        req.code(),
		Item:        item,
		AIAvailable: req.aiAvailable(),
	})
	writeJSON(w, http.StatusOK, verdict)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	item, err := s.catalog.Get(content.KindChallenge, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	req := decodeSubmission(w, r)

	// Unknown learners are rejected before spending an AI call on them.
	if _, err := s.ledger.Progress(r.Context(), userID); err != nil {
		writeDomainError(w, r, err)
		return
	}

	verdict := s.engine.Grade(r.Context(), grading.Submission{
		UserID:      userID,
		Code:        req.code(),
		Item:        item,
		AIAvailable: req.aiAvailable(),
	})

	completion, err := s.ledger.ApplyCompletion(r.Context(), userID, item, verdict)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{Verdict: verdict, Completion: completion})
}

func (s *Server) handleCompleteLesson(w http.ResponseWriter, r *http.Request) {
	res, err := s.ledger.Complete(r.Context(), progress.CompletionRequest{
		UserID: r.PathValue("userID"),
		ItemID: r.PathValue("id"),
		Kind:   content.KindLesson,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleOnboardingQuiz(w http.ResponseWriter, r *http.Request) {
	var req quizRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Score == nil {
		writeError(w, http.StatusBadRequest, "score is required")
		return
	}

	res, err := s.ledger.CompleteOnboardingQuiz(r.Context(), r.PathValue("userID"), *req.Score)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	p, err := s.ledger.CreateLearner(r.Context(), req.UserID, s.now())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.view(p))
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	p, err := s.ledger.Progress(r.Context(), r.PathValue("userID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(p))
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	at := s.now()
	if req.At != nil {
		at = *req.At
	}

	res, err := s.ledger.RecordActivity(r.Context(), r.PathValue("userID"), at)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListing(kind content.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := s.ledger.Listing(r.Context(), r.PathValue("userID"), kind)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func (s *Server) standings(r *http.Request) (progress.Board, []progress.Standing, error) {
	board, err := progress.ParseBoard(r.URL.Query().Get("filter"))
	if err != nil {
		return "", nil, err
	}
	top, err := s.leaderboard.Top(r.Context(), board, s.leaderboardSize)
	if err != nil {
		return board, nil, fmt.Errorf("loading %s leaderboard: %w", board, err)
	}
	if top == nil {
		top = []progress.Standing{}
	}
	return board, top, nil
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, top, err := s.standings(r)
	if err != nil {
		if board == "" {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{Board: board, Standings: top})
}

func (s *Server) handleLeaderboardExport(w http.ResponseWriter, r *http.Request) {
	board, top, err := s.standings(r)
	if err != nil {
		if board == "" {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeDomainError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteLeaderboard(&buf, board, top); err != nil {
		writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(board, s.now())))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("failed to write leaderboard export", "error", err)
	}
}

func (s *Server) view(p progress.LearnerProgress) progressView {
	return progressView{LearnerProgress: p, Level: s.ledger.Level(p.XPTotal)}
}
