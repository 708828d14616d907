package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dshills/quorum/internal/diff"
	"github.com/dshills/quorum/internal/review"
	"github.com/dshills/quorum/internal/store"
)

const (
	codeBadRequest  = "bad_request"
	codeNotFound    = "not_found"
	codeUnavailable = "unavailable"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error  errorBody      `json:"error"`
	Report *review.Report `json:"report,omitempty"`
}

type manualRequest struct {
	Diff string `json:"diff"`
}

type githubRequest struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
	PR    int    `json:"pr"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"service": "quorum",
		"version": s.opts.Version,
		"endpoints": map[string]string{
			"health":        "GET /health",
			"manual_review": "POST /review/manual",
			"github_review": "POST /review/github",
			"reviews":       "GET /reviews",
			"review":        "GET /reviews/{id}",
			"metrics":       "GET /metrics",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "quorum"})
}

func (s *Server) handleManual(w http.ResponseWriter, r *http.Request) {
	var req manualRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Diff) == "" {
		s.writeError(w, http.StatusBadRequest, string(review.ClassInvalidDiff), "diff cannot be empty or whitespace only")
		return
	}
	s.review(w, r, req.Diff, review.Source{Mode: "manual"})
}

func (s *Server) handleGitHub(w http.ResponseWriter, r *http.Request) {
	if s.opts.Fetcher == nil {
		s.writeError(w, http.StatusServiceUnavailable, codeUnavailable, "GitHub reviews are not configured")
		return
	}
	var req githubRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.Owner = strings.TrimSpace(req.Owner)
	req.Repo = strings.TrimSpace(req.Repo)
	if req.Owner == "" || req.Repo == "" {
		s.writeError(w, http.StatusBadRequest, codeBadRequest, "owner and repo are required")
		return
	}
	if req.PR <= 0 {
		s.writeError(w, http.StatusBadRequest, codeBadRequest, "pr must be a positive number")
		return
	}

	text, err := s.opts.Fetcher.FetchDiff(r.Context(), req.Owner, req.Repo, req.PR)
	if err != nil {
		s.log.Warn("fetching pull request failed",
			"repo", req.Owner+"/"+req.Repo,
			"pr", req.PR,
			"reason", err.Error(),
		)
		s.writeError(w, fetchStatus(err), string(review.Classify(err)), err.Error())
		return
	}
	s.review(w, r, text, review.Source{Mode: "github", Repo: req.Owner + "/" + req.Repo, PR: req.PR})
}

func (s *Server) review(w http.ResponseWriter, r *http.Request, text string, src review.Source) {
	files, err := diff.Parse(text)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, string(review.ClassInvalidDiff), err.Error())
		return
	}

	report, err := s.opts.Reviewer.Run(r.Context(), files)
	if report != nil {
		report.Source = src
		report.ApplyMinConfidence(s.opts.MinConfidence)
		s.save(r, report)
	}
	if err != nil {
		var deadline *review.DeadlineError
		if errors.As(err, &deadline) {
			s.writeJSON(w, http.StatusGatewayTimeout, errorResponse{
				Error:  errorBody{Code: string(review.ClassRequestTimeout), Message: err.Error()},
				Report: report,
			})
			return
		}
		s.writeError(w, http.StatusInternalServerError, string(review.Classify(err)), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) save(r *http.Request, report *review.Report) {
	if s.opts.History == nil {
		return
	}
	// Saved even if the client has gone away.
	ctx := context.WithoutCancel(r.Context())
	if err := s.opts.History.Save(ctx, report); err != nil {
		s.log.Warn("saving review history failed", "id", report.ID, "reason", err.Error())
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		s.writeError(w, http.StatusServiceUnavailable, codeUnavailable, "review history is disabled")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, codeBadRequest, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = n
	}
	entries, err := s.opts.History.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, string(review.ClassInternal), err.Error())
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"reviews": entries})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		s.writeError(w, http.StatusServiceUnavailable, codeUnavailable, "review history is disabled")
		return
	}
	report, err := s.opts.History.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, codeNotFound, err.Error())
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, string(review.ClassInternal), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// fetchStatus maps a fetch failure to the HTTP status returned to the client.
func fetchStatus(err error) int {
	var hs interface{ HTTPStatus() int }
	if errors.As(err, &hs) {
		return hs.HTTPStatus()
	}
	return http.StatusBadGateway
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, codeBadRequest,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return false
		}
		s.writeError(w, http.StatusBadRequest, codeBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, msg string) {
	s.writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: msg}})
}

// writeJSON encodes v before writing the status. An unencodable value is
// logged and sent as a 500.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		s.log.Error("encoding response failed", "status", status, "error", err)
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorResponse{Error: errorBody{
			Code:    string(review.ClassInternal),
			Message: "encoding response: " + err.Error(),
		}})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
