package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/session"
	"github.com/54b3r/docqa-go/internal/store"
)

// tokenHeader carries the per-session model credential. Its value is never
// logged.
const tokenHeader = "X-Model-Token"

// uploadField is the multipart form field holding the document.
const uploadField = "file"

// maxQuestionBytes bounds the ask request body.
const maxQuestionBytes = 64 << 10

// handleCreateSession handles POST /api/sessions. It analyses the uploaded
// document into a new session and returns the session summary.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	s.analyze(w, r, "", http.StatusCreated)
}

// handleReanalyze handles PUT /api/sessions/{id}/document. The new document
// replaces the session's index; on failure the previous index stays live.
func (s *Server) handleReanalyze(w http.ResponseWriter, r *http.Request) {
	s.analyze(w, r, r.PathValue("id"), http.StatusOK)
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request, id string, status int) {
	doc, err := s.readDocument(w, r)
	if err != nil {
		writeJSONError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	log := logging.FromContext(r.Context())
	log.Info("analyze requested",
		slog.String("filename", doc.Name),
		slog.Int("bytes", len(doc.Data)),
		slog.Bool("token_present", r.Header.Get(tokenHeader) != ""),
	)

	done := s.metrics.startOp("analyze")
	sess, err := s.sessions.Analyze(r.Context(), id, doc, session.Credentials{Token: r.Header.Get(tokenHeader)})
	done(outcomeFor(err))
	s.metrics.sessionsActive.Set(float64(s.sessions.Len()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	info := sess.Info()
	s.metrics.indexChunks.Observe(float64(info.Chunks))
	writeJSON(w, r, status, info)
}

// readDocument extracts the uploaded file from a multipart body, enforcing
// the upload size cap.
func (s *Server) readDocument(w http.ResponseWriter, r *http.Request) (ingestion.Document, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	f, hdr, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ingestion.Document{}, fmt.Errorf("document exceeds %d bytes", tooLarge.Limit)
		}
		return ingestion.Document{}, fmt.Errorf("multipart field %q is required", uploadField)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return ingestion.Document{}, fmt.Errorf("read upload: %w", err)
	}
	return ingestion.Document{Name: hdr.Filename, Data: data}, nil
}

// handleGetSession handles GET /api/sessions/{id}.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sess.Info())
}

// handleAsk handles POST /api/sessions/{id}/ask.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxQuestionBytes)).Decode(&req); err != nil {
		writeJSONError(w, r, "invalid request body", http.StatusBadRequest)
		return
	}

	id := r.PathValue("id")
	done := s.metrics.startOp("ask")
	answer, err := s.sessions.Ask(r.Context(), id, req.Question)
	done(outcomeFor(err))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, askResponse{SessionID: id, Answer: answer})
}

// handleQuiz handles POST /api/sessions/{id}/quiz.
func (s *Server) handleQuiz(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	done := s.metrics.startOp("quiz")
	quiz, err := s.sessions.Quiz(r.Context(), id)
	done(outcomeFor(err))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, quizResponse{SessionID: id, Quiz: quiz})
}

// handleHistory handles GET /api/sessions/{id}/history?limit=n.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSONError(w, r, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	id := r.PathValue("id")
	exchanges, err := s.sessions.History(r.Context(), id, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if exchanges == nil {
		exchanges = []store.Exchange{}
	}
	writeJSON(w, r, http.StatusOK, historyResponse{SessionID: id, Exchanges: exchanges})
}

// handleDeleteSession handles DELETE /api/sessions/{id}.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.sessions.Delete(r.Context(), id)
	s.metrics.sessionsActive.Set(float64(s.sessions.Len()))
	s.limiter.forgetSession(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
