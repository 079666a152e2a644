package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/jordanhubbard/tablechat/internal/analyst"
	"github.com/jordanhubbard/tablechat/internal/feedback"
	"github.com/jordanhubbard/tablechat/internal/provider"
	"github.com/jordanhubbard/tablechat/internal/table"
	"github.com/jordanhubbard/tablechat/internal/transcript"
)

// ChatResponse is the wire shape of a /chat answer. Result and Image are
// pointers so absent values serialize as explicit nulls.
type ChatResponse struct {
	GeneratedCode string  `json:"generated_code"`
	Result        any     `json:"result"`
	Image         *string `json:"image"`
	Error         *string `json:"error"`
	UserID        string  `json:"user_id"`
}

// handleUpload handles POST /upload
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	tbl, err := table.Parse(data)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := s.tables.Put(tbl)
	s.metrics.UploadsTotal.Inc()
	s.metrics.TablesStored.Set(float64(s.tables.Len()))

	s.respondJSON(w, http.StatusOK, map[string]string{"file_id": id})
}

// handleChat handles POST /chat
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req struct {
		Query  string `json:"query"`
		FileID string `json:"file_id"`
		UserID string `json:"user_id"`
	}
	if err := s.parseJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ans, err := s.analyst.Ask(r.Context(), req.Query, req.FileID, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, analyst.ErrEmptyQuestion):
			s.respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, table.ErrNotFound):
			s.respondError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, provider.ErrGeneration):
			s.metrics.GenerationsTotal.WithLabelValues("error").Inc()
			s.respondError(w, http.StatusBadGateway, err.Error())
		default:
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	s.metrics.GenerationsTotal.WithLabelValues("ok").Inc()
	s.metrics.ExecutionsTotal.WithLabelValues(outcomeLabel(ans)).Inc()
	if req.UserID != ans.SessionID {
		s.metrics.SessionsCreated.Inc()
	}

	resp := ChatResponse{
		GeneratedCode: ans.Outcome.GeneratedCode,
		Result:        ans.Outcome.Value,
		UserID:        ans.SessionID,
	}
	if ans.Outcome.Image != "" {
		resp.Image = &ans.Outcome.Image
	}
	if ans.Outcome.Error != "" {
		resp.Error = &ans.Outcome.Error
	}

	// Faults inside the snippet are a displayable outcome, not a failed
	// request.
	s.respondJSON(w, http.StatusOK, resp)
}

func outcomeLabel(ans *analyst.Answer) string {
	switch {
	case ans.Outcome.Error != "":
		return "error"
	case ans.Outcome.Image != "":
		return "image"
	default:
		return "value"
	}
}

// handleHistory handles GET /chat/history/{id}. An unknown id mints a fresh
// session rather than returning 404.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id := s.extractID(r.URL.Path, "/chat/history")
	tr, sid, err := s.analyst.History(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if id != sid {
		s.metrics.SessionsCreated.Inc()
	}

	s.respondJSON(w, http.StatusOK, struct {
		UserID  string               `json:"user_id"`
		History []transcript.Message `json:"history"`
	}{UserID: sid, History: tr.Messages})
}

// handleFeedback handles POST /chat/feedback
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req struct {
		Query    string `json:"query"`
		Code     string `json:"code"`
		Feedback string `json:"feedback"`
	}
	if err := s.parseJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.feedback.Record(r.Context(), req.Query, req.Code, req.Feedback); err != nil {
		if errors.Is(err, feedback.ErrInvalidRating) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.metrics.FeedbackTotal.WithLabelValues(req.Feedback).Inc()

	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
