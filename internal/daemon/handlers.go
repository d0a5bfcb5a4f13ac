package daemon

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/felixgeelhaar/intervue/internal/quota"
	"github.com/felixgeelhaar/intervue/internal/session"
	"github.com/felixgeelhaar/intervue/internal/sessionapi"
)

// maxBodyBytes bounds request bodies; resume feedback is the largest field
const maxBodyBytes = 1 << 20

func (s *Server) handleStartInterview(w http.ResponseWriter, r *http.Request, userID string) {
	var req sessionapi.StartRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.interviews.Start(r.Context(), userID, session.StartRequest{
		JobTitle:       req.JobTitle,
		ResumeFeedback: req.ResumeFeedback,
		QuestionLimit:  req.QuestionLimit,
		Difficulty:     req.Difficulty,
	})
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.metrics.InterviewStarted(result.Interview.Difficulty)

	s.jsonResponse(w, http.StatusCreated, sessionapi.StartResponse{
		SessionID: result.Interview.ID,
		Message:   result.Message,
	})
}

func (s *Server) handleGetInterview(w http.ResponseWriter, r *http.Request, userID string) {
	iv, err := s.interviews.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, interviewResponse(iv))
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request, userID string) {
	var req sessionapi.ReplyRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.interviews.Reply(r.Context(), userID, r.PathValue("id"), req.Text)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	if result.Ended {
		s.metrics.InterviewFinished(string(session.StatusCompleted))
	}

	s.jsonResponse(w, http.StatusOK, sessionapi.ReplyResponse{
		Message: result.Message,
		Ended:   result.Ended,
	})
}

func (s *Server) handleEndInterview(w http.ResponseWriter, r *http.Request, userID string) {
	id := r.PathValue("id")
	before, err := s.interviews.Get(r.Context(), userID, id)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	result, err := s.interviews.End(r.Context(), userID, id)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	if before.Active() {
		s.metrics.InterviewFinished(string(result.Status))
	}

	s.jsonResponse(w, http.StatusOK, sessionapi.EndResponse{
		Status:  string(result.Status),
		Message: result.Message,
	})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request, userID string) {
	id := r.PathValue("id")
	iv, err := s.interviews.Get(r.Context(), userID, id)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	entries, err := s.interviews.Transcript(r.Context(), userID, id)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, sessionapi.TranscriptResponse{
		SessionID: iv.ID,
		Status:    string(iv.Status),
		Entries:   entries,
	})
}

func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request, userID string) {
	st, err := s.interviews.Limits(r.Context(), userID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, limitsResponse(st))
}

func (s *Server) handleResetQuota(w http.ResponseWriter, r *http.Request, userID string) {
	st, err := s.interviews.ResetQuota(r.Context(), userID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, limitsResponse(st))
}

// decode reads a JSON body. An empty body decodes to the zero value.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		s.jsonError(w, http.StatusBadRequest, sessionapi.CodeBadRequest, "invalid request body", err)
		return false
	}
	return true
}

// serviceError maps interview service errors onto HTTP status codes and the
// error codes clients classify on
func (s *Server) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrQuotaExceeded):
		s.jsonError(w, http.StatusTooManyRequests, sessionapi.CodeQuotaExceeded,
			"You have reached today's interview limit. Please come back tomorrow.", nil)
	case errors.Is(err, session.ErrResumeMissing):
		s.jsonError(w, http.StatusBadRequest, sessionapi.CodeResumeMissing,
			"Please upload and analyze your resume before starting an interview.", nil)
	case errors.Is(err, session.ErrSessionNotFound):
		s.jsonError(w, http.StatusNotFound, sessionapi.CodeSessionInvalid, "interview not found", nil)
	case errors.Is(err, session.ErrSessionNotActive):
		s.jsonError(w, http.StatusGone, sessionapi.CodeSessionInvalid, "interview has already ended", nil)
	case errors.Is(err, session.ErrInvalidRequest):
		s.jsonError(w, http.StatusBadRequest, sessionapi.CodeBadRequest, "invalid interview request", err)
	default:
		s.logger.Error("interview request failed",
			"correlation_id", GetCorrelationID(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		s.jsonError(w, http.StatusInternalServerError, sessionapi.CodeInternal, "interview service error", err)
	}
}

func interviewResponse(iv *session.Interview) sessionapi.Interview {
	return sessionapi.Interview{
		SessionID:     iv.ID,
		JobTitle:      iv.JobTitle,
		Difficulty:    iv.Difficulty,
		QuestionLimit: iv.QuestionLimit,
		Status:        string(iv.Status),
		CreatedAt:     iv.CreatedAt,
		EndedAt:       iv.EndedAt,
	}
}

func limitsResponse(st quota.Status) sessionapi.Limits {
	return sessionapi.Limits{
		Remaining: st.Remaining,
		Limit:     st.Limit,
		ResetsAt:  st.ResetsAt,
	}
}
