package apihttp

import (
	"errors"
	"log/slog"
	"net/http"

	"moviecatalog/internal/domain"
	"moviecatalog/internal/intent"
	"moviecatalog/internal/session"
	"moviecatalog/internal/validate"
)

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session)

type outcomeResponse struct {
	Outcome intent.Outcome    `json:"outcome"`
	View    session.ViewModel `json:"view"`
}

type movieResponse struct {
	Movie domain.Movie      `json:"movie"`
	View  session.ViewModel `json:"view"`
}

func (s *Server) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.sessions.Get(r.PathValue("id"))
		if !ok {
			writeError(w, http.StatusNotFound, "session_not_found", "session not found")
			return
		}
		next(w, r, sess)
	}
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if err := decodeJSON(r, &body, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	sess, created, err := s.sessions.Open(r.Context(), body.ID)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, sess.View())
}

func (s *Server) handleRemoveSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.Remove(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "session_not_found", "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleView(w http.ResponseWriter, _ *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleSetQuery(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var body struct {
		Query string `json:"query"`
		// Submit skips the typing delay.
		Submit bool `json:"submit"`
	}
	if err := decodeJSON(r, &body, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	set := sess.SetQuery
	if body.Submit {
		set = sess.SubmitQuery
	}
	if err := set(r.Context(), body.Query); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleShowFavorites(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var body struct {
		Show bool `json:"show"`
	}
	if err := decodeJSON(r, &body, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := sess.SetShowFavorites(r.Context(), body.Show); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleSubmitUsername(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var body struct {
		Username string `json:"username"`
	}
	if err := decodeJSON(r, &body, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := sess.SubmitUsername(r.Context(), body.Username); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleChangeUser(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := sess.ChangeUser(r.Context()); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleCloseUsernamePrompt(w http.ResponseWriter, _ *http.Request, sess *session.Session) {
	sess.CloseUsernamePrompt()
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleFavorite(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	s.writeOutcome(w, sess)(sess.Favorite(r.PathValue("movieID")))
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	s.writeOutcome(w, sess)(sess.Edit(r.PathValue("movieID")))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	s.writeOutcome(w, sess)(sess.Delete(r.PathValue("movieID")))
}

func (s *Server) handleCreate(w http.ResponseWriter, _ *http.Request, sess *session.Session) {
	s.writeOutcome(w, sess)(sess.Create())
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var form validate.MovieForm
	if err := decodeJSON(r, &form, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	movie, err := sess.Save(form)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, movieResponse{Movie: movie, View: sess.View()})
}

func (s *Server) handleCloseEditor(w http.ResponseWriter, _ *http.Request, sess *session.Session) {
	sess.CloseEditor()
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleConfirmDelete(w http.ResponseWriter, _ *http.Request, sess *session.Session) {
	movie, err := sess.ConfirmDelete()
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, movieResponse{Movie: movie, View: sess.View()})
}

func (s *Server) handleCloseDeleteConfirm(w http.ResponseWriter, _ *http.Request, sess *session.Session) {
	sess.CloseDeleteConfirm()
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) writeOutcome(w http.ResponseWriter, sess *session.Session) func(intent.Outcome, error) {
	return func(outcome intent.Outcome, err error) {
		if err != nil {
			s.writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, outcomeResponse{Outcome: outcome, View: sess.View()})
	}
}

func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	var fields validate.Errors
	switch {
	case errors.As(err, &fields):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]any{
				"code":    "invalid_request",
				"message": "validation failed",
				"fields":  fields,
			},
		})
	case errors.Is(err, domain.ErrInvalidQuery),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, session.ErrInvalidSessionID):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusNotFound, "session_not_found", "session closed")
	case errors.Is(err, session.ErrNotPermitted):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, intent.ErrUsernameRequired):
		writeError(w, http.StatusConflict, "username_required", err.Error())
	case errors.Is(err, intent.ErrEditorClosed), errors.Is(err, intent.ErrNothingToDelete):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		s.logger.Error("session request failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
