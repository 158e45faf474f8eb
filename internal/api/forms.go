package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/symptom-checker-server/internal/domain"
	"github.com/symptom-checker-server/internal/form"
)

// sessionResponse is a session view together with its id.
type sessionResponse struct {
	ID string `json:"id"`
	form.View
}

func (s *Server) session(c *gin.Context) (*form.Session, bool) {
	sess, err := s.forms.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return nil, false
	}
	return sess, true
}

// respond writes the session view. With ?wait=true it first waits until no preview
// decode or submission is running.
func (s *Server) respond(c *gin.Context, status int, sess *form.Session, view form.View) {
	if c.Query("wait") == "true" {
		view = waitSettled(c.Request.Context(), sess, view)
	}
	c.JSON(status, sessionResponse{ID: sess.ID(), View: view})
}

func settled(v form.View) bool {
	return !v.Submitting && !v.Image.Decoding
}

// waitSettled returns the first settled view at or after last, or the latest view seen
// when ctx ends first.
func waitSettled(ctx context.Context, sess *form.Session, last form.View) form.View {
	if settled(last) {
		return last
	}
	views, cancel := sess.Subscribe()
	defer cancel()
	for {
		select {
		case v, ok := <-views:
			if !ok {
				return last
			}
			if v.Version >= last.Version {
				last = v
				if settled(v) {
					return v
				}
			}
		case <-ctx.Done():
			return last
		}
	}
}

func (s *Server) handleCreateForm(c *gin.Context) {
	sess, err := s.forms.Create(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sessionResponse{ID: sess.ID(), View: sess.Snapshot()})
}

func (s *Server) handleGetForm(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	s.respond(c, http.StatusOK, sess, sess.Snapshot())
}

func (s *Server) handleDeleteForm(c *gin.Context) {
	if err := s.forms.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleFormEvent applies one client event to the session.
func (s *Server) handleFormEvent(c *gin.Context) {
	var env form.Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		s.badRequest(c, "Invalid event body", err)
		return
	}
	ev, err := form.DecodeEvent(env)
	if err != nil {
		s.badRequest(c, "Invalid event", err)
		return
	}

	sess, ok := s.session(c)
	if !ok {
		return
	}
	switch ev.(type) {
	case form.SubmitRequested, form.Reset:
		if sess.Snapshot().Submitting {
			s.writeError(c, domain.ErrSubmissionInFlight)
			return
		}
	}

	s.respond(c, http.StatusOK, sess, sess.Dispatch(ev))
}

// handleFormImage selects a new image for the session. Intake errors are reported in the
// view's image field, not as an HTTP error.
func (s *Server) handleFormImage(c *gin.Context) {
	file, err := imageFromRequest(c)
	if err != nil {
		s.badRequest(c, "Invalid multipart body", err)
		return
	}
	if file == nil {
		s.badRequest(c, "An image file is required in the \"image\" field", nil)
		return
	}
	file, err = retainImage(file)
	if err != nil {
		s.writeError(c, err)
		return
	}

	sess, ok := s.session(c)
	if !ok {
		return
	}
	s.respond(c, http.StatusOK, sess, sess.Dispatch(form.ImageSelected{File: file}))
}

func (s *Server) handleFormImageRemove(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	s.respond(c, http.StatusOK, sess, sess.Dispatch(form.ImageRemoved{}))
}
