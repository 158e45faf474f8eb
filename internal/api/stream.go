package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/symptom-checker-server/internal/form"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// streamMessage is what the server sends over the socket: either a view or an error
// about the last event the client sent.
type streamMessage struct {
	Type  string           `json:"type"`
	View  *sessionResponse `json:"view,omitempty"`
	Error string           `json:"error,omitempty"`
}

// handleFormStream upgrades to a websocket that pushes every new session view and
// accepts event envelopes from the client.
func (s *Server) handleFormStream(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	log := s.logger.WithFields(logrus.Fields{"session_id": sess.ID()})
	log.Debug("Form stream opened")

	views, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	rejected := make(chan string, 4)
	done := make(chan struct{})
	go s.readEvents(conn, sess, rejected, done, log)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		var msg *streamMessage
		select {
		case v, ok := <-views:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"), time.Now().Add(writeWait))
				return
			}
			msg = &streamMessage{Type: "view", View: &sessionResponse{ID: sess.ID(), View: v}}
		case reason := <-rejected:
			msg = &streamMessage{Type: "error", Error: reason}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
			continue
		case <-done:
			log.Debug("Form stream closed")
			return
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			log.WithError(err).Debug("Form stream write failed")
			return
		}
	}
}

// readEvents dispatches client envelopes until the connection fails.
func (s *Server) readEvents(conn *websocket.Conn, sess *form.Session, rejected chan<- string, done chan<- struct{}, log *logrus.Entry) {
	defer close(done)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("Form stream read failed")
			}
			return
		}

		var env form.Envelope
		ev, err := decodeEnvelope(data, &env)
		if err != nil {
			select {
			case rejected <- err.Error():
			default:
			}
			continue
		}
		sess.Dispatch(ev)
	}
}

func decodeEnvelope(data []byte, env *form.Envelope) (form.Event, error) {
	if err := json.Unmarshal(data, env); err != nil {
		return nil, fmt.Errorf("invalid event envelope: %w", err)
	}
	return form.DecodeEvent(*env)
}
