package form

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/symptom-checker-server/internal/domain"
	"github.com/symptom-checker-server/internal/service"
)

// Submitter runs a submission. *service.AnalyzerService satisfies it.
type Submitter interface {
	Analyze(ctx context.Context, req service.AnalyzeRequest) (*domain.RenderedResult, error)
}

// Previewer decodes an accepted image for display. *service.ImageValidator satisfies it.
type Previewer interface {
	Preview(ctx context.Context, img *domain.AcceptedImage) (string, error)
}

const subscriberBuffer = 8

// Session owns one form's state. Events are applied one at a time under the session lock;
// effects run in their own goroutines and report back through Dispatch.
type Session struct {
	id        string
	reducer   *Reducer
	previewer Previewer
	submitter Submitter
	logger    *logrus.Logger
	onChange  func(id string, s State)

	mu          sync.Mutex
	state       State
	subscribers map[int]chan View
	nextSub     int
	updatedAt   time.Time
	closed      bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SessionDeps are the collaborators a session needs.
type SessionDeps struct {
	Reducer   *Reducer
	Previewer Previewer
	Submitter Submitter
	Logger    *logrus.Logger
	OnChange  func(id string, s State)
}

// NewSession creates a session with the given id and initial state.
func NewSession(id string, initial State, deps SessionDeps) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:          id,
		reducer:     deps.Reducer,
		previewer:   deps.Previewer,
		submitter:   deps.Submitter,
		logger:      deps.Logger,
		onChange:    deps.OnChange,
		state:       initial,
		subscribers: make(map[int]chan View),
		updatedAt:   time.Now(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Snapshot returns the current client view.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ToView()
}

// State returns a copy of the raw state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Dispatch applies an event and starts any effects it produced. It returns the view after
// the event was applied.
func (s *Session) Dispatch(ev Event) View {
	s.mu.Lock()
	if s.closed {
		view := s.state.ToView()
		s.mu.Unlock()
		return view
	}

	prev := s.state.Version
	next, effects := s.reducer.Reduce(s.state, ev)
	s.state = next
	view := next.ToView()
	changed := next.Version != prev
	if changed {
		s.updatedAt = time.Now()
		s.broadcastLocked(view)
		// Persisted under the lock so snapshots are written in version order.
		if s.onChange != nil {
			s.onChange(s.id, next)
		}
	}
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"session_id": s.id,
		"event":      EventName(ev),
		"version":    view.Version,
		"changed":    changed,
	}).Debug("Form event applied")

	for _, eff := range effects {
		s.run(eff)
	}
	return view
}

// track registers a running effect. It reports false once the session is closed, so no
// effect is added after Close starts waiting.
func (s *Session) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Session) run(eff Effect) {
	switch e := eff.(type) {
	case DecodePreview:
		if !s.track() {
			return
		}
		go func() {
			defer s.wg.Done()
			preview, err := s.previewer.Preview(s.ctx, e.Image)
			if err != nil {
				s.Dispatch(ImageDecodeFailed{Generation: e.Generation, Err: err})
				return
			}
			s.Dispatch(ImageDecoded{Generation: e.Generation, Preview: preview})
		}()
	case Submit:
		if !s.track() {
			return
		}
		go func() {
			defer s.wg.Done()
			result, err := s.submitter.Analyze(s.ctx, service.AnalyzeRequest{
				RequestID: uuid.New().String(),
				Form:      e.Form,
				Image:     e.Image,
			})
			if err != nil {
				s.Dispatch(SubmitFailed{Submission: e.Submission, Err: err})
				return
			}
			s.Dispatch(SubmitSucceeded{Submission: e.Submission, Result: result})
		}()
	case Notify:
		s.logger.WithFields(logrus.Fields{
			"session_id": s.id,
		}).WithError(e.Cause).Warn(e.Message)
	}
}

// broadcastLocked sends the view to every subscriber. A slow subscriber loses older
// views, never the newest one.
func (s *Session) broadcastLocked(view View) {
	for _, ch := range s.subscribers {
		select {
		case ch <- view:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- view:
			default:
			}
		}
	}
}

// Subscribe returns a channel of views, primed with the current one, and a function that
// ends the subscription.
func (s *Session) Subscribe() (<-chan View, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan View, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch
	ch <- s.state.ToView()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(sub)
			}
		})
	}
}

// UpdatedAt returns when the state last changed.
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// Wait blocks until all running effects have finished.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close cancels running effects, waits for them and ends all subscriptions.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
}
