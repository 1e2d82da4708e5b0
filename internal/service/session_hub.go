package service

import (
	"sync"
	"time"

	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
)

// SessionEventHub fans session events out to in-process subscribers keyed by session id.
// Each subscriber receives events on its own goroutine, in the order they were dispatched.
type SessionEventHub struct {
	mu   sync.Mutex
	next uint64
	subs map[string]map[uint64]*sessionSubscription
}

// NewSessionEventHub creates an empty hub.
func NewSessionEventHub() *SessionEventHub {
	return &SessionEventHub{subs: make(map[string]map[uint64]*sessionSubscription)}
}

// Dispatch queues evt for every subscriber of evt.SessionID.
func (h *SessionEventHub) Dispatch(evt domainauth.SessionEvent) {
	h.mu.Lock()
	targets := make([]*sessionSubscription, 0, len(h.subs[evt.SessionID]))
	for _, sub := range h.subs[evt.SessionID] {
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	for _, sub := range targets {
		sub.push(evt)
	}
}

// Subscribers returns the number of live subscriptions for a session.
func (h *SessionEventHub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}

func (h *SessionEventHub) add(sub *sessionSubscription) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	if h.subs[sub.sessionID] == nil {
		h.subs[sub.sessionID] = make(map[uint64]*sessionSubscription)
	}
	h.subs[sub.sessionID][h.next] = sub
	return h.next
}

func (h *SessionEventHub) remove(sessionID string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[sessionID], id)
	if len(h.subs[sessionID]) == 0 {
		delete(h.subs, sessionID)
	}
}

// sessionSubscription is an unbounded FIFO drained by one goroutine.
type sessionSubscription struct {
	sessionID string
	deliver   func(domainauth.SessionEvent)

	mu     sync.Mutex
	queue  []domainauth.SessionEvent
	wake   chan struct{}
	done   chan struct{}
	closed bool
	expiry *time.Timer
}

func newSessionSubscription(sessionID string, deliver func(domainauth.SessionEvent)) *sessionSubscription {
	return &sessionSubscription{
		sessionID: sessionID,
		deliver:   deliver,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

func (s *sessionSubscription) push(evt domainauth.SessionEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, evt)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// initialLoad reads the session's current state. ok=false means the read failed
// transiently and should be retried.
type initialLoad func() (evt domainauth.SessionEvent, ok bool)

// loadRetry bounds the backoff between failed initial loads.
type loadRetry struct {
	base, max time.Duration
}

// run delivers the initial load and then drains the queue until close. A failed load is
// retried with doubling delay and nothing is delivered meanwhile; an event dispatched during
// the retries supersedes the load.
func (s *sessionSubscription) run(first initialLoad, retry loadRetry) {
	delay := retry.base
load:
	for {
		evt, ok := first()
		if s.isClosed() {
			return
		}
		if ok {
			s.handle(evt)
			break
		}
		select {
		case <-time.After(delay):
		case <-s.wake:
			break load
		case <-s.done:
			return
		}
		delay = min(delay*2, retry.max)
	}

	for {
		for {
			evt, ok := s.pop()
			if !ok {
				break
			}
			s.handle(evt)
		}
		select {
		case <-s.wake:
		case <-s.done:
			return
		}
	}
}

func (s *sessionSubscription) pop() (domainauth.SessionEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.queue) == 0 {
		return domainauth.SessionEvent{}, false
	}
	evt := s.queue[0]
	s.queue = s.queue[1:]
	return evt, true
}

func (s *sessionSubscription) handle(evt domainauth.SessionEvent) {
	s.armExpiry(evt)
	if s.isClosed() {
		return
	}
	s.deliver(evt)
}

// armExpiry schedules a nil event at the session's expiry; any later event replaces it.
func (s *sessionSubscription) armExpiry(evt domainauth.SessionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
	if s.closed || evt.Principal == nil || evt.ExpiresAt.IsZero() {
		return
	}
	s.expiry = time.AfterFunc(time.Until(evt.ExpiresAt), func() {
		s.push(domainauth.SessionEvent{SessionID: s.sessionID})
	})
}

func (s *sessionSubscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *sessionSubscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.queue = nil
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
	close(s.done)
}
