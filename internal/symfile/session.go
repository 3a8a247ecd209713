// Package symfile manages symbol images and the sparse loader operation
// tables behind them, with switchable call tracing over every table.
//
// A Session owns spaces of images, the trace toggle, and the side
// entries that remember each image's own table while a logging shadow is
// installed in its place. Flipping the toggle walks every live image and
// installs or removes wrappers so the whole session is always in one
// state.
package symfile

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Session is the root object of a symbol-handling process.
type Session struct {
	id  string
	log zerolog.Logger
	tr  *tracer

	mu               sync.Mutex
	spaces           []*Space
	traceLoaderCalls bool
	traced           map[*Image]*sideEntry
}

// NewSession creates a session logging through log. The session's
// identity is stamped on its log records so concurrent sessions stay
// distinguishable in shared output.
func NewSession(log zerolog.Logger) *Session {
	id := uuid.New().String()
	log = log.With().Str("session", id).Logger()
	return &Session{
		id:     id,
		log:    log.With().Str("component", "symfile").Logger(),
		tr:     newTracer(log),
		traced: make(map[*Image]*sideEntry),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// NewSpace creates and registers an image space.
func (s *Session) NewSpace() *Space {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp := &Space{session: s, id: len(s.spaces)}
	s.spaces = append(s.spaces, sp)
	return sp
}

// Spaces returns a snapshot of the session's spaces.
func (s *Session) Spaces() []*Space {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Space, len(s.spaces))
	copy(out, s.spaces)
	return out
}

// TraceLoaderCalls reports whether loader call tracing is enabled.
func (s *Session) TraceLoaderCalls() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.traceLoaderCalls
}

// SetTraceLoaderCalls flips the trace toggle and reconciles every live
// image with it: enabling installs wrappers where missing, disabling
// removes them where present. Images with no loader are left alone.
// Setting the current state again is a no-op walk, so the call is
// idempotent.
func (s *Session) SetTraceLoaderCalls(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.traceLoaderCalls = on
	for _, sp := range s.spaces {
		for _, img := range sp.Images() {
			if on {
				if img.activeOps() != nil && !s.traceInstalledLocked(img) {
					s.installTrace(img)
				}
			} else {
				if s.traceInstalledLocked(img) {
					s.uninstallTrace(img)
				}
			}
		}
	}

	s.log.Info().Bool("enabled", on).Msg("loader call tracing")
}

// detachImage removes trace wrappers from img if any are installed,
// restoring its own table. Used on the image teardown paths.
func (s *Session) detachImage(img *Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.traceInstalledLocked(img) {
		s.uninstallTrace(img)
	}
}

// Close restores every installed loader table and drops the side
// entries. Images and spaces stay usable, untraced.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for img := range s.traced {
		s.uninstallTrace(img)
	}
	s.traceLoaderCalls = false
	return nil
}
