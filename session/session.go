// Package session defines the per-session policy state contract: a
// monotonically versioned context map with optimistic concurrency control,
// plus a bounded history of recent invocations.
package session

import (
	"context"
	"strconv"
	"time"

	"github.com/pluginrt/hostrt/hosterrors"
)

// MaxHistory bounds the number of retained history events per session.
// Post-policy evaluation truncates older entries once this cap is reached.
const MaxHistory = 32

// HistoryEvent records one past invocation against a session, appended by
// post-policy evaluation.
type HistoryEvent struct {
	Tool      string
	Input     any
	Success   bool
	Output    any
	Error     string
	Timestamp time.Time
}

// Session is the per-session mutable policy state. The zero value is the
// default session for any id the store has not seen yet.
type Session struct {
	// Version is the optimistic-concurrency version. A Save succeeds only
	// when the caller's Version matches the currently stored version.
	Version uint64
	// Context is the session's key/value state, evaluated and mutated by
	// policy effects.
	Context map[string]any
	// History is a bounded, append-only log of recent invocations, most
	// recent last.
	History []HistoryEvent
}

// Clone returns a deep-enough copy of s suitable for handing to a caller
// or mutating independently of the stored copy.
func (s Session) Clone() Session {
	out := Session{Version: s.Version}
	if len(s.Context) > 0 {
		out.Context = make(map[string]any, len(s.Context))
		for k, v := range s.Context {
			out.Context[k] = v
		}
	}
	if len(s.History) > 0 {
		out.History = make([]HistoryEvent, len(s.History))
		copy(out.History, s.History)
	}
	return out
}

// AppendHistory appends event, truncating from the front once len(History)
// exceeds cap. cap <= 0 disables history retention (the event is dropped).
func (s *Session) AppendHistory(event HistoryEvent, cap int) {
	if cap <= 0 {
		return
	}
	s.History = append(s.History, event)
	if len(s.History) > cap {
		s.History = s.History[len(s.History)-cap:]
	}
}

// Store is the session persistence contract. Implementations must honor
// compare-and-swap semantics on Save: a save succeeds only when the
// caller's Version matches the stored version, after which the stored
// version is incremented by exactly one.
type Store interface {
	// Load returns the stored session for id, or a zero-value Session if
	// none has been saved yet.
	Load(ctx context.Context, id string) (Session, error)
	// Save performs a compare-and-swap write. On success the stored
	// session's version is sess.Version+1. On a version mismatch, Save
	// returns a *hosterrors.Error with Kind KindSessionConflict.
	Save(ctx context.Context, id string, sess Session) error
}

// Conflict builds the *hosterrors.Error returned by a Store on a failed
// compare-and-swap, carrying the expected and actual stored versions.
func Conflict(expected, found uint64) error {
	return hosterrors.New(hosterrors.KindSessionConflict,
		conflictMessage(expected, found))
}

func conflictMessage(expected, found uint64) string {
	return "session version conflict: expected " +
		strconv.FormatUint(expected, 10) + ", found " + strconv.FormatUint(found, 10)
}
