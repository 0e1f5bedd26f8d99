// Package xdpfwd holds the domain types shared by the xdpfwd control
// plane: XDP attach modes, attachment state, and the run-state store
// contract.
//
// The packet filter itself is a pre-compiled BPF object loaded from a
// fixed path; this module only brings it into a correct runtime state
// and keeps its maps synchronized with the on-disk configuration.
package xdpfwd

import (
	"context"
	"time"
)

// Attachment records a live XDP attachment on an interface.
//
// It is created once at startup by the kernel adapter and consumed by
// the shutdown sequencer. Only Mode is assigned after construction,
// exactly once, when the fallback negotiation settles.
type Attachment struct {
	Interface  string
	Ifindex    int
	Mode       AttachMode
	ObjectPath string
	AttachedAt time.Time
}

// Session is one attach-to-detach lifetime of the daemon, as persisted
// in the run-state store. EndedAt is nil while the session is live;
// Clean reports whether shutdown completed with a successful detach.
type Session struct {
	ID         int64
	Interface  string
	Mode       AttachMode
	ObjectPath string
	PinDir     string // empty when map pinning was disabled
	StartedAt  time.Time
	EndedAt    *time.Time
	Clean      bool
}

// ReloadEvent records one configuration reload decision taken during a
// session. ConfigMtime is the file modification time that triggered the
// reload; OK is false when the file failed to parse and the previous
// in-memory configuration was retained.
type ReloadEvent struct {
	SessionID   int64
	At          time.Time
	ConfigMtime time.Time
	OK          bool
}

// Store persists sessions and reload events across daemon restarts.
type Store interface {
	// CreateSession records the start of a session and returns its ID.
	CreateSession(ctx context.Context, s Session) (int64, error)

	// CloseSession marks a session as ended.
	CloseSession(ctx context.Context, id int64, endedAt time.Time, clean bool) error

	// RecordReload appends a reload event to a session.
	RecordReload(ctx context.Context, ev ReloadEvent) error

	// ListSessions returns the most recent sessions, newest first.
	ListSessions(ctx context.Context, limit int) ([]Session, error)

	// ListReloads returns the reload events for a session, oldest first.
	ListReloads(ctx context.Context, sessionID int64) ([]ReloadEvent, error)

	Close() error
}
