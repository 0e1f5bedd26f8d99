package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/frobware/xdpfwd"
)

// CreateSession records the start of a session and returns its ID.
func (s *sessionStore) CreateSession(ctx context.Context, sess xdpfwd.Session) (int64, error) {
	res, err := s.stmtCreateSession.ExecContext(ctx,
		sess.Interface,
		string(sess.Mode),
		sess.ObjectPath,
		sess.PinDir,
		sess.StartedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("session id: %w", err)
	}
	return id, nil
}

// CloseSession marks a session as ended.
func (s *sessionStore) CloseSession(ctx context.Context, id int64, endedAt time.Time, clean bool) error {
	res, err := s.stmtCloseSession.ExecContext(ctx,
		endedAt.UTC().Format(timeFormat),
		clean,
		id,
	)
	if err != nil {
		return fmt.Errorf("close session %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("close session %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("close session %d: no such session", id)
	}
	return nil
}

// ListSessions returns the most recent sessions, newest first.
func (s *sessionStore) ListSessions(ctx context.Context, limit int) ([]xdpfwd.Session, error) {
	rows, err := s.stmtListSessions.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []xdpfwd.Session
	for rows.Next() {
		var (
			sess      xdpfwd.Session
			mode      string
			startedAt string
			endedAt   sql.NullString
		)
		if err := rows.Scan(&sess.ID, &sess.Interface, &mode, &sess.ObjectPath,
			&sess.PinDir, &startedAt, &endedAt, &sess.Clean); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}

		sess.Mode = xdpfwd.AttachMode(mode)
		if sess.StartedAt, err = time.Parse(timeFormat, startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if endedAt.Valid {
			t, err := time.Parse(timeFormat, endedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse ended_at: %w", err)
			}
			sess.EndedAt = &t
		}

		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// RecordReload appends a reload event to a session.
func (s *sessionStore) RecordReload(ctx context.Context, ev xdpfwd.ReloadEvent) error {
	_, err := s.stmtRecordReload.ExecContext(ctx,
		ev.SessionID,
		ev.At.UTC().Format(timeFormat),
		ev.ConfigMtime.UTC().Format(timeFormat),
		ev.OK,
	)
	if err != nil {
		return fmt.Errorf("insert reload event: %w", err)
	}
	return nil
}

// ListReloads returns the reload events for a session, oldest first.
func (s *sessionStore) ListReloads(ctx context.Context, sessionID int64) ([]xdpfwd.ReloadEvent, error) {
	rows, err := s.stmtListReloads.QueryContext(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list reload events: %w", err)
	}
	defer rows.Close()

	var events []xdpfwd.ReloadEvent
	for rows.Next() {
		var (
			ev          xdpfwd.ReloadEvent
			at          string
			configMtime string
		)
		if err := rows.Scan(&ev.SessionID, &at, &configMtime, &ev.OK); err != nil {
			return nil, fmt.Errorf("scan reload event: %w", err)
		}
		if ev.At, err = time.Parse(timeFormat, at); err != nil {
			return nil, fmt.Errorf("parse at: %w", err)
		}
		if ev.ConfigMtime, err = time.Parse(timeFormat, configMtime); err != nil {
			return nil, fmt.Errorf("parse config_mtime: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
