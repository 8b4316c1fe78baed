package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generateSessionCode returns a 6-character uppercase alphanumeric join
// code. Codes are not guaranteed globally unique; the 36^6 space keeps
// collisions among concurrently active sessions unlikely.
func generateSessionCode() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("read random: %v", err))
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}

// generateToken returns an opaque credential for DM or player authentication.
func generateToken() string {
	return uuid.NewString()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// CreateSession creates a new active session and returns it together with
// the DM token that controls it.
func (s *Server) CreateSession(ctx context.Context) (Session, string, error) {
	now := time.Now().UTC()
	sess := Session{
		ID:               uuid.NewString(),
		Code:             generateSessionCode(),
		DMToken:          generateToken(),
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.cfg.SessionTTL),
		Round:            1,
		CurrentTurnIndex: 0,
		IsActive:         true,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, code, dm_token, created_at, expires_at, round, current_turn_index, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 1)`,
		sess.ID, sess.Code, sess.DMToken, formatTime(sess.CreatedAt), formatTime(sess.ExpiresAt),
		sess.Round, sess.CurrentTurnIndex)
	if err != nil {
		return Session{}, "", fmt.Errorf("create session: %w", err)
	}

	return sess, sess.DMToken, nil
}

// JoinSession looks up an active session by join code. The code is
// normalized to uppercase before lookup. This is the only place expiry is
// enforced: a session found past its expiry instant is flipped inactive and
// the join fails with ErrExpired. A later join then reports ErrNotFound.
func (s *Server) JoinSession(ctx context.Context, code string) (Session, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 6 {
		return Session{}, fmt.Errorf("%w: join code must be 6 characters", ErrValidation)
	}

	sess, err := s.scanSession(s.db.QueryRowContext(ctx,
		`SELECT id, code, dm_token, created_at, expires_at, round, current_turn_index, is_active
		 FROM sessions WHERE code = ? AND is_active = 1`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: session not found or expired", ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("join session: %w", err)
	}

	if time.Now().After(sess.ExpiresAt) {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE sessions SET is_active = 0 WHERE id = ?`, sess.ID); err != nil {
			return Session{}, fmt.Errorf("deactivate expired session: %w", err)
		}
		return Session{}, ErrExpired
	}

	return sess, nil
}

// GetSession returns an active session by id.
func (s *Server) GetSession(ctx context.Context, sessionID string) (Session, error) {
	sess, err := s.scanSession(s.db.QueryRowContext(ctx,
		`SELECT id, code, dm_token, created_at, expires_at, round, current_turn_index, is_active
		 FROM sessions WHERE id = ? AND is_active = 1`, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: session not found", ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// verifyDMToken checks the supplied token against the session's stored DM
// token. Authorization is a pure function of the credential and the row.
func (s *Server) verifyDMToken(ctx context.Context, sessionID, token string) error {
	var stored string
	err := s.db.QueryRowContext(ctx,
		`SELECT dm_token FROM sessions WHERE id = ?`, sessionID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: session not found", ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("verify dm token: %w", err)
	}
	if token == "" || stored != token {
		return fmt.Errorf("%w: invalid DM token", ErrUnauthorized)
	}
	return nil
}

// UpdateSession applies a partial update to round, turn index or active
// flag. Callers are responsible for authorization.
func (s *Server) UpdateSession(ctx context.Context, sessionID string, patch SessionPatch) (Session, error) {
	sets := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if patch.Round != nil {
		sets = append(sets, "round = ?")
		args = append(args, *patch.Round)
	}
	if patch.CurrentTurnIndex != nil {
		sets = append(sets, "current_turn_index = ?")
		args = append(args, *patch.CurrentTurnIndex)
	}
	if patch.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *patch.IsActive)
	}
	if len(sets) == 0 {
		return Session{}, fmt.Errorf("%w: no session fields to update", ErrValidation)
	}
	args = append(args, sessionID)

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return Session{}, fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Session{}, fmt.Errorf("%w: session not found", ErrNotFound)
	}

	sess, err := s.scanSession(s.db.QueryRowContext(ctx,
		`SELECT id, code, dm_token, created_at, expires_at, round, current_turn_index, is_active
		 FROM sessions WHERE id = ?`, sessionID))
	if err != nil {
		return Session{}, fmt.Errorf("reload session: %w", err)
	}
	return sess, nil
}

// EndSession flips the session inactive. DM only. Combatants are left in
// place; they are inert once the session is no longer joinable.
func (s *Server) EndSession(ctx context.Context, sessionID, dmToken string) error {
	if err := s.verifyDMToken(ctx, sessionID, dmToken); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET is_active = 0 WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	s.hub.Broadcast(sessionID, Event{Type: EventSessionEnded, SessionID: sessionID})
	return nil
}

// AdvanceTurn moves the session to the next combatant in initiative order.
// Wrapping past the last combatant starts a new round. Turn-level action
// flags reset on every advance; reactions additionally reset on the wrap.
// Custom actions with a matching reset trigger are restored as well.
func (s *Server) AdvanceTurn(ctx context.Context, sessionID, dmToken string) (Session, error) {
	if err := s.verifyDMToken(ctx, sessionID, dmToken); err != nil {
		return Session{}, err
	}

	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}

	combatants, err := s.GetCombatants(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if len(combatants) == 0 {
		return Session{}, fmt.Errorf("%w: no combatants to advance", ErrValidation)
	}

	next := sess.CurrentTurnIndex + 1
	round := sess.Round
	reset := ResetTurn
	if next >= len(combatants) {
		next = 0
		round++
		reset = ResetRound
	}

	if err := s.resetActions(ctx, sessionID, reset); err != nil {
		return Session{}, err
	}

	updated, err := s.UpdateSession(ctx, sessionID, SessionPatch{Round: &round, CurrentTurnIndex: &next})
	if err != nil {
		return Session{}, err
	}

	s.hub.Broadcast(sessionID, Event{Type: EventTurnAdvanced, SessionID: sessionID, Payload: updated})
	return updated, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Server) scanSession(row rowScanner) (Session, error) {
	var (
		sess                 Session
		createdAt, expiresAt string
	)
	err := row.Scan(&sess.ID, &sess.Code, &sess.DMToken, &createdAt, &expiresAt,
		&sess.Round, &sess.CurrentTurnIndex, &sess.IsActive)
	if err != nil {
		return Session{}, err
	}
	sess.CreatedAt = parseTime(createdAt)
	sess.ExpiresAt = parseTime(expiresAt)
	return sess, nil
}
