package server

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestCreateSessionDefaults(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	sess, dmToken, err := srv.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if dmToken == "" || sess.DMToken != dmToken {
		t.Fatalf("expected DM token to be returned, got %q", dmToken)
	}
	if !regexp.MustCompile(`^[A-Z0-9]{6}$`).MatchString(sess.Code) {
		t.Fatalf("unexpected code format: %q", sess.Code)
	}
	if sess.Round != 1 || sess.CurrentTurnIndex != 0 {
		t.Fatalf("expected round 1 turn 0, got round %d turn %d", sess.Round, sess.CurrentTurnIndex)
	}
	if !sess.IsActive {
		t.Fatalf("expected new session to be active")
	}
	ttl := sess.ExpiresAt.Sub(sess.CreatedAt)
	if ttl != 24*time.Hour {
		t.Fatalf("expected 24h expiry, got %s", ttl)
	}
}

func TestJoinSessionCaseInsensitive(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	sess, _, err := srv.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	joined, err := srv.JoinSession(ctx, "  "+strings.ToLower(sess.Code)+" ")
	if err != nil {
		t.Fatalf("join with lowercase code: %v", err)
	}
	if joined.ID != sess.ID {
		t.Fatalf("expected session %s, got %s", sess.ID, joined.ID)
	}
}

func TestJoinSessionUnknownCode(t *testing.T) {
	srv := newTestServer(t)

	_, err := srv.JoinSession(context.Background(), "ZZZZZZ")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestJoinSessionExpired(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	sess, _, err := srv.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	expireSession(t, srv, sess.ID)

	_, err = srv.JoinSession(ctx, sess.Code)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}

	// the failed join flips the active flag, so a retry reports not found
	var active bool
	if err := srv.db.QueryRow(`SELECT is_active FROM sessions WHERE id = ?`, sess.ID).Scan(&active); err != nil {
		t.Fatalf("read session row: %v", err)
	}
	if active {
		t.Fatalf("expected expired session to be inactive")
	}
	_, err = srv.JoinSession(ctx, sess.Code)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second join, got %v", err)
	}
}

func TestEndSessionRequiresDMToken(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	sess, dmToken, err := srv.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if err := srv.EndSession(ctx, sess.ID, "wrong-token"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := srv.GetSession(ctx, sess.ID); err != nil {
		t.Fatalf("session should still be active after failed end: %v", err)
	}

	if err := srv.EndSession(ctx, sess.ID, dmToken); err != nil {
		t.Fatalf("end session: %v", err)
	}
	if _, err := srv.GetSession(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ended session to be gone, got %v", err)
	}
}

func TestUpdateSessionPatch(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	sess, _, err := srv.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	round := 3
	turn := 2
	updated, err := srv.UpdateSession(ctx, sess.ID, SessionPatch{Round: &round, CurrentTurnIndex: &turn})
	if err != nil {
		t.Fatalf("update session: %v", err)
	}
	if updated.Round != 3 || updated.CurrentTurnIndex != 2 {
		t.Fatalf("expected round 3 turn 2, got round %d turn %d", updated.Round, updated.CurrentTurnIndex)
	}
	if !updated.IsActive {
		t.Fatalf("active flag should be untouched by a round/turn patch")
	}

	if _, err := srv.UpdateSession(ctx, sess.ID, SessionPatch{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty patch, got %v", err)
	}
}

func TestAdvanceTurnWrapsRound(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	sess, dmToken, err := srv.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	first, err := srv.AddCombatant(ctx, sess.ID, AddCombatantData{Name: "Goblin", Initiative: 18}, dmToken)
	if err != nil {
		t.Fatalf("add combatant: %v", err)
	}
	if _, err := srv.AddCombatant(ctx, sess.ID, AddCombatantData{Name: "Orc", Initiative: 12}, dmToken); err != nil {
		t.Fatalf("add combatant: %v", err)
	}

	// spend the first combatant's reaction; it must survive the turn advance
	off := false
	if _, err := srv.UpdateCombatantActions(ctx, first.ID, ActionFlags{ReactionAvailable: &off}, dmToken); err != nil {
		t.Fatalf("update actions: %v", err)
	}

	sess, err = srv.AdvanceTurn(ctx, sess.ID, dmToken)
	if err != nil {
		t.Fatalf("advance turn: %v", err)
	}
	if sess.Round != 1 || sess.CurrentTurnIndex != 1 {
		t.Fatalf("expected round 1 turn 1, got round %d turn %d", sess.Round, sess.CurrentTurnIndex)
	}
	c, err := srv.getCombatant(ctx, first.ID)
	if err != nil {
		t.Fatalf("get combatant: %v", err)
	}
	if c.ReactionAvailable {
		t.Fatalf("reaction should persist as spent across a turn advance")
	}

	sess, err = srv.AdvanceTurn(ctx, sess.ID, dmToken)
	if err != nil {
		t.Fatalf("advance turn: %v", err)
	}
	if sess.Round != 2 || sess.CurrentTurnIndex != 0 {
		t.Fatalf("expected round 2 turn 0 after wrap, got round %d turn %d", sess.Round, sess.CurrentTurnIndex)
	}
	c, err = srv.getCombatant(ctx, first.ID)
	if err != nil {
		t.Fatalf("get combatant: %v", err)
	}
	if !c.ReactionAvailable {
		t.Fatalf("reaction should reset on the round wrap")
	}
}

func TestAdvanceTurnRequiresCombatants(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	sess, dmToken, err := srv.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := srv.AdvanceTurn(ctx, sess.ID, dmToken); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation with empty roster, got %v", err)
	}
}

func expireSession(t *testing.T, srv *Server, sessionID string) {
	t.Helper()
	_, err := srv.db.Exec(`UPDATE sessions SET expires_at = ? WHERE id = ?`,
		formatTime(time.Now().Add(-time.Hour)), sessionID)
	if err != nil {
		t.Fatalf("expire session: %v", err)
	}
}
