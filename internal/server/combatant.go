package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GetCombatants returns all combatants for a session ordered by initiative
// descending, then order index ascending. Pure read; holding the join code
// is treated as session membership.
func (s *Server) GetCombatants(ctx context.Context, sessionID string) ([]Combatant, error) {
	rows, err := s.db.QueryContext(ctx,
		combatantColumns+` FROM combatants
		 WHERE session_id = ?
		 ORDER BY initiative DESC, order_index ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list combatants: %w", err)
	}
	defer rows.Close()

	combatants := []Combatant{}
	for rows.Next() {
		c, err := scanCombatant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan combatant: %w", err)
		}
		combatants = append(combatants, c)
	}
	return combatants, rows.Err()
}

// AddCombatant inserts a combatant into the session's roster. DM only.
// The order index is assigned inside the INSERT itself (MAX+1, or 0 for an
// empty roster) so concurrent adds cannot produce duplicate tie-breaks.
func (s *Server) AddCombatant(ctx context.Context, sessionID string, data AddCombatantData, dmToken string) (Combatant, error) {
	if err := s.verifyDMToken(ctx, sessionID, dmToken); err != nil {
		return Combatant{}, err
	}
	if strings.TrimSpace(data.Name) == "" {
		return Combatant{}, fmt.Errorf("%w: combatant name is required", ErrValidation)
	}

	currentHP := data.CurrentHP
	if currentHP == nil {
		currentHP = data.MaxHP
	}
	customActions := data.CustomActions
	if customActions == nil {
		customActions = []CustomAction{}
	}
	for i := range customActions {
		if customActions[i].ID == "" {
			customActions[i].ID = uuid.NewString()
		}
		customActions[i].CurrentUses = customActions[i].MaxUses
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO combatants (id, session_id, name, initiative, max_hp, current_hp, is_player,
			action_available, bonus_action_available, reaction_available, movement_available,
			custom_actions, notes, conditions, order_index, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 1, 1, 1, 1, ?, ?, ?,
			COALESCE((SELECT MAX(order_index) + 1 FROM combatants WHERE session_id = ?), 0), ?)`,
		id, sessionID, data.Name, data.Initiative, data.MaxHP, currentHP, data.IsPlayer,
		marshalJSON(customActions), data.Notes, marshalJSON(sliceOrEmpty(data.Conditions)),
		sessionID, formatTime(now))
	if err != nil {
		return Combatant{}, fmt.Errorf("add combatant: %w", err)
	}

	c, err := s.getCombatant(ctx, id)
	if err != nil {
		return Combatant{}, err
	}
	s.hub.Broadcast(sessionID, Event{Type: EventCombatantAdded, SessionID: sessionID, Payload: c})
	return c, nil
}

// RemoveCombatant deletes a combatant. DM only; the owning session is
// discovered from the combatant row before the token check.
func (s *Server) RemoveCombatant(ctx context.Context, combatantID, dmToken string) error {
	c, err := s.getCombatant(ctx, combatantID)
	if err != nil {
		return err
	}
	if err := s.verifyDMToken(ctx, c.SessionID, dmToken); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM combatants WHERE id = ?`, combatantID); err != nil {
		return fmt.Errorf("remove combatant: %w", err)
	}
	s.hub.Broadcast(c.SessionID, Event{Type: EventCombatantRemoved, SessionID: c.SessionID,
		Payload: map[string]string{"id": combatantID}})
	return nil
}

// ClaimCombatant mints a player token for an unclaimed player combatant so
// the owning player can manage their own action economy.
func (s *Server) ClaimCombatant(ctx context.Context, combatantID string) (Combatant, string, error) {
	c, err := s.getCombatant(ctx, combatantID)
	if err != nil {
		return Combatant{}, "", err
	}
	if !c.IsPlayer {
		return Combatant{}, "", fmt.Errorf("%w: only player combatants can be claimed", ErrValidation)
	}
	if c.PlayerToken != nil && *c.PlayerToken != "" {
		return Combatant{}, "", fmt.Errorf("%w: combatant already claimed", ErrUnauthorized)
	}

	token := generateToken()
	res, err := s.db.ExecContext(ctx,
		`UPDATE combatants SET player_token = ? WHERE id = ? AND (player_token IS NULL OR player_token = '')`,
		token, combatantID)
	if err != nil {
		return Combatant{}, "", fmt.Errorf("claim combatant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Combatant{}, "", fmt.Errorf("%w: combatant already claimed", ErrUnauthorized)
	}

	c, err = s.getCombatant(ctx, combatantID)
	if err != nil {
		return Combatant{}, "", err
	}
	s.hub.Broadcast(c.SessionID, Event{Type: EventCombatantUpdated, SessionID: c.SessionID, Payload: c})
	return c, token, nil
}

func (s *Server) getCombatant(ctx context.Context, combatantID string) (Combatant, error) {
	c, err := scanCombatant(s.db.QueryRowContext(ctx,
		combatantColumns+` FROM combatants WHERE id = ?`, combatantID))
	if errors.Is(err, sql.ErrNoRows) {
		return Combatant{}, fmt.Errorf("%w: combatant not found", ErrNotFound)
	}
	if err != nil {
		return Combatant{}, fmt.Errorf("get combatant: %w", err)
	}
	return c, nil
}

const combatantColumns = `SELECT id, session_id, name, initiative, max_hp, current_hp, is_player,
	player_token, action_available, bonus_action_available, reaction_available, movement_available,
	custom_actions, notes, conditions, order_index, created_at`

func scanCombatant(row rowScanner) (Combatant, error) {
	var (
		c                        Combatant
		maxHP, currentHP         sql.NullInt64
		playerToken              sql.NullString
		customActions, condition string
		createdAt                string
	)
	err := row.Scan(&c.ID, &c.SessionID, &c.Name, &c.Initiative, &maxHP, &currentHP, &c.IsPlayer,
		&playerToken, &c.ActionAvailable, &c.BonusActionAvailable, &c.ReactionAvailable,
		&c.MovementAvailable, &customActions, &c.Notes, &condition, &c.OrderIndex, &createdAt)
	if err != nil {
		return Combatant{}, err
	}

	if maxHP.Valid {
		v := int(maxHP.Int64)
		c.MaxHP = &v
	}
	if currentHP.Valid {
		v := int(currentHP.Int64)
		c.CurrentHP = &v
	}
	if playerToken.Valid && playerToken.String != "" {
		c.PlayerToken = &playerToken.String
	}
	c.CustomActions = []CustomAction{}
	if customActions != "" {
		if err := json.Unmarshal([]byte(customActions), &c.CustomActions); err != nil {
			return Combatant{}, fmt.Errorf("decode custom actions: %w", err)
		}
	}
	c.Conditions = []string{}
	if condition != "" {
		if err := json.Unmarshal([]byte(condition), &c.Conditions); err != nil {
			return Combatant{}, fmt.Errorf("decode conditions: %w", err)
		}
	}
	c.CreatedAt = parseTime(createdAt)
	return c, nil
}

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func sliceOrEmpty(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
