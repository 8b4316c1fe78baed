package server

import (
	"context"
	"fmt"
	"strings"
)

// authorizeCombatantWrite allows the owning session's DM or the player
// holding the combatant's own token to mutate its action economy.
func (s *Server) authorizeCombatantWrite(ctx context.Context, c Combatant, token string) error {
	if err := s.verifyDMToken(ctx, c.SessionID, token); err == nil {
		return nil
	}
	if token != "" && c.PlayerToken != nil && *c.PlayerToken == token {
		return nil
	}
	return fmt.Errorf("%w: token matches neither DM nor combatant", ErrUnauthorized)
}

// UpdateCombatantActions applies a partial update to a combatant's four
// action-economy flags. The self-service path: a player may toggle only
// their own combatant, the DM may toggle anyone's.
func (s *Server) UpdateCombatantActions(ctx context.Context, combatantID string, flags ActionFlags, token string) (Combatant, error) {
	c, err := s.getCombatant(ctx, combatantID)
	if err != nil {
		return Combatant{}, err
	}
	if err := s.authorizeCombatantWrite(ctx, c, token); err != nil {
		return Combatant{}, err
	}

	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)
	if flags.ActionAvailable != nil {
		sets = append(sets, "action_available = ?")
		args = append(args, *flags.ActionAvailable)
	}
	if flags.BonusActionAvailable != nil {
		sets = append(sets, "bonus_action_available = ?")
		args = append(args, *flags.BonusActionAvailable)
	}
	if flags.ReactionAvailable != nil {
		sets = append(sets, "reaction_available = ?")
		args = append(args, *flags.ReactionAvailable)
	}
	if flags.MovementAvailable != nil {
		sets = append(sets, "movement_available = ?")
		args = append(args, *flags.MovementAvailable)
	}
	if len(sets) == 0 {
		return Combatant{}, fmt.Errorf("%w: no action flags to update", ErrValidation)
	}
	args = append(args, combatantID)

	if _, err := s.db.ExecContext(ctx,
		`UPDATE combatants SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		return Combatant{}, fmt.Errorf("update combatant actions: %w", err)
	}

	c, err = s.getCombatant(ctx, combatantID)
	if err != nil {
		return Combatant{}, err
	}
	s.hub.Broadcast(c.SessionID, Event{Type: EventCombatantUpdated, SessionID: c.SessionID, Payload: c})
	return c, nil
}

// ResetCombatantActions restores action availability for every combatant in
// the session. DM only. A turn reset restores action, bonus action and
// movement; reactions persist across turns and come back only on a round
// reset.
func (s *Server) ResetCombatantActions(ctx context.Context, sessionID string, resetType ResetType, dmToken string) error {
	if err := s.verifyDMToken(ctx, sessionID, dmToken); err != nil {
		return err
	}
	if err := s.resetActions(ctx, sessionID, resetType); err != nil {
		return err
	}
	s.hub.Broadcast(sessionID, Event{Type: EventActionsReset, SessionID: sessionID,
		Payload: map[string]string{"resetType": string(resetType)}})
	return nil
}

func (s *Server) resetActions(ctx context.Context, sessionID string, resetType ResetType) error {
	var query string
	switch resetType {
	case ResetTurn:
		query = `UPDATE combatants SET action_available = 1, bonus_action_available = 1,
			movement_available = 1 WHERE session_id = ?`
	case ResetRound:
		query = `UPDATE combatants SET action_available = 1, bonus_action_available = 1,
			reaction_available = 1, movement_available = 1 WHERE session_id = ?`
	default:
		return fmt.Errorf("%w: unknown reset type %q", ErrValidation, resetType)
	}

	if _, err := s.db.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("reset actions: %w", err)
	}
	return s.resetCustomActions(ctx, sessionID, resetType)
}

// resetCustomActions restores current uses for custom actions whose reset
// trigger matches. A round reset also covers turn-triggered actions;
// manual actions are never touched here.
func (s *Server) resetCustomActions(ctx context.Context, sessionID string, resetType ResetType) error {
	combatants, err := s.GetCombatants(ctx, sessionID)
	if err != nil {
		return err
	}

	for _, c := range combatants {
		changed := false
		for i, a := range c.CustomActions {
			if a.ResetOn != string(ResetTurn) && a.ResetOn != string(ResetRound) {
				continue
			}
			if a.ResetOn == string(ResetRound) && resetType == ResetTurn {
				continue
			}
			if a.CurrentUses != a.MaxUses {
				c.CustomActions[i].CurrentUses = a.MaxUses
				changed = true
			}
		}
		if !changed {
			continue
		}
		if _, err := s.db.ExecContext(ctx,
			`UPDATE combatants SET custom_actions = ? WHERE id = ?`,
			marshalJSON(c.CustomActions), c.ID); err != nil {
			return fmt.Errorf("reset custom actions: %w", err)
		}
	}
	return nil
}

// SpendCustomAction decrements the remaining uses of a combatant's custom
// action. Same authorization rule as the flag updates.
func (s *Server) SpendCustomAction(ctx context.Context, combatantID, actionID, token string) (Combatant, error) {
	c, err := s.getCombatant(ctx, combatantID)
	if err != nil {
		return Combatant{}, err
	}
	if err := s.authorizeCombatantWrite(ctx, c, token); err != nil {
		return Combatant{}, err
	}

	found := false
	for i, a := range c.CustomActions {
		if a.ID != actionID {
			continue
		}
		if a.CurrentUses <= 0 {
			return Combatant{}, fmt.Errorf("%w: no uses remaining for %q", ErrValidation, a.Name)
		}
		c.CustomActions[i].CurrentUses--
		found = true
		break
	}
	if !found {
		return Combatant{}, fmt.Errorf("%w: custom action not found", ErrNotFound)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE combatants SET custom_actions = ? WHERE id = ?`,
		marshalJSON(c.CustomActions), c.ID); err != nil {
		return Combatant{}, fmt.Errorf("spend custom action: %w", err)
	}

	c, err = s.getCombatant(ctx, combatantID)
	if err != nil {
		return Combatant{}, err
	}
	s.hub.Broadcast(c.SessionID, Event{Type: EventCombatantUpdated, SessionID: c.SessionID, Payload: c})
	return c, nil
}
