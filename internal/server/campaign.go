package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateCampaignData is the payload for a new campaign.
type CreateCampaignData struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Settings    string `json:"settings"`
}

// UpdateCampaignData is a partial campaign update.
type UpdateCampaignData struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Settings    *string `json:"settings"`
}

// GetCampaigns lists the user's campaigns, most recently updated first.
func (s *Server) GetCampaigns(ctx context.Context, userID string) ([]Campaign, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, description, settings, created_at, updated_at
		 FROM campaigns WHERE user_id = ? ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// GetCampaign returns one of the user's campaigns. Ownership is part of the
// lookup, so another user's campaign reports not found.
func (s *Server) GetCampaign(ctx context.Context, campaignID, userID string) (Campaign, error) {
	c, err := scanCampaign(s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, description, settings, created_at, updated_at
		 FROM campaigns WHERE id = ? AND user_id = ?`, campaignID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return Campaign{}, fmt.Errorf("%w: campaign not found", ErrNotFound)
	}
	if err != nil {
		return Campaign{}, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

// CreateCampaign creates a campaign owned by the user.
func (s *Server) CreateCampaign(ctx context.Context, userID string, data CreateCampaignData) (Campaign, error) {
	if strings.TrimSpace(data.Title) == "" {
		return Campaign{}, fmt.Errorf("%w: campaign title is required", ErrValidation)
	}
	settings := data.Settings
	if settings == "" {
		settings = "{}"
	}

	now := time.Now().UTC()
	c := Campaign{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       data.Title,
		Description: data.Description,
		Settings:    settings,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO campaigns (id, user_id, title, description, settings, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Title, c.Description, c.Settings, formatTime(now), formatTime(now))
	if err != nil {
		return Campaign{}, fmt.Errorf("create campaign: %w", err)
	}
	return c, nil
}

// UpdateCampaign applies a partial update to one of the user's campaigns.
func (s *Server) UpdateCampaign(ctx context.Context, campaignID, userID string, data UpdateCampaignData) (Campaign, error) {
	sets := []string{"updated_at = ?"}
	args := []any{formatTime(time.Now().UTC())}
	if data.Title != nil {
		if strings.TrimSpace(*data.Title) == "" {
			return Campaign{}, fmt.Errorf("%w: campaign title is required", ErrValidation)
		}
		sets = append(sets, "title = ?")
		args = append(args, *data.Title)
	}
	if data.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *data.Description)
	}
	if data.Settings != nil {
		sets = append(sets, "settings = ?")
		args = append(args, *data.Settings)
	}
	args = append(args, campaignID, userID)

	res, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET `+strings.Join(sets, ", ")+` WHERE id = ? AND user_id = ?`, args...)
	if err != nil {
		return Campaign{}, fmt.Errorf("update campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Campaign{}, fmt.Errorf("%w: campaign not found", ErrNotFound)
	}
	return s.GetCampaign(ctx, campaignID, userID)
}

// DeleteCampaign removes one of the user's campaigns and its players.
func (s *Server) DeleteCampaign(ctx context.Context, campaignID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM campaigns WHERE id = ? AND user_id = ?`, campaignID, userID)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: campaign not found", ErrNotFound)
	}
	return nil
}

// GetCampaignStats counts the campaign's roster.
func (s *Server) GetCampaignStats(ctx context.Context, campaignID, userID string) (CampaignStats, error) {
	if _, err := s.GetCampaign(ctx, campaignID, userID); err != nil {
		return CampaignStats{}, err
	}
	var stats CampaignStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM campaign_players WHERE campaign_id = ?`, campaignID).
		Scan(&stats.PlayerCount)
	if err != nil {
		return CampaignStats{}, fmt.Errorf("campaign stats: %w", err)
	}
	return stats, nil
}

// CampaignPlayerData is the payload for creating or updating a party member.
type CampaignPlayerData struct {
	Name            string `json:"name"`
	MaxHP           int    `json:"maxHp"`
	CurrentHP       int    `json:"currentHp"`
	AC              int    `json:"ac"`
	InitiativeBonus int    `json:"initiativeBonus"`
	Level           int    `json:"level"`
	AbilityScores   string `json:"abilityScores"`
	Notes           string `json:"notes"`
}

// GetCampaignPlayers lists the campaign's party roster.
func (s *Server) GetCampaignPlayers(ctx context.Context, campaignID, userID string) ([]CampaignPlayer, error) {
	if _, err := s.GetCampaign(ctx, campaignID, userID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, campaign_id, name, max_hp, current_hp, ac, initiative_bonus, level,
			ability_scores, notes, created_at, updated_at
		 FROM campaign_players WHERE campaign_id = ? ORDER BY name ASC`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list campaign players: %w", err)
	}
	defer rows.Close()

	players := []CampaignPlayer{}
	for rows.Next() {
		p, err := scanCampaignPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign player: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// AddCampaignPlayer adds a party member to one of the user's campaigns.
func (s *Server) AddCampaignPlayer(ctx context.Context, campaignID, userID string, data CampaignPlayerData) (CampaignPlayer, error) {
	if _, err := s.GetCampaign(ctx, campaignID, userID); err != nil {
		return CampaignPlayer{}, err
	}
	if strings.TrimSpace(data.Name) == "" {
		return CampaignPlayer{}, fmt.Errorf("%w: player name is required", ErrValidation)
	}
	if data.Level <= 0 {
		data.Level = 1
	}
	if data.AC <= 0 {
		data.AC = 10
	}
	if data.CurrentHP == 0 {
		data.CurrentHP = data.MaxHP
	}
	scores := data.AbilityScores
	if scores == "" {
		scores = "{}"
	}

	now := time.Now().UTC()
	p := CampaignPlayer{
		ID:              uuid.NewString(),
		CampaignID:      campaignID,
		Name:            data.Name,
		MaxHP:           data.MaxHP,
		CurrentHP:       data.CurrentHP,
		AC:              data.AC,
		InitiativeBonus: data.InitiativeBonus,
		Level:           data.Level,
		AbilityScores:   scores,
		Notes:           data.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO campaign_players (id, campaign_id, name, max_hp, current_hp, ac,
			initiative_bonus, level, ability_scores, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.CampaignID, p.Name, p.MaxHP, p.CurrentHP, p.AC, p.InitiativeBonus,
		p.Level, p.AbilityScores, p.Notes, formatTime(now), formatTime(now))
	if err != nil {
		return CampaignPlayer{}, fmt.Errorf("add campaign player: %w", err)
	}
	return p, nil
}

// UpdateCampaignPlayerData is a partial update to a party member.
type UpdateCampaignPlayerData struct {
	Name            *string `json:"name"`
	MaxHP           *int    `json:"maxHp"`
	CurrentHP       *int    `json:"currentHp"`
	AC              *int    `json:"ac"`
	InitiativeBonus *int    `json:"initiativeBonus"`
	Level           *int    `json:"level"`
	AbilityScores   *string `json:"abilityScores"`
	Notes           *string `json:"notes"`
}

// UpdateCampaignPlayer applies a partial update to a party member in one of
// the user's campaigns.
func (s *Server) UpdateCampaignPlayer(ctx context.Context, playerID, userID string, data UpdateCampaignPlayerData) (CampaignPlayer, error) {
	sets := []string{"updated_at = ?"}
	args := []any{formatTime(time.Now().UTC())}
	if data.Name != nil {
		if strings.TrimSpace(*data.Name) == "" {
			return CampaignPlayer{}, fmt.Errorf("%w: player name is required", ErrValidation)
		}
		sets = append(sets, "name = ?")
		args = append(args, *data.Name)
	}
	if data.MaxHP != nil {
		sets = append(sets, "max_hp = ?")
		args = append(args, *data.MaxHP)
	}
	if data.CurrentHP != nil {
		sets = append(sets, "current_hp = ?")
		args = append(args, *data.CurrentHP)
	}
	if data.AC != nil {
		sets = append(sets, "ac = ?")
		args = append(args, *data.AC)
	}
	if data.InitiativeBonus != nil {
		sets = append(sets, "initiative_bonus = ?")
		args = append(args, *data.InitiativeBonus)
	}
	if data.Level != nil {
		sets = append(sets, "level = ?")
		args = append(args, *data.Level)
	}
	if data.AbilityScores != nil {
		sets = append(sets, "ability_scores = ?")
		args = append(args, *data.AbilityScores)
	}
	if data.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, *data.Notes)
	}
	args = append(args, playerID, userID)

	res, err := s.db.ExecContext(ctx,
		`UPDATE campaign_players SET `+strings.Join(sets, ", ")+` WHERE id = ? AND campaign_id IN
			(SELECT id FROM campaigns WHERE user_id = ?)`, args...)
	if err != nil {
		return CampaignPlayer{}, fmt.Errorf("update campaign player: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return CampaignPlayer{}, fmt.Errorf("%w: player not found", ErrNotFound)
	}

	p, err := scanCampaignPlayer(s.db.QueryRowContext(ctx,
		`SELECT id, campaign_id, name, max_hp, current_hp, ac, initiative_bonus, level,
			ability_scores, notes, created_at, updated_at
		 FROM campaign_players WHERE id = ?`, playerID))
	if err != nil {
		return CampaignPlayer{}, fmt.Errorf("reload campaign player: %w", err)
	}
	return p, nil
}

// RemoveCampaignPlayer deletes a party member from one of the user's campaigns.
func (s *Server) RemoveCampaignPlayer(ctx context.Context, playerID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM campaign_players WHERE id = ? AND campaign_id IN
			(SELECT id FROM campaigns WHERE user_id = ?)`, playerID, userID)
	if err != nil {
		return fmt.Errorf("remove campaign player: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: player not found", ErrNotFound)
	}
	return nil
}

func scanCampaign(row rowScanner) (Campaign, error) {
	var (
		c                    Campaign
		createdAt, updatedAt string
	)
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.Description, &c.Settings, &createdAt, &updatedAt)
	if err != nil {
		return Campaign{}, err
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return c, nil
}

func scanCampaignPlayer(row rowScanner) (CampaignPlayer, error) {
	var (
		p                    CampaignPlayer
		createdAt, updatedAt string
	)
	err := row.Scan(&p.ID, &p.CampaignID, &p.Name, &p.MaxHP, &p.CurrentHP, &p.AC,
		&p.InitiativeBonus, &p.Level, &p.AbilityScores, &p.Notes, &createdAt, &updatedAt)
	if err != nil {
		return CampaignPlayer{}, err
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}
