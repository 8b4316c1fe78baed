package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateMonsterData is the payload for a homebrew monster.
type CreateMonsterData struct {
	Name            string   `json:"name"`
	Type            string   `json:"type"`
	Size            string   `json:"size"`
	ChallengeRating *float64 `json:"challengeRating"`
	XP              *int     `json:"xp"`
	ArmorClass      *int     `json:"armorClass"`
	HitPoints       *int     `json:"hitPoints"`
	HitDice         string   `json:"hitDice"`
	SavingThrows    string   `json:"savingThrows"`
}

// UpdateMonsterData is a partial monster update.
type UpdateMonsterData struct {
	Name            *string  `json:"name"`
	Type            *string  `json:"type"`
	Size            *string  `json:"size"`
	ChallengeRating *float64 `json:"challengeRating"`
	ArmorClass      *int     `json:"armorClass"`
	HitPoints       *int     `json:"hitPoints"`
}

// GetMonsters lists monsters ordered by name, narrowed by the optional
// filters.
func (s *Server) GetMonsters(ctx context.Context, filters MonsterFilters) ([]Monster, error) {
	query := monsterColumns + ` FROM monsters WHERE 1=1`
	args := []any{}
	if filters.Type != "" {
		query += ` AND type = ?`
		args = append(args, filters.Type)
	}
	if filters.CRMin != nil {
		query += ` AND challenge_rating >= ?`
		args = append(args, *filters.CRMin)
	}
	if filters.CRMax != nil {
		query += ` AND challenge_rating <= ?`
		args = append(args, *filters.CRMax)
	}
	if filters.IsHomebrew != nil {
		query += ` AND is_homebrew = ?`
		args = append(args, *filters.IsHomebrew)
	}
	if filters.Source != "" {
		query += ` AND source = ?`
		args = append(args, filters.Source)
	}
	query += ` ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list monsters: %w", err)
	}
	defer rows.Close()

	monsters := []Monster{}
	for rows.Next() {
		m, err := scanMonster(rows)
		if err != nil {
			return nil, fmt.Errorf("scan monster: %w", err)
		}
		monsters = append(monsters, m)
	}
	return monsters, rows.Err()
}

// GetMonster returns a single monster by id.
func (s *Server) GetMonster(ctx context.Context, monsterID string) (Monster, error) {
	m, err := scanMonster(s.db.QueryRowContext(ctx,
		monsterColumns+` FROM monsters WHERE id = ?`, monsterID))
	if errors.Is(err, sql.ErrNoRows) {
		return Monster{}, fmt.Errorf("%w: monster not found", ErrNotFound)
	}
	if err != nil {
		return Monster{}, fmt.Errorf("get monster: %w", err)
	}
	return m, nil
}

// CreateMonster creates a homebrew monster owned by the user. Created rows
// are always homebrew; published sources only enter through the seeder.
func (s *Server) CreateMonster(ctx context.Context, userID string, data CreateMonsterData) (Monster, error) {
	if strings.TrimSpace(data.Name) == "" {
		return Monster{}, fmt.Errorf("%w: monster name is required", ErrValidation)
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO monsters (id, name, type, size, challenge_rating, xp, armor_class, hit_points,
			hit_dice, saving_throws, source, is_homebrew, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'Homebrew', 1, ?, ?)`,
		id, data.Name, data.Type, data.Size, data.ChallengeRating, data.XP, data.ArmorClass,
		data.HitPoints, data.HitDice, data.SavingThrows, userID, formatTime(now))
	if err != nil {
		return Monster{}, fmt.Errorf("create monster: %w", err)
	}
	return s.GetMonster(ctx, id)
}

// UpdateMonster applies a partial update to one of the user's homebrew
// monsters. Published entries and other users' homebrew report not found.
func (s *Server) UpdateMonster(ctx context.Context, monsterID, userID string, data UpdateMonsterData) (Monster, error) {
	sets := make([]string, 0, 6)
	args := make([]any, 0, 8)
	if data.Name != nil {
		if strings.TrimSpace(*data.Name) == "" {
			return Monster{}, fmt.Errorf("%w: monster name is required", ErrValidation)
		}
		sets = append(sets, "name = ?")
		args = append(args, *data.Name)
	}
	if data.Type != nil {
		sets = append(sets, "type = ?")
		args = append(args, *data.Type)
	}
	if data.Size != nil {
		sets = append(sets, "size = ?")
		args = append(args, *data.Size)
	}
	if data.ChallengeRating != nil {
		sets = append(sets, "challenge_rating = ?")
		args = append(args, *data.ChallengeRating)
	}
	if data.ArmorClass != nil {
		sets = append(sets, "armor_class = ?")
		args = append(args, *data.ArmorClass)
	}
	if data.HitPoints != nil {
		sets = append(sets, "hit_points = ?")
		args = append(args, *data.HitPoints)
	}
	if len(sets) == 0 {
		return Monster{}, fmt.Errorf("%w: no monster fields to update", ErrValidation)
	}
	args = append(args, monsterID, userID)

	res, err := s.db.ExecContext(ctx,
		`UPDATE monsters SET `+strings.Join(sets, ", ")+` WHERE id = ? AND created_by = ?`, args...)
	if err != nil {
		return Monster{}, fmt.Errorf("update monster: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Monster{}, fmt.Errorf("%w: monster not found", ErrNotFound)
	}
	return s.GetMonster(ctx, monsterID)
}

// DeleteMonster removes one of the user's homebrew monsters.
func (s *Server) DeleteMonster(ctx context.Context, monsterID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM monsters WHERE id = ? AND created_by = ?`, monsterID, userID)
	if err != nil {
		return fmt.Errorf("delete monster: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: monster not found", ErrNotFound)
	}
	return nil
}

// GetMonsterOptions returns the distinct type and source values for list
// filters.
func (s *Server) GetMonsterOptions(ctx context.Context) (MonsterOptions, error) {
	opts := MonsterOptions{Types: []string{}, Sources: []string{}}

	collect := func(query string, dest *[]string) error {
		rows, err := s.db.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				return err
			}
			*dest = append(*dest, v)
		}
		return rows.Err()
	}

	if err := collect(`SELECT DISTINCT type FROM monsters WHERE type != '' ORDER BY type`, &opts.Types); err != nil {
		return MonsterOptions{}, fmt.Errorf("monster type options: %w", err)
	}
	if err := collect(`SELECT DISTINCT source FROM monsters WHERE source != '' ORDER BY source`, &opts.Sources); err != nil {
		return MonsterOptions{}, fmt.Errorf("monster source options: %w", err)
	}
	return opts, nil
}

// parseMonsterFilters reads list filters from query parameters.
func parseMonsterFilters(r *http.Request) (MonsterFilters, error) {
	q := r.URL.Query()
	filters := MonsterFilters{
		Type:   q.Get("type"),
		Source: q.Get("source"),
	}
	if raw := q.Get("crMin"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return MonsterFilters{}, fmt.Errorf("%w: crMin must be a number", ErrValidation)
		}
		filters.CRMin = &v
	}
	if raw := q.Get("crMax"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return MonsterFilters{}, fmt.Errorf("%w: crMax must be a number", ErrValidation)
		}
		filters.CRMax = &v
	}
	if raw := q.Get("homebrew"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return MonsterFilters{}, fmt.Errorf("%w: homebrew must be a boolean", ErrValidation)
		}
		filters.IsHomebrew = &v
	}
	return filters, nil
}

const monsterColumns = `SELECT id, name, type, size, challenge_rating, xp, armor_class, hit_points,
	hit_dice, saving_throws, source, is_homebrew, created_by, created_at`

func scanMonster(row rowScanner) (Monster, error) {
	var (
		m         Monster
		cr        sql.NullFloat64
		xp        sql.NullInt64
		ac, hp    sql.NullInt64
		createdBy sql.NullString
		createdAt string
	)
	err := row.Scan(&m.ID, &m.Name, &m.Type, &m.Size, &cr, &xp, &ac, &hp,
		&m.HitDice, &m.SavingThrows, &m.Source, &m.IsHomebrew, &createdBy, &createdAt)
	if err != nil {
		return Monster{}, err
	}
	if cr.Valid {
		m.ChallengeRating = &cr.Float64
	}
	if xp.Valid {
		v := int(xp.Int64)
		m.XP = &v
	}
	if ac.Valid {
		v := int(ac.Int64)
		m.ArmorClass = &v
	}
	if hp.Valid {
		v := int(hp.Int64)
		m.HitPoints = &v
	}
	if createdBy.Valid && createdBy.String != "" {
		m.CreatedBy = &createdBy.String
	}
	m.CreatedAt = parseTime(createdAt)
	return m, nil
}
