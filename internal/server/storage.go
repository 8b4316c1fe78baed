package server

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// openDatabase prepares a SQLite database at the given path and ensures the schema exists.
func openDatabase(path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}

	if err := ensureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("ensure db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func ensureDir(path string) error {
	if path == "" {
		return errors.New("path is empty")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	return nil
}

func initSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS campaigns (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			settings TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS campaign_players (
			id TEXT PRIMARY KEY,
			campaign_id TEXT NOT NULL,
			name TEXT NOT NULL,
			max_hp INTEGER NOT NULL DEFAULT 0,
			current_hp INTEGER NOT NULL DEFAULT 0,
			ac INTEGER NOT NULL DEFAULT 10,
			initiative_bonus INTEGER NOT NULL DEFAULT 0,
			level INTEGER NOT NULL DEFAULT 1,
			ability_scores TEXT NOT NULL DEFAULT '{}',
			notes TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(campaign_id) REFERENCES campaigns(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS monsters (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			size TEXT NOT NULL DEFAULT '',
			challenge_rating REAL,
			xp INTEGER,
			armor_class INTEGER,
			hit_points INTEGER,
			hit_dice TEXT NOT NULL DEFAULT '',
			saving_throws TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			is_homebrew INTEGER NOT NULL DEFAULT 0,
			created_by TEXT,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			code TEXT NOT NULL,
			dm_token TEXT NOT NULL,
			created_at TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			round INTEGER NOT NULL DEFAULT 1,
			current_turn_index INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1
		);`,
		`CREATE TABLE IF NOT EXISTS combatants (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			name TEXT NOT NULL,
			initiative INTEGER NOT NULL DEFAULT 0,
			max_hp INTEGER,
			current_hp INTEGER,
			is_player INTEGER NOT NULL DEFAULT 0,
			player_token TEXT,
			action_available INTEGER NOT NULL DEFAULT 1,
			bonus_action_available INTEGER NOT NULL DEFAULT 1,
			reaction_available INTEGER NOT NULL DEFAULT 1,
			movement_available INTEGER NOT NULL DEFAULT 1,
			custom_actions TEXT NOT NULL DEFAULT '[]',
			notes TEXT NOT NULL DEFAULT '',
			conditions TEXT NOT NULL DEFAULT '[]',
			order_index INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_code_active ON sessions(code, is_active);`,
		`CREATE INDEX IF NOT EXISTS idx_combatants_session_order ON combatants(session_id, initiative DESC, order_index ASC);`,
		`CREATE INDEX IF NOT EXISTS idx_campaigns_user_updated ON campaigns(user_id, updated_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_monsters_name ON monsters(name);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	return nil
}

// Close releases database resources.
func (s *Server) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
