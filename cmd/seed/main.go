// Command seed imports a 5e bestiary JSON dump into the monsters table.
// Rows it creates are marked as published-source entries, not homebrew;
// earlier rows from the same source are replaced so the seed can be re-run.
package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type bestiary struct {
	Monsters []bestiaryMonster `json:"monsters"`
}

type bestiaryMonster struct {
	Name         string `json:"name"`
	Size         string `json:"size"`
	Type         string `json:"type"`
	Challenge    string `json:"challenge"`
	ArmorClass   string `json:"armor_class"`
	HitPoints    string `json:"hit_points"`
	SavingThrows string `json:"saving_throws"`
}

func main() {
	dbPath := flag.String("db", "data/dmscreen.db", "sqlite database path")
	input := flag.String("input", "data/monsters-srd.json", "bestiary JSON file")
	source := flag.String("source", "SRD 5.1", "source label for imported monsters")
	flag.Parse()

	if err := run(*dbPath, *input, *source); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
}

func run(dbPath, input, source string) error {
	raw, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("read bestiary: %w", err)
	}

	var data bestiary
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("parse bestiary: %w", err)
	}
	if len(data.Monsters) == 0 {
		return fmt.Errorf("no monsters found in %s", input)
	}
	log.Printf("found %d monsters to import", len(data.Monsters))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	// the seeder may run before the server ever has
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS monsters (
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
	);`); err != nil {
		return fmt.Errorf("ensure monsters table: %w", err)
	}

	// seeds run every time; clear prior rows from the same source
	if _, err := db.Exec(
		`DELETE FROM monsters WHERE source = ? AND is_homebrew = 0`, source); err != nil {
		return fmt.Errorf("clear previous seed: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	inserted := 0
	for _, m := range data.Monsters {
		if m.Name == "" {
			continue
		}
		cr, xp := parseChallengeRating(m.Challenge)
		hp, dice := extractHitPoints(m.HitPoints)
		ac := extractArmorClass(m.ArmorClass)
		saves := parseSavingThrows(m.SavingThrows)

		_, err := db.Exec(
			`INSERT INTO monsters (id, name, type, size, challenge_rating, xp, armor_class,
				hit_points, hit_dice, saving_throws, source, is_homebrew, created_by, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?)`,
			uuid.NewString(), m.Name, m.Type, m.Size, cr, xp, ac, hp, dice, saves, source, now)
		if err != nil {
			return fmt.Errorf("insert %s: %w", m.Name, err)
		}
		inserted++
	}

	log.Printf("imported %d monsters from %s", inserted, source)
	return nil
}
