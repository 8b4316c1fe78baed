package server

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedMonsters(t *testing.T, srv *Server, userID string) {
	t.Helper()
	ctx := context.Background()

	// published entries go straight into the table, the way the seeder does
	published := []struct {
		name   string
		typ    string
		cr     float64
		source string
	}{
		{"Goblin", "humanoid", 0.25, "SRD 5.1"},
		{"Adult Red Dragon", "dragon", 17, "SRD 5.1"},
		{"Wolf", "beast", 0.25, "SRD 5.1"},
	}
	for _, m := range published {
		_, err := srv.db.Exec(
			`INSERT INTO monsters (id, name, type, size, challenge_rating, source, is_homebrew, created_at)
			 VALUES (?, ?, ?, 'Medium', ?, ?, 0, ?)`,
			m.name, m.name, m.typ, m.cr, m.source, formatTime(time.Now().UTC()))
		if err != nil {
			t.Fatalf("seed %s: %v", m.name, err)
		}
	}

	cr := 2.0
	if _, err := srv.CreateMonster(ctx, userID, CreateMonsterData{
		Name:            "Gloomfang",
		Type:            "aberration",
		ChallengeRating: &cr,
	}); err != nil {
		t.Fatalf("create homebrew: %v", err)
	}
}

func TestMonsterFilters(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	seedMonsters(t, srv, "user-1")

	all, err := srv.GetMonsters(ctx, MonsterFilters{})
	if err != nil {
		t.Fatalf("list monsters: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 monsters, got %d", len(all))
	}
	// ordered by name
	if all[0].Name != "Adult Red Dragon" {
		t.Fatalf("expected name ordering, got %s first", all[0].Name)
	}

	byType, err := srv.GetMonsters(ctx, MonsterFilters{Type: "dragon"})
	if err != nil {
		t.Fatalf("filter by type: %v", err)
	}
	if len(byType) != 1 || byType[0].Name != "Adult Red Dragon" {
		t.Fatalf("unexpected type filter result: %+v", byType)
	}

	crMin, crMax := 0.2, 1.0
	byCR, err := srv.GetMonsters(ctx, MonsterFilters{CRMin: &crMin, CRMax: &crMax})
	if err != nil {
		t.Fatalf("filter by CR: %v", err)
	}
	if len(byCR) != 2 {
		t.Fatalf("expected 2 monsters in CR range, got %d", len(byCR))
	}

	homebrew := true
	hb, err := srv.GetMonsters(ctx, MonsterFilters{IsHomebrew: &homebrew})
	if err != nil {
		t.Fatalf("filter homebrew: %v", err)
	}
	if len(hb) != 1 || hb[0].Name != "Gloomfang" {
		t.Fatalf("unexpected homebrew filter result: %+v", hb)
	}
	if !hb[0].IsHomebrew || hb[0].Source != "Homebrew" {
		t.Fatalf("homebrew rows should be marked and sourced as homebrew: %+v", hb[0])
	}
}

func TestMonsterOwnership(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	seedMonsters(t, srv, "user-1")

	hb := true
	monsters, err := srv.GetMonsters(ctx, MonsterFilters{IsHomebrew: &hb})
	if err != nil || len(monsters) != 1 {
		t.Fatalf("expected one homebrew monster, got %v (%v)", monsters, err)
	}
	mine := monsters[0]

	name := "Gloomfang Matriarch"
	if _, err := srv.UpdateMonster(ctx, mine.ID, "user-2", UpdateMonsterData{Name: &name}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating someone else's homebrew, got %v", err)
	}
	updated, err := srv.UpdateMonster(ctx, mine.ID, "user-1", UpdateMonsterData{Name: &name})
	if err != nil {
		t.Fatalf("update own homebrew: %v", err)
	}
	if updated.Name != name {
		t.Fatalf("expected renamed monster, got %q", updated.Name)
	}

	// published entries have no owner and cannot be edited through this path
	if _, err := srv.UpdateMonster(ctx, "Goblin", "user-1", UpdateMonsterData{Name: &name}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating a published entry, got %v", err)
	}

	if err := srv.DeleteMonster(ctx, mine.ID, "user-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting someone else's homebrew, got %v", err)
	}
	if err := srv.DeleteMonster(ctx, mine.ID, "user-1"); err != nil {
		t.Fatalf("delete own homebrew: %v", err)
	}
}

func TestMonsterOptions(t *testing.T) {
	srv := newTestServer(t)
	seedMonsters(t, srv, "user-1")

	opts, err := srv.GetMonsterOptions(context.Background())
	if err != nil {
		t.Fatalf("monster options: %v", err)
	}
	if len(opts.Types) != 4 {
		t.Fatalf("expected 4 distinct types, got %v", opts.Types)
	}
	if len(opts.Sources) != 2 {
		t.Fatalf("expected 2 distinct sources, got %v", opts.Sources)
	}
}
