package server

import (
	"net/http"
	"testing"
)

func registerUser(t *testing.T, router http.Handler, email string) string {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/auth/register", "", map[string]string{
		"email":       email,
		"password":    "correct horse battery",
		"displayName": "Tester",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	decodeInto(t, w, &resp)
	if resp.Token == "" {
		t.Fatalf("expected a token from register")
	}
	return resp.Token
}

func TestRegisterAndLogin(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	registerUser(t, router, "dm@example.com")

	// duplicate email
	w := doJSON(t, router, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    "dm@example.com",
		"password": "correct horse battery",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate email, got %d", w.Code)
	}

	// wrong password
	w = doJSON(t, router, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "dm@example.com",
		"password": "wrong",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "dm@example.com",
		"password": "correct horse battery",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRegisterValidation(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	w := doJSON(t, router, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    "not-an-email",
		"password": "correct horse battery",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad email, got %d", w.Code)
	}
	w = doJSON(t, router, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    "short@example.com",
		"password": "short",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for short password, got %d", w.Code)
	}
}

func TestCampaignCRUD(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	token := registerUser(t, router, "dm@example.com")

	// unauthenticated access is rejected
	w := doJSON(t, router, http.MethodGet, "/campaigns", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/campaigns", token,
		CreateCampaignData{Title: "Curse of the Lich", Description: "weekly game"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create campaign: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var campaign Campaign
	decodeInto(t, w, &campaign)

	w = doJSON(t, router, http.MethodPost, "/campaigns", token, CreateCampaignData{Title: " "})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank title, got %d", w.Code)
	}

	newTitle := "Curse of the Lich, Act II"
	w = doJSON(t, router, http.MethodPatch, "/campaigns/"+campaign.ID, token,
		UpdateCampaignData{Title: &newTitle})
	if w.Code != http.StatusOK {
		t.Fatalf("update campaign: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var updated Campaign
	decodeInto(t, w, &updated)
	if updated.Title != newTitle {
		t.Fatalf("expected updated title, got %q", updated.Title)
	}

	// another account cannot see or touch it
	otherToken := registerUser(t, router, "other@example.com")
	w = doJSON(t, router, http.MethodGet, "/campaigns/"+campaign.ID, otherToken, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another account, got %d", w.Code)
	}
	w = doJSON(t, router, http.MethodDelete, "/campaigns/"+campaign.ID, otherToken, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 deleting another account's campaign, got %d", w.Code)
	}

	w = doJSON(t, router, http.MethodDelete, "/campaigns/"+campaign.ID, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete campaign: expected 200, got %d", w.Code)
	}
	w = doJSON(t, router, http.MethodGet, "/campaigns/"+campaign.ID, token, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
}

func TestCampaignPlayersAndStats(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	token := registerUser(t, router, "dm@example.com")

	w := doJSON(t, router, http.MethodPost, "/campaigns", token, CreateCampaignData{Title: "One-shot"})
	var campaign Campaign
	decodeInto(t, w, &campaign)

	w = doJSON(t, router, http.MethodPost, "/campaigns/"+campaign.ID+"/players", token,
		CampaignPlayerData{Name: "Tharek", MaxHP: 38, Level: 4})
	if w.Code != http.StatusCreated {
		t.Fatalf("add player: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var player CampaignPlayer
	decodeInto(t, w, &player)
	if player.CurrentHP != 38 {
		t.Fatalf("expected current HP to default to max HP, got %d", player.CurrentHP)
	}
	if player.AC != 10 {
		t.Fatalf("expected default AC 10, got %d", player.AC)
	}

	hp := 31
	w = doJSON(t, router, http.MethodPatch, "/players/"+player.ID, token,
		UpdateCampaignPlayerData{CurrentHP: &hp})
	if w.Code != http.StatusOK {
		t.Fatalf("update player: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var patched CampaignPlayer
	decodeInto(t, w, &patched)
	if patched.CurrentHP != 31 {
		t.Fatalf("expected current HP 31, got %d", patched.CurrentHP)
	}

	// another account cannot touch the roster
	otherToken := registerUser(t, router, "other@example.com")
	w = doJSON(t, router, http.MethodPatch, "/players/"+player.ID, otherToken,
		UpdateCampaignPlayerData{CurrentHP: &hp})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 patching another account's player, got %d", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/campaigns/"+campaign.ID+"/stats", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d", w.Code)
	}
	var stats CampaignStats
	decodeInto(t, w, &stats)
	if stats.PlayerCount != 1 {
		t.Fatalf("expected 1 player, got %d", stats.PlayerCount)
	}

	w = doJSON(t, router, http.MethodDelete, "/players/"+player.ID, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("remove player: expected 200, got %d", w.Code)
	}
}
