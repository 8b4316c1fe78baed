package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// sessionToken extracts the DM or player token accompanying a request.
func sessionToken(r *http.Request) string {
	return parseBearer(r.Header.Get("Authorization"))
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, dmToken, err := s.CreateSession(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"session": sess,
		"dmToken": dmToken,
	})
}

func (s *Server) handleJoinSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.JoinSession(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	if err := s.verifyDMToken(r.Context(), sessionID, sessionToken(r)); err != nil {
		writeDomainError(w, err)
		return
	}

	var patch SessionPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	sess, err := s.UpdateSession(r.Context(), sessionID, patch)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.hub.Broadcast(sessionID, Event{Type: EventSessionUpdated, SessionID: sessionID, Payload: sess})
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := s.EndSession(r.Context(), mux.Vars(r)["id"], sessionToken(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

func (s *Server) handleAdvanceTurn(w http.ResponseWriter, r *http.Request) {
	sess, err := s.AdvanceTurn(r.Context(), mux.Vars(r)["id"], sessionToken(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleResetActions(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Type ResetType `json:"type"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	if err := s.ResetCombatantActions(r.Context(), mux.Vars(r)["id"], payload.Type, sessionToken(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleListCombatants(w http.ResponseWriter, r *http.Request) {
	combatants, err := s.GetCombatants(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, combatants)
}

func (s *Server) handleAddCombatant(w http.ResponseWriter, r *http.Request) {
	var data AddCombatantData
	if !decodeBody(w, r, &data) {
		return
	}
	c, err := s.AddCombatant(r.Context(), mux.Vars(r)["id"], data, sessionToken(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleRemoveCombatant(w http.ResponseWriter, r *http.Request) {
	if err := s.RemoveCombatant(r.Context(), mux.Vars(r)["id"], sessionToken(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleUpdateActions(w http.ResponseWriter, r *http.Request) {
	var flags ActionFlags
	if !decodeBody(w, r, &flags) {
		return
	}
	c, err := s.UpdateCombatantActions(r.Context(), mux.Vars(r)["id"], flags, sessionToken(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleClaimCombatant(w http.ResponseWriter, r *http.Request) {
	c, token, err := s.ClaimCombatant(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"combatant":   c,
		"playerToken": token,
	})
}

func (s *Server) handleSpendCustomAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	c, err := s.SpendCustomAction(r.Context(), vars["id"], vars["actionID"], sessionToken(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	if _, err := s.GetSession(r.Context(), sessionID); err != nil {
		writeDomainError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	client := &hubClient{conn: conn}
	s.hub.register(sessionID, client)
	defer s.hub.unregister(sessionID, client)

	// Block reading until the client disconnects so cleanup runs reliably.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	user, token, err := s.Register(r.Context(), payload.Email, payload.Password, payload.DisplayName)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user, "token": token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	user, token, err := s.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "token": token})
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := s.GetCampaigns(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaigns)
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var data CreateCampaignData
	if !decodeBody(w, r, &data) {
		return
	}
	c, err := s.CreateCampaign(r.Context(), userIDFromContext(r.Context()), data)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.GetCampaign(r.Context(), mux.Vars(r)["id"], userIDFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleUpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var data UpdateCampaignData
	if !decodeBody(w, r, &data) {
		return
	}
	c, err := s.UpdateCampaign(r.Context(), mux.Vars(r)["id"], userIDFromContext(r.Context()), data)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := s.DeleteCampaign(r.Context(), mux.Vars(r)["id"], userIDFromContext(r.Context())); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleCampaignStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.GetCampaignStats(r.Context(), mux.Vars(r)["id"], userIDFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListCampaignPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := s.GetCampaignPlayers(r.Context(), mux.Vars(r)["id"], userIDFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, players)
}

func (s *Server) handleAddCampaignPlayer(w http.ResponseWriter, r *http.Request) {
	var data CampaignPlayerData
	if !decodeBody(w, r, &data) {
		return
	}
	p, err := s.AddCampaignPlayer(r.Context(), mux.Vars(r)["id"], userIDFromContext(r.Context()), data)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleUpdateCampaignPlayer(w http.ResponseWriter, r *http.Request) {
	var data UpdateCampaignPlayerData
	if !decodeBody(w, r, &data) {
		return
	}
	p, err := s.UpdateCampaignPlayer(r.Context(), mux.Vars(r)["id"], userIDFromContext(r.Context()), data)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleRemoveCampaignPlayer(w http.ResponseWriter, r *http.Request) {
	if err := s.RemoveCampaignPlayer(r.Context(), mux.Vars(r)["id"], userIDFromContext(r.Context())); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleListMonsters(w http.ResponseWriter, r *http.Request) {
	filters, err := parseMonsterFilters(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	monsters, err := s.GetMonsters(r.Context(), filters)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, monsters)
}

func (s *Server) handleMonsterOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := s.GetMonsterOptions(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

func (s *Server) handleGetMonster(w http.ResponseWriter, r *http.Request) {
	m, err := s.GetMonster(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleCreateMonster(w http.ResponseWriter, r *http.Request) {
	var data CreateMonsterData
	if !decodeBody(w, r, &data) {
		return
	}
	m, err := s.CreateMonster(r.Context(), userIDFromContext(r.Context()), data)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleUpdateMonster(w http.ResponseWriter, r *http.Request) {
	var data UpdateMonsterData
	if !decodeBody(w, r, &data) {
		return
	}
	m, err := s.UpdateMonster(r.Context(), mux.Vars(r)["id"], userIDFromContext(r.Context()), data)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteMonster(w http.ResponseWriter, r *http.Request) {
	if err := s.DeleteMonster(r.Context(), mux.Vars(r)["id"], userIDFromContext(r.Context())); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
