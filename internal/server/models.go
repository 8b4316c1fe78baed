package server

import "time"

// Role identifies which credential a client is acting with.
type Role string

const (
	RoleDM     Role = "dm"
	RolePlayer Role = "player"
)

// Session is a live combat session joinable by code.
type Session struct {
	ID               string    `json:"id"`
	Code             string    `json:"code"`
	DMToken          string    `json:"-"`
	CreatedAt        time.Time `json:"createdAt"`
	ExpiresAt        time.Time `json:"expiresAt"`
	Round            int       `json:"round"`
	CurrentTurnIndex int       `json:"currentTurnIndex"`
	IsActive         bool      `json:"isActive"`
}

// SessionPatch is a partial update to a session's mutable fields.
type SessionPatch struct {
	Round            *int  `json:"round"`
	CurrentTurnIndex *int  `json:"currentTurnIndex"`
	IsActive         *bool `json:"isActive"`
}

// CustomAction tracks a limited-use ability (legendary actions, breath
// weapons) with its reset trigger.
type CustomAction struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MaxUses     int    `json:"maxUses"`
	CurrentUses int    `json:"currentUses"`
	ResetOn     string `json:"resetOn"` // "turn", "round" or "manual"
}

// Combatant is a participant in a session's initiative order.
type Combatant struct {
	ID          string  `json:"id"`
	SessionID   string  `json:"sessionId"`
	Name        string  `json:"name"`
	Initiative  int     `json:"initiative"`
	MaxHP       *int    `json:"maxHp,omitempty"`
	CurrentHP   *int    `json:"currentHp,omitempty"`
	IsPlayer    bool    `json:"isPlayer"`
	PlayerToken *string `json:"-"`

	ActionAvailable      bool `json:"actionAvailable"`
	BonusActionAvailable bool `json:"bonusActionAvailable"`
	ReactionAvailable    bool `json:"reactionAvailable"`
	MovementAvailable    bool `json:"movementAvailable"`

	CustomActions []CustomAction `json:"customActions"`
	Notes         string         `json:"notes,omitempty"`
	Conditions    []string       `json:"conditions,omitempty"`

	OrderIndex int       `json:"orderIndex"`
	CreatedAt  time.Time `json:"createdAt"`
}

// AddCombatantData is the DM-supplied payload for a new combatant.
type AddCombatantData struct {
	Name          string         `json:"name"`
	Initiative    int            `json:"initiative"`
	MaxHP         *int           `json:"maxHp"`
	CurrentHP     *int           `json:"currentHp"`
	IsPlayer      bool           `json:"isPlayer"`
	CustomActions []CustomAction `json:"customActions"`
	Notes         string         `json:"notes"`
	Conditions    []string       `json:"conditions"`
}

// ActionFlags is a partial update to a combatant's action economy; nil
// fields are left untouched.
type ActionFlags struct {
	ActionAvailable      *bool `json:"actionAvailable"`
	BonusActionAvailable *bool `json:"bonusActionAvailable"`
	ReactionAvailable    *bool `json:"reactionAvailable"`
	MovementAvailable    *bool `json:"movementAvailable"`
}

// ResetType selects which action-economy flags a reset restores.
type ResetType string

const (
	// ResetTurn restores action, bonus action and movement. Reactions
	// persist across turns within a round.
	ResetTurn ResetType = "turn"
	// ResetRound restores all four flags.
	ResetRound ResetType = "round"
)

// User is a registered account. Accounts own campaigns and homebrew
// monsters; combat sessions stay anonymous.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Campaign is an account-owned campaign.
type Campaign struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Settings    string    `json:"settings"` // opaque JSON blob
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CampaignStats summarizes a campaign's roster.
type CampaignStats struct {
	PlayerCount int `json:"playerCount"`
}

// CampaignPlayer is a persistent party member attached to a campaign.
type CampaignPlayer struct {
	ID              string    `json:"id"`
	CampaignID      string    `json:"campaignId"`
	Name            string    `json:"name"`
	MaxHP           int       `json:"maxHp"`
	CurrentHP       int       `json:"currentHp"`
	AC              int       `json:"ac"`
	InitiativeBonus int       `json:"initiativeBonus"`
	Level           int       `json:"level"`
	AbilityScores   string    `json:"abilityScores"` // opaque JSON blob
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Monster is a stat-block reference entry, either from a published source
// or a user's homebrew.
type Monster struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Type            string    `json:"type,omitempty"`
	Size            string    `json:"size,omitempty"`
	ChallengeRating *float64  `json:"challengeRating,omitempty"`
	XP              *int      `json:"xp,omitempty"`
	ArmorClass      *int      `json:"armorClass,omitempty"`
	HitPoints       *int      `json:"hitPoints,omitempty"`
	HitDice         string    `json:"hitDice,omitempty"`
	SavingThrows    string    `json:"savingThrows,omitempty"` // opaque JSON blob
	Source          string    `json:"source,omitempty"`
	IsHomebrew      bool      `json:"isHomebrew"`
	CreatedBy       *string   `json:"createdBy,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// MonsterFilters narrows a monster listing. Zero values mean no filter.
type MonsterFilters struct {
	Type       string
	CRMin      *float64
	CRMax      *float64
	IsHomebrew *bool
	Source     string
}

// MonsterOptions lists the distinct values available for list filters.
type MonsterOptions struct {
	Types   []string `json:"types"`
	Sources []string `json:"sources"`
}
