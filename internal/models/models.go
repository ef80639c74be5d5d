package models

import "time"

// Mode selects which generation endpoint a request targets. Gallery is a
// pure browsing mode and never dispatches.
type Mode string

const (
	ModeImage   Mode = "image"
	ModeVideo   Mode = "video"
	ModeGallery Mode = "gallery"
)

// MediaKind is the kind recorded on a generation row.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// PlanTier enumerates the subscription tiers.
type PlanTier string

const (
	PlanFree   PlanTier = "free"
	PlanPlus   PlanTier = "plus"
	PlanPro    PlanTier = "pro"
	PlanAgency PlanTier = "agency"
)

// Profile is the remotely owned economy record for a user. The client never
// computes a new balance locally; it re-reads after every mutating action.
type Profile struct {
	ID           string   `json:"id"`
	Credits      int      `json:"credits"`
	PlanTier     PlanTier `json:"plan_tier"`
	ReferralCode string   `json:"referral_code"`
	Coins        int      `json:"coins"`
}

// Generation is one row of the remote gallery history.
type Generation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      MediaKind `json:"type"`
	URL       string    `json:"url"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification is a globally published announcement record.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Link      string    `json:"link,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Plan describes one store offering. The catalog is static configuration;
// purchases happen on an externally hosted checkout page.
type Plan struct {
	ID       PlanTier `json:"id"`
	Name     string   `json:"name"`
	Credits  int      `json:"credits"`
	Price    string   `json:"price"`
	Features []string `json:"features"`
}

// ChatRole tags a transcript turn.
type ChatRole string

const (
	RoleUser  ChatRole = "user"
	RoleModel ChatRole = "model"
)

// ChatMessage is one turn of the assistant transcript.
type ChatMessage struct {
	Role ChatRole `json:"role"`
	Text string   `json:"text"`
}

// Attachment is an uploaded input file held in the session until submit.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}
