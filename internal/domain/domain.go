package domain

import (
	"fmt"
	"math/rand"
	"time"
)

// ViewKind selects both the calendar grid and its fetch window sizing.
type ViewKind string

const (
	ViewMonth  ViewKind = "month"
	ViewWeek   ViewKind = "week"
	ViewDay    ViewKind = "day"
	ViewAgenda ViewKind = "agenda"
)

// ParseViewKind returns the view for s, or ok=false for anything
// unrecognized (callers fall back to the default window).
func ParseViewKind(s string) (ViewKind, bool) {
	switch ViewKind(s) {
	case ViewMonth, ViewWeek, ViewDay, ViewAgenda:
		return ViewKind(s), true
	}
	return "", false
}

// ViewRange is the inclusive, day-aligned fetch window derived from a view
// kind and reference date. Recomputed, never mutated.
type ViewRange struct {
	Start     time.Time `json:"time_min" format:"date-time"`
	End       time.Time `json:"time_max" format:"date-time"`
	View      ViewKind  `json:"view"`
	Reference time.Time `json:"reference" format:"date-time"`
}

// CalendarEvent is a schedulable item shown on the calendar.
type CalendarEvent struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Start       time.Time  `json:"start" format:"date-time"`
	End         time.Time  `json:"end" format:"date-time"`
	AllDay      bool       `json:"all_day,omitempty"`
	Location    string     `json:"location,omitempty"`
	Color       EventColor `json:"color,omitempty"`
}

// ProviderEvent is the wire shape of an upstream calendar record. Each
// boundary carries either a precise timestamp or a date-only field.
type ProviderEvent struct {
	ID          string           `json:"id"`
	Summary     string           `json:"summary,omitempty"`
	Description string           `json:"description,omitempty"`
	Location    string           `json:"location,omitempty"`
	Status      string           `json:"status,omitempty"`
	Start       ProviderBoundary `json:"start"`
	End         ProviderBoundary `json:"end"`
}

// ProviderBoundary holds one side of a provider event's span.
// DateTime is RFC 3339; Date is YYYY-MM-DD for all-day entries.
type ProviderBoundary struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
}

// ChatRole identifies the author of a chat message.
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
	RoleSystem    ChatRole = "system"
)

// ChatMessage is one entry in a conversation. The sequence is append-only.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      ChatRole  `json:"role" enum:"user,assistant,system"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at" format:"date-time"`
}

// NewMessageID builds a time+random local id. Not globally unique across
// restarts; that is fine for a single conversation panel.
func NewMessageID(now time.Time) string {
	return fmt.Sprintf("%d-%06x", now.UnixMilli(), rand.Intn(1<<24))
}

// ChatRequest is a submitted message awaiting an asynchronous reply.
type ChatRequest struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	Status    string `json:"status" enum:"pending,answered,expired"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// ChatReply is an inbound reply delivered by the workflow system.
type ChatReply struct {
	ID        string `json:"id"`
	RequestID string `json:"request_id"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// User is an authenticated end user.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Account links a user to an upstream OAuth identity and holds its tokens.
type Account struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	Provider     string `json:"provider"`
	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`
	Expiry       string `json:"expiry,omitempty" format:"date-time"`
	UpdatedAt    string `json:"updated_at" format:"date-time"`
}
