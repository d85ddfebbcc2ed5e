package server

import (
	"time"

	"prepcal/internal/domain"
)

// Request payloads

type CreateEventRequest struct {
	Title       string    `json:"title"`
	Description *string   `json:"description,omitempty"`
	Location    *string   `json:"location,omitempty"`
	Start       time.Time `json:"start" format:"date-time"`
	End         time.Time `json:"end" format:"date-time"`
	AllDay      bool      `json:"all_day,omitempty"`
}

type SendMessageRequest struct {
	Message string `json:"message"`
}

type NotifyRequest struct {
	Message   string  `json:"message"`
	RequestID *string `json:"request_id,omitempty"`
}

// Response payloads

type EventResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start" format:"date-time"`
	End         time.Time `json:"end" format:"date-time"`
	AllDay      bool      `json:"all_day"`
	Color       string    `json:"color"`
}

type WindowResponse struct {
	View      string    `json:"view" enum:"month,week,day,agenda"`
	Reference time.Time `json:"reference" format:"date-time"`
	Start     time.Time `json:"start" format:"date-time"`
	End       time.Time `json:"end" format:"date-time"`
}

type SendMessageResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status" enum:"pending"`
}

type MessageResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role" enum:"user,assistant,system"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at" format:"date-time"`
}

type ConversationResponse struct {
	State    string            `json:"state" enum:"idle,submitting,awaiting"`
	Messages []MessageResponse `json:"messages"`
}

type PollResponse struct {
	Status  string `json:"status" enum:"pending,answered"`
	Message string `json:"message,omitempty"`
}

type TokenResponse struct {
	Token string `json:"token"`
	User  struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name,omitempty"`
	} `json:"user"`
}

func eventResponse(ev domain.CalendarEvent) EventResponse {
	return EventResponse{
		ID:          ev.ID,
		Title:       ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       ev.Start,
		End:         ev.End,
		AllDay:      ev.AllDay,
		Color:       string(ev.Color),
	}
}

func mapEvents(items []domain.CalendarEvent) []EventResponse {
	out := make([]EventResponse, 0, len(items))
	for _, ev := range items {
		out = append(out, eventResponse(ev))
	}
	return out
}

func mapMessages(items []domain.ChatMessage) []MessageResponse {
	out := make([]MessageResponse, 0, len(items))
	for _, m := range items {
		out = append(out, MessageResponse{
			ID:        m.ID,
			Role:      string(m.Role),
			Text:      m.Text,
			CreatedAt: m.CreatedAt,
		})
	}
	return out
}
