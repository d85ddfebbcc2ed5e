package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"prepcal/internal/relay"
	"prepcal/internal/repo"
)

const streamKeepAlive = 25 * time.Second

func registerChat(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "send-chat-message",
		Method:        http.MethodPost,
		Path:          "/chat/messages",
		Summary:       "Send a message to the workflow",
		DefaultStatus: http.StatusAccepted,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		Body SendMessageRequest `json:"body"`
	}) (*struct {
		Body SendMessageResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		message := strings.TrimSpace(input.Body.Message)
		if message == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "message is required", nil)
		}
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		// Persist before submitting so a reply racing in through the notify
		// ingress always finds the pending row.
		req, err := cfg.Repo.CreateChatRequest(ctx, uuid.NewString(), message)
		if err != nil {
			return nil, handleError(err)
		}
		if err := cfg.Session.Send(ctx, message); err != nil {
			if derr := cfg.Repo.DeleteChatRequest(ctx, req.ID); derr != nil {
				cfg.logger().Printf("chat: could not remove request %s after failed submit: %v", req.ID, derr)
			}
			return nil, newAPIError(http.StatusBadGateway, "workflow_unreachable", "could not reach the workflow service", map[string]any{"error": err.Error()})
		}
		return &struct {
			Body SendMessageResponse `json:"body"`
		}{Body: SendMessageResponse{RequestID: req.ID, Status: req.Status}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-conversation",
		Method:      http.MethodGet,
		Path:        "/chat/messages",
		Summary:     "Conversation transcript",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ConversationResponse `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body ConversationResponse `json:"body"`
		}{Body: ConversationResponse{
			State:    string(cfg.Session.State()),
			Messages: mapMessages(cfg.Session.Messages()),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "poll-chat-response",
		Method:      http.MethodGet,
		Path:        "/chat/responses/{request_id}",
		Summary:     "Poll for a workflow reply",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		RequestID string `path:"request_id"`
	}) (*struct {
		Body PollResponse `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		req, err := cfg.Repo.GetChatRequest(ctx, input.RequestID)
		if err != nil {
			return nil, handleError(err)
		}
		reply, err := cfg.Repo.ReplyForRequest(ctx, req.ID)
		if errors.Is(err, repo.ErrNotFound) {
			// Not ready yet; an empty body, not an error.
			return &struct {
				Body PollResponse `json:"body"`
			}{Body: PollResponse{Status: "pending"}}, nil
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PollResponse `json:"body"`
		}{Body: PollResponse{Status: "answered", Message: reply.Message}}, nil
	})

	registerNotify(api, cfg)
}

// registerNotify is the ingress for workflow replies. It is exempt from
// bearer auth and guarded by the shared notify secret instead.
func registerNotify(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "notify-chat-response",
		Method:      http.MethodPost,
		Path:        "/chat/notify",
		Summary:     "Deliver a workflow reply",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Secret string        `header:"X-Relay-Secret"`
		Body   NotifyRequest `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if cfg.NotifySecret != "" && input.Secret != cfg.NotifySecret {
			return nil, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid notify secret", nil)
		}
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		message := strings.TrimSpace(input.Body.Message)
		if message == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "message is required", nil)
		}

		requestID := ""
		if input.Body.RequestID != nil && *input.Body.RequestID != "" {
			req, err := cfg.Repo.GetChatRequest(ctx, *input.Body.RequestID)
			if err != nil {
				return nil, handleError(err)
			}
			requestID = req.ID
		} else if req, err := cfg.Repo.LatestPendingRequest(ctx); err == nil {
			requestID = req.ID
		} else if !errors.Is(err, repo.ErrNotFound) {
			return nil, handleError(err)
		}
		if requestID != "" {
			if _, err := cfg.Repo.RecordReply(ctx, requestID, message); err != nil {
				return nil, handleError(err)
			}
		} else {
			cfg.logger().Printf("chat: reply arrived with no pending request; broadcasting only")
		}

		ev := relay.Event{Type: relay.EventResponse, Message: message, RequestID: requestID}
		cfg.Session.HandleEvent(ev)
		cfg.Hub.Broadcast(ev)
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "delivered"}}, nil
	})
}

// registerChatStream serves the push channel. Raw route: SSE needs direct
// access to the flusher, which the typed handler layer hides.
func registerChatStream(router chi.Router, basePath string, cfg Config) {
	router.Get(path.Join(basePath, "chat/stream"), func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			respondStatusError(w, newAPIError(http.StatusInternalServerError, "internal_error", "streaming unsupported", nil))
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		events, cancel := cfg.Hub.Subscribe()
		defer cancel()

		writeEvent(w, relay.Event{Type: relay.EventConnected, Message: "Conversation channel ready"})
		flusher.Flush()

		keepAlive := time.NewTicker(streamKeepAlive)
		defer keepAlive.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-keepAlive.C:
				fmt.Fprint(w, ": keep-alive\n\n")
				flusher.Flush()
			case ev, ok := <-events:
				if !ok {
					return
				}
				writeEvent(w, ev)
				flusher.Flush()
			}
		}
	})
}

func writeEvent(w http.ResponseWriter, ev relay.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
