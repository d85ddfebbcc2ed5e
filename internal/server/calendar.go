package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"prepcal/internal/calendar"
	"prepcal/internal/domain"
	"prepcal/internal/viewrange"
)

// calendarClient builds a provider client on the principal's stored tokens.
// Refreshed access tokens are written back through the repo.
func calendarClient(ctx context.Context, cfg Config) (*calendar.Client, huma.StatusError) {
	accountID, tok, authErr := accountForUser(ctx, cfg)
	if authErr != nil {
		return nil, authErr
	}
	src := calendar.NewTokenSource(ctx, cfg.Auth.Google, tok, accountID, cfg.Repo)
	client := calendar.New(calendar.HTTPClient(src))
	if cfg.CalendarBaseURL != "" {
		client.BaseURL = cfg.CalendarBaseURL
	}
	return client, nil
}

// resolveWindow parses view/date query values into a concrete range. An
// empty view falls back to the default three-week span, an empty date to
// the current time.
func resolveWindow(view, date string, now time.Time) (domain.ViewRange, huma.StatusError) {
	ref := now
	if date != "" {
		parsed, err := time.Parse(time.RFC3339, date)
		if err != nil {
			parsed, err = time.Parse("2006-01-02", date)
			if err != nil {
				return domain.ViewRange{}, newAPIError(http.StatusBadRequest, "bad_request", "date must be RFC 3339 or YYYY-MM-DD", map[string]any{"date": date})
			}
		}
		ref = parsed
	}
	kind := domain.ViewKind("")
	if view != "" {
		parsed, ok := domain.ParseViewKind(view)
		if !ok {
			return domain.ViewRange{}, newAPIError(http.StatusBadRequest, "bad_request", "view must be one of month, week, day, agenda", map[string]any{"view": view})
		}
		kind = parsed
	}
	return viewrange.ComputeWindow(kind, ref), nil
}

// fetchWindowEvents lists the window from the provider. Auth expiry surfaces
// as an error; any other fetch failure degrades to the sample dataset so the
// calendar never renders empty.
func fetchWindowEvents(ctx context.Context, cfg Config, window domain.ViewRange) ([]domain.CalendarEvent, huma.StatusError) {
	client, authErr := calendarClient(ctx, cfg)
	if authErr != nil {
		return nil, authErr
	}
	provider, err := client.EventsWithRetry(ctx, window.Start, window.End)
	if err != nil {
		if errors.Is(err, calendar.ErrAuthExpired) {
			return nil, handleError(err)
		}
		cfg.logger().Printf("calendar: provider fetch failed, serving sample events: %v", err)
	}
	return viewrange.Reconcile(provider, false, err, viewrange.SampleEvents(cfg.now())), nil
}

func registerCalendar(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-calendar-events",
		Method:      http.MethodGet,
		Path:        "/calendar/events",
		Summary:     "List calendar events",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusTooManyRequests,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		View string `query:"view" enum:"month,week,day,agenda"`
		Date string `query:"date"`
	}) (*struct {
		Body struct {
			Window WindowResponse  `json:"window"`
			Items  []EventResponse `json:"items"`
		} `json:"body"`
	}, error) {
		window, herr := resolveWindow(input.View, input.Date, cfg.now())
		if herr != nil {
			return nil, herr
		}
		items, herr := fetchWindowEvents(ctx, cfg, window)
		if herr != nil {
			return nil, herr
		}
		out := &struct {
			Body struct {
				Window WindowResponse  `json:"window"`
				Items  []EventResponse `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Window = windowResponse(window)
		out.Body.Items = mapEvents(items)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "calendar-window",
		Method:      http.MethodGet,
		Path:        "/calendar/window",
		Summary:     "Resolve a view window",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		View string `query:"view" enum:"month,week,day,agenda"`
		Date string `query:"date"`
	}) (*struct {
		Body WindowResponse `json:"body"`
	}, error) {
		window, herr := resolveWindow(input.View, input.Date, cfg.now())
		if herr != nil {
			return nil, herr
		}
		return &struct {
			Body WindowResponse `json:"body"`
		}{Body: windowResponse(window)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-calendar-event",
		Method:        http.MethodPost,
		Path:          "/calendar/events",
		Summary:       "Create calendar event",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusTooManyRequests,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateEventRequest `json:"body"`
	}) (*struct {
		Body EventResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		if !input.Body.End.After(input.Body.Start) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "end must be after start", nil)
		}
		client, authErr := calendarClient(ctx, cfg)
		if authErr != nil {
			return nil, authErr
		}
		in := calendar.NewEventInput(
			input.Body.Title,
			stringOrEmpty(input.Body.Description),
			stringOrEmpty(input.Body.Location),
			input.Body.Start, input.Body.End, input.Body.AllDay)
		created, err := client.Insert(ctx, in)
		if err != nil {
			return nil, handleError(err)
		}
		ev, ok := viewrange.MapProviderEvent(created)
		if !ok {
			return nil, newAPIError(http.StatusBadGateway, "provider_error", "provider returned an event without usable boundaries", nil)
		}
		return &struct {
			Body EventResponse `json:"body"`
		}{Body: eventResponse(ev)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-calendar-event",
		Method:      http.MethodPatch,
		Path:        "/calendar/events/{id}",
		Summary:     "Update calendar event",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusTooManyRequests,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body CreateEventRequest `json:"body"`
	}) (*struct {
		Body EventResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		if !input.Body.End.After(input.Body.Start) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "end must be after start", nil)
		}
		client, authErr := calendarClient(ctx, cfg)
		if authErr != nil {
			return nil, authErr
		}
		in := calendar.NewEventInput(
			input.Body.Title,
			stringOrEmpty(input.Body.Description),
			stringOrEmpty(input.Body.Location),
			input.Body.Start, input.Body.End, input.Body.AllDay)
		updated, err := client.Update(ctx, input.ID, in)
		if err != nil {
			return nil, handleError(err)
		}
		ev, ok := viewrange.MapProviderEvent(updated)
		if !ok {
			return nil, newAPIError(http.StatusBadGateway, "provider_error", "provider returned an event without usable boundaries", nil)
		}
		return &struct {
			Body EventResponse `json:"body"`
		}{Body: eventResponse(ev)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-calendar-event",
		Method:      http.MethodDelete,
		Path:        "/calendar/events/{id}",
		Summary:     "Delete calendar event",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusTooManyRequests,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		client, authErr := calendarClient(ctx, cfg)
		if authErr != nil {
			return nil, authErr
		}
		if err := client.Delete(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

// registerCalendarFeed serves the resolved window as an iCalendar feed. Raw
// route: the response is text/calendar, not JSON.
func registerCalendarFeed(router chi.Router, basePath string, cfg Config) {
	router.Get(path.Join(basePath, "calendar/feed.ics"), func(w http.ResponseWriter, r *http.Request) {
		window, herr := resolveWindow(r.URL.Query().Get("view"), r.URL.Query().Get("date"), cfg.now())
		if herr != nil {
			respondStatusError(w, herr)
			return
		}
		items, herr := fetchWindowEvents(r.Context(), cfg, window)
		if herr != nil {
			respondStatusError(w, herr)
			return
		}
		cal := ics.NewCalendar()
		cal.SetMethod(ics.MethodPublish)
		cal.SetXWRCalName("PrepCal")
		now := cfg.now()
		for _, ev := range items {
			ve := cal.AddEvent(ev.ID)
			ve.SetDtStampTime(now)
			ve.SetSummary(ev.Title)
			if ev.Description != "" {
				ve.SetDescription(ev.Description)
			}
			if ev.Location != "" {
				ve.SetLocation(ev.Location)
			}
			if ev.AllDay {
				ve.SetAllDayStartAt(ev.Start)
				ve.SetAllDayEndAt(ev.End)
			} else {
				ve.SetStartAt(ev.Start)
				ve.SetEndAt(ev.End)
			}
		}
		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "prepcal.ics"))
		fmt.Fprint(w, cal.Serialize())
	})
}

func windowResponse(window domain.ViewRange) WindowResponse {
	return WindowResponse{
		View:      string(window.View),
		Reference: window.Reference,
		Start:     window.Start,
		End:       window.End,
	}
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
