// Package viewrange resolves a calendar view selection into the concrete
// fetch window to request from the provider, and decides what to render when
// the provider result is empty, pending, or failed.
package viewrange

import (
	"errors"
	"time"

	"prepcal/internal/calendar"
	"prepcal/internal/domain"
)

// monthPadding is how far the month grid reaches beyond the first and last
// of the month to cover leading/trailing cells.
const monthPadding = 7

// ComputeWindow translates {view, reference date} into an inclusive fetch
// window. The result is always day-aligned: start at 00:00:00.000 and end at
// 23:59:59.999 in the reference date's location, whatever the view kind.
func ComputeWindow(view domain.ViewKind, ref time.Time) domain.ViewRange {
	var start, end time.Time
	switch view {
	case domain.ViewMonth:
		firstOfMonth := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
		lastOfMonth := firstOfMonth.AddDate(0, 1, -1)
		start = firstOfMonth.AddDate(0, 0, -monthPadding)
		end = lastOfMonth.AddDate(0, 0, monthPadding)
	case domain.ViewWeek:
		start = ref.AddDate(0, 0, -int(ref.Weekday())) // back to Sunday
		end = start.AddDate(0, 0, 6)
	case domain.ViewDay:
		// 3-day padding window so adjacent-day drag targets are preloaded.
		start = ref.AddDate(0, 0, -1)
		end = ref.AddDate(0, 0, 2)
	case domain.ViewAgenda:
		start = ref.AddDate(0, 0, -7)
		end = ref.AddDate(0, 0, 30)
	default:
		// 3-week window centered on the current week.
		sunday := ref.AddDate(0, 0, -int(ref.Weekday()))
		start = sunday.AddDate(0, 0, -7)
		end = sunday.AddDate(0, 0, 21)
	}
	return domain.ViewRange{
		Start:     startOfDay(start),
		End:       endOfDay(end),
		View:      view,
		Reference: ref,
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999_000_000, t.Location())
}

// MapProviderEvent converts one provider record into the internal event
// shape. A precise timestamp wins over a date-only field; a date-only
// boundary is anchored to midnight UTC. Records missing both forms on either
// boundary cannot be rendered and are dropped (ok=false).
func MapProviderEvent(ev domain.ProviderEvent) (domain.CalendarEvent, bool) {
	start, startDateOnly, ok := parseBoundary(ev.Start)
	if !ok {
		return domain.CalendarEvent{}, false
	}
	end, endDateOnly, ok := parseBoundary(ev.End)
	if !ok {
		return domain.CalendarEvent{}, false
	}
	title := ev.Summary
	if title == "" {
		title = "Untitled"
	}
	return domain.CalendarEvent{
		ID:          ev.ID,
		Title:       title,
		Description: ev.Description,
		Start:       start,
		End:         end,
		AllDay:      startDateOnly && endDateOnly,
		Location:    ev.Location,
		Color:       domain.SmartColor(title, ev.Description),
	}, true
}

func parseBoundary(b domain.ProviderBoundary) (t time.Time, dateOnly, ok bool) {
	if b.DateTime != "" {
		parsed, err := time.Parse(time.RFC3339, b.DateTime)
		if err != nil {
			return time.Time{}, false, false
		}
		return parsed, false, true
	}
	if b.Date != "" {
		parsed, err := time.ParseInLocation("2006-01-02", b.Date, time.UTC)
		if err != nil {
			return time.Time{}, false, false
		}
		return parsed, true, true
	}
	return time.Time{}, false, false
}

// Reconcile decides what to render for a fetch outcome.
//
// A non-empty provider result is used exclusively; fallback events never mix
// in. An empty result with the fetch settled is trusted as authoritative "no
// events". An errored fetch degrades to the fallback dataset, except for
// authentication failures, which must surface as needs-re-authentication
// rather than being masked by sample data.
func Reconcile(provider []domain.ProviderEvent, loading bool, fetchErr error, fallback []domain.CalendarEvent) []domain.CalendarEvent {
	if fetchErr != nil {
		if errors.Is(fetchErr, calendar.ErrAuthExpired) {
			return nil
		}
		return fallback
	}
	if len(provider) > 0 {
		mapped := make([]domain.CalendarEvent, 0, len(provider))
		for _, ev := range provider {
			if m, ok := MapProviderEvent(ev); ok {
				mapped = append(mapped, m)
			}
		}
		return mapped
	}
	if loading {
		return nil
	}
	return []domain.CalendarEvent{}
}
