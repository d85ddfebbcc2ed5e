package viewrange

import (
	"time"

	"prepcal/internal/domain"
)

// SampleEvents builds the static fallback dataset shown when the provider
// fetch errors. Events are anchored to the week containing now so the
// degraded calendar never looks empty.
func SampleEvents(now time.Time) []domain.CalendarEvent {
	sunday := startOfDay(now.AddDate(0, 0, -int(now.Weekday())))
	at := func(dayOffset, hour, minute int) time.Time {
		return sunday.AddDate(0, 0, dayOffset).Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
	}
	return []domain.CalendarEvent{
		{
			ID:          "sample-board",
			Title:       "Executive Board Meeting",
			Description: "Quarterly review with executive team",
			Start:       at(1, 9, 0),
			End:         at(1, 11, 30),
			Color:       domain.ColorBlue,
			Location:    "Executive Boardroom",
		},
		{
			ID:          "sample-workshop",
			Title:       "Strategy Workshop",
			Description: "Annual strategy planning session",
			Start:       at(1, 14, 0),
			End:         at(1, 16, 0),
			Color:       domain.ColorViolet,
			Location:    "Innovation Lab",
		},
		{
			ID:          "sample-interview",
			Title:       "Interview: UX Designer",
			Description: "First round interview",
			Start:       at(2, 14, 0),
			End:         at(2, 15, 0),
			Color:       domain.ColorViolet,
			Location:    "HR Office",
		},
		{
			ID:          "sample-lunch",
			Title:       "Team Lunch",
			Description: "Quarterly team lunch",
			Start:       at(2, 12, 0),
			End:         at(2, 13, 30),
			Color:       domain.ColorOrange,
			Location:    "Bistro Garden",
		},
		{
			ID:          "sample-allhands",
			Title:       "Company All-Hands",
			Description: "Monthly company update",
			Start:       at(3, 9, 0),
			End:         at(3, 10, 30),
			Color:       domain.ColorEmerald,
			Location:    "Main Auditorium",
		},
		{
			ID:          "sample-demo",
			Title:       "Product Demo",
			Description: "Demo new features to stakeholders",
			Start:       at(3, 13, 45),
			End:         at(3, 15, 0),
			Color:       domain.ColorBlue,
			Location:    "Demo Room",
		},
		{
			ID:          "sample-1on1",
			Title:       "1:1 w/ Tommy",
			Description: "Talent review",
			Start:       at(4, 9, 45),
			End:         at(4, 10, 45),
			Color:       domain.ColorViolet,
			Location:    "Abbey Road Room",
		},
		{
			ID:          "sample-weekly",
			Title:       "Weekly Review",
			Description: "Manual process review",
			Start:       at(5, 8, 45),
			End:         at(5, 9, 45),
			Color:       domain.ColorBlue,
		},
		{
			ID:          "sample-offsite",
			Title:       "Team Building",
			Description: "Offsite team building activity",
			Start:       at(6, 9, 0),
			End:         at(6, 17, 0),
			Color:       domain.ColorEmerald,
			Location:    "Adventure Park",
			AllDay:      true,
		},
		{
			ID:          "sample-family",
			Title:       "Family Time",
			Description: "Some time to spend with family",
			Start:       at(0, 10, 0),
			End:         at(0, 13, 30),
			Color:       domain.ColorRose,
		},
	}
}
