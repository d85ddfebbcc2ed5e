package domain

import "strings"

// EventColor is a display grouping label; it carries no scheduling meaning.
type EventColor string

const (
	ColorSky     EventColor = "sky"
	ColorBlue    EventColor = "blue"
	ColorIndigo  EventColor = "indigo"
	ColorViolet  EventColor = "violet"
	ColorPurple  EventColor = "purple"
	ColorPink    EventColor = "pink"
	ColorRose    EventColor = "rose"
	ColorRed     EventColor = "red"
	ColorOrange  EventColor = "orange"
	ColorYellow  EventColor = "yellow"
	ColorGreen   EventColor = "green"
	ColorEmerald EventColor = "emerald"
	ColorTeal    EventColor = "teal"
	ColorCyan    EventColor = "cyan"
)

var colorKeywords = []struct {
	color EventColor
	words []string
}{
	{ColorBlue, []string{"meeting", "standup", "sync", "interview", "call", "presentation"}},
	{ColorPink, []string{"birthday", "anniversary", "party", "celebration", "wedding"}},
	{ColorRed, []string{"doctor", "appointment", "medical", "checkup", "dentist", "therapy"}},
	{ColorCyan, []string{"flight", "travel", "vacation", "trip", "hotel", "airport"}},
	{ColorPurple, []string{"class", "course", "workshop", "training", "seminar", "lecture"}},
	{ColorOrange, []string{"lunch", "dinner", "coffee", "breakfast", "meal", "restaurant"}},
	{ColorGreen, []string{"gym", "workout", "exercise", "yoga", "run", "sports"}},
	{ColorViolet, []string{"movie", "concert", "show", "theater", "game", "entertainment"}},
	{ColorTeal, []string{"shopping", "grocery", "errands", "bank", "post office", "store"}},
	{ColorRose, []string{"deadline", "due", "urgent", "important", "critical", "review"}},
}

var fallbackColors = []EventColor{ColorSky, ColorIndigo, ColorEmerald, ColorYellow}

// SmartColor picks a display color from title/description keywords.
// Unmatched titles rotate through a small palette keyed by a title hash so
// repeated fetches of the same event stay stable.
func SmartColor(title, description string) EventColor {
	text := strings.ToLower(title) + " " + strings.ToLower(description)
	for _, group := range colorKeywords {
		for _, w := range group.words {
			if strings.Contains(text, w) {
				return group.color
			}
		}
	}
	sum := 0
	for _, r := range title {
		sum += int(r)
	}
	return fallbackColors[sum%len(fallbackColors)]
}
