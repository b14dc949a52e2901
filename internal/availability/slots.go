// Package availability converts patient time-slot tokens between the compact
// stored format ("8-9") and the zero-padded display format ("08-09"), and
// applies the flexibility override that treats every slot as selected.
package availability

import (
	"fmt"
	"strconv"
	"strings"
)

// Slots is the canonical ordered slot list offered on the edit surface.
var Slots = []string{
	"08-09", "09-10", "10-11", "11-12",
	"12-13", "13-14", "14-15", "15-16",
	"16-17", "17-18",
}

// PrintSlots is the slot list rendered on the printed patient sheet. It keeps
// the trailing evening column of the original sheet layout.
var PrintSlots = []string{
	"08-09", "09-10", "10-11", "11-12", "12-13", "13-14",
	"14-15", "15-16", "16-17", "17-18", "18-19",
}

// WeekdayFields are the default submission field keys holding per-day
// availability arrays.
var WeekdayFields = []string{"montag", "dienstag", "mittwoch", "donnerstag", "freitag"}

// parseToken splits an hour-pair token into its two hour values. Only plain
// 0-23 integers joined by a single dash qualify; anything else is legacy data
// that must pass through conversion untouched.
func parseToken(token string) (int, int, bool) {
	parts := strings.Split(token, "-")
	if len(parts) != 2 {
		return 0, 0, false
	}
	start, ok := parseHour(parts[0])
	if !ok {
		return 0, 0, false
	}
	end, ok := parseHour(parts[1])
	if !ok {
		return 0, 0, false
	}
	return start, end, true
}

func parseHour(text string) (int, bool) {
	if text == "" || len(text) > 2 {
		return 0, false
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	hour, err := strconv.Atoi(text)
	if err != nil || hour > 23 {
		return 0, false
	}
	return hour, true
}

// ToDisplay converts a stored token to the zero-padded display format.
// Non-conforming tokens are returned unchanged.
func ToDisplay(stored string) string {
	start, end, ok := parseToken(stored)
	if !ok {
		return stored
	}
	return fmt.Sprintf("%02d-%02d", start, end)
}

// ToStored converts a display token to the compact stored format.
// Non-conforming tokens are returned unchanged.
func ToStored(display string) string {
	start, end, ok := parseToken(display)
	if !ok {
		return display
	}
	return fmt.Sprintf("%d-%d", start, end)
}

// ToDisplayAll converts every token of a stored day array.
func ToDisplayAll(stored []string) []string {
	display := make([]string, len(stored))
	for i, token := range stored {
		display[i] = ToDisplay(token)
	}
	return display
}

// ToStoredAll converts every token of a display day array.
func ToStoredAll(display []string) []string {
	stored := make([]string, len(display))
	for i, token := range display {
		stored[i] = ToStored(token)
	}
	return stored
}

// EffectiveSlots resolves the display slots for one weekday. A set flexibility
// flag overrides whatever is stored and selects the full canonical list.
func EffectiveSlots(stored []string, flexible bool) []string {
	if flexible {
		return append([]string(nil), Slots...)
	}
	return ToDisplayAll(stored)
}

// FullStoredSlots returns the canonical slot list in stored format, used when
// a flexible submission is written back.
func FullStoredSlots() []string {
	return ToStoredAll(Slots)
}
