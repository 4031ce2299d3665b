// Package display holds the detail screen text and rewrites its battery line
// in place as new readings arrive.
package display

import (
	"fmt"
	"regexp"
	"sync"
)

var batteryPattern = regexp.MustCompile(`Battery: \d+%`)

// BatteryLine formats a battery level the way ReplaceBattery expects to find
// it.
func BatteryLine(level int) string {
	return fmt.Sprintf("Battery: %d%%", level)
}

// ReplaceBattery replaces the first "Battery: NN%" in text with level. If text
// has no such substring it is returned unchanged and ok is false.
func ReplaceBattery(text string, level int) (string, bool) {
	loc := batteryPattern.FindStringIndex(text)
	if loc == nil {
		return text, false
	}
	return text[:loc[0]] + BatteryLine(level) + text[loc[1]:], true
}

// Text is a display buffer shared between the screen that writes it and the
// readers that render it.
type Text struct {
	mu   sync.RWMutex
	text string
}

// Set replaces the whole text.
func (t *Text) Set(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.text = text
}

// String returns the current text.
func (t *Text) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.text
}

// UpdateBattery rewrites the battery line in place. It reports whether the
// visible text changed shape, i.e. whether a battery line was present.
func (t *Text) UpdateBattery(level int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	updated, ok := ReplaceBattery(t.text, level)
	t.text = updated
	return ok
}
