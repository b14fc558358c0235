package terminal

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownKey = errors.New("unknown key")

// Canonical key names accepted by WriteKey. The set is closed: Enter, Tab,
// BackTab, Clear, PA1-PA3 and PF1-PF24, matched case-insensitively.
var keyNames = buildKeyNames()

func buildKeyNames() map[string]string {
	names := map[string]string{
		"enter":   "Enter",
		"tab":     "Tab",
		"backtab": "BackTab",
		"clear":   "Clear",
	}
	for i := 1; i <= 3; i++ {
		names[fmt.Sprintf("pa%d", i)] = fmt.Sprintf("PA%d", i)
	}
	for i := 1; i <= 24; i++ {
		names[fmt.Sprintf("pf%d", i)] = fmt.Sprintf("PF%d", i)
	}
	return names
}

// NormalizeKey maps a user-supplied key name to its canonical form.
func NormalizeKey(key string) (string, error) {
	canonical, ok := keyNames[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return canonical, nil
}
