package tgui

import "strings"

// Data formats inline callback data as "app:action:payload".
// Payload is kept as-is; tokens from TokenStore never contain ':'.
func Data(app, action, payload string) string {
	app = strings.TrimSpace(app)
	action = strings.TrimSpace(action)
	if payload == "" {
		return app + ":" + action
	}
	return app + ":" + action + ":" + payload
}

// SplitData parses "app:action:payload" back into its parts.
// The payload may itself contain ':'.
func SplitData(data string) (app, action, payload string) {
	app, rest, _ := strings.Cut(data, ":")
	action, payload, _ = strings.Cut(rest, ":")
	return app, action, payload
}
