package ratelimit

import "strings"

// KeyForDecision builds a limiter key for the user's generation requests.
func KeyForDecision(userID string, decision Decision) string {
	userID = strings.TrimSpace(userID)
	if userID == "" || decision.Limit <= 0 || decision.Scope == ScopeNone {
		return ""
	}
	return "gen:u:" + userID
}
