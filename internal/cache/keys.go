package cache

import "fmt"

// Key builders. Centralized so the coordinator, policy repository, and rate
// limiter cannot drift on naming.

// PolicyKey holds the denormalized GroupPolicy JSON for a group.
func PolicyKey(groupID int64) string {
	return fmt.Sprintf("policy:%d", groupID)
}

// ChallengeKey holds the live challenge correlation state for a pair.
func ChallengeKey(groupID, userID int64) string {
	return fmt.Sprintf("challenge:%d:%d", groupID, userID)
}

// TokenKey maps an opaque option token back to its challenge.
func TokenKey(token string) string {
	return "token:" + token
}

// UserChallengeKey maps a user to their live challenge for flows where the
// answer arrives as free text in a private conversation, with no group or
// token context attached.
func UserChallengeKey(userID int64) string {
	return fmt.Sprintf("challenge:user:%d", userID)
}

// RateLimitKey marks a user as cooling down after exhausted attempts.
func RateLimitKey(userID int64) string {
	return fmt.Sprintf("ratelimit:%d", userID)
}
