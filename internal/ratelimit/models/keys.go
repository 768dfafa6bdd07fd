package models

import "strings"

// SanitizeKeySegment escapes delimiter characters in rate limit key segments
// to prevent key collision attacks where user-controlled identifiers containing
// ':' could manipulate adjacent rate limit buckets.
//
// Example: an IPv6 identity "2001:db8::1" becomes "2001_db8__1".
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// BucketKey names the bucket of one (identity, class) pair.
func BucketKey(identity string, class EndpointClass) string {
	return "rl:" + string(class) + ":" + SanitizeKeySegment(identity)
}
