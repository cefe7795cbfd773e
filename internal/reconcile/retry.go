package reconcile

import "strings"

// temporarySubstrings classify errors worth retrying: transport hiccups,
// not rejections.
var temporarySubstrings = []string{"timeout", "network", "connection"}

// isTemporary reports whether an error looks transient. Anything else fails
// immediately instead of burning retry attempts.
func isTemporary(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, substr := range temporarySubstrings {
		if strings.Contains(msg, substr) {
			return true
		}
	}

	return false
}
