package async

import "strings"

// SanitizeRefreshError reduces the noisy output of a failed token refresh
// to a single status-message line. The refresh helper logs through its own
// "[fitbit]" prefix and often trails into a traceback; only the last
// reported error matters to the user.
func SanitizeRefreshError(stdout, stderr string) string {
	raw := strings.TrimSpace(stderr)
	if raw == "" {
		raw = strings.TrimSpace(stdout)
	}
	if raw == "" {
		return "Token refresh failed"
	}

	const marker = "[fitbit] Error:"
	if idx := strings.LastIndex(raw, marker); idx >= 0 {
		raw = strings.TrimSpace(raw[idx+len(marker):])
	}

	if strings.Contains(raw, "Token file not found:") {
		return "Token file not found"
	}
	if strings.Contains(raw, "Refresh token is invalid or expired") {
		return "Refresh token is invalid or expired"
	}

	if idx := strings.IndexByte(raw, '\n'); idx >= 0 {
		raw = strings.TrimSpace(raw[:idx])
	}
	if raw == "" {
		return "Token refresh failed"
	}
	return raw
}

// SanitizeScriptError reduces raw script output to the one line naming the
// failure, preferring stderr over stdout. Tracebacks put the exception
// message last, so the last non-empty line is kept.
func SanitizeScriptError(stdout, stderr, fallback string) string {
	raw := strings.TrimSpace(stderr)
	if raw == "" {
		raw = strings.TrimSpace(stdout)
	}
	if raw == "" {
		return fallback
	}
	lines := strings.Split(raw, "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
