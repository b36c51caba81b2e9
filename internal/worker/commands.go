package worker

import "regexp"

// forbiddenCommandPatterns matches infrastructure-mutating shell
// commands rejected at the shell boundary for services/infra scopes
// (§6), regardless of what a task or the oracle proposed.
var forbiddenCommandPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)terraform\s+(apply|destroy)`),
	regexp.MustCompile(`(?i)aws\s+.*\s+(create|update|delete|put)`),
	regexp.MustCompile(`(?i)sam\s+(deploy|delete)`),
	regexp.MustCompile(`(?i)kubectl\s+(apply|create|delete|patch)`),
	regexp.MustCompile(`(?i)helm\s+(install|upgrade|delete)`),
	regexp.MustCompile(`(?i)gcloud\s+.*\s+(create|update|delete)`),
	regexp.MustCompile(`(?i)az\s+.*\s+(create|update|delete)`),
}

// IsForbiddenCommand reports whether cmd matches an infrastructure
// mutation pattern and must be rejected before it runs.
func IsForbiddenCommand(cmd string) bool {
	for _, p := range forbiddenCommandPatterns {
		if p.MatchString(cmd) {
			return true
		}
	}
	return false
}
