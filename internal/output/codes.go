// Package output provides the error taxonomy, exit codes and CLI output
// formatting shared by every kurisu command.
package output

// Exit codes.
const (
	ExitOK            = 0 // Success
	ExitUsage         = 1 // Invalid arguments or flags
	ExitNotFound      = 2 // Summoner or resource not found
	ExitAuth          = 3 // API credential rejected
	ExitRateLimit     = 5 // Rate limited (429 or local gate)
	ExitTransport     = 6 // Connection/DNS/timeout/decode error
	ExitAPI           = 7 // Upstream returned an unexpected error
	ExitNotConfigured = 9 // Required startup credential missing
)

// Error codes.
const (
	CodeUsage         = "usage"
	CodeNotFound      = "not_found"
	CodeAuth          = "auth_required"
	CodeRateLimit     = "rate_limit"
	CodeTransport     = "transport"
	CodeAPI           = "api_error"
	CodeNotConfigured = "not_configured"
)

// ExitCodeFor returns the exit code for a given error code.
func ExitCodeFor(code string) int {
	switch code {
	case CodeUsage:
		return ExitUsage
	case CodeNotFound:
		return ExitNotFound
	case CodeAuth:
		return ExitAuth
	case CodeRateLimit:
		return ExitRateLimit
	case CodeTransport:
		return ExitTransport
	case CodeAPI:
		return ExitAPI
	case CodeNotConfigured:
		return ExitNotConfigured
	default:
		return ExitAPI
	}
}
