package cli

// Response is the single-line JSON envelope every dashboard-mode command
// writes to stdout, win or lose, so a calling process never has to parse
// stderr to learn why a submission failed.
type Response struct {
	Success    bool        `json:"success"`
	Command    string      `json:"command"`
	RequestID  string      `json:"request_id,omitempty"`
	Result     interface{} `json:"result,omitempty"`
	Error      *Error      `json:"error,omitempty"`
	DurationMs int64       `json:"duration_ms"`
}

// Error is the JSON shape of a failed command, carrying the bundlerrors.Kind
// string so a dashboard can branch on it without parsing the message text.
type Error struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ExitCode maps a bundlerrors.Kind string to the process exit code §6
// assigns it: 0 success, 2 config, 3 whitelist, 4 timeout, 5 upstream
// exhausted, 1 anything else unexpected.
func ExitCode(kind string) int {
	switch kind {
	case "":
		return 0
	case "Config":
		return 2
	case "WhitelistViolation":
		return 3
	case "Timeout":
		return 4
	case "UpstreamExhausted":
		return 5
	default:
		return 1
	}
}
