package cli

import (
	"encoding/json"
	"fmt"
	"os"
)

// WriteJSON marshals v to single-line JSON on stdout, the dashboard mode's
// machine-readable response channel.
func WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintf(os.Stdout, "%s\n", data)
	if err != nil {
		return fmt.Errorf("failed to write JSON to stdout: %w", err)
	}
	return nil
}

// WriteLog writes a human-readable line to stderr, keeping stdout reserved
// for JSON in dashboard mode.
func WriteLog(message string) error {
	_, err := fmt.Fprintf(os.Stderr, "%s\n", message)
	if err != nil {
		return fmt.Errorf("failed to write log to stderr: %w", err)
	}
	return nil
}
