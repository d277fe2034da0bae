package e2e

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// e2eConsoleOptions tunes optional sections of the e2e console config.
// Params: transport toggles and poll cadence overrides.
// Returns: fixture knobs with fast-poll defaults.
type e2eConsoleOptions struct {
	NATSEnabled   bool
	NATSURL       string
	FeedLimit     int
	AlertsPollSec int
	StatsPollSec  int
	CasesPollSec  int
}

// e2eConsoleConfig builds the console TOML document used by e2e scenarios.
// Params: API port, fake upstream base URL, and section options.
// Returns: complete TOML document string.
func e2eConsoleConfig(port int, upstreamURL string, options e2eConsoleOptions) string {
	feedLimit := options.FeedLimit
	if feedLimit <= 0 {
		feedLimit = 10
	}
	alertsPoll := options.AlertsPollSec
	if alertsPoll <= 0 {
		alertsPoll = 1
	}
	statsPoll := options.StatsPollSec
	if statsPoll <= 0 {
		statsPoll = 1
	}
	casesPoll := options.CasesPollSec
	if casesPoll <= 0 {
		casesPoll = 1
	}

	cfg := fmt.Sprintf(`
[service]
name = "opsconsole"

[log.console]
enabled = true
level = "error"
format = "line"

[upstream]
base_url = "%s"
timeout_sec = 2
alerts_poll_sec = %d
stats_poll_sec = %d
cases_poll_sec = %d

[feed]
limit = %d

[api]
listen = "127.0.0.1:%d"
health_path = "/healthz"
ready_path = "/readyz"
max_socket_conns = 8

[ingest.http]
enabled = true
path = "/ingest"
max_body_bytes = 1048576
`, upstreamURL, alertsPoll, statsPoll, casesPoll, feedLimit, port)

	if options.NATSEnabled {
		cfg += fmt.Sprintf(`
[ingest.nats]
enabled = true
url = ["%s"]
workers = 1
ack_wait_sec = 5
nack_delay_ms = 100
`, options.NATSURL)
	}
	return cfg
}

// writeConsoleConfig persists one TOML document into a temp config file.
// Params: test handle and document body.
// Returns: absolute config file path.
func writeConsoleConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
