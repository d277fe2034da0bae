package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"opsconsole/internal/templatefmt"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultAPIListen          = ":8080"
	defaultHealthPath         = "/healthz"
	defaultReadyPath          = "/readyz"
	defaultIngestPath         = "/ingest"
	defaultMaxSocketConns     = 64
	defaultNATSSubject        = "opsconsole.events"
	defaultNATSIngestStream   = "OPSCONSOLE_EVENTS"
	defaultNATSIngestConsumer = "opsconsole-ingest"
	defaultNATSIngestGroup    = "opsconsole-workers"
	defaultNATSIngestWorkers  = 1
	defaultNATSAckWaitSec     = 30
	defaultNATSNackDelayMS    = 1000
	defaultNATSMaxDeliver     = -1
	defaultNATSMaxAckPending  = 2048
	defaultNATSURL            = "nats://127.0.0.1:4222"
	defaultKafkaTopic         = "opsconsole.events"
	defaultKafkaGroup         = "opsconsole"
	defaultUpstreamTimeoutSec = 10
	defaultAlertsPollSec      = 60
	defaultStatsPollSec       = 30
	defaultCasesPollSec       = 60
	defaultCasesLimit         = 100
	defaultCasesStatus        = "open"
	defaultFeedLimit          = 10
	defaultHandshakeSec       = 10
	defaultReconnectMinMS     = 500
	defaultReconnectMaxMS     = 30000

	// EnvUpstreamToken overrides upstream.token when set.
	EnvUpstreamToken = "OPSCONSOLE_UPSTREAM_TOKEN"
	// EnvTelegramToken overrides notify.telegram.bot_token when set.
	EnvTelegramToken = "OPSCONSOLE_TELEGRAM_TOKEN"
)

var (
	severityTiers = map[string]struct{}{
		"critical": {},
		"high":     {},
		"medium":   {},
		"low":      {},
		"info":     {},
	}
	unsupportedIngestNATSFixedKeysPattern = regexp.MustCompile(`(?mi)^\s*(?:subject|stream|consumer_name|deliver_group)\s*=`)
)

// Config holds console runtime settings.
// Params: TOML sections from file or merged directory snapshot.
// Returns: validated runtime configuration.
type Config struct {
	Service  ServiceConfig  `toml:"service"`
	Log      LogConfig      `toml:"log"`
	Upstream UpstreamConfig `toml:"upstream"`
	Feed     FeedConfig     `toml:"feed"`
	API      APIConfig      `toml:"api"`
	Ingest   IngestConfig   `toml:"ingest"`
	Notify   NotifyConfig   `toml:"notify"`
}

// ServiceConfig contains process-level settings.
// Params: service name used in logs.
// Returns: service behavior defaults.
type ServiceConfig struct {
	Name string `toml:"name"`
}

// UpstreamConfig defines the external case/alert service connection.
// Params: base URL, auth token, per-request timeout, poll cadence, and retries.
// Returns: upstream client and poller behavior.
type UpstreamConfig struct {
	BaseURL       string      `toml:"base_url"`
	Token         string      `toml:"token"`
	TimeoutSec    int         `toml:"timeout_sec"`
	AlertsPollSec int         `toml:"alerts_poll_sec"`
	StatsPollSec  int         `toml:"stats_poll_sec"`
	CasesPollSec  int         `toml:"cases_poll_sec"`
	CasesStatus   string      `toml:"cases_status"`
	CasesLimit    int         `toml:"cases_limit"`
	Retry         RetryPolicy `toml:"retry"`
}

// FeedConfig bounds the notification feed.
// Params: maximum record count kept in the canonical list.
// Returns: feed sizing controls.
type FeedConfig struct {
	Limit int `toml:"limit"`
}

// APIConfig configures the console HTTP surface.
// Params: listen address, probe paths, and live-socket connection cap.
// Returns: console API server behavior.
type APIConfig struct {
	Listen         string `toml:"listen"`
	HealthPath     string `toml:"health_path"`
	ReadyPath      string `toml:"ready_path"`
	MaxSocketConns int    `toml:"max_socket_conns"`
}

// IngestConfig defines inbound push-event transports.
// Params: per-transport subscription controls.
// Returns: ingestion runtime options.
type IngestConfig struct {
	HTTP      HTTPIngestConfig      `toml:"http"`
	NATS      NATSIngestConfig      `toml:"nats"`
	Kafka     KafkaIngestConfig     `toml:"kafka"`
	Websocket WebsocketIngestConfig `toml:"websocket"`
}

// HTTPIngestConfig configures the webhook ingest endpoint on the API server.
// Params: enable flag, mount path, and body size limit.
// Returns: HTTP ingest behavior.
type HTTPIngestConfig struct {
	Enabled      bool   `toml:"enabled"`
	Path         string `toml:"path"`
	MaxBodyBytes int64  `toml:"max_body_bytes"`
}

// NATSIngestConfig configures JetStream queue-consumer ingestion.
// Params: connection + worker/ack/redelivery policy; stream routing keys are runtime-fixed.
// Returns: NATS ingest behavior.
type NATSIngestConfig struct {
	Enabled       bool     `toml:"enabled"`
	URL           []string `toml:"url"`
	Subject       string   `toml:"-"`
	Stream        string   `toml:"-"`
	ConsumerName  string   `toml:"-"`
	DeliverGroup  string   `toml:"-"`
	Workers       int      `toml:"workers"`
	AckWaitSec    int      `toml:"ack_wait_sec"`
	NackDelayMS   int      `toml:"nack_delay_ms"`
	MaxDeliver    int      `toml:"max_deliver"`
	MaxAckPending int      `toml:"max_ack_pending"`
}

// KafkaIngestConfig configures consumer-group ingestion from a Kafka topic.
// Params: broker list, topic, group id, and fetch sizing.
// Returns: Kafka ingest behavior.
type KafkaIngestConfig struct {
	Enabled  bool     `toml:"enabled"`
	Brokers  []string `toml:"brokers"`
	Topic    string   `toml:"topic"`
	GroupID  string   `toml:"group_id"`
	MinBytes int      `toml:"min_bytes"`
	MaxBytes int      `toml:"max_bytes"`
}

// WebsocketIngestConfig configures the upstream push-stream subscription.
// Params: stream URL, handshake timeout, and reconnect backoff window.
// Returns: websocket ingest behavior.
type WebsocketIngestConfig struct {
	Enabled             bool   `toml:"enabled"`
	URL                 string `toml:"url"`
	HandshakeTimeoutSec int    `toml:"handshake_timeout_sec"`
	ReconnectMinMS      int    `toml:"reconnect_min_ms"`
	ReconnectMaxMS      int    `toml:"reconnect_max_ms"`
}

// NotifyConfig defines escalation for safety-critical pushed alerts.
// Params: severity trigger list and Telegram transport settings.
// Returns: escalation controls.
type NotifyConfig struct {
	OnSeverity []string         `toml:"on_severity"`
	Telegram   TelegramNotifier `toml:"telegram"`
}

// TelegramNotifier defines the Telegram escalation channel.
// Params: enabled flag, bot token, chat ID, API base URL, message template, and retry policy.
// Returns: Telegram sender configuration.
type TelegramNotifier struct {
	Enabled         bool        `toml:"enabled"`
	BotToken        string      `toml:"bot_token"`
	ChatID          string      `toml:"chat_id"`
	APIBase         string      `toml:"api_base"`
	MessageTemplate string      `toml:"message_template"`
	Retry           RetryPolicy `toml:"retry"`
}

// RetryPolicy configures retry behavior for outbound calls.
// Params: retry toggle, backoff, attempt limits, and logging.
// Returns: retry policy for upstream fetches and escalation sends.
type RetryPolicy struct {
	Enabled        bool   `toml:"enabled"`
	Backoff        string `toml:"backoff"`
	InitialMS      int    `toml:"initial_ms"`
	MaxMS          int    `toml:"max_ms"`
	MaxAttempts    int    `toml:"max_attempts"`
	LogEachAttempt bool   `toml:"log_each_attempt"`
}

// LogConfig contains console/file logging sinks.
// Params: sink settings for each output target.
// Returns: logger setup options.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink enable flag, level, format, and path.
// Returns: sink-specific behavior.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// ConfigSource describes file or directory config source.
// Params: exactly one of file path or directory path.
// Returns: normalized source descriptor.
type ConfigSource struct {
	File string
	Dir  string
}

// FromCLI builds normalized source configuration from input paths.
// Params: optional file and directory arguments.
// Returns: source descriptor or validation error.
func FromCLI(filePath, dirPath string) (ConfigSource, error) {
	filePath = strings.TrimSpace(filePath)
	dirPath = strings.TrimSpace(dirPath)

	if filePath == "" && dirPath == "" {
		return ConfigSource{}, errors.New("either --config-file or --config-dir must be provided")
	}
	if filePath != "" && dirPath != "" {
		return ConfigSource{}, errors.New("config source must be either file or dir")
	}

	if filePath != "" {
		return ConfigSource{File: filePath}, nil
	}
	return ConfigSource{Dir: dirPath}, nil
}

// LoadSnapshot loads and validates configuration from one source.
// Params: source selects file or directory mode.
// Returns: validated config or load/validation error.
func LoadSnapshot(src ConfigSource) (Config, error) {
	var cfg Config
	var err error
	if src.File != "" {
		cfg, err = loadFile(src.File)
	} else {
		cfg, err = loadDir(src.Dir)
	}
	if err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// configMergeHints carries explicit bool-presence markers used for directory overlays.
// Params: sparse fields decoded from one TOML fragment.
// Returns: merge behavior hints for zero-value bool overrides.
type configMergeHints struct {
	Ingest ingestMergeHints `toml:"ingest"`
	Notify notifyMergeHints `toml:"notify"`
}

// ingestMergeHints tracks explicit enabled flags in ingest transports.
// Params: sparse ingest values decoded from one TOML fragment.
// Returns: bool-presence markers for merge logic.
type ingestMergeHints struct {
	HTTP      enabledMergeHint `toml:"http"`
	NATS      enabledMergeHint `toml:"nats"`
	Kafka     enabledMergeHint `toml:"kafka"`
	Websocket enabledMergeHint `toml:"websocket"`
}

// notifyMergeHints tracks explicit enabled flags in notify section.
// Params: sparse notify values decoded from one TOML fragment.
// Returns: bool-presence markers for merge logic.
type notifyMergeHints struct {
	Telegram enabledMergeHint `toml:"telegram"`
}

// enabledMergeHint tracks one explicit enabled flag.
// Params: sparse enabled field decoded from one TOML fragment.
// Returns: bool-presence marker for merge logic.
type enabledMergeHint struct {
	Enabled *bool `toml:"enabled"`
}

// rejectUnsupportedSyntax checks forbidden TOML keys and returns explicit error.
// Params: raw TOML file body.
// Returns: error when unsupported syntax is detected.
func rejectUnsupportedSyntax(body []byte) error {
	if unsupportedIngestNATSFixedKeysPattern.Match(body) {
		return errors.New("ingest.nats.subject/stream/consumer_name/deliver_group are fixed in runtime and must not be configured")
	}
	return nil
}

// loadFile reads one TOML configuration file.
// Params: file path to config snapshot.
// Returns: decoded config or read/decode error.
func loadFile(path string) (Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	if err := rejectUnsupportedSyntax(body); err != nil {
		return Config{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(body, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	return cfg, nil
}

// loadFileForMerge reads one TOML file with merge hints.
// Params: file path to config fragment.
// Returns: decoded config plus explicit-bool hints for overlay merge.
func loadFileForMerge(path string) (Config, configMergeHints, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Config{}, configMergeHints{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	if err := rejectUnsupportedSyntax(body); err != nil {
		return Config{}, configMergeHints{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(body, &cfg); err != nil {
		return Config{}, configMergeHints{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	var hints configMergeHints
	if err := toml.Unmarshal(body, &hints); err != nil {
		return Config{}, configMergeHints{}, fmt.Errorf("decode merge hints %q: %w", path, err)
	}
	return cfg, hints, nil
}

// loadDir reads and merges TOML files from one directory.
// Params: directory containing config fragments.
// Returns: merged config snapshot or load/decode error.
func loadDir(dir string) (Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Config{}, fmt.Errorf("read config dir %q: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.ToLower(filepath.Ext(name)) != ".toml" {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	if len(files) == 0 {
		return Config{}, fmt.Errorf("no .toml files found in %q", dir)
	}
	sort.Strings(files)

	var merged Config
	for _, file := range files {
		fragment, hints, err := loadFileForMerge(file)
		if err != nil {
			return Config{}, err
		}
		mergeConfig(&merged, fragment, hints)
	}
	return merged, nil
}

// mergeConfig overlays source onto destination.
// Params: destination config, next fragment, and explicit-bool hints.
// Returns: merged configuration side-effect in dst.
func mergeConfig(dst *Config, src Config, hints configMergeHints) {
	if src.Service != (ServiceConfig{}) {
		dst.Service = src.Service
	}
	if src.Log != (LogConfig{}) {
		dst.Log = src.Log
	}
	if hasUpstreamConfig(src.Upstream) {
		mergeUpstreamConfig(&dst.Upstream, src.Upstream)
	}
	if src.Feed.Limit != 0 {
		dst.Feed.Limit = src.Feed.Limit
	}
	if src.API != (APIConfig{}) {
		mergeAPIConfig(&dst.API, src.API)
	}
	mergeIngestConfig(&dst.Ingest, src.Ingest, hints.Ingest)
	mergeNotifyConfig(&dst.Notify, src.Notify, hints.Notify)
}

// mergeUpstreamConfig overlays upstream fragment preserving existing fields.
// Params: destination upstream config and source fragment.
// Returns: merged upstream configuration side-effect in dst.
func mergeUpstreamConfig(dst *UpstreamConfig, src UpstreamConfig) {
	if strings.TrimSpace(src.BaseURL) != "" {
		dst.BaseURL = src.BaseURL
	}
	if strings.TrimSpace(src.Token) != "" {
		dst.Token = src.Token
	}
	if src.TimeoutSec != 0 {
		dst.TimeoutSec = src.TimeoutSec
	}
	if src.AlertsPollSec != 0 {
		dst.AlertsPollSec = src.AlertsPollSec
	}
	if src.StatsPollSec != 0 {
		dst.StatsPollSec = src.StatsPollSec
	}
	if src.CasesPollSec != 0 {
		dst.CasesPollSec = src.CasesPollSec
	}
	if strings.TrimSpace(src.CasesStatus) != "" {
		dst.CasesStatus = src.CasesStatus
	}
	if src.CasesLimit != 0 {
		dst.CasesLimit = src.CasesLimit
	}
	if src.Retry != (RetryPolicy{}) {
		dst.Retry = src.Retry
	}
}

// mergeAPIConfig overlays API fragment preserving existing fields.
// Params: destination API config and source fragment.
// Returns: merged API configuration side-effect in dst.
func mergeAPIConfig(dst *APIConfig, src APIConfig) {
	if strings.TrimSpace(src.Listen) != "" {
		dst.Listen = src.Listen
	}
	if strings.TrimSpace(src.HealthPath) != "" {
		dst.HealthPath = src.HealthPath
	}
	if strings.TrimSpace(src.ReadyPath) != "" {
		dst.ReadyPath = src.ReadyPath
	}
	if src.MaxSocketConns != 0 {
		dst.MaxSocketConns = src.MaxSocketConns
	}
}

// mergeIngestConfig overlays ingest transports preserving sibling transports.
// Params: destination ingest config, source fragment, and explicit-bool hints.
// Returns: merged ingest configuration side-effect in dst.
func mergeIngestConfig(dst *IngestConfig, src IngestConfig, hints ingestMergeHints) {
	applyBoolMerge(&dst.HTTP.Enabled, src.HTTP.Enabled, hints.HTTP.Enabled)
	if strings.TrimSpace(src.HTTP.Path) != "" {
		dst.HTTP.Path = src.HTTP.Path
	}
	if src.HTTP.MaxBodyBytes != 0 {
		dst.HTTP.MaxBodyBytes = src.HTTP.MaxBodyBytes
	}

	applyBoolMerge(&dst.NATS.Enabled, src.NATS.Enabled, hints.NATS.Enabled)
	if len(src.NATS.URL) > 0 {
		dst.NATS.URL = append([]string(nil), src.NATS.URL...)
	}
	if src.NATS.Workers != 0 {
		dst.NATS.Workers = src.NATS.Workers
	}
	if src.NATS.AckWaitSec != 0 {
		dst.NATS.AckWaitSec = src.NATS.AckWaitSec
	}
	if src.NATS.NackDelayMS != 0 {
		dst.NATS.NackDelayMS = src.NATS.NackDelayMS
	}
	if src.NATS.MaxDeliver != 0 {
		dst.NATS.MaxDeliver = src.NATS.MaxDeliver
	}
	if src.NATS.MaxAckPending != 0 {
		dst.NATS.MaxAckPending = src.NATS.MaxAckPending
	}

	applyBoolMerge(&dst.Kafka.Enabled, src.Kafka.Enabled, hints.Kafka.Enabled)
	if len(src.Kafka.Brokers) > 0 {
		dst.Kafka.Brokers = append([]string(nil), src.Kafka.Brokers...)
	}
	if strings.TrimSpace(src.Kafka.Topic) != "" {
		dst.Kafka.Topic = src.Kafka.Topic
	}
	if strings.TrimSpace(src.Kafka.GroupID) != "" {
		dst.Kafka.GroupID = src.Kafka.GroupID
	}
	if src.Kafka.MinBytes != 0 {
		dst.Kafka.MinBytes = src.Kafka.MinBytes
	}
	if src.Kafka.MaxBytes != 0 {
		dst.Kafka.MaxBytes = src.Kafka.MaxBytes
	}

	applyBoolMerge(&dst.Websocket.Enabled, src.Websocket.Enabled, hints.Websocket.Enabled)
	if strings.TrimSpace(src.Websocket.URL) != "" {
		dst.Websocket.URL = src.Websocket.URL
	}
	if src.Websocket.HandshakeTimeoutSec != 0 {
		dst.Websocket.HandshakeTimeoutSec = src.Websocket.HandshakeTimeoutSec
	}
	if src.Websocket.ReconnectMinMS != 0 {
		dst.Websocket.ReconnectMinMS = src.Websocket.ReconnectMinMS
	}
	if src.Websocket.ReconnectMaxMS != 0 {
		dst.Websocket.ReconnectMaxMS = src.Websocket.ReconnectMaxMS
	}
}

// mergeNotifyConfig overlays notify fragment preserving existing fields.
// Params: destination notify config, source fragment, and explicit-bool hints.
// Returns: merged notify configuration side-effect in dst.
func mergeNotifyConfig(dst *NotifyConfig, src NotifyConfig, hints notifyMergeHints) {
	if len(src.OnSeverity) > 0 {
		dst.OnSeverity = append([]string(nil), src.OnSeverity...)
	}
	applyBoolMerge(&dst.Telegram.Enabled, src.Telegram.Enabled, hints.Telegram.Enabled)
	if strings.TrimSpace(src.Telegram.BotToken) != "" {
		dst.Telegram.BotToken = src.Telegram.BotToken
	}
	if strings.TrimSpace(src.Telegram.ChatID) != "" {
		dst.Telegram.ChatID = src.Telegram.ChatID
	}
	if strings.TrimSpace(src.Telegram.APIBase) != "" {
		dst.Telegram.APIBase = src.Telegram.APIBase
	}
	if strings.TrimSpace(src.Telegram.MessageTemplate) != "" {
		dst.Telegram.MessageTemplate = src.Telegram.MessageTemplate
	}
	if src.Telegram.Retry != (RetryPolicy{}) {
		dst.Telegram.Retry = src.Telegram.Retry
	}
}

// applyBoolMerge merges bool with explicit-value awareness for directory overlays.
// Params: destination bool pointer, source decoded bool, and explicit source marker.
// Returns: merged bool side-effect in dst.
func applyBoolMerge(dst *bool, value bool, explicit *bool) {
	if explicit != nil {
		*dst = *explicit
		return
	}
	if value {
		*dst = true
	}
}

// hasUpstreamConfig checks whether upstream section contains any explicit values.
// Params: upstream configuration fragment.
// Returns: true when section should be merged into destination snapshot.
func hasUpstreamConfig(cfg UpstreamConfig) bool {
	return strings.TrimSpace(cfg.BaseURL) != "" ||
		strings.TrimSpace(cfg.Token) != "" ||
		cfg.TimeoutSec != 0 ||
		cfg.AlertsPollSec != 0 ||
		cfg.StatsPollSec != 0 ||
		cfg.CasesPollSec != 0 ||
		strings.TrimSpace(cfg.CasesStatus) != "" ||
		cfg.CasesLimit != 0 ||
		cfg.Retry != (RetryPolicy{})
}

// applyEnvOverrides injects secrets from environment over TOML values.
// Params: cfg pointer to decoded snapshot.
// Returns: env-provided tokens applied in place.
func applyEnvOverrides(cfg *Config) {
	if token := strings.TrimSpace(os.Getenv(EnvUpstreamToken)); token != "" {
		cfg.Upstream.Token = token
	}
	if token := strings.TrimSpace(os.Getenv(EnvTelegramToken)); token != "" {
		cfg.Notify.Telegram.BotToken = token
	}
}

// applyDefaults fills omitted config fields with safe defaults.
// Params: cfg pointer to decoded snapshot.
// Returns: defaults applied in place.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		cfg.Service.Name = "opsconsole"
	}

	if cfg.Log.Console.Level == "" {
		cfg.Log.Console.Level = "info"
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = "line"
	}
	if cfg.Log.File.Level == "" {
		cfg.Log.File.Level = "info"
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = "json"
	}
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}

	if cfg.Upstream.TimeoutSec <= 0 {
		cfg.Upstream.TimeoutSec = defaultUpstreamTimeoutSec
	}
	if cfg.Upstream.AlertsPollSec <= 0 {
		cfg.Upstream.AlertsPollSec = defaultAlertsPollSec
	}
	if cfg.Upstream.StatsPollSec <= 0 {
		cfg.Upstream.StatsPollSec = defaultStatsPollSec
	}
	if cfg.Upstream.CasesPollSec <= 0 {
		cfg.Upstream.CasesPollSec = defaultCasesPollSec
	}
	if strings.TrimSpace(cfg.Upstream.CasesStatus) == "" {
		cfg.Upstream.CasesStatus = defaultCasesStatus
	}
	if cfg.Upstream.CasesLimit <= 0 {
		cfg.Upstream.CasesLimit = defaultCasesLimit
	}
	fillRetryDefaults(&cfg.Upstream.Retry)

	if cfg.Feed.Limit <= 0 {
		cfg.Feed.Limit = defaultFeedLimit
	}

	if strings.TrimSpace(cfg.API.Listen) == "" {
		cfg.API.Listen = defaultAPIListen
	}
	if strings.TrimSpace(cfg.API.HealthPath) == "" {
		cfg.API.HealthPath = defaultHealthPath
	}
	if strings.TrimSpace(cfg.API.ReadyPath) == "" {
		cfg.API.ReadyPath = defaultReadyPath
	}
	if cfg.API.MaxSocketConns <= 0 {
		cfg.API.MaxSocketConns = defaultMaxSocketConns
	}

	if strings.TrimSpace(cfg.Ingest.HTTP.Path) == "" {
		cfg.Ingest.HTTP.Path = defaultIngestPath
	}
	if cfg.Ingest.HTTP.MaxBodyBytes <= 0 {
		cfg.Ingest.HTTP.MaxBodyBytes = 2 << 20
	}

	cfg.Ingest.NATS.URL = normalizeNATSURLs(cfg.Ingest.NATS.URL)
	if len(cfg.Ingest.NATS.URL) == 0 {
		cfg.Ingest.NATS.URL = []string{defaultNATSURL}
	}
	cfg.Ingest.NATS.Subject = defaultNATSSubject
	cfg.Ingest.NATS.Stream = defaultNATSIngestStream
	cfg.Ingest.NATS.ConsumerName = defaultNATSIngestConsumer
	cfg.Ingest.NATS.DeliverGroup = defaultNATSIngestGroup
	if cfg.Ingest.NATS.Workers == 0 {
		cfg.Ingest.NATS.Workers = defaultNATSIngestWorkers
	}
	if cfg.Ingest.NATS.AckWaitSec <= 0 {
		cfg.Ingest.NATS.AckWaitSec = defaultNATSAckWaitSec
	}
	if cfg.Ingest.NATS.NackDelayMS <= 0 {
		cfg.Ingest.NATS.NackDelayMS = defaultNATSNackDelayMS
	}
	if cfg.Ingest.NATS.MaxDeliver == 0 {
		cfg.Ingest.NATS.MaxDeliver = defaultNATSMaxDeliver
	}
	if cfg.Ingest.NATS.MaxAckPending <= 0 {
		cfg.Ingest.NATS.MaxAckPending = defaultNATSMaxAckPending
	}

	if strings.TrimSpace(cfg.Ingest.Kafka.Topic) == "" {
		cfg.Ingest.Kafka.Topic = defaultKafkaTopic
	}
	if strings.TrimSpace(cfg.Ingest.Kafka.GroupID) == "" {
		cfg.Ingest.Kafka.GroupID = defaultKafkaGroup
	}
	if cfg.Ingest.Kafka.MinBytes <= 0 {
		cfg.Ingest.Kafka.MinBytes = 1
	}
	if cfg.Ingest.Kafka.MaxBytes <= 0 {
		cfg.Ingest.Kafka.MaxBytes = 10 << 20
	}

	if cfg.Ingest.Websocket.HandshakeTimeoutSec <= 0 {
		cfg.Ingest.Websocket.HandshakeTimeoutSec = defaultHandshakeSec
	}
	if cfg.Ingest.Websocket.ReconnectMinMS <= 0 {
		cfg.Ingest.Websocket.ReconnectMinMS = defaultReconnectMinMS
	}
	if cfg.Ingest.Websocket.ReconnectMaxMS <= 0 {
		cfg.Ingest.Websocket.ReconnectMaxMS = defaultReconnectMaxMS
	}
	if cfg.Ingest.Websocket.ReconnectMaxMS < cfg.Ingest.Websocket.ReconnectMinMS {
		cfg.Ingest.Websocket.ReconnectMaxMS = cfg.Ingest.Websocket.ReconnectMinMS
	}

	if len(cfg.Notify.OnSeverity) == 0 {
		cfg.Notify.OnSeverity = []string{"critical"}
	}
	if cfg.Notify.Telegram.APIBase == "" {
		cfg.Notify.Telegram.APIBase = "https://api.telegram.org"
	}
	if strings.TrimSpace(cfg.Notify.Telegram.MessageTemplate) == "" {
		cfg.Notify.Telegram.MessageTemplate = DefaultEscalationTemplate
	}
	fillRetryDefaults(&cfg.Notify.Telegram.Retry)
}

// DefaultEscalationTemplate renders one escalated alert for Telegram.
const DefaultEscalationTemplate = `<b>{{ upper .Severity }}</b> {{ .Title }}
{{ .Message }}{{ if .Link }}
{{ .Link }}{{ end }}
at {{ fmtTime .CreatedAt }}`

// fillRetryDefaults normalizes retry policy fields.
// Params: retry policy pointer.
// Returns: policy defaults applied in place.
func fillRetryDefaults(retry *RetryPolicy) {
	if retry == nil {
		return
	}
	if retry.Backoff == "" {
		retry.Backoff = "exponential"
	}
	if retry.InitialMS <= 0 {
		retry.InitialMS = 500
	}
	if retry.MaxMS <= 0 {
		retry.MaxMS = 60000
	}
}

// validateConfig validates full runtime configuration.
// Params: cfg snapshot to validate.
// Returns: first failing validation error.
func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Upstream.BaseURL) == "" {
		return errors.New("upstream.base_url is required")
	}
	if cfg.Upstream.TimeoutSec <= 0 {
		return errors.New("upstream.timeout_sec must be >0")
	}
	if cfg.Feed.Limit <= 0 {
		return errors.New("feed.limit must be >0")
	}
	if strings.TrimSpace(cfg.API.Listen) == "" {
		return errors.New("api.listen is required")
	}
	if !strings.HasPrefix(cfg.API.HealthPath, "/") {
		return fmt.Errorf("api.health_path must start with /, got %q", cfg.API.HealthPath)
	}
	if !strings.HasPrefix(cfg.API.ReadyPath, "/") {
		return fmt.Errorf("api.ready_path must start with /, got %q", cfg.API.ReadyPath)
	}
	if cfg.Ingest.HTTP.Enabled && !strings.HasPrefix(cfg.Ingest.HTTP.Path, "/") {
		return fmt.Errorf("ingest.http.path must start with /, got %q", cfg.Ingest.HTTP.Path)
	}
	if cfg.Ingest.NATS.Enabled && len(cfg.Ingest.NATS.URL) == 0 {
		return errors.New("ingest.nats.url is required when ingest.nats.enabled")
	}
	if cfg.Ingest.NATS.Workers < 0 {
		return errors.New("ingest.nats.workers must be >=0")
	}
	if cfg.Ingest.NATS.MaxDeliver < -1 {
		return errors.New("ingest.nats.max_deliver must be positive or -1 for unlimited redelivery")
	}
	if cfg.Ingest.Kafka.Enabled && len(cfg.Ingest.Kafka.Brokers) == 0 {
		return errors.New("ingest.kafka.brokers is required when ingest.kafka.enabled")
	}
	if cfg.Ingest.Websocket.Enabled {
		url := strings.TrimSpace(cfg.Ingest.Websocket.URL)
		if url == "" {
			return errors.New("ingest.websocket.url is required when ingest.websocket.enabled")
		}
		if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
			return fmt.Errorf("ingest.websocket.url must use ws:// or wss://, got %q", url)
		}
	}
	for _, tier := range cfg.Notify.OnSeverity {
		if _, ok := severityTiers[strings.TrimSpace(tier)]; !ok {
			return fmt.Errorf("notify.on_severity has unknown tier %q", tier)
		}
	}
	if cfg.Notify.Telegram.Enabled {
		if strings.TrimSpace(cfg.Notify.Telegram.BotToken) == "" {
			return errors.New("notify.telegram.bot_token is required when notify.telegram.enabled")
		}
		if strings.TrimSpace(cfg.Notify.Telegram.ChatID) == "" {
			return errors.New("notify.telegram.chat_id is required when notify.telegram.enabled")
		}
	}
	if _, err := templatefmt.ParseEscalationTemplate("notify.telegram.message_template", cfg.Notify.Telegram.MessageTemplate); err != nil {
		return fmt.Errorf("notify.telegram.message_template is invalid: %w", err)
	}
	return validateLogConfig(cfg.Log)
}

// validateLogConfig validates logging sink settings.
// Params: log section snapshot.
// Returns: validation error for unsupported sink values.
func validateLogConfig(cfg LogConfig) error {
	if err := validateLogSink("log.console", cfg.Console, false); err != nil {
		return err
	}
	return validateLogSink("log.file", cfg.File, true)
}

// validateLogSink validates one sink settings block.
// Params: section label, sink config, and path requirement flag.
// Returns: validation error for unsupported sink values.
func validateLogSink(label string, sink LogSinkConfig, needsPath bool) error {
	switch sink.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%s.level has unsupported value %q", label, sink.Level)
	}
	switch sink.Format {
	case "line", "json":
	default:
		return fmt.Errorf("%s.format has unsupported value %q", label, sink.Format)
	}
	if needsPath && sink.Enabled && strings.TrimSpace(sink.Path) == "" {
		return fmt.Errorf("%s.path is required when %s.enabled", label, label)
	}
	return nil
}

// normalizeNATSURLs trims and deduplicates NATS URL list.
// Params: raw URL list from config.
// Returns: normalized URL list without empty entries.
func normalizeNATSURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, url := range urls {
		trimmed := strings.TrimSpace(url)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
