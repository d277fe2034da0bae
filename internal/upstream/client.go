package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"opsconsole/internal/config"
	"opsconsole/internal/domain"
	"opsconsole/internal/permanent"
)

// AlertPage is one alerts fetch result.
// Params: normalized feed records and the server unread aggregate.
// Returns: snapshot input for the feed coordinator.
type AlertPage struct {
	Items       []domain.AlertRecord
	UnreadCount int
}

// CaseQuery narrows one case fetch.
// Params: optional status filter and page size.
// Returns: declarative query for FetchCases.
type CaseQuery struct {
	Status string
	Limit  int
}

// Client consumes the external case/alert service REST API.
// Params: base URL, bearer token, per-request timeout, and fetch retry policy.
// Returns: typed operations for the polling and mutation paths.
type Client struct {
	baseURL string
	token   string
	retry   config.RetryPolicy
	client  *http.Client
	logger  *slog.Logger
}

// NewClient creates the upstream API client.
// Params: upstream config section and logger.
// Returns: initialized client with explicit per-request timeout.
func NewClient(cfg config.UpstreamConfig, logger *slog.Logger) *Client {
	timeoutSec := cfg.TimeoutSec
	if timeoutSec <= 0 {
		timeoutSec = 10
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		token:   strings.TrimSpace(cfg.Token),
		retry:   cfg.Retry,
		client:  &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		logger:  logger,
	}
}

// alertDTO mirrors one upstream alert list item.
type alertDTO struct {
	ID        string    `json:"id"`
	AlertType string    `json:"alert_type"`
	Severity  string    `json:"severity"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Link      string    `json:"link"`
	CreatedAt time.Time `json:"created_at"`
	IsSeen    bool      `json:"is_seen"`
}

// record converts the wire item into a normalized snapshot record.
// Params: none beyond the receiver.
// Returns: server-acked feed record with normalized severity.
func (d alertDTO) record() domain.AlertRecord {
	return domain.AlertRecord{
		Identity:    d.ID,
		AlertType:   d.AlertType,
		Severity:    domain.NormalizeSeverity(d.Severity),
		Title:       d.Title,
		Message:     d.Message,
		Link:        d.Link,
		CreatedAt:   d.CreatedAt.UTC(),
		IsSeen:      d.IsSeen,
		Origin:      domain.OriginSnapshot,
		ServerAcked: true,
	}
}

// caseDTO mirrors one upstream case list item.
type caseDTO struct {
	CaseID      string     `json:"case_id"`
	Severity    string     `json:"severity"`
	Status      string     `json:"status"`
	AssignedTo  string     `json:"assigned_to"`
	CreatedAt   time.Time  `json:"created_at"`
	SLABreachAt *time.Time `json:"sla_breach_at"`
}

// record converts the wire item into a case record copy.
// Params: none beyond the receiver.
// Returns: read-only case record with UTC timestamps.
func (d caseDTO) record() domain.CaseRecord {
	record := domain.CaseRecord{
		CaseID:     d.CaseID,
		Severity:   d.Severity,
		Status:     d.Status,
		AssignedTo: d.AssignedTo,
		CreatedAt:  d.CreatedAt.UTC(),
	}
	if d.SLABreachAt != nil {
		deadline := d.SLABreachAt.UTC()
		record.SLABreachAt = &deadline
	}
	return record
}

// FetchAlerts loads one alerts page with the server unread aggregate.
// Params: context, page limit, and offset.
// Returns: normalized page or final fetch error after retries.
func (c *Client) FetchAlerts(ctx context.Context, limit, offset int) (AlertPage, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))

	var decoded struct {
		Items       []alertDTO `json:"items"`
		UnreadCount int        `json:"unread_count"`
	}
	if err := c.getJSON(ctx, "fetch alerts", "/api/v1/alerts", query, &decoded); err != nil {
		return AlertPage{}, err
	}

	page := AlertPage{
		Items:       make([]domain.AlertRecord, 0, len(decoded.Items)),
		UnreadCount: decoded.UnreadCount,
	}
	for _, item := range decoded.Items {
		page.Items = append(page.Items, item.record())
	}
	return page, nil
}

// FetchUnreadStats loads aggregate unread counters by severity tier.
// Params: context.
// Returns: unread stats or final fetch error after retries.
func (c *Client) FetchUnreadStats(ctx context.Context) (domain.UnreadStats, error) {
	var decoded struct {
		Unread map[string]int `json:"unread"`
	}
	if err := c.getJSON(ctx, "fetch unread stats", "/api/v1/alerts/stats", nil, &decoded); err != nil {
		return domain.UnreadStats{}, err
	}

	stats := domain.UnreadStats{BySeverity: make(map[domain.Severity]int, len(decoded.Unread))}
	for tier, count := range decoded.Unread {
		stats.BySeverity[domain.NormalizeSeverity(tier)] += count
	}
	return stats, nil
}

// FetchCases loads the monitored case list for triage.
// Params: context and case query.
// Returns: case records or final fetch error after retries.
func (c *Client) FetchCases(ctx context.Context, query CaseQuery) ([]domain.CaseRecord, error) {
	values := url.Values{}
	values.Set("sort", "sla_breach_at")
	if query.Limit > 0 {
		values.Set("limit", strconv.Itoa(query.Limit))
	}
	if status := strings.TrimSpace(query.Status); status != "" {
		values.Set("status", status)
	}

	var decoded struct {
		Items []caseDTO `json:"items"`
	}
	if err := c.getJSON(ctx, "fetch cases", "/api/v1/cases", values, &decoded); err != nil {
		return nil, err
	}

	records := make([]domain.CaseRecord, 0, len(decoded.Items))
	for _, item := range decoded.Items {
		records = append(records, item.record())
	}
	return records, nil
}

// MarkAlertSeen issues the idempotent seen mutation for one alert.
// Params: context and server-side alert identity.
// Returns: nil on success, classified error otherwise.
//
// Exactly one request per call: a failed mark is surfaced to the operator
// and retried only by another interaction, never automatically.
func (c *Client) MarkAlertSeen(ctx context.Context, identity string) error {
	trimmed := strings.TrimSpace(identity)
	if trimmed == "" {
		return permanent.Mark(errors.New("alert identity is required"))
	}

	endpoint := c.baseURL + "/api/v1/alerts/" + url.PathEscape(trimmed) + "/seen"
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build mark-seen request: %w", err)
	}
	c.authorize(request)

	response, err := c.client.Do(request)
	if err != nil {
		return fmt.Errorf("mark seen %q: %w", trimmed, err)
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return classifyStatus("mark seen", response)
	}
	return nil
}

// getJSON performs one GET with the fetch retry policy and decodes the body.
// Params: context, log label, API path, query values, and decode target.
// Returns: nil on success, final classified error after retries.
func (c *Client) getJSON(ctx context.Context, label, path string, query url.Values, target any) error {
	attempt := 0
	backoff := time.Duration(c.retry.InitialMS) * time.Millisecond
	maxBackoff := time.Duration(c.retry.MaxMS) * time.Millisecond

	for {
		attempt++
		err := c.getJSONOnce(ctx, path, query, target)
		if err == nil {
			if c.retry.LogEachAttempt && attempt > 1 && c.logger != nil {
				c.logger.Info("upstream fetch recovered after retries", "op", label, "attempt", attempt)
			}
			return nil
		}
		if !c.retry.Enabled || permanent.Is(err) {
			return err
		}
		if c.retry.LogEachAttempt && c.logger != nil {
			c.logger.Warn("upstream fetch attempt failed", "op", label, "attempt", attempt, "error", err.Error())
		}
		if c.retry.MaxAttempts > 0 && attempt >= c.retry.MaxAttempts {
			return fmt.Errorf("%s failed after %d attempts: %w", label, attempt, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if strings.EqualFold(c.retry.Backoff, "exponential") {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

// getJSONOnce performs exactly one GET request against the upstream API.
// Params: context, API path, query values, and decode target.
// Returns: transport, status, or decode error.
func (c *Client) getJSONOnce(ctx context.Context, path string, query url.Values, target any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return permanent.Mark(fmt.Errorf("build request %s: %w", path, err))
	}
	request.Header.Set("Accept", "application/json")
	c.authorize(request)

	response, err := c.client.Do(request)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return classifyStatus("request "+path, response)
	}
	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// authorize injects the bearer token when configured.
// Params: mutable request pointer.
// Returns: request mutated in place.
func (c *Client) authorize(request *http.Request) {
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// classifyStatus formats a non-2xx response and tags client errors permanent.
// Params: error prefix label and HTTP response pointer.
// Returns: status error, permanent for 4xx responses.
func classifyStatus(prefix string, response *http.Response) error {
	var statusErr error
	rawBody, readErr := io.ReadAll(io.LimitReader(response.Body, 4096))
	trimmedBody := strings.TrimSpace(string(rawBody))
	switch {
	case readErr != nil:
		statusErr = fmt.Errorf("%s status=%d (read body error: %w)", prefix, response.StatusCode, readErr)
	case trimmedBody == "":
		statusErr = fmt.Errorf("%s status=%d", prefix, response.StatusCode)
	default:
		statusErr = fmt.Errorf("%s status=%d body=%s", prefix, response.StatusCode, trimmedBody)
	}
	if response.StatusCode >= 400 && response.StatusCode < 500 {
		return permanent.Mark(statusErr)
	}
	return statusErr
}
