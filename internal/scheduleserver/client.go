package scheduleserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nerrad567/irrigation-core/internal/infrastructure/config"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultMaxRetries = 3
	defaultRetryDelay = 2 * time.Second
	defaultFetchDays  = 5
	maxFetchDays      = 14

	pathDaily      = "/api/schedules/daily"
	pathStart      = "/api/events/start"
	pathCompletion = "/api/events/completion"
	pathSettings   = "/api/system-settings"
)

var (
	// ErrDisabled is returned by New when schedule_server.enabled is false.
	ErrDisabled = errors.New("scheduleserver: disabled in configuration")

	// ErrServer is returned when the server answers success=false.
	ErrServer = errors.New("scheduleserver: server reported failure")
)

// HTTPError is a non-2xx response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("scheduleserver: HTTP %d: %s", e.StatusCode, e.Body)
}

// Client talks to the schedule server.
type Client struct {
	client    *resty.Client
	deviceID  string
	fetchDays int
}

// New builds a client from the schedule_server config section. Requests
// are retried on network errors, 429 and 5xx.
func New(cfg config.ScheduleServerConfig, deviceID string) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	base := strings.TrimRight(cfg.URL, "/")
	if base == "" {
		return nil, fmt.Errorf("scheduleserver: url is required")
	}

	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	retries := defaultMaxRetries
	if cfg.MaxRetries > 0 {
		retries = cfg.MaxRetries
	}
	delay := defaultRetryDelay
	if cfg.RetryDelay > 0 {
		delay = time.Duration(cfg.RetryDelay) * time.Second
	}
	days := cfg.FetchDays
	if days <= 0 {
		days = defaultFetchDays
	}

	client := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "irrigation-core/"+deviceID).
		SetRetryCount(retries).
		SetRetryWaitTime(delay).
		SetRetryMaxWaitTime(delay * 4).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			code := resp.StatusCode()
			return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
		})

	return &Client{client: client, deviceID: deviceID, fetchDays: min(days, maxFetchDays)}, nil
}

// DailyEvent is one watering event in a daily schedule response.
type DailyEvent struct {
	ID          uint32 `json:"id"`
	ZoneID      int    `json:"zone_id"`
	StartTime   string `json:"start_time"` // HH:MM, local
	DurationMin int    `json:"duration_min"`
	RepeatCount int    `json:"repeat_count"`
	RestTimeMin int    `json:"rest_time_min"`
}

type dailyResponse struct {
	Success bool                    `json:"success"`
	Error   string                  `json:"error"`
	Data    map[string][]DailyEvent `json:"data"`
}

// FetchDaily returns the schedule for the next days days, keyed by local
// date (YYYY-MM-DD). days <= 0 uses the configured fetch_days. zoneID 0
// fetches every zone.
func (c *Client) FetchDaily(ctx context.Context, days, zoneID int) (map[string][]DailyEvent, error) {
	if days <= 0 {
		days = c.fetchDays
	}
	req := c.client.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetQueryParam("days", strconv.Itoa(min(days, maxFetchDays)))
	if zoneID > 0 {
		req.SetQueryParam("zone_id", strconv.Itoa(zoneID))
	}

	var body dailyResponse
	resp, err := req.SetResult(&body).Get(pathDaily)
	if err != nil {
		return nil, fmt.Errorf("fetching daily schedule: %w", err)
	}
	if err := classify(resp); err != nil {
		return nil, err
	}
	if !body.Success {
		return nil, fmt.Errorf("%w: %s", ErrServer, body.Error)
	}
	if body.Data == nil {
		return nil, fmt.Errorf("%w: response has no data", ErrServer)
	}
	return body.Data, nil
}

// StartReport is posted when a zone starts.
type StartReport struct {
	ScheduleID uint32 `json:"schedule_id"`
	ZoneID     int    `json:"zone_id"`
	DeviceID   string `json:"device_id"`
	StartTime  string `json:"start_time"`
	Status     string `json:"status"`
}

// CompletionReport is posted when a run ends.
type CompletionReport struct {
	ScheduleID        uint32  `json:"schedule_id"`
	ZoneID            int     `json:"zone_id"`
	DeviceID          string  `json:"device_id"`
	StartTime         string  `json:"start_time"`
	EndTime           string  `json:"end_time"`
	ActualDurationMin float64 `json:"actual_duration_min"`
	WaterUsedLiters   float64 `json:"water_used_liters"`
	Status            string  `json:"status"`
	Notes             string  `json:"notes,omitempty"`
}

// PostStart sends a start report.
func (c *Client) PostStart(ctx context.Context, r StartReport) error {
	return c.post(ctx, pathStart, r)
}

// PostCompletion sends a completion report.
func (c *Client) PostCompletion(ctx context.Context, r CompletionReport) error {
	return c.post(ctx, pathCompletion, r)
}

// TestConnection checks the server is reachable and answering.
func (c *Client) TestConnection(ctx context.Context) error {
	resp, err := c.client.R().SetContext(ctx).Get(pathSettings)
	if err != nil {
		return fmt.Errorf("testing schedule server connection: %w", err)
	}
	return classify(resp)
}

// DeviceID returns the id sent with every report.
func (c *Client) DeviceID() string {
	return c.deviceID
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(path)
	if err != nil {
		return fmt.Errorf("posting %s: %w", path, err)
	}
	return classify(resp)
}

func classify(resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	return &HTTPError{StatusCode: resp.StatusCode(), Body: resp.String()}
}
