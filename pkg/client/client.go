// Package client implements the HTTP client for the digest task API:
// launching sleeper tasks, reading task status and registering finished
// transformations with the content provider.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mcculloh213/digestwatch/pkg/models"
	"github.com/pkg/errors"
)

// DefaultSleeperDelay matches the server-side default for the sleeper
// task's delay argument.
const DefaultSleeperDelay = 3

// ErrAlreadyRegistered reports that a task's transformation was
// registered before. Callers recover by re-reading the task status.
var ErrAlreadyRegistered = errors.New("transformation already registered")

// Logger interface for logging
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for API requests.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// WithLogger sets the logger for the client.
func WithLogger(l Logger) ClientOption {
	return func(cl *Client) { cl.logger = l }
}

// Client talks to a digest API server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     Logger
}

// NewClient creates a digest API client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     noopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// sleeperRequest mirrors the sleeper launch payload for JSON encoding.
type sleeperRequest struct {
	Delay int `json:"delay"`
}

// launchEnvelope mirrors the sleeper launch response for JSON decoding.
type launchEnvelope struct {
	Data struct {
		TaskID string `json:"task_id"`
	} `json:"data"`
}

// taskEnvelope mirrors the task status response for JSON decoding.
type taskEnvelope struct {
	BrokerID string      `json:"broker_id"`
	Data     taskPayload `json:"data"`
}

// taskPayload is the inner data object of a task status response.
type taskPayload struct {
	TaskID     string          `json:"task_id"`
	TaskName   string          `json:"task_name"`
	TaskStatus string          `json:"task_status"`
	TaskResult json.RawMessage `json:"task_result"`
}

// registerEnvelope mirrors the registration response for JSON decoding.
type registerEnvelope struct {
	BrokerID string `json:"broker_id"`
	Data     struct {
		File string `json:"file"`
	} `json:"data"`
}

// LaunchSleeper queues a sleeper task with the given delay argument and
// returns the handle of the queued task.
func (c *Client) LaunchSleeper(ctx context.Context, delay int) (string, error) {
	body, err := json.Marshal(sleeperRequest{Delay: delay})
	if err != nil {
		return "", errors.Wrap(err, "marshaling sleeper request")
	}

	url := c.baseURL + "/digest/task/sleeper"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "creating request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "launching sleeper task")
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "reading response body")
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
		// queued, parse below
	default:
		return "", errors.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var env launchEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return "", errors.Wrap(err, "decoding launch response")
	}
	if env.Data.TaskID == "" {
		return "", errors.New("launch response carries no task id")
	}

	c.logger.Infof("queued sleeper task %s", env.Data.TaskID)
	return env.Data.TaskID, nil
}

// TaskStatus reads the current status of the task behind the handle.
// Unknown handles are not an error: the server answers them with a
// regular envelope carrying the "NOT FOUND" status, and the record is
// returned as observed. Errors mean the status could not be read at
// all.
func (c *Client) TaskStatus(ctx context.Context, handle string) (models.TaskStatusRecord, error) {
	url := c.baseURL + "/digest/task/" + handle
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.TaskStatusRecord{}, errors.Wrap(err, "creating request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.TaskStatusRecord{}, errors.Wrapf(err, "fetching status of task %s", handle)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.TaskStatusRecord{}, errors.Wrap(err, "reading response body")
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNotFound:
		// both carry a status envelope, parse below
	default:
		return models.TaskStatusRecord{}, errors.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var env taskEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return models.TaskStatusRecord{}, errors.Wrap(err, "decoding status response")
	}

	rec := models.TaskStatusRecord{
		TaskID:   env.Data.TaskID,
		TaskName: env.Data.TaskName,
		Status:   models.TaskStatus(env.Data.TaskStatus),
		Result:   resultText(env.Data.TaskResult),
	}
	if rec.TaskID == "" {
		rec.TaskID = handle
	}
	return rec, nil
}

// RegisterTransformation stores the result of a succeeded task with the
// content provider and returns the assigned file identifier. A repeated
// registration fails with ErrAlreadyRegistered.
func (c *Client) RegisterTransformation(ctx context.Context, handle string) (models.FileRegistration, error) {
	url := c.baseURL + "/digest/cp/register/" + handle
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return models.FileRegistration{}, errors.Wrap(err, "creating request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.FileRegistration{}, errors.Wrapf(err, "registering task %s", handle)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.FileRegistration{}, errors.Wrap(err, "reading response body")
	}

	switch resp.StatusCode {
	case http.StatusCreated:
		// stored, parse below
	case http.StatusBadRequest:
		return models.FileRegistration{}, errors.Wrapf(ErrAlreadyRegistered, "registering task %s", handle)
	default:
		return models.FileRegistration{}, errors.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var env registerEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return models.FileRegistration{}, errors.Wrap(err, "decoding registration response")
	}

	reg := models.FileRegistration{BrokerID: env.BrokerID, File: env.Data.File}
	c.logger.Infof("registered transformation of task %s as file %s", handle, reg.File)
	return reg, nil
}

// resultText flattens a task_result value for display: JSON null is
// blank, strings lose their quotes, any other value keeps its JSON
// form.
func resultText(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return trimmed
}
