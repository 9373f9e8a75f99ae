// Package client is an HTTP client for the candidate attempt API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/psikotes-backend/internal/model"
	"github.com/stemsi/psikotes-backend/internal/response"
)

// Sentinels matched by APIError.Is.
var (
	ErrAttemptFinalized    = errors.New("attempt already finalized")
	ErrAttemptStillRunning = errors.New("attempt still running")
	ErrIncomplete          = errors.New("submission incomplete")
)

// APIError is a non-2xx response decoded from the error envelope.
type APIError struct {
	Status  int
	Code    response.ErrCode
	Message string
	Details map[string]any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAttemptFinalized:
		return e.Code == response.ErrAttemptAlreadyFinalized
	case ErrAttemptStillRunning:
		return e.Code == response.ErrAttemptStillRunning
	case ErrIncomplete:
		return e.Code == response.ErrIncompleteSubmission
	}
	return false
}

// Unanswered returns details.unanswered of an incomplete submission.
func (e *APIError) Unanswered() int {
	if v, ok := e.Details["unanswered"].(float64); ok {
		return int(v)
	}
	return 0
}

// Client calls the candidate endpoints with a bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a Client. A nil httpClient gets a 10 s timeout.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

// BeginOrResume starts the attempt or returns the running one.
func (c *Client) BeginOrResume(ctx context.Context, examID uuid.UUID, accessCode string) (*model.AttemptState, error) {
	var out model.AttemptState
	body := model.BeginAttemptRequest{AccessCode: accessCode}
	if err := c.do(ctx, http.MethodPost, "/api/v1/candidate/exams/"+examID.String()+"/attempt", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// State reloads an attempt.
func (c *Client) State(ctx context.Context, attemptID uuid.UUID) (*model.AttemptState, error) {
	var out model.AttemptState
	if err := c.do(ctx, http.MethodGet, attemptPath(attemptID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Autosave sends the full answer map.
func (c *Client) Autosave(ctx context.Context, attemptID uuid.UUID, answers model.AnswerMap) (*model.AutosaveResult, error) {
	var out model.AutosaveResult
	body := model.AutosaveRequest{Answers: answers}
	if err := c.do(ctx, http.MethodPut, attemptPath(attemptID)+"/answers", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Submit finalizes the attempt.
func (c *Client) Submit(ctx context.Context, attemptID uuid.UUID, answers model.AnswerMap, automatic bool) (*model.AttemptResult, error) {
	var out model.AttemptResult
	body := model.SubmitRequest{Answers: answers, Automatic: automatic}
	if err := c.do(ctx, http.MethodPost, attemptPath(attemptID)+"/submit", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Beacon is the teardown write. It mimics a page-unload beacon: the token
// travels in the query string and the body is sent as text/plain.
func (c *Client) Beacon(ctx context.Context, attemptID uuid.UUID, answers model.AnswerMap) error {
	raw, err := json.Marshal(model.AutosaveRequest{Answers: answers})
	if err != nil {
		return err
	}
	u := c.baseURL + attemptPath(attemptID) + "/answers/beacon?token=" + url.QueryEscape(c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain;charset=UTF-8")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return decodeError(res)
	}
	return nil
}

func attemptPath(id uuid.UUID) string {
	return "/api/v1/candidate/attempts/" + id.String()
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return decodeError(res)
	}

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func decodeError(res *http.Response) error {
	apiErr := &APIError{Status: res.StatusCode}
	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err == nil && env.Error != nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
	} else {
		apiErr.Message = res.Status
	}
	return apiErr
}
