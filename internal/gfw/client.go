package gfw

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

	"gfwpro-workflow/internal/shared/metrics"
	"gfwpro-workflow/internal/shared/telemetry"
)

const (
	apiKeyHeader   = "x-api-key"
	errorBodyLimit = 2048
)

// Options configures a Client.
type Options struct {
	BaseURL      string
	APIKey       string
	HTTPClient   *http.Client
	MaxRedirects int
}

// Client talks to the GFW Pro list/analysis API.
type Client struct {
	baseURL   string
	apiKey    string
	http      *http.Client
	requester *Requester
}

// NewClient constructs a client. BaseURL and APIKey are required.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("base url is required")
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("api key is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL:   base,
		apiKey:    opts.APIKey,
		http:      httpClient,
		requester: NewRequester(httpClient, opts.MaxRedirects),
	}, nil
}

// UploadTicket is the signed upload slot returned by prepare_upload.
type UploadTicket struct {
	UploadID  string `json:"uploadId"`
	UploadURL string `json:"uploadUrl"`
}

// CreateListRequest is the body of list/upload_new.
type CreateListRequest struct {
	UploadID    string `json:"uploadId"`
	ListName    string `json:"listName"`
	Commodity   string `json:"commodity"`
	AnalysisIDs string `json:"analysisIDs"`
}

// Job identifies a created list.
type Job struct {
	ListID string `json:"listId"`
}

type prepareUploadRequest struct {
	UserEmail string `json:"userEmail"`
	FileType  string `json:"fileType"`
}

type prepareUploadResponse struct {
	UploadID  flexString `json:"uploadId"`
	UploadURL string     `json:"uploadUrl"`
}

type createListResponse struct {
	ListID flexString `json:"listId"`
}

// PrepareUpload asks the service for a signed CSV upload URL.
func (c *Client) PrepareUpload(ctx context.Context, userEmail string) (UploadTicket, error) {
	var out prepareUploadResponse
	body := prepareUploadRequest{UserEmail: userEmail, FileType: "csv"}
	if err := c.postJSON(ctx, StepPrepareUpload, ErrPrepareFailed, "/prepare_upload", body, &out); err != nil {
		return UploadTicket{}, err
	}
	ticket := UploadTicket{UploadID: string(out.UploadID), UploadURL: out.UploadURL}
	if ticket.UploadID == "" || ticket.UploadURL == "" {
		return UploadTicket{}, stepError(StepPrepareUpload, ErrPrepareFailed, errors.New("response missing uploadId or uploadUrl"))
	}
	return ticket, nil
}

// UploadFile PUTs the CSV bytes to the ticket's signed URL. The signed URL
// carries its own authorization, so the api key is not sent.
func (c *Client) UploadFile(ctx context.Context, ticket UploadTicket, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, ticket.UploadURL, bytes.NewReader(data))
	if err != nil {
		return stepError(StepUploadFile, ErrUploadFailed, err)
	}
	req.Header.Set("Content-Type", "text/csv")

	resp, err := c.doLogged(StepUploadFile, req, len(data))
	if err != nil {
		return stepError(StepUploadFile, ErrUploadFailed, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return stepError(StepUploadFile, ErrUploadFailed, err)
	}
	return nil
}

// CreateList creates a list from an uploaded file.
func (c *Client) CreateList(ctx context.Context, in CreateListRequest) (Job, error) {
	var out createListResponse
	if err := c.postJSON(ctx, StepCreateList, ErrJobCreationFailed, "/list/upload_new", in, &out); err != nil {
		return Job{}, err
	}
	if out.ListID == "" {
		return Job{}, stepError(StepCreateList, ErrJobCreationFailed, errors.New("response missing listId"))
	}
	return Job{ListID: string(out.ListID)}, nil
}

// TriggerAnalysis starts analysisID on the list with an analysis-specific payload.
func (c *Client) TriggerAnalysis(ctx context.Context, listID, analysisID string, payload any) error {
	return c.postJSON(ctx, StepTriggerAnalysis, ErrTriggerFailed, analysisPath(listID, analysisID, "generate"), payload, nil)
}

// Status fetches the current analysis status for a list.
func (c *Client) Status(ctx context.Context, listID, analysisID string) (StatusSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+analysisPath(listID, analysisID, "status"), nil)
	if err != nil {
		return StatusSnapshot{}, stepError(StepPollStatus, ErrStatusFailed, err)
	}
	c.setAPIHeaders(req.Header)

	resp, err := c.doLogged(StepPollStatus, req, 0)
	if err != nil {
		return StatusSnapshot{}, stepError(StepPollStatus, ErrStatusFailed, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return StatusSnapshot{}, stepError(StepPollStatus, ErrStatusFailed, err)
	}

	var snap StatusSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return StatusSnapshot{}, stepError(StepPollStatus, ErrStatusFailed, fmt.Errorf("decode status: %w", err))
	}
	return snap, nil
}

// Download streams the artifact at resultURL into w. The result URL is
// signed, so no api key is sent.
func (c *Client) Download(ctx context.Context, resultURL string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return 0, stepError(StepDownloadResult, ErrDownloadFailed, err)
	}
	resp, err := c.doLogged(StepDownloadResult, req, 0)
	if err != nil {
		return 0, stepError(StepDownloadResult, ErrDownloadFailed, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return 0, stepError(StepDownloadResult, ErrDownloadFailed, err)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, stepError(StepDownloadResult, ErrDownloadFailed, fmt.Errorf("read body: %w", err))
	}
	return n, nil
}

// postJSON marshals body once and sends it through the redirect-following
// requester, decoding a 2xx response into out when out is non-nil.
func (c *Client) postJSON(ctx context.Context, step Step, kind error, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return stepError(step, kind, fmt.Errorf("encode json: %w", err))
	}

	headers := http.Header{}
	c.setAPIHeaders(headers)
	headers.Set("Content-Type", "application/json")

	reqID := uuid.NewString()
	start := time.Now()
	target := c.baseURL + path
	telemetry.Info("gfw.http.request", map[string]any{
		"req_id":         reqID,
		"step":           string(step),
		"method":         http.MethodPost,
		"url":            target,
		"content_length": len(payload),
	})

	resp, err := c.requester.Send(ctx, http.MethodPost, target, headers, payload)
	if err != nil {
		telemetry.Error("gfw.http.send_error", map[string]any{
			"req_id":     reqID,
			"step":       string(step),
			"error":      err.Error(),
			"elapsed_ms": time.Since(start).Milliseconds(),
		})
		return stepError(step, kind, err)
	}
	defer resp.Body.Close()

	telemetry.Info("gfw.http.response", map[string]any{
		"req_id":     reqID,
		"step":       string(step),
		"status":     resp.StatusCode,
		"elapsed_ms": time.Since(start).Milliseconds(),
	})

	if err := checkStatus(resp); err != nil {
		return stepError(step, kind, err)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return stepError(step, kind, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *Client) doLogged(step Step, req *http.Request, contentLength int) (*http.Response, error) {
	reqID := uuid.NewString()
	start := time.Now()
	telemetry.Info("gfw.http.request", map[string]any{
		"req_id":         reqID,
		"step":           string(step),
		"method":         req.Method,
		"url":            req.URL.Redacted(),
		"content_length": contentLength,
	})
	metrics.IncRequests()

	resp, err := c.http.Do(req)
	if err != nil {
		telemetry.Error("gfw.http.send_error", map[string]any{
			"req_id":     reqID,
			"step":       string(step),
			"error":      err.Error(),
			"elapsed_ms": time.Since(start).Milliseconds(),
		})
		return nil, err
	}
	telemetry.Info("gfw.http.response", map[string]any{
		"req_id":     reqID,
		"step":       string(step),
		"status":     resp.StatusCode,
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
	return resp, nil
}

func (c *Client) setAPIHeaders(h http.Header) {
	h.Set(apiKeyHeader, c.apiKey)
	h.Set("Accept", "application/json")
}

func analysisPath(listID, analysisID, action string) string {
	return "/list/" + url.PathEscape(listID) + "/analysis/" + url.PathEscape(analysisID) + "/" + action
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode/100 == 2 {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	return &HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
}

// flexString accepts identifiers the API sends either as strings or numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	*f = flexString(n.String())
	return nil
}
