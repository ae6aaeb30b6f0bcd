// Package portal is the HTTP client for the portlet resource endpoints that
// validate, parse, load and save inventory submissions.
//
// Every response body is decoded by exactly one typed decoder per endpoint.
// Failures are reported with the core transport sentinels:
//
//   - core.ErrTransportTimeout when the request context expired
//   - core.ErrMalformedResponse when the body is not the expected JSON
//   - core.ErrTransport for everything else, including non-2xx status codes
//
// A well-formed body with success=false is returned as-is, not as an error.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JonMunkholm/inventory/internal/core"
	"github.com/JonMunkholm/inventory/internal/messages"
)

// Default endpoint paths, relative to the base URL.
const (
	DefaultValidatePath = "/validateFile"
	DefaultProcessPath  = "/processFile"
	DefaultFetchPath    = "/fetchData"
	DefaultSubmitPath   = "/submitForm"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 32 << 20

// Config configures a Client.
type Config struct {
	BaseURL      string
	ValidatePath string
	ProcessPath  string
	FetchPath    string
	SubmitPath   string
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// Client implements core.Transport over HTTP.
type Client struct {
	base   *url.URL
	paths  Config
	http   *http.Client
	logger *slog.Logger
}

var _ core.Transport = (*Client)(nil)

// New creates a client for the portal at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse portal base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("portal base url %q must be absolute", cfg.BaseURL)
	}

	if cfg.ValidatePath == "" {
		cfg.ValidatePath = DefaultValidatePath
	}
	if cfg.ProcessPath == "" {
		cfg.ProcessPath = DefaultProcessPath
	}
	if cfg.FetchPath == "" {
		cfg.FetchPath = DefaultFetchPath
	}
	if cfg.SubmitPath == "" {
		cfg.SubmitPath = DefaultSubmitPath
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// Per-call deadlines come from the request context.
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{base: base, paths: cfg, http: httpClient, logger: logger}, nil
}

func (c *Client) endpoint(p string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(p, "/")
	return u.String()
}

// Validate posts the file to validateFile.
func (c *Client) Validate(ctx context.Context, req core.ValidateRequest) (core.ValidateResponse, error) {
	body, contentType, err := multipartBody(req.File, map[string]string{
		"language":  req.Language,
		"namespace": req.Namespace,
	})
	if err != nil {
		return core.ValidateResponse{}, fmt.Errorf("validateFile: %w: %w", core.ErrTransport, err)
	}

	var resp core.ValidateResponse
	if err := c.do(ctx, "validateFile", http.MethodPost, c.endpoint(c.paths.ValidatePath), contentType, body, &resp); err != nil {
		return core.ValidateResponse{}, err
	}
	resp.Error = messages.Sanitize(resp.Error)
	resp.Errors = messages.SanitizeAll(resp.Errors)
	return resp, nil
}

// Process posts the validated file to processFile.
func (c *Client) Process(ctx context.Context, req core.ProcessRequest) (core.ProcessResponse, error) {
	body, contentType, err := multipartBody(req.File, map[string]string{
		"namespace": req.Namespace,
	})
	if err != nil {
		return core.ProcessResponse{}, fmt.Errorf("processFile: %w: %w", core.ErrTransport, err)
	}

	var resp core.ProcessResponse
	if err := c.do(ctx, "processFile", http.MethodPost, c.endpoint(c.paths.ProcessPath), contentType, body, &resp); err != nil {
		return core.ProcessResponse{}, err
	}
	resp.Error = messages.Sanitize(resp.Error)
	return resp, nil
}

// Fetch loads a persisted inventory from fetchData.
func (c *Client) Fetch(ctx context.Context, inventoryID, namespace string) (core.FetchResponse, error) {
	q := url.Values{}
	q.Set("inventoryId", inventoryID)
	if namespace != "" {
		q.Set("namespace", namespace)
	}
	target := c.endpoint(c.paths.FetchPath) + "?" + q.Encode()

	var resp core.FetchResponse
	if err := c.do(ctx, "fetchData", http.MethodGet, target, "", nil, &resp); err != nil {
		return core.FetchResponse{}, err
	}
	resp.Error = messages.Sanitize(resp.Error)
	return resp, nil
}

// Submit posts the form to submitForm as application/x-www-form-urlencoded.
func (c *Client) Submit(ctx context.Context, form url.Values) (core.SubmitResponse, error) {
	body := strings.NewReader(form.Encode())

	var resp core.SubmitResponse
	if err := c.do(ctx, "submitForm", http.MethodPost, c.endpoint(c.paths.SubmitPath), "application/x-www-form-urlencoded", body, &resp); err != nil {
		return core.SubmitResponse{}, err
	}
	resp.Error = messages.Sanitize(resp.Error)
	return resp, nil
}

func (c *Client) do(ctx context.Context, op, method, target, contentType string, body io.Reader, out any) error {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, core.ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("portal request failed", "op", op, "error", err, "duration_ms", time.Since(start).Milliseconds())
		return classify(op, ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return classify(op, ctx, err)
	}

	c.logger.Debug("portal request completed",
		"op", op,
		"status", resp.StatusCode,
		"bytes", len(data),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &core.StatusCodeError{Op: op, Status: resp.StatusCode, Message: errorField(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: %w: %w", op, core.ErrMalformedResponse, err)
	}
	return nil
}

// errorField extracts the error text of a JSON error body, if there is one.
func errorField(data []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	return messages.Sanitize(body.Error)
}

// classify maps a request failure onto the transport sentinels.
func classify(op string, ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, core.ErrTransportTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %w: %w", op, core.ErrTransportTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, core.ErrTransport, err)
}

func multipartBody(f core.Upload, fields map[string]string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", f.Name)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(f.Content); err != nil {
		return nil, "", err
	}
	for _, k := range []string{"language", "namespace"} {
		v, ok := fields[k]
		if !ok {
			continue
		}
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
