// Package remote provides a client for the imaging service's HTTP API.
//
// The service stores uploaded images per session and exposes four POST
// endpoints: /upload (multipart), /process and /augment (derive new images)
// and /detect (classify images). Every response is JSON carrying either the
// result or a top-level "error" field; a body with an error field is a
// failure even when the HTTP status is 2xx.
//
// Results are referenced by URL. Downloads fetch those URLs with Fetch.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/scanprep/internal/failure"
)

const (
	// defaultTimeout is the HTTP client timeout for API calls.
	defaultTimeout = 30 * time.Second

	// uploadField is the multipart field name the service reads images from.
	uploadField = "images"

	// fallbackStatusMessage is reported for a non-2xx response with an empty body.
	fallbackStatusMessage = "Network response was not ok"
)

// Client talks to one imaging service instance.
type Client struct {
	httpClient *http.Client
	baseURL    string
	sessionID  string
}

// NewClient creates a client for the service at baseURL. A zero timeout
// selects the default.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// SetSessionID tags subsequent requests with the client session id.
func (c *Client) SetSessionID(id string) {
	c.sessionID = id
}

// --- API types ---

// Part is one image in an upload.
type Part struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

type operationRequest struct {
	Type      string   `json:"type"`
	Filenames []string `json:"filenames"`
}

type imagesResponse struct {
	ImageURLs []string `json:"image_urls"`
}

type detectResponse struct {
	DetectionResults []DetectionResult `json:"detection_results"`
}

// DetectionResult is the service's verdict for one image.
type DetectionResult struct {
	ImageURL      string            `json:"image_url"`
	TumorDetected bool              `json:"tumor_detected"`
	Details       []DetectionDetail `json:"details,omitempty"`
}

// DetectionDetail describes one finding within an image.
type DetectionDetail struct {
	Type       string     `json:"type"`
	Location   string     `json:"location"`
	Confidence Confidence `json:"confidence"`
}

// Confidence is a detection score. The service sends it as a formatted
// string ("0.87"); a bare JSON number is accepted too.
type Confidence string

func (c *Confidence) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Confidence(s)
		return nil
	}
	if string(data) == "null" {
		*c = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("confidence: %w", err)
	}
	*c = Confidence(n.String())
	return nil
}

// --- Endpoints ---

// Upload sends parts as one multipart request and returns the URLs of the
// stored images in server order.
func (c *Client) Upload(ctx context.Context, parts []Part) ([]string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, uploadField, p.Filename))
		contentType := p.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)
		w, err := mw.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("create multipart part: %w", err)
		}
		if _, err := io.Copy(w, p.Body); err != nil {
			return nil, fmt.Errorf("read %s: %w", p.Filename, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finish multipart body: %w", err)
	}

	log.Trace().Int("parts", len(parts)).Int("bodyBytes", buf.Len()).Msg("Upload body built")

	var resp imagesResponse
	if err := c.post(ctx, "/upload", mw.FormDataContentType(), &buf, &resp); err != nil {
		return nil, err
	}
	return resp.ImageURLs, nil
}

// Process runs a preprocessing variant over filenames.
func (c *Client) Process(ctx context.Context, processType string, filenames []string) ([]string, error) {
	return c.deriveImages(ctx, "/process", processType, filenames)
}

// Augment runs an augmentation variant over filenames.
func (c *Client) Augment(ctx context.Context, augmentType string, filenames []string) ([]string, error) {
	return c.deriveImages(ctx, "/augment", augmentType, filenames)
}

// Detect runs tumor detection over filenames.
func (c *Client) Detect(ctx context.Context, filenames []string) ([]DetectionResult, error) {
	var resp detectResponse
	if err := c.postJSON(ctx, "/detect", operationRequest{Type: "detect", Filenames: filenames}, &resp); err != nil {
		return nil, err
	}
	return resp.DetectionResults, nil
}

// Fetch downloads a result artifact. Relative URLs resolve against the
// service base URL.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	target, err := c.ResolveURL(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.tag(req)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: http %d", target, httpResp.StatusCode)
	}

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	log.Debug().Str("url", target).Int("bytes", len(data)).Msg("Artifact fetched")
	return data, nil
}

// ResolveURL makes a service-relative URL absolute.
func (c *Client) ResolveURL(rawURL string) (string, error) {
	ref, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", c.baseURL, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// --- Internal helpers ---

func (c *Client) deriveImages(ctx context.Context, path, typ string, filenames []string) ([]string, error) {
	var resp imagesResponse
	if err := c.postJSON(ctx, path, operationRequest{Type: typ, Filenames: filenames}, &resp); err != nil {
		return nil, err
	}
	return resp.ImageURLs, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.post(ctx, path, "application/json", bytes.NewReader(data), out)
}

// post sends a request and classifies the outcome: network failures and
// non-2xx statuses are transport errors, a 2xx body with an error field is
// an application error.
func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	startTime := time.Now()

	log.Debug().Str("method", http.MethodPost).Str("path", path).Msg("Imaging API request")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	c.tag(req)

	httpResp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		log.Debug().Int("statusCode", 0).Dur("duration", duration).Err(err).Msg("Imaging API response")
		return failure.Transport(path, 0, "request failed", err)
	}
	defer httpResp.Body.Close()

	log.Debug().Int("statusCode", httpResp.StatusCode).Dur("duration", duration).Msg("Imaging API response")

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return failure.Transport(path, httpResp.StatusCode, "read response", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		msg, ok := errorField(raw)
		if !ok {
			msg = strings.TrimSpace(string(raw))
		}
		if msg == "" {
			msg = fallbackStatusMessage
		}
		return failure.Transport(path, httpResp.StatusCode, msg, nil)
	}

	if msg, ok := errorField(raw); ok {
		log.Warn().Str("path", path).Str("errorMessage", msg).Msg("Imaging API error")
		return failure.Application(path, msg)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return failure.Transport(path, httpResp.StatusCode,
			fmt.Sprintf("parse response (body: %s)", truncate(string(raw), 200)), err)
	}
	return nil
}

// errorField extracts a truthy top-level "error" value from a JSON body.
func errorField(raw []byte) (string, bool) {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.Error) == 0 {
		return "", false
	}
	switch v := strings.TrimSpace(string(envelope.Error)); v {
	case "null", "false", `""`, "0":
		return "", false
	}
	var s string
	if err := json.Unmarshal(envelope.Error, &s); err == nil {
		return s, true
	}
	return string(envelope.Error), true
}

func (c *Client) tag(req *http.Request) {
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.sessionID != "" {
		req.Header.Set("X-Session-ID", c.sessionID)
	}
}

// truncate returns the first n characters of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
