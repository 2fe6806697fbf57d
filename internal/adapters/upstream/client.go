package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// UserAgent is sent on every upstream request.
const UserAgent = "CyberIQ/1.0"

// MaxBodyBytes bounds a single upstream body.
const MaxBodyBytes = 64 << 20

// maxDetailBytes bounds the body excerpt kept on a StatusError.
const maxDetailBytes = 512

// StatusError reports a non-2xx upstream answer.
type StatusError struct {
	Code   int
	URL    string
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("unexpected status %d from %s: %s", e.Code, e.URL, e.Detail)
	}
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// NotFound reports whether the upstream answered 404.
func (e *StatusError) NotFound() bool {
	return e.Code == http.StatusNotFound
}

// Get performs a GET and returns the body of a 2xx answer.
func Get(ctx context.Context, client *http.Client, url string, headers map[string]string) ([]byte, error) {
	return do(ctx, client, http.MethodGet, url, nil, headers)
}

func do(ctx context.Context, client *http.Client, method, url string, body io.Reader, headers map[string]string) ([]byte, error) {
	resp, err := open(ctx, client, method, url, body, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

// open sends the request and returns the response of a 2xx answer. The
// caller closes the body.
func open(ctx context.Context, client *http.Client, method, url string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxDetailBytes))
		return nil, &StatusError{Code: resp.StatusCode, URL: url, Detail: strings.TrimSpace(string(detail))}
	}
	return resp, nil
}

// StreamJSON performs a GET and decodes the body into v as it arrives, for
// bundles too large to buffer. maxBytes <= 0 means MaxBodyBytes.
func StreamJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, maxBytes int64, v any) error {
	if maxBytes <= 0 {
		maxBytes = MaxBodyBytes
	}
	resp, err := open(ctx, client, http.MethodGet, url, nil, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBytes)).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// GetJSON performs a GET and decodes the JSON answer into v.
func GetJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, v any) error {
	body, err := Get(ctx, client, url, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// PostJSON sends in as a JSON body and decodes the JSON answer into out.
func PostJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	h := map[string]string{"Content-Type": "application/json"}
	for k, v := range headers {
		h[k] = v
	}
	body, err := do(ctx, client, http.MethodPost, url, bytes.NewReader(payload), h)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
