package linkedingo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

var (
	ErrUnauthorized     = errors.New("linkedin: session is not authenticated")
	ErrTooManyRequests  = errors.New("linkedin: rate limited")
	ErrNoProfilePicture = errors.New("linkedin: profile has no picture")
)

type reqOptions struct {
	query url.Values
	// jsonBody is marshaled and sent with content-type application/json.
	jsonBody any
	rawBody  []byte
	headers  map[string]string
	// allowRedirects defaults to false: on the Voyager API a redirect means
	// the session cookies are no longer valid.
	allowRedirects bool
}

// request performs an API call and decodes a JSON response of type T.
func request[T any](ctx context.Context, c *Client, method, url string, opts *reqOptions) (*T, error) {
	resp, body, err := c.rawRequest(ctx, method, url, opts)
	if err != nil {
		return nil, err
	}
	var parsed T
	if err = json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response (HTTP %d): %w", resp.StatusCode, err)
	}
	return &parsed, nil
}

func (c *Client) rawRequest(ctx context.Context, method, reqURL string, opts *reqOptions) (*http.Response, []byte, error) {
	if opts == nil {
		opts = &reqOptions{}
	}
	if len(opts.query) > 0 {
		reqURL = reqURL + "?" + opts.query.Encode()
	}
	body := opts.rawBody
	contentType := ""
	if opts.jsonBody != nil {
		var err error
		body, err = json.Marshal(opts.jsonBody)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		contentType = "application/json"
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header = c.buildHeaders(opts.headers)
	if contentType != "" {
		req.Header.Set("content-type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	dur := time.Since(start)
	if err != nil {
		c.Log.Warn().Err(err).
			Str("method", method).
			Str("url", req.URL.Path).
			Dur("duration", dur).
			Msg("Request failed")
		return nil, nil, err
	}
	defer resp.Body.Close()
	c.cookies.UpdateFromResponse(resp)
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	c.Log.Trace().
		Str("method", method).
		Str("url", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("duration", dur).
		Msg("Request completed")

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp, respBody, nil
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		if opts.allowRedirects {
			return resp, respBody, nil
		}
		// Voyager never redirects an authenticated client; this is the
		// login wall.
		return resp, respBody, ErrUnauthorized
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return resp, respBody, fmt.Errorf("%w (HTTP %d)", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return resp, respBody, ErrTooManyRequests
	default:
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(respBody, apiErr)
		apiErr.StatusCode = resp.StatusCode
		return resp, respBody, apiErr
	}
}

// IsAuthError tells whether an error from any client call means the cookies
// are dead and the user has to log in again.
func IsAuthError(err error) bool {
	if errors.Is(err, ErrUnauthorized) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
	}
	return false
}
