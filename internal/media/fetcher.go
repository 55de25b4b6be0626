package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultMaxBytes caps a single download. WhatsApp media tops out well below it.
const DefaultMaxBytes = 20 << 20

// Fetcher retrieves a remote media attachment into memory
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Credentials are the channel provider's account id and auth token
type Credentials struct {
	AccountID string
	AuthToken string
}

// HTTPFetcher downloads media with HTTP Basic authentication
type HTTPFetcher struct {
	credentials Credentials
	client      *http.Client
	maxBytes    int64
}

// NewHTTPFetcher creates a new HTTPFetcher. A zero timeout or maxBytes
// falls back to the defaults.
func NewHTTPFetcher(credentials Credentials, timeout time.Duration, maxBytes int64) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &HTTPFetcher{
		credentials: credentials,
		client:      &http.Client{Timeout: timeout},
		maxBytes:    maxBytes,
	}
}

// AuthorizationHeader returns the Basic authorization value for the credentials
func (c Credentials) AuthorizationHeader() string {
	token := base64.StdEncoding.EncodeToString([]byte(c.AccountID + ":" + c.AuthToken))
	return "Basic " + token
}

// Fetch downloads url and returns the body. Any non-2xx response is an error.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", f.credentials.AuthorizationHeader())

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading media body: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("media exceeds %d bytes", f.maxBytes)
	}

	return data, nil
}

// StatusError is returned when the media host answers with a non-success status
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("media host returned %s", e.Status)
}
