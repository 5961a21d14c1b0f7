package segment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrServiceFailure marks a reply the service itself flagged as failed.
var ErrServiceFailure = errors.New("segment: service reported failure")

// Client posts captured frames to the segmentation service.
type Client struct {
	baseURL  string
	http     *http.Client
	validate *validator.Validate
}

// NewClient builds a client for the service at baseURL. A zero timeout
// defaults to 60s; segmentation plus inpainting routinely takes tens of
// seconds on CPU.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: timeout},
		validate: validator.New(),
	}
}

// Segment validates and sends the request, returning the decoded response.
// A response with Success=false is returned alongside ErrServiceFailure so
// callers can still read the error field.
func (c *Client) Segment(ctx context.Context, req Request) (*Response, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("segment: invalid request: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("segment: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/segment", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("segment: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("segment: post: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("segment: read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("segment: status %d: %s", httpResp.StatusCode, truncate(raw, 200))
	}

	return DecodeResponse(raw)
}

// DecodeResponse parses a raw response body, applying the same
// Success=false handling as Segment. Used when replaying canned responses.
func DecodeResponse(raw []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("segment: decode response: %w", err)
	}
	if !resp.Success {
		return &resp, fmt.Errorf("%w: %s", ErrServiceFailure, resp.Error)
	}
	return &resp, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
