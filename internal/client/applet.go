package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"

	"github.com/GriffinCanCode/appletsync/internal/shared/types"
)

// Resource names one of the two versioned applet resources
type Resource string

const (
	ResourceStorage Resource = "storage"
	ResourceContent Resource = "html"
)

// StorageResponse is a fetched storage payload. Data is the decoded JSON
// value as sent by the server; callers normalize it.
type StorageResponse struct {
	Data   interface{}
	Marker string
}

// ContentResponse is a fetched applet document
type ContentResponse struct {
	HTML   string
	Marker string
}

// Audio is an upload payload for applet creation or replacement
type Audio struct {
	Name        string
	ContentType string
	Reader      io.Reader
}

// uploadResult is the lifecycle endpoints' response body
type uploadResult struct {
	UUID    string `json:"uuid"`
	Message string `json:"message"`
}

var noCache = map[string]string{
	"Cache-Control": "no-cache",
	"Pragma":        "no-cache",
}

func resourcePath(id types.AppletID, resource Resource) string {
	return fmt.Sprintf("/applet/%s/%s", url.PathEscape(id.String()), resource)
}

// FetchStorage downloads the storage snapshot and its version marker. A body
// that is not valid JSON decodes to nil.
func (c *Client) FetchStorage(ctx context.Context, id types.AppletID) (*StorageResponse, error) {
	resp, err := c.get(ctx, "fetch storage", resourcePath(id, ResourceStorage))
	if err != nil {
		return nil, err
	}

	var data interface{}
	if err := sonic.Unmarshal(resp.Body(), &data); err != nil {
		data = nil
	}
	return &StorageResponse{
		Data:   data,
		Marker: resp.Header().Get("Last-Modified"),
	}, nil
}

// FetchContent downloads the applet document and its version marker
func (c *Client) FetchContent(ctx context.Context, id types.AppletID) (*ContentResponse, error) {
	resp, err := c.get(ctx, "fetch content", resourcePath(id, ResourceContent))
	if err != nil {
		return nil, err
	}
	return &ContentResponse{
		HTML:   resp.String(),
		Marker: resp.Header().Get("Last-Modified"),
	}, nil
}

// Probe issues a HEAD request and returns the resource's version marker,
// which is empty when the server sends none.
func (c *Client) Probe(ctx context.Context, id types.AppletID, resource Resource) (string, error) {
	ctx, cancel := c.deadline(ctx, false)
	defer cancel()

	req, err := c.Request(ctx)
	if err != nil {
		return "", err
	}
	resp, err := req.SetHeaders(noCache).Head(resourcePath(id, resource))
	if err != nil {
		return "", fmt.Errorf("probe %s: %w", resource, err)
	}
	if !resp.IsSuccess() {
		return "", &StatusError{Op: "probe " + string(resource), Status: resp.StatusCode()}
	}
	return resp.Header().Get("Last-Modified"), nil
}

// ProbeStorage returns the storage version marker
func (c *Client) ProbeStorage(ctx context.Context, id types.AppletID) (string, error) {
	return c.Probe(ctx, id, ResourceStorage)
}

// ProbeContent returns the document version marker
func (c *Client) ProbeContent(ctx context.Context, id types.AppletID) (string, error) {
	return c.Probe(ctx, id, ResourceContent)
}

// PutStorage replaces the server-side snapshot
func (c *Client) PutStorage(ctx context.Context, id types.AppletID, snapshot types.Snapshot) error {
	ctx, cancel := c.deadline(ctx, false)
	defer cancel()

	if snapshot == nil {
		snapshot = types.Snapshot{}
	}
	req, err := c.Request(ctx)
	if err != nil {
		return err
	}
	resp, err := req.
		SetHeader("Content-Type", "application/json").
		SetBody(snapshot).
		Put(resourcePath(id, ResourceStorage))
	if err != nil {
		return fmt.Errorf("update storage: %w", err)
	}
	return checkStatus("update storage", resp)
}

// DeleteStorage empties the server-side snapshot
func (c *Client) DeleteStorage(ctx context.Context, id types.AppletID) error {
	ctx, cancel := c.deadline(ctx, false)
	defer cancel()

	req, err := c.Request(ctx)
	if err != nil {
		return err
	}
	resp, err := req.Delete(resourcePath(id, ResourceStorage))
	if err != nil {
		return fmt.Errorf("delete storage: %w", err)
	}
	return checkStatus("delete storage", resp)
}

// Replace uploads audio describing a change to an existing applet and
// returns the identifier the server assigns to the result.
func (c *Client) Replace(ctx context.Context, id types.AppletID, audio Audio) (types.AppletID, error) {
	return c.upload(ctx, "replace applet", "/applet/"+url.PathEscape(id.String()), audio)
}

// Create uploads audio describing a new applet and returns its identifier
func (c *Client) Create(ctx context.Context, audio Audio) (types.AppletID, error) {
	return c.upload(ctx, "create applet", "/applet", audio)
}

func (c *Client) upload(ctx context.Context, op, path string, audio Audio) (types.AppletID, error) {
	if audio.Reader == nil {
		return "", fmt.Errorf("%s: no audio payload", op)
	}
	name := audio.Name
	if name == "" {
		name = "recording.webm"
	}
	contentType := audio.ContentType
	if contentType == "" {
		contentType = "audio/webm"
	}

	ctx, cancel := c.deadline(ctx, true)
	defer cancel()

	req, err := c.Request(ctx)
	if err != nil {
		return "", err
	}
	req.SetMultipartField("audio", name, contentType, audio.Reader)

	resp, err := c.ExecuteWithBreaker(func() (*resty.Response, error) {
		return req.Post(path)
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err := checkStatus(op, resp); err != nil {
		return "", err
	}

	var result uploadResult
	if err := sonic.Unmarshal(resp.Body(), &result); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", op, err)
	}
	if result.UUID == "" {
		return "", fmt.Errorf("%s: %w", op, ErrMissingID)
	}
	return types.AppletID(result.UUID), nil
}

// get performs a cache-bypassing GET and requires a 2xx response
func (c *Client) get(ctx context.Context, op, path string) (*resty.Response, error) {
	ctx, cancel := c.deadline(ctx, false)
	defer cancel()

	req, err := c.Request(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := req.SetHeaders(noCache).Get(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := checkStatus(op, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func checkStatus(op string, resp *resty.Response) error {
	if resp == nil {
		return &StatusError{Op: op, Status: http.StatusBadGateway}
	}
	if resp.IsSuccess() {
		return nil
	}
	body := resp.String()
	if len(body) > 200 {
		body = body[:200]
	}
	return &StatusError{Op: op, Status: resp.StatusCode(), Body: body}
}
