package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	derrors "git.home.luguber.info/inful/wayfind/internal/foundation/errors"
	"git.home.luguber.info/inful/wayfind/internal/notify"
)

// Client talks to a running supervisor's control API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for addr ("host:port" or a full URL).
func NewClient(addr string, httpClient *http.Client) *Client {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	if httpClient == nil {
		// Updates and restarts take a few seconds.
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Client{baseURL: strings.TrimRight(base, "/"), http: httpClient}
}

func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	return &out, c.do(ctx, http.MethodGet, RouteStatus, nil, &out)
}

func (c *Client) Start(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	return &out, c.do(ctx, http.MethodPost, RouteStart, nil, &out)
}

func (c *Client) Stop(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	return &out, c.do(ctx, http.MethodPost, RouteStop, nil, &out)
}

func (c *Client) Restart(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	return &out, c.do(ctx, http.MethodPost, RouteRestart, nil, &out)
}

func (c *Client) Update(ctx context.Context) (*UpdateStatus, error) {
	var out UpdateStatus
	return &out, c.do(ctx, http.MethodPost, RouteUpdate, nil, &out)
}

func (c *Client) GetConfig(ctx context.Context, key string) (*ConfigValue, error) {
	var out ConfigValue
	return &out, c.do(ctx, http.MethodGet, RouteConfig+"?key="+url.QueryEscape(key), nil, &out)
}

func (c *Client) SetConfig(ctx context.Context, key, value string) error {
	return c.do(ctx, http.MethodPut, RouteConfig, ConfigRequest{Key: key, Value: value}, nil)
}

func (c *Client) ChooseDirectory(ctx context.Context, path string) (*StatusResponse, error) {
	var out StatusResponse
	return &out, c.do(ctx, http.MethodPut, RouteDirectory, DirectoryRequest{Path: path}, &out)
}

func (c *Client) Notifications(ctx context.Context) ([]notify.Notification, error) {
	var out []notify.Notification
	return out, c.do(ctx, http.MethodGet, RouteNotifications, nil, &out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return derrors.NetworkError("supervisor not reachable").
			WithCause(err).WithContext("url", c.baseURL).Build()
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return derrors.NetworkError("failed to read response").WithCause(err).Build()
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return derrors.InternalError("invalid control API response").WithCause(err).Build()
	}
	return nil
}

// decodeError rebuilds a classified error from the API error payload.
func decodeError(status int, data []byte) error {
	var payload derrors.HTTPErrorResponse
	if err := json.Unmarshal(data, &payload); err != nil || payload.Error == "" {
		return derrors.InternalError(fmt.Sprintf("control API returned %d", status)).
			WithContext("body", strings.TrimSpace(string(data))).Build()
	}
	category := derrors.ErrorCategory(payload.Code)
	if category == "" {
		category = derrors.CategoryInternal
	}
	b := derrors.NewError(category, payload.Error)
	for k, v := range payload.Details {
		b = b.WithContext(k, v)
	}
	if payload.Retryable {
		b = b.Retryable()
	}
	return b.Build()
}
