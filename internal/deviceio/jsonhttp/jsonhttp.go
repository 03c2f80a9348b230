// Package jsonhttp implements the JSON/HTTP DeviceClient: one GET per
// poll decodes a JSON object, and each tag's address is a key into
// that object, coerced to its target DataType.
package jsonhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ilguido/jidl/internal/apperror"
	"github.com/ilguido/jidl/internal/datatype"
)

// Client is a JSON/HTTP DeviceClient. One poll populates the decoded
// object all readers of the tick pull their keys from.
type Client struct {
	url string

	httpClient *http.Client
	mu         sync.RWMutex
	data       map[string]any

	initialized bool
	connected   bool
}

// New constructs a JSON/HTTP client polling url.
func New(url string) *Client {
	return &Client{url: url}
}

func (c *Client) Initialize() error {
	c.httpClient = &http.Client{Timeout: 3 * time.Second}
	c.initialized = true
	return nil
}

func (c *Client) IsInitialized() bool { return c.initialized }

// Connect performs one probing fetch to confirm the endpoint is reachable.
func (c *Client) Connect(ctx context.Context) error {
	if !c.initialized {
		return apperror.New(apperror.CodeDeviceUnreachable, "json/http client not initialized")
	}
	if err := c.Refresh(ctx); err != nil {
		return err
	}
	c.connected = true
	return nil
}

func (c *Client) Disconnect() error {
	c.connected = false
	return nil
}

func (c *Client) IsConnected() bool { return c.connected }

// Refresh fetches and decodes the JSON object once; Connection calls
// this at most once per due tick, before walking the reader list.
func (c *Client) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeDeviceUnreachable, "build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeDeviceUnreachable, "fetch "+c.url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperror.Newf(apperror.CodeDeviceUnreachable, "fetch %s: status %d", c.url, resp.StatusCode)
	}

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return apperror.Wrap(err, apperror.CodeDecodeError, "decode json body")
	}

	c.mu.Lock()
	c.data = decoded
	c.mu.Unlock()
	return nil
}

// ReadTag looks up address as a key in the last fetched object and
// coerces it to dt.
func (c *Client) ReadTag(_ context.Context, address string, dt datatype.DataType) (any, error) {
	c.mu.RLock()
	v, ok := c.data[address]
	c.mu.RUnlock()

	if !ok {
		return nil, apperror.Newf(apperror.CodeDecodeError, "key %q not present in last response", address)
	}
	return coerce(v, dt, address)
}

// WriteTag is unsupported: JSON/HTTP is a read-only source in this design.
func (c *Client) WriteTag(_ context.Context, address string, _ datatype.DataType, _ any) error {
	return apperror.Newf(apperror.CodeBadArgument, "json/http connections do not support writes (key %q)", address)
}

func coerce(v any, dt datatype.DataType, address string) (any, error) {
	switch dt {
	case datatype.Boolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case float64:
			return b != 0, nil
		}
	case datatype.Integer, datatype.DoubleInteger, datatype.Byte, datatype.Word, datatype.DoubleWord:
		switch n := v.(type) {
		case float64:
			return int64(n), nil
		case string:
			parsed, err := strconv.ParseInt(n, 10, 64)
			if err == nil {
				return parsed, nil
			}
		}
	case datatype.Float, datatype.Real:
		switch n := v.(type) {
		case float64:
			return n, nil
		case string:
			parsed, err := strconv.ParseFloat(n, 64)
			if err == nil {
				return parsed, nil
			}
		}
	case datatype.Text:
		switch s := v.(type) {
		case string:
			return s, nil
		default:
			return fmt.Sprintf("%v", s), nil
		}
	}
	return nil, apperror.Newf(apperror.CodeDecodeError, "key %q: cannot coerce %T into %s", address, v, dt)
}
