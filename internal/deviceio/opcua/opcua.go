// Package opcua implements the OPC UA DeviceClient. Address parsing,
// security policy negotiation, and subscription semantics are all
// delegated to the gopcua client; this package only coerces the
// returned variant into the logical DataType the reader expects.
package opcua

import (
	"context"
	"fmt"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/ilguido/jidl/internal/apperror"
	"github.com/ilguido/jidl/internal/datatype"
)

// Options configures an OPC UA endpoint and optional credentials.
type Options struct {
	Server    string
	Port      int
	Path      string // endpoint path, e.g. "/OPCUA/SimulationServer"
	Discovery bool   // if true, Initialize queries Endpoint() for endpoints and uses the first one returned
	Username  string
	Password  string
}

// Endpoint returns the endpoint URL built from Server, Port and Path,
// whether or not Discovery is set; with Discovery, Initialize uses it
// as the discovery URL.
func (o Options) Endpoint() string {
	return fmt.Sprintf("opc.tcp://%s:%d%s", o.Server, o.Port, o.Path)
}

// Client is an OPC UA DeviceClient over gopcua.
type Client struct {
	opts   Options
	client *opcua.Client

	initialized bool
	connected   bool
}

// New constructs an OPC UA client from opts.
func New(opts Options) *Client {
	return &Client{opts: opts}
}

func (c *Client) Initialize() error {
	var clientOpts []opcua.Option
	if c.opts.Username != "" {
		clientOpts = append(clientOpts, opcua.AuthUsername(c.opts.Username, c.opts.Password))
	}

	endpoint := c.opts.Endpoint()
	if c.opts.Discovery {
		endpoints, err := opcua.GetEndpoints(context.Background(), endpoint)
		if err != nil || len(endpoints) == 0 {
			return apperror.Wrap(err, apperror.CodeDeviceUnreachable, "opcua discovery at "+endpoint)
		}
		endpoint = endpoints[0].EndpointURL
	}

	c.client = opcua.NewClient(endpoint, clientOpts...)
	c.initialized = true
	return nil
}

func (c *Client) IsInitialized() bool { return c.initialized }

func (c *Client) Connect(ctx context.Context) error {
	if !c.initialized {
		return apperror.New(apperror.CodeDeviceUnreachable, "opcua client not initialized")
	}
	if err := c.client.Connect(ctx); err != nil {
		return apperror.Wrap(err, apperror.CodeDeviceUnreachable, "opcua connect")
	}
	c.connected = true
	return nil
}

func (c *Client) Disconnect() error {
	c.connected = false
	if c.client != nil {
		_ = c.client.Close(context.Background())
	}
	return nil
}

func (c *Client) IsConnected() bool { return c.connected }

// ReadTag reads the node identified by address, delegated entirely to
// gopcua's own node-id parsing, and coerces the result per dt.
func (c *Client) ReadTag(ctx context.Context, address string, dt datatype.DataType) (any, error) {
	id, err := ua.ParseNodeID(address)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeBadArgument, "opcua node id "+address)
	}

	req := &ua.ReadRequest{
		NodesToRead: []*ua.ReadValueID{{NodeID: id}},
	}

	resp, err := c.client.Read(ctx, req)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeDeviceReadError, "opcua read "+address)
	}
	if len(resp.Results) == 0 || resp.Results[0].Status != ua.StatusOK {
		return nil, apperror.Newf(apperror.CodeDeviceReadError, "opcua read %s: bad status", address)
	}

	return coerce(resp.Results[0].Value.Value(), dt)
}

// WriteTag writes value to the node identified by address.
func (c *Client) WriteTag(ctx context.Context, address string, _ datatype.DataType, value any) error {
	id, err := ua.ParseNodeID(address)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeBadArgument, "opcua node id "+address)
	}

	v, err := ua.NewVariant(value)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeDeviceWriteError, "opcua encode "+address)
	}

	req := &ua.WriteRequest{
		NodesToWrite: []*ua.WriteValue{{
			NodeID:      id,
			AttributeID: ua.AttributeIDValue,
			Value:       &ua.DataValue{Value: v},
		}},
	}

	resp, err := c.client.Write(ctx, req)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeDeviceWriteError, "opcua write "+address)
	}
	if len(resp.Results) == 0 || resp.Results[0] != ua.StatusOK {
		return apperror.Newf(apperror.CodeDeviceWriteError, "opcua write %s: bad status", address)
	}
	return nil
}

// coerce converts the raw decoded OPC UA variant into the Go value
// shape expected by datatype.EncodeText for dt.
func coerce(v any, dt datatype.DataType) (any, error) {
	switch dt {
	case datatype.Boolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case datatype.Integer, datatype.DoubleInteger, datatype.Byte, datatype.Word, datatype.DoubleWord:
		switch n := v.(type) {
		case int16:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case uint16:
			return int64(n), nil
		case uint32:
			return int64(n), nil
		case byte:
			return int64(n), nil
		}
	case datatype.Float, datatype.Real:
		switch n := v.(type) {
		case float32:
			return float64(n), nil
		case float64:
			return n, nil
		}
	case datatype.Text:
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	return nil, apperror.Newf(apperror.CodeDecodeError, "cannot coerce opcua value %T into %s", v, dt)
}
