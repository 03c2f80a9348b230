// Package connection implements the per-connection state machine, its
// reader/writer pipelines, and the Shareable client-aliasing registry.
package connection

import (
	"context"
	"time"

	"github.com/ilguido/jidl/internal/apperror"
	"github.com/ilguido/jidl/internal/variable"
)

// Status is a connection's position in its UNINITIALIZED -> INITIALIZED
// -> CONNECTED <-> DISCONNECTED state machine.
type Status int

const (
	Uninitialized Status = iota
	Initialized
	Connected
	Disconnected
)

func (s Status) String() string {
	switch s {
	case Uninitialized:
		return "UNINITIALIZED"
	case Initialized:
		return "INITIALIZED"
	case Connected:
		return "CONNECTED"
	case Disconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// DeviceClient is the capability every protocol-specific client
// implements: lifecycle plus per-tag read/write.
type DeviceClient interface {
	Initialize() error
	IsInitialized() bool
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	variable.Client
}

// Refresher is implemented by clients that fetch every tag's data in
// one round trip (the JSON/HTTP client, one GET per tick) rather than
// per-tag. Connection.Read calls it once, before walking the reader
// list, when the client implements it.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Connection is one configured device connection: its client, its
// ordered reader and writer lists, its sample period, and its current
// state-machine status.
type Connection struct {
	Name        string
	Type        string // e.g. "modbus-tcp", "s7", "opcua", "json", "ipc"
	Address     string // raw address, used as the Shareable aliasing key together with Type
	SampleTicks int
	Client      DeviceClient
	Readers     []*variable.Reader
	Writers     []*variable.Writer

	status        Status
	lastTimestamp time.Time
}

// New validates name and sampleTicks and constructs an UNINITIALIZED connection.
func New(name, typeTag, address string, sampleTicks int, client DeviceClient) (*Connection, error) {
	if !variable.ValidName(name) {
		return nil, apperror.Newf(apperror.CodeBadArgument, "invalid connection name %q", name)
	}
	if sampleTicks < 1 {
		return nil, apperror.Newf(apperror.CodeBadArgument, "sampleTicks must be >= 1, got %d", sampleTicks)
	}
	return &Connection{Name: name, Type: typeTag, Address: address, SampleTicks: sampleTicks, Client: client}, nil
}

// AddReader appends r, rejecting a duplicate name within this connection.
func (c *Connection) AddReader(r *variable.Reader) error {
	for _, existing := range c.Readers {
		if existing.Name == r.Name {
			return apperror.Newf(apperror.CodeBadArgument, "duplicate reader name %q on connection %q", r.Name, c.Name)
		}
	}
	c.Readers = append(c.Readers, r)
	return nil
}

// AddWriter appends w, rejecting a duplicate name within this connection.
func (c *Connection) AddWriter(w *variable.Writer) error {
	for _, existing := range c.Writers {
		if existing.Name == w.Name {
			return apperror.Newf(apperror.CodeBadArgument, "duplicate writer name %q on connection %q", w.Name, c.Name)
		}
	}
	c.Writers = append(c.Writers, w)
	return nil
}

// Status reports the connection's current state.
func (c *Connection) Status() Status { return c.status }

// IsWriteable reports whether this connection implements Writeable,
// i.e. has at least one bound writer.
func (c *Connection) IsWriteable() bool { return len(c.Writers) > 0 }

// LastTimestamp returns the timestamp of the last successful Read.
func (c *Connection) LastTimestamp() time.Time { return c.lastTimestamp }

// Initialize drives UNINITIALIZED -> INITIALIZED.
func (c *Connection) Initialize() error {
	if err := c.Client.Initialize(); err != nil {
		return err
	}
	c.status = Initialized
	return nil
}

// ConnectDevice drives INITIALIZED/DISCONNECTED -> CONNECTED, or
// leaves the connection DISCONNECTED on failure.
func (c *Connection) ConnectDevice(ctx context.Context) error {
	if err := c.Client.Connect(ctx); err != nil {
		c.status = Disconnected
		return err
	}
	c.status = Connected
	return nil
}

// Disconnect releases the client and marks the connection DISCONNECTED.
func (c *Connection) Disconnect() {
	_ = c.Client.Disconnect()
	c.status = Disconnected
}

// Read walks the reader list in order, producing the row to append to
// the sink. A per-tag DecodeError is absorbed (the tag is left out of
// the row, so its column becomes NULL) without aborting the rest of
// the row; any other error is connection-level and aborts the read.
func (c *Connection) Read(ctx context.Context) (map[string]string, error) {
	if refresher, ok := c.Client.(Refresher); ok {
		if err := refresher.Refresh(ctx); err != nil {
			return nil, err
		}
	}

	row := make(map[string]string, len(c.Readers))
	for _, r := range c.Readers {
		if _, err := r.Read(ctx, c.Client); err != nil {
			if apperror.Code(err) == apperror.CodeDecodeError {
				continue
			}
			return nil, err
		}
		row[r.Name] = r.Text()
	}

	c.lastTimestamp = time.Now()
	return row, nil
}

// Write fires every writer in order. A single writer's failure does
// not stop the others; all errors are collected and returned together.
func (c *Connection) Write(ctx context.Context) []error {
	var errs []error
	for _, w := range c.Writers {
		if _, err := w.Write(ctx, c.Client); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Value returns the current value of the named reader, used by the
// IPC "values" method's ValueSource.
func (c *Connection) Value(name string) (any, bool) {
	for _, r := range c.Readers {
		if r.Name == name {
			if !r.HasValue() {
				return nil, false
			}
			return r.Value(), true
		}
	}
	return nil, false
}

// ValueRow snapshots every reader that has completed at least one
// read, keyed by tag name, for publication into a value cache.
func (c *Connection) ValueRow() map[string]any {
	row := make(map[string]any, len(c.Readers))
	for _, r := range c.Readers {
		if r.HasValue() {
			row[r.Name] = r.Value()
		}
	}
	return row
}
