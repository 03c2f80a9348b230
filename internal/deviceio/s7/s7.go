// Package s7 implements the Siemens S7 DeviceClient. Tag addresses are
// parsed and validated here by ParseArea, which accepts only data-block
// references (DB<n>.DB<X|B|W|D><offset>[.<bit>]); other S7 areas are
// rejected with BadArgument. The tag's DataType decides how many bytes
// ReadTag and WriteTag move and how they are interpreted. TypedTag
// forms the "<address>:<DataTypeCode>" identifier; ReadTag and WriteTag
// do not use it.
package s7

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/robinson/gos7"

	"github.com/ilguido/jidl/internal/apperror"
	"github.com/ilguido/jidl/internal/datatype"
)

// TypedTag forms the "<address>:<DataTypeCode>" identifier for address/dt.
func TypedTag(address string, dt datatype.DataType, textSize int) string {
	return fmt.Sprintf("%s:%s", address, datatype.S7Code(dt, textSize))
}

// Area is a parsed S7 data-block reference: DB<n>.DB<X|B|W|D><start>[.<bit>].
type Area struct {
	DBNumber int
	Start    int
	Bit      int
	IsBit    bool
	ByteSize int
}

// ParseArea parses the classic Step 7 data-block address syntax used
// for the base (type-suffix-free) part of a tag address.
func ParseArea(address string, byteSize int) (Area, error) {
	address = strings.ToUpper(strings.TrimSpace(address))
	if !strings.HasPrefix(address, "DB") {
		return Area{}, apperror.Newf(apperror.CodeBadArgument, "s7 address %q: only DB references are supported", address)
	}

	dotIdx := strings.IndexByte(address, '.')
	if dotIdx < 0 {
		return Area{}, apperror.Newf(apperror.CodeBadArgument, "s7 address %q: missing '.'", address)
	}

	dbNumber, err := strconv.Atoi(address[2:dotIdx])
	if err != nil {
		return Area{}, apperror.Newf(apperror.CodeBadArgument, "s7 address %q: bad DB number", address)
	}

	rest := address[dotIdx+1:]
	if !strings.HasPrefix(rest, "DB") || len(rest) < 3 {
		return Area{}, apperror.Newf(apperror.CodeBadArgument, "s7 address %q: expected DB<X|B|W|D><offset>", address)
	}

	kind := rest[2]
	fields := strings.Split(rest[3:], ".")

	start, err := strconv.Atoi(fields[0])
	if err != nil {
		return Area{}, apperror.Newf(apperror.CodeBadArgument, "s7 address %q: bad offset", address)
	}

	area := Area{DBNumber: dbNumber, Start: start, ByteSize: byteSize}

	if kind == 'X' {
		area.IsBit = true
		if len(fields) < 2 {
			return Area{}, apperror.Newf(apperror.CodeBadArgument, "s7 address %q: DBX requires a bit offset", address)
		}
		bit, err := strconv.Atoi(fields[1])
		if err != nil || bit < 0 || bit > 7 {
			return Area{}, apperror.Newf(apperror.CodeBadArgument, "s7 address %q: bad bit offset", address)
		}
		area.Bit = bit
	}

	return area, nil
}

// Client is an S7 DeviceClient over gos7.
type Client struct {
	address string
	rack    int
	slot    int

	handler     *gos7.TCPClientHandler
	client      gos7.Client
	initialized bool
	connected   bool
}

// New constructs an S7 client for address (rack/slot identify the CPU
// within the PLC).
func New(address string, rack, slot int) *Client {
	return &Client{address: address, rack: rack, slot: slot}
}

func (c *Client) Initialize() error {
	c.handler = gos7.NewTCPClientHandler(c.address, c.rack, c.slot)
	c.client = gos7.NewClient(c.handler)
	c.initialized = true
	return nil
}

func (c *Client) IsInitialized() bool { return c.initialized }

func (c *Client) Connect(_ context.Context) error {
	if !c.initialized {
		return apperror.New(apperror.CodeDeviceUnreachable, "s7 client not initialized")
	}
	if err := c.handler.Connect(); err != nil {
		return apperror.Wrap(err, apperror.CodeDeviceUnreachable, "s7 connect")
	}
	c.connected = true
	return nil
}

func (c *Client) Disconnect() error {
	c.connected = false
	if c.handler != nil {
		_ = c.handler.Close()
	}
	return nil
}

func (c *Client) IsConnected() bool { return c.connected }

func byteSizeFor(dt datatype.DataType, textSize int) int {
	switch dt {
	case datatype.Boolean, datatype.Byte:
		return 1
	case datatype.Integer, datatype.Word:
		return 2
	case datatype.DoubleInteger, datatype.DoubleWord, datatype.Real, datatype.Float:
		return 4
	case datatype.Text:
		if textSize <= 0 {
			textSize = datatype.DefaultTextSize
		}
		return textSize + 2 // S7 STRING carries a 2-byte max/actual-length header
	default:
		return 1
	}
}

// ReadTag reads one tag via its data-block area, sized and decoded per dt.
func (c *Client) ReadTag(_ context.Context, address string, dt datatype.DataType) (any, error) {
	area, err := ParseArea(address, byteSizeFor(dt, 0))
	if err != nil {
		return nil, err
	}

	buf := make([]byte, area.ByteSize)
	if err := c.client.AGReadDB(area.DBNumber, area.Start, area.ByteSize, buf); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeDeviceReadError, "s7 read "+address)
	}

	return decode(buf, dt, area)
}

// WriteTag writes one tag's value to its data-block area.
func (c *Client) WriteTag(_ context.Context, address string, dt datatype.DataType, value any) error {
	area, err := ParseArea(address, byteSizeFor(dt, 0))
	if err != nil {
		return err
	}

	buf, err := encode(value, dt, area)
	if err != nil {
		return err
	}

	if err := c.client.AGWriteDB(area.DBNumber, area.Start, area.ByteSize, buf); err != nil {
		return apperror.Wrap(err, apperror.CodeDeviceWriteError, "s7 write "+address)
	}
	return nil
}

func decode(buf []byte, dt datatype.DataType, area Area) (any, error) {
	switch dt {
	case datatype.Boolean:
		return buf[0]&(1<<uint(area.Bit)) != 0, nil
	case datatype.Byte:
		return int64(buf[0]), nil
	case datatype.Integer, datatype.Word:
		return int64(binary.BigEndian.Uint16(buf)), nil
	case datatype.DoubleInteger, datatype.DoubleWord:
		return int64(binary.BigEndian.Uint32(buf)), nil
	case datatype.Real, datatype.Float:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(buf))), nil
	case datatype.Text:
		if len(buf) < 2 {
			return "", nil
		}
		n := int(buf[1])
		if n > len(buf)-2 {
			n = len(buf) - 2
		}
		return string(buf[2 : 2+n]), nil
	default:
		return nil, apperror.Newf(apperror.CodeDecodeError, "unsupported s7 type %s", dt)
	}
}

func encode(value any, dt datatype.DataType, area Area) ([]byte, error) {
	buf := make([]byte, area.ByteSize)

	switch dt {
	case datatype.Boolean:
		b, ok := value.(bool)
		if !ok {
			return nil, apperror.Newf(apperror.CodeDeviceWriteError, "expected bool, got %T", value)
		}
		if b {
			buf[0] = 1 << uint(area.Bit)
		}
	case datatype.Byte:
		n, ok := asInt64(value)
		if !ok {
			return nil, apperror.Newf(apperror.CodeDeviceWriteError, "expected integer, got %T", value)
		}
		buf[0] = byte(n)
	case datatype.Integer, datatype.Word:
		n, ok := asInt64(value)
		if !ok {
			return nil, apperror.Newf(apperror.CodeDeviceWriteError, "expected integer, got %T", value)
		}
		binary.BigEndian.PutUint16(buf, uint16(n))
	case datatype.DoubleInteger, datatype.DoubleWord:
		n, ok := asInt64(value)
		if !ok {
			return nil, apperror.Newf(apperror.CodeDeviceWriteError, "expected integer, got %T", value)
		}
		binary.BigEndian.PutUint32(buf, uint32(n))
	case datatype.Real, datatype.Float:
		f, ok := asFloat64(value)
		if !ok {
			return nil, apperror.Newf(apperror.CodeDeviceWriteError, "expected float, got %T", value)
		}
		binary.BigEndian.PutUint32(buf, math.Float32bits(float32(f)))
	case datatype.Text:
		s, ok := value.(string)
		if !ok {
			return nil, apperror.Newf(apperror.CodeDeviceWriteError, "expected string, got %T", value)
		}
		maxLen := len(buf) - 2
		if len(s) > maxLen {
			s = s[:maxLen]
		}
		buf[0] = byte(maxLen)
		buf[1] = byte(len(s))
		copy(buf[2:], s)
	default:
		return nil, apperror.Newf(apperror.CodeDeviceWriteError, "unsupported s7 type %s", dt)
	}

	return buf, nil
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
