// Package modbus implements the Modbus TCP DeviceClient: address
// parsing across the four register files, type/space validation, and
// register decode/encode honoring the per-connection word-order flag.
package modbus

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	gx "github.com/grid-x/modbus"

	"github.com/ilguido/jidl/internal/apperror"
	"github.com/ilguido/jidl/internal/datatype"
)

// RegisterFile is which of the four Modbus address spaces a tag lives in.
type RegisterFile int

const (
	Coils RegisterFile = iota
	DiscreteInputs
	InputRegisters
	HoldingRegisters
)

// Address is a parsed Modbus tag address.
type Address struct {
	File   RegisterFile
	Offset uint16
}

// ParseAddress parses a decimal Modbus address whose leading digit
// selects the register file: 0/1 -> coils/discrete inputs (bit
// space), 3/4 -> input/holding registers (16-bit word space).
func ParseAddress(s string) (Address, error) {
	if len(s) < 2 {
		return Address{}, apperror.Newf(apperror.CodeBadArgument, "modbus address %q too short", s)
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return Address{}, apperror.Newf(apperror.CodeBadArgument, "modbus address %q is not numeric", s)
	}

	var file RegisterFile
	switch s[0] {
	case '0':
		file = Coils
	case '1':
		file = DiscreteInputs
	case '3':
		file = InputRegisters
	case '4':
		file = HoldingRegisters
	default:
		return Address{}, apperror.Newf(apperror.CodeBadArgument, "modbus address %q has unknown register file digit %q", s, s[0])
	}

	return Address{File: file, Offset: uint16(n % 10000)}, nil
}

// ValidateType reports whether dt can be stored in file's address space.
func ValidateType(file RegisterFile, dt datatype.DataType) error {
	bitSized := datatype.IsBitSized(dt)
	switch file {
	case Coils, DiscreteInputs:
		if !bitSized {
			return apperror.Newf(apperror.CodeBadArgument, "type %s requires a bit-addressable register file", dt)
		}
	case InputRegisters, HoldingRegisters:
		if bitSized {
			return apperror.Newf(apperror.CodeBadArgument, "type %s requires a word-addressable register file", dt)
		}
	}
	return nil
}

// Client is a Modbus TCP DeviceClient.
type Client struct {
	server   string
	port     int
	reversed bool

	handler     *gx.TCPClientHandler
	client      gx.Client
	initialized bool
	connected   bool
}

// New constructs a Modbus TCP client for server:port. reversed controls
// the word order used when decoding multi-register values.
func New(server string, port int, reversed bool) *Client {
	return &Client{server: server, port: port, reversed: reversed}
}

func (c *Client) Initialize() error {
	c.handler = gx.NewTCPClientHandler(fmt.Sprintf("%s:%d", c.server, c.port))
	c.client = gx.NewClient(c.handler)
	c.initialized = true
	return nil
}

func (c *Client) IsInitialized() bool { return c.initialized }

func (c *Client) Connect(ctx context.Context) error {
	if !c.initialized {
		return apperror.New(apperror.CodeDeviceUnreachable, "modbus client not initialized")
	}
	if err := c.handler.Connect(); err != nil {
		return apperror.Wrap(err, apperror.CodeDeviceUnreachable, "modbus connect")
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

// ReadTag reads one tag's raw value from its register file.
func (c *Client) ReadTag(_ context.Context, address string, dt datatype.DataType) (any, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	if err := ValidateType(addr.File, dt); err != nil {
		return nil, err
	}

	switch addr.File {
	case Coils:
		raw, err := c.client.ReadCoils(addr.Offset, 1)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeDeviceReadError, "read coil")
		}
		return raw[0]&0x01 != 0, nil
	case DiscreteInputs:
		raw, err := c.client.ReadDiscreteInputs(addr.Offset, 1)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeDeviceReadError, "read discrete input")
		}
		return raw[0]&0x01 != 0, nil
	default:
		span := uint16(datatype.RegisterSpan(dt, 0))
		var raw []byte
		if addr.File == InputRegisters {
			raw, err = c.client.ReadInputRegisters(addr.Offset, span)
		} else {
			raw, err = c.client.ReadHoldingRegisters(addr.Offset, span)
		}
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeDeviceReadError, "read registers")
		}
		return DecodeRegisters(raw, dt, c.reversed)
	}
}

// WriteTag writes one tag's value to its register file.
func (c *Client) WriteTag(_ context.Context, address string, dt datatype.DataType, value any) error {
	addr, err := ParseAddress(address)
	if err != nil {
		return err
	}
	if err := ValidateType(addr.File, dt); err != nil {
		return err
	}

	switch addr.File {
	case Coils:
		b, ok := value.(bool)
		if !ok {
			return apperror.Newf(apperror.CodeDeviceWriteError, "expected bool for coil write, got %T", value)
		}
		var coilValue uint16
		if b {
			coilValue = 0xFF00
		}
		_, err := c.client.WriteSingleCoil(addr.Offset, coilValue)
		if err != nil {
			return apperror.Wrap(err, apperror.CodeDeviceWriteError, "write coil")
		}
		return nil
	case DiscreteInputs:
		return apperror.New(apperror.CodeBadArgument, "discrete inputs are read-only")
	default:
		raw, err := EncodeRegisters(value, dt, c.reversed)
		if err != nil {
			return err
		}
		if len(raw) == 2 {
			_, err = c.client.WriteSingleRegister(addr.Offset, binary.BigEndian.Uint16(raw))
		} else {
			_, err = c.client.WriteMultipleRegisters(addr.Offset, uint16(len(raw)/2), raw)
		}
		if err != nil {
			return apperror.Wrap(err, apperror.CodeDeviceWriteError, "write registers")
		}
		return nil
	}
}

// DecodeRegisters converts a raw register read into a Go value typed
// by dt, applying the word-order swap when reversed is set.
func DecodeRegisters(raw []byte, dt datatype.DataType, reversed bool) (any, error) {
	if reversed {
		raw = swapWords(raw)
	}

	switch dt {
	case datatype.Integer, datatype.Word:
		if len(raw) < 2 {
			return nil, apperror.New(apperror.CodeDecodeError, "short register read")
		}
		return int64(binary.BigEndian.Uint16(raw)), nil
	case datatype.DoubleInteger, datatype.DoubleWord:
		if len(raw) < 4 {
			return nil, apperror.New(apperror.CodeDecodeError, "short register read")
		}
		return int64(binary.BigEndian.Uint32(raw)), nil
	case datatype.Real, datatype.Float:
		if len(raw) < 4 {
			return nil, apperror.New(apperror.CodeDecodeError, "short register read")
		}
		bits := binary.BigEndian.Uint32(raw)
		return float64(math.Float32frombits(bits)), nil
	case datatype.Byte:
		if len(raw) < 2 {
			return nil, apperror.New(apperror.CodeDecodeError, "short register read")
		}
		return int64(raw[1]), nil
	default:
		return nil, apperror.Newf(apperror.CodeDecodeError, "unsupported register type %s", dt)
	}
}

// EncodeRegisters converts a Go value typed by dt into the raw bytes
// to write to a register file, applying the word-order swap when
// reversed is set.
func EncodeRegisters(value any, dt datatype.DataType, reversed bool) ([]byte, error) {
	var raw []byte

	switch dt {
	case datatype.Integer, datatype.Word, datatype.Byte:
		n, ok := asInt64(value)
		if !ok {
			return nil, apperror.Newf(apperror.CodeDeviceWriteError, "expected integer for %s, got %T", dt, value)
		}
		raw = make([]byte, 2)
		binary.BigEndian.PutUint16(raw, uint16(n))
	case datatype.DoubleInteger, datatype.DoubleWord:
		n, ok := asInt64(value)
		if !ok {
			return nil, apperror.Newf(apperror.CodeDeviceWriteError, "expected integer for %s, got %T", dt, value)
		}
		raw = make([]byte, 4)
		binary.BigEndian.PutUint32(raw, uint32(n))
	case datatype.Real, datatype.Float:
		f, ok := asFloat64(value)
		if !ok {
			return nil, apperror.Newf(apperror.CodeDeviceWriteError, "expected float for %s, got %T", dt, value)
		}
		raw = make([]byte, 4)
		binary.BigEndian.PutUint32(raw, math.Float32bits(float32(f)))
	default:
		return nil, apperror.Newf(apperror.CodeDeviceWriteError, "unsupported register type %s", dt)
	}

	if reversed {
		raw = swapWords(raw)
	}
	return raw, nil
}

func swapWords(raw []byte) []byte {
	out := make([]byte, len(raw))
	for i := 0; i+1 < len(raw); i += 2 {
		j := len(raw) - 2 - i
		out[j], out[j+1] = raw[i], raw[i+1]
	}
	return out
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
