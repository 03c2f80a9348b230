// Package datatype implements the closed DataType enumeration shared by
// every variable, reader, writer, and sink in the system, along with
// the text/binary conversions between a logical value and its SQL or
// wire representation.
package datatype

import (
	"fmt"
	"strconv"
	"strings"
)

// DataType is the closed set of logical value kinds a tag can carry.
// A tag's type is immutable once constructed.
type DataType int

const (
	Boolean DataType = iota
	Integer
	DoubleInteger
	Float
	Real
	Byte
	Word
	DoubleWord
	Text
)

// String returns the canonical name used in configuration files and logs.
func (d DataType) String() string {
	switch d {
	case Boolean:
		return "BOOLEAN"
	case Integer:
		return "INTEGER"
	case DoubleInteger:
		return "DOUBLE_INTEGER"
	case Float:
		return "FLOAT"
	case Real:
		return "REAL"
	case Byte:
		return "BYTE"
	case Word:
		return "WORD"
	case DoubleWord:
		return "DOUBLE_WORD"
	case Text:
		return "TEXT"
	default:
		return "UNKNOWN"
	}
}

// SQLType returns the canonical SQL column type used by sink table declarations.
func (d DataType) SQLType() string {
	switch d {
	case Boolean, Integer, DoubleInteger, Byte, Word, DoubleWord:
		return "INTEGER"
	case Float, Real:
		return "REAL"
	case Text:
		return "TEXT"
	default:
		return "NUMERIC"
	}
}

// DefaultTextSize is the default register/byte span reserved for a TEXT
// tag when no explicit size is given.
const DefaultTextSize = 127

// Parse converts a configuration type name, optionally suffixed with
// "(size)" for TEXT, into a DataType and its size (0 if not TEXT or not given).
func Parse(name string) (DataType, int, error) {
	name = strings.TrimSpace(name)
	base := name
	size := 0

	if idx := strings.IndexByte(name, '('); idx >= 0 {
		if !strings.HasSuffix(name, ")") {
			return 0, 0, fmt.Errorf("malformed type suffix: %q", name)
		}
		base = strings.TrimSpace(name[:idx])
		sizeStr := strings.TrimSpace(name[idx+1 : len(name)-1])
		n, err := strconv.Atoi(sizeStr)
		if err != nil || n <= 0 {
			return 0, 0, fmt.Errorf("invalid size in type %q: %v", name, err)
		}
		size = n
	}

	switch strings.ToUpper(base) {
	case "BOOLEAN":
		return Boolean, 0, nil
	case "INTEGER":
		return Integer, 0, nil
	case "DOUBLE_INTEGER":
		return DoubleInteger, 0, nil
	case "FLOAT":
		return Float, 0, nil
	case "REAL":
		return Real, 0, nil
	case "BYTE":
		return Byte, 0, nil
	case "WORD":
		return Word, 0, nil
	case "DOUBLE_WORD":
		return DoubleWord, 0, nil
	case "TEXT":
		if size == 0 {
			size = DefaultTextSize
		}
		return Text, size, nil
	default:
		return 0, 0, fmt.Errorf("unknown data type: %q", name)
	}
}

// RegisterSpan returns how many 16-bit registers a value of this type
// occupies in a Modbus-style register file. textSize is only consulted
// for Text.
func RegisterSpan(d DataType, textSize int) int {
	switch d {
	case DoubleInteger, Real, DoubleWord:
		return 2
	case Text:
		if textSize <= 0 {
			textSize = DefaultTextSize
		}
		return textSize
	default:
		return 1
	}
}

// IsBitSized reports whether the type fits in a single coil/discrete bit.
func IsBitSized(d DataType) bool {
	return d == Boolean
}

// S7Code returns the S7 DataTypeCode token used to form a typed tag
// identifier "<address>:<DataTypeCode>".
func S7Code(d DataType, textSize int) string {
	switch d {
	case Boolean:
		return "BOOL"
	case Byte:
		return "BYTE"
	case Integer:
		return "INT"
	case Word:
		return "WORD"
	case DoubleInteger, DoubleWord:
		return "DINT"
	case Real, Float:
		return "REAL"
	case Text:
		n := textSize
		if n <= 0 || n > 254 {
			n = 254
		}
		return fmt.Sprintf("STRING(%d)", n)
	default:
		return "BYTE"
	}
}

// EncodeText renders a raw decoded value (from a protocol-specific
// client) as the canonical text representation stored in a row and
// returned over the wire.
func EncodeText(d DataType, v any) (string, error) {
	if v == nil {
		return "", fmt.Errorf("nil value for type %s", d)
	}
	switch d {
	case Boolean:
		b, ok := v.(bool)
		if !ok {
			return "", fmt.Errorf("expected bool for %s, got %T", d, v)
		}
		if b {
			return "true", nil
		}
		return "false", nil
	case Integer, DoubleInteger, Byte, Word, DoubleWord:
		switch n := v.(type) {
		case int64:
			return strconv.FormatInt(n, 10), nil
		case int:
			return strconv.Itoa(n), nil
		case uint16:
			return strconv.FormatUint(uint64(n), 10), nil
		case uint32:
			return strconv.FormatUint(uint64(n), 10), nil
		case uint64:
			return strconv.FormatUint(n, 10), nil
		case float64:
			return strconv.FormatInt(int64(n), 10), nil
		default:
			return "", fmt.Errorf("expected integral for %s, got %T", d, v)
		}
	case Float, Real:
		switch n := v.(type) {
		case float64:
			return strconv.FormatFloat(n, 'g', -1, 64), nil
		case float32:
			return strconv.FormatFloat(float64(n), 'g', -1, 32), nil
		default:
			return "", fmt.Errorf("expected float for %s, got %T", d, v)
		}
	case Text:
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("expected string for %s, got %T", d, v)
		}
		return s, nil
	default:
		return "", fmt.Errorf("unsupported data type %s", d)
	}
}

// DecodeText parses the canonical text representation back into a Go
// value typed by d; used by writers that take their value from a
// source reader's cached text.
func DecodeText(d DataType, s string) (any, error) {
	switch d {
	case Boolean:
		switch strings.ToLower(s) {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		default:
			return nil, fmt.Errorf("invalid boolean text %q", s)
		}
	case Integer, DoubleInteger, Byte, Word, DoubleWord:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer text %q: %w", s, err)
		}
		return n, nil
	case Float, Real:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float text %q: %w", s, err)
		}
		return n, nil
	case Text:
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported data type %s", d)
	}
}
