// Package variable defines the per-tag Reader and Writer capabilities
// bound to a typed address, and the qualifier grammar used to address
// them from configuration IDs and IPC requests.
package variable

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ilguido/jidl/internal/apperror"
	"github.com/ilguido/jidl/internal/datatype"
)

// NamePattern is the validity pattern for a variable or connection name.
var NamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidName reports whether name matches NamePattern.
func ValidName(name string) bool {
	return NamePattern.MatchString(name)
}

// Client is the capability a Reader/Writer reads or writes through. It
// is satisfied by every concrete device client in internal/deviceio.
type Client interface {
	// ReadTag fetches the raw decoded value at address for the given type.
	ReadTag(ctx context.Context, address string, dt datatype.DataType) (any, error)
	// WriteTag writes value, already encoded per dt, at address.
	WriteTag(ctx context.Context, address string, dt datatype.DataType, value any) error
}

// Variable is the common shape of a reader or writer: a named, typed
// tag bound to a protocol-specific address.
type Variable struct {
	Name    string
	Address string
	Type    datatype.DataType
	Size    int // meaningful only for Text
}

// Reader is one polled tag. It owns the last successfully decoded
// value (nil until the first successful read) and its text form for
// the sink and the values IPC method.
type Reader struct {
	Variable
	value any
	text  string
}

// NewReader validates name and constructs an unread Reader.
func NewReader(name, address string, dt datatype.DataType, size int) (*Reader, error) {
	if !ValidName(name) {
		return nil, apperror.Newf(apperror.CodeBadArgument, "invalid variable name %q", name)
	}
	return &Reader{Variable: Variable{Name: name, Address: address, Type: dt, Size: size}}, nil
}

// Read fetches and decodes this tag's current value through client,
// storing it for later retrieval. It returns the reader itself so
// callers can chain it inline in a fan-out loop.
func (r *Reader) Read(ctx context.Context, client Client) (*Reader, error) {
	v, err := client.ReadTag(ctx, r.Address, r.Type)
	if err != nil {
		return r, apperror.Wrap(err, apperror.CodeDeviceReadError, fmt.Sprintf("read %s", r.Name))
	}

	text, err := datatype.EncodeText(r.Type, v)
	if err != nil {
		return r, apperror.Wrap(err, apperror.CodeDecodeError, fmt.Sprintf("decode %s", r.Name))
	}

	r.value = v
	r.text = text
	return r, nil
}

// Value returns the last successfully read value, or nil if the tag
// has never been read.
func (r *Reader) Value() any { return r.value }

// Text returns the last successfully read value in its canonical text
// form, or "" if the tag has never been read.
func (r *Reader) Text() string { return r.text }

// HasValue reports whether the reader has completed at least one read.
func (r *Reader) HasValue() bool { return r.text != "" || r.value != nil }

// Writer is one written tag, bound to a source Reader whose last value
// it writes out on demand.
type Writer struct {
	Variable
	Source *Reader
}

// NewWriter validates name and binds source, the Reader this writer
// copies its value from. A writer inherits its type from source.
func NewWriter(name, address string, source *Reader) (*Writer, error) {
	if !ValidName(name) {
		return nil, apperror.Newf(apperror.CodeBadArgument, "invalid variable name %q", name)
	}
	if source == nil {
		return nil, apperror.New(apperror.CodeBadArgument, "writer requires a bound source reader")
	}
	return &Writer{
		Variable: Variable{Name: name, Address: address, Type: source.Type, Size: source.Size},
		Source:   source,
	}, nil
}

// Write pushes the source reader's current value through client. If
// the source has never been read, Write is a no-op and returns nil:
// there is nothing yet to propagate.
func (w *Writer) Write(ctx context.Context, client Client) (*Writer, error) {
	if !w.Source.HasValue() {
		return w, nil
	}

	v, err := datatype.DecodeText(w.Source.Type, w.Source.Text())
	if err != nil {
		return w, apperror.Wrap(err, apperror.CodeDecodeError, fmt.Sprintf("decode source for %s", w.Name))
	}

	if err := client.WriteTag(ctx, w.Address, w.Type, v); err != nil {
		return w, apperror.Wrap(err, apperror.CodeDeviceWriteError, fmt.Sprintf("write %s", w.Name))
	}
	return w, nil
}

// Qualifier is a parsed configuration-ID address qualifier (spec §3):
// a bare connection name, a "var::connection" reader qualifier, or a
// "var::connection<-srcVar::srcConnection" writer qualifier.
type Qualifier struct {
	Var          string
	Connection   string
	SourceVar    string
	SourceConn   string
	HasSource    bool
	IsConnection bool // true when the ID names a connection section, not a tag
}

// ParseQualifier parses one configuration section ID into its
// qualifier form. Ambiguous or malformed IDs fail with ConfigInvalid.
func ParseQualifier(id string) (Qualifier, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Qualifier{}, apperror.New(apperror.CodeConfigInvalid, "empty qualifier")
	}

	if !strings.Contains(id, "::") {
		if !ValidName(id) {
			return Qualifier{}, apperror.Newf(apperror.CodeConfigInvalid, "invalid connection name %q", id)
		}
		return Qualifier{Connection: id, IsConnection: true}, nil
	}

	var readerPart, writerPart string
	if idx := strings.Index(id, "<-"); idx >= 0 {
		readerPart = id[:idx]
		writerPart = id[idx+2:]
	} else {
		readerPart = id
	}

	v, conn, err := splitQualifier(readerPart)
	if err != nil {
		return Qualifier{}, err
	}

	q := Qualifier{Var: v, Connection: conn}

	if writerPart != "" {
		sv, sconn, err := splitQualifier(writerPart)
		if err != nil {
			return Qualifier{}, err
		}
		q.SourceVar = sv
		q.SourceConn = sconn
		q.HasSource = true
	}

	return q, nil
}

// splitQualifier splits "var::connection" into its two names,
// rejecting anything that is not exactly one "::" separator with two
// valid, non-empty names either side.
func splitQualifier(s string) (varName, connName string, err error) {
	parts := strings.Split(s, "::")
	if len(parts) != 2 {
		return "", "", apperror.Newf(apperror.CodeConfigInvalid, "malformed qualifier %q: need exactly one '::'", s)
	}

	varName = strings.TrimSpace(parts[0])
	connName = strings.TrimSpace(parts[1])

	if !ValidName(varName) {
		return "", "", apperror.Newf(apperror.CodeConfigInvalid, "invalid variable name %q in %q", varName, s)
	}
	if !ValidName(connName) {
		return "", "", apperror.Newf(apperror.CodeConfigInvalid, "invalid connection name %q in %q", connName, s)
	}
	return varName, connName, nil
}

// String renders the qualifier back into its canonical "var::connection" form.
func (q Qualifier) String() string {
	return fmt.Sprintf("%s::%s", q.Var, q.Connection)
}
