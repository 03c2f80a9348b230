// Package config defines the structured, pre-parsed configuration the
// JIDL core consumes: the [datalogger]/[dataarchiver]/global sections
// plus the per-connection and per-qualifier sections of spec.md §6,
// loaded from INI through a layered defaults -> file -> env pipeline
// modeled on the teacher's pkg/config.Loader.
package config

import (
	"strconv"
	"strings"

	"github.com/ilguido/jidl/internal/apperror"
	"github.com/ilguido/jidl/internal/datatype"
)

// DataLoggerConfig is the [datalogger] section: which sink to build
// and where its data lives.
type DataLoggerConfig struct {
	Type     string `koanf:"type"` // dummy, sqlite, mariadb, monetdb
	Name     string `koanf:"name"`
	Dir      string `koanf:"dir"`
	Server   string `koanf:"server"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"` // may be PBKDF2/AES-CBC encrypted, see credentials.go
	Key      string `koanf:"key"`
}

// ArchiverConfig is the [dataarchiver] section. A nil *ArchiverConfig
// on Config means no archiver was configured.
type ArchiverConfig struct {
	Day      string `koanf:"day"` // MONDAY..SUNDAY
	Interval int    `koanf:"interval"`
	Monthly  bool   `koanf:"monthly"`
}

// GlobalConfig is the unnamed "[]" section: IPC listener material and
// the shared credential key/salt used to decrypt passwords elsewhere
// in the file.
type GlobalConfig struct {
	IPCPort         int    `koanf:"ipc_port"`
	IPCKeystore     string `koanf:"ipc_keystore"`
	IPCKeystorePw   string `koanf:"ipc_keystorepw"`
	IPCTruststore   string `koanf:"ipc_truststore"`
	IPCTruststorePw string `koanf:"ipc_truststorepw"`
	Salt            string `koanf:"salt"`
	IV              string `koanf:"iv"`
}

// VariableConfig is one "[var::connection]" reader section.
type VariableConfig struct {
	Name    string
	Address string
	Type    datatype.DataType
	Size    int
}

// WriterConfig is one "[var::connection<-srcVar::srcConnection]" writer section.
type WriterConfig struct {
	Name       string
	Address    string
	SourceVar  string
	SourceConn string
}

// ConnectionConfig is one "[connectionName]" section together with the
// reader and writer sections bound to it.
type ConnectionConfig struct {
	Name string
	Type string // s7, modbus-tcp, opcua, json

	Address     string
	Port        int
	Rack        int
	Slot        int
	Reversed    bool
	Path        string
	Discovery   bool
	Username    string
	Password    string
	Salt        string
	IV          string
	SampleTicks int

	Variables []VariableConfig
	Writers   []WriterConfig
}

// Config is the fully parsed, structurally validated configuration
// file: exactly what internal/datalogger, internal/sink, and
// internal/ipc need to build a running logger.
type Config struct {
	DataLogger  DataLoggerConfig
	Archiver    *ArchiverConfig
	Global      GlobalConfig
	Connections []ConnectionConfig
}

// ConnectionByName returns the connection section named name, or false
// if no such connection was configured.
func (c *Config) ConnectionByName(name string) (*ConnectionConfig, bool) {
	for i := range c.Connections {
		if c.Connections[i].Name == name {
			return &c.Connections[i], true
		}
	}
	return nil, false
}

// ParseSampleTicks implements the §6 sample-period rule: exactly one of
// seconds or deciseconds must be set (non-empty); seconds is
// multiplied by 10 to get ticks, deciseconds over 9 is rounded to the
// nearest second and back to deciseconds.
func ParseSampleTicks(seconds, deciseconds string) (int, error) {
	haveSeconds := seconds != ""
	haveDeciseconds := deciseconds != ""

	if haveSeconds == haveDeciseconds {
		return 0, apperror.New(apperror.CodeConfigInvalid, "exactly one of seconds or deciseconds must be set")
	}

	if haveSeconds {
		n, err := strconv.Atoi(seconds)
		if err != nil || n < 1 {
			return 0, apperror.Newf(apperror.CodeConfigInvalid, "invalid seconds value %q", seconds)
		}
		return n * 10, nil
	}

	n, err := strconv.Atoi(deciseconds)
	if err != nil || n < 1 {
		return 0, apperror.Newf(apperror.CodeConfigInvalid, "invalid deciseconds value %q", deciseconds)
	}
	if n > 9 {
		rounded := (n + 5) / 10
		if rounded < 1 {
			rounded = 1
		}
		n = rounded * 10
	}
	return n, nil
}

// ParseBool accepts the "true"/"false" spelling used throughout the
// INI file's boolean keys.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, nil
	case "false", "":
		return false, nil
	default:
		return false, apperror.Newf(apperror.CodeConfigInvalid, "invalid boolean value %q", s)
	}
}
