package config

import (
	"strconv"
	"strings"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	ini "gopkg.in/ini.v1"

	"github.com/ilguido/jidl/internal/apperror"
	"github.com/ilguido/jidl/internal/datatype"
	"github.com/ilguido/jidl/internal/variable"
)

const envPrefix = "JIDL_"

// defaultValues seeds every fixed-section key a configuration file is
// allowed to omit, mirroring the teacher's Loader.loadDefaults.
func defaultValues() map[string]any {
	return map[string]any{
		"datalogger.type": "dummy",
		"datalogger.name": "jidl",
		"datalogger.dir":  ".",
		"datalogger.port": 0,

		"global.ipc_port": 0,
	}
}

// Loader loads a JIDL INI configuration file through the layered
// defaults -> file -> env pipeline. The fixed [datalogger],
// [dataarchiver], and "[]" sections flow through koanf so environment
// overrides can reach them; the dynamic per-connection and per-tag
// sections are parsed straight off the ini.File below, since their
// section names are themselves configuration data a fixed koanf key
// path cannot express.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
}

// NewLoader constructs a Loader with the default JIDL_ environment prefix.
func NewLoader() *Loader {
	return &Loader{k: koanf.New("."), envPrefix: envPrefix}
}

// Load reads and validates the configuration file at path.
func (l *Loader) Load(path string) (*Config, error) {
	if err := l.k.Load(confmap.Provider(defaultValues(), "."), nil); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeConfigInvalid, "load configuration defaults")
	}

	iniFile, err := ini.LoadSources(ini.LoadOptions{AllowBooleanKeys: true}, path)
	if err != nil {
		return nil, apperror.Wrapf(err, apperror.CodeConfigInvalid, "read configuration file %q", path)
	}

	fixed := map[string]any{}
	var archiverConfigured bool
	var connSections []*ini.Section
	var varSections []*ini.Section
	var writerSections []*ini.Section

	for _, sec := range iniFile.Sections() {
		name := sec.Name()
		switch {
		case name == ini.DefaultSection || name == "":
			for _, key := range sec.Keys() {
				fixed["global."+key.Name()] = key.Value()
			}
		case name == "datalogger":
			for _, key := range sec.Keys() {
				fixed["datalogger."+key.Name()] = key.Value()
			}
		case name == "dataarchiver":
			archiverConfigured = true
			for _, key := range sec.Keys() {
				fixed["dataarchiver."+key.Name()] = key.Value()
			}
		default:
			q, err := variable.ParseQualifier(name)
			if err != nil {
				return nil, apperror.Wrapf(err, apperror.CodeConfigInvalid, "section %q", name)
			}
			switch {
			case q.IsConnection:
				connSections = append(connSections, sec)
			case q.HasSource:
				writerSections = append(writerSections, sec)
			default:
				varSections = append(varSections, sec)
			}
		}
	}

	if err := l.k.Load(confmap.Provider(fixed, "."), nil); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeConfigInvalid, "merge configuration file")
	}

	if err := l.k.Load(env.Provider(l.envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, l.envPrefix)), "_", ".", 1)
	}), nil); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeConfigInvalid, "merge environment overrides")
	}

	cfg := &Config{}
	if err := l.k.Unmarshal("datalogger", &cfg.DataLogger); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeConfigInvalid, "unmarshal [datalogger]")
	}
	if err := l.k.Unmarshal("global", &cfg.Global); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeConfigInvalid, "unmarshal global section")
	}
	if archiverConfigured {
		var arch ArchiverConfig
		if err := l.k.Unmarshal("dataarchiver", &arch); err != nil {
			return nil, apperror.Wrap(err, apperror.CodeConfigInvalid, "unmarshal [dataarchiver]")
		}
		cfg.Archiver = &arch
	}

	for _, sec := range connSections {
		cc, err := parseConnectionSection(sec)
		if err != nil {
			return nil, err
		}
		cfg.Connections = append(cfg.Connections, cc)
	}

	for _, sec := range varSections {
		if err := attachVariable(cfg, sec); err != nil {
			return nil, err
		}
	}

	for _, sec := range writerSections {
		if err := attachWriter(cfg, sec); err != nil {
			return nil, err
		}
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load is the package-level convenience entry point used by cmd/jidld.
func Load(path string) (*Config, error) {
	return NewLoader().Load(path)
}

func parseConnectionSection(sec *ini.Section) (ConnectionConfig, error) {
	cc := ConnectionConfig{Name: sec.Name(), Type: sec.Key("type").String()}

	if !variable.ValidName(cc.Name) {
		return cc, apperror.Newf(apperror.CodeConfigInvalid, "invalid connection name %q", cc.Name)
	}

	switch cc.Type {
	case "s7":
		cc.Address = sec.Key("address").String()
		cc.Rack, _ = sec.Key("rack").Int()
		cc.Slot, _ = sec.Key("slot").Int()
	case "modbus-tcp":
		cc.Address = sec.Key("address").String()
		cc.Port, _ = sec.Key("port").Int()
		cc.Reversed, _ = ParseBool(sec.Key("reversed").String())
	case "opcua":
		cc.Address = sec.Key("address").String()
		cc.Port, _ = sec.Key("port").Int()
		cc.Path = sec.Key("path").String()
		cc.Discovery, _ = ParseBool(sec.Key("discovery").String())
		cc.Username = sec.Key("username").String()
		cc.Password = sec.Key("password").String()
		cc.Salt = sec.Key("salt").String()
		cc.IV = sec.Key("iv").String()
	case "json":
		cc.Address = sec.Key("address").String()
	default:
		return cc, apperror.Newf(apperror.CodeConfigInvalid, "connection %q: unknown type %q", cc.Name, cc.Type)
	}

	ticks, err := ParseSampleTicks(sec.Key("seconds").String(), sec.Key("deciseconds").String())
	if err != nil {
		return cc, apperror.Wrapf(err, apperror.CodeConfigInvalid, "connection %q", cc.Name)
	}
	cc.SampleTicks = ticks

	return cc, nil
}

func attachVariable(cfg *Config, sec *ini.Section) error {
	q, err := variable.ParseQualifier(sec.Name())
	if err != nil {
		return err
	}

	conn, ok := cfg.ConnectionByName(q.Connection)
	if !ok {
		return apperror.Newf(apperror.CodeConfigInvalid, "variable %q references unknown connection %q", q.Var, q.Connection)
	}

	dt, size, err := datatype.Parse(sec.Key("type").String())
	if err != nil {
		return apperror.Wrapf(err, apperror.CodeConfigInvalid, "variable %q::%q", q.Var, q.Connection)
	}

	conn.Variables = append(conn.Variables, VariableConfig{
		Name:    q.Var,
		Address: sec.Key("address").String(),
		Type:    dt,
		Size:    size,
	})
	return nil
}

func attachWriter(cfg *Config, sec *ini.Section) error {
	q, err := variable.ParseQualifier(sec.Name())
	if err != nil {
		return err
	}

	conn, ok := cfg.ConnectionByName(q.Connection)
	if !ok {
		return apperror.Newf(apperror.CodeConfigInvalid, "writer %q references unknown connection %q", q.Var, q.Connection)
	}

	conn.Writers = append(conn.Writers, WriterConfig{
		Name:       q.Var,
		Address:    sec.Key("address").String(),
		SourceVar:  q.SourceVar,
		SourceConn: q.SourceConn,
	})
	return nil
}

func validate(cfg *Config) error {
	seen := map[string]bool{}
	for _, c := range cfg.Connections {
		if seen[c.Name] {
			return apperror.Newf(apperror.CodeBadArgument, "duplicate connection name %q", c.Name)
		}
		seen[c.Name] = true

		varSeen := map[string]bool{}
		for _, v := range c.Variables {
			if varSeen[v.Name] {
				return apperror.Newf(apperror.CodeBadArgument, "duplicate variable name %q on connection %q", v.Name, c.Name)
			}
			varSeen[v.Name] = true
		}
		for _, w := range c.Writers {
			if varSeen[w.Name] {
				return apperror.Newf(apperror.CodeBadArgument, "duplicate variable name %q on connection %q", w.Name, c.Name)
			}
			varSeen[w.Name] = true

			srcConn, ok := cfg.ConnectionByName(w.SourceConn)
			if !ok {
				return apperror.Newf(apperror.CodeConfigInvalid, "writer %q::%q sources unknown connection %q", w.Name, c.Name, w.SourceConn)
			}
			found := false
			for _, v := range srcConn.Variables {
				if v.Name == w.SourceVar {
					found = true
					break
				}
			}
			if !found {
				return apperror.Newf(apperror.CodeConfigInvalid, "writer %q::%q sources unknown variable %q::%q", w.Name, c.Name, w.SourceVar, w.SourceConn)
			}
		}
	}

	switch cfg.DataLogger.Type {
	case "dummy", "sqlite", "mariadb", "monetdb":
	default:
		return apperror.Newf(apperror.CodeConfigInvalid, "unknown datalogger type %q", cfg.DataLogger.Type)
	}

	if cfg.Archiver != nil {
		if _, err := parseDayOfWeek(cfg.Archiver.Day); err != nil {
			return err
		}
		maxRange := 52
		if cfg.Archiver.Monthly {
			maxRange = 12
		}
		if cfg.Archiver.Interval < 1 || cfg.Archiver.Interval > maxRange {
			return apperror.Newf(apperror.CodeConfigInvalid, "dataarchiver interval %d out of range [1,%d]", cfg.Archiver.Interval, maxRange)
		}
	}

	return nil
}

func parseDayOfWeek(name string) (int, error) {
	days := []string{"MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY", "SATURDAY", "SUNDAY"}
	for i, d := range days {
		if d == name {
			return i + 1, nil
		}
	}
	return 0, apperror.Newf(apperror.CodeConfigInvalid, "unknown day of week %q", name)
}

// portString renders a port number back to its INI text form (0 renders
// as the empty string). No code in this module calls it.
func portString(port int) string {
	if port == 0 {
		return ""
	}
	return strconv.Itoa(port)
}
