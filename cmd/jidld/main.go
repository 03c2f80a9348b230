// Command jidld is the JIDL data-logging daemon: it loads an INI
// configuration file, builds the connection set and sink it describes,
// and drives the tick scheduler either immediately (-a) or on demand
// through interactive stdin commands and the IPC server.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ilguido/jidl/internal/apperror"
	"github.com/ilguido/jidl/internal/applog"
	"github.com/ilguido/jidl/internal/archiver"
	"github.com/ilguido/jidl/internal/config"
	"github.com/ilguido/jidl/internal/connection"
	"github.com/ilguido/jidl/internal/datalogger"
	"github.com/ilguido/jidl/internal/deviceio/jsonhttp"
	"github.com/ilguido/jidl/internal/deviceio/modbus"
	"github.com/ilguido/jidl/internal/deviceio/opcua"
	"github.com/ilguido/jidl/internal/deviceio/s7"
	"github.com/ilguido/jidl/internal/ipc"
	"github.com/ilguido/jidl/internal/metrics"
	"github.com/ilguido/jidl/internal/sink"
	"github.com/ilguido/jidl/internal/telemetry"
	"github.com/ilguido/jidl/internal/valuecache"
	"github.com/ilguido/jidl/internal/variable"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("c", "", "path to the JIDL configuration file")
	autostart := flag.Bool("a", false, "start logging immediately after load")
	remoteControl := flag.Bool("r", false, "permit start/stop over the IPC interface")
	flag.Parse()

	applog.Init("info")

	if *configPath == "" {
		applog.Log.Error("missing required -c <path> flag")
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		applog.Log.Error("failed to load configuration", "error", err)
		return 1
	}

	metrics.Init("jidl", "scheduler")

	tp, err := telemetry.Init(context.Background(), telemetry.Config{Enabled: false, ServiceName: cfg.DataLogger.Name})
	if err != nil {
		applog.Log.Error("failed to initialize telemetry", "error", err)
		return 1
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	logger, err := buildLogger(cfg)
	if err != nil {
		applog.Log.Error("failed to build logger", "error", err)
		return 1
	}

	server, err := buildIPCServer(cfg, logger, *remoteControl)
	if err != nil {
		applog.Log.Error("failed to build ipc server", "error", err)
		return 1
	}
	if server != nil {
		if err := server.Start(); err != nil {
			applog.Log.Error("failed to start ipc server", "error", err)
			return 1
		}
		defer func() { _ = server.Stop() }()
	}

	fatal := make(chan error, 1)
	fatalHandler := func(err error) {
		applog.Log.Error("logger stopped on a fatal error", "error", err)
		select {
		case fatal <- err:
		default:
		}
	}

	if *autostart {
		if err := logger.Start(fatalHandler); err != nil {
			applog.Log.Error("autostart failed", "error", err)
			return 1
		}
	}
	defer logger.Stop()

	return mainLoop(logger, fatalHandler, fatal)
}

// mainLoop waits for an interactive command, an OS signal, or an
// asynchronous fatal error from the scheduler, whichever comes first.
func mainLoop(logger *datalogger.Logger, fatalHandler datalogger.FatalHandler, fatal chan error) int {
	commands := make(chan byte)
	go readCommands(commands)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-fatal:
			return 0

		case sig := <-signals:
			applog.Log.Info("received signal, shutting down", "signal", sig.String())
			return 0

		case cmd, ok := <-commands:
			if !ok {
				return 0
			}
			switch cmd {
			case 's':
				if err := logger.Start(fatalHandler); err != nil {
					fmt.Fprintln(os.Stderr, "start:", err)
				}
			case 'p':
				logger.Stop()
			case 'q':
				return 0
			}
		}
	}
}

func readCommands(out chan<- byte) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 {
			continue
		}
		out <- line[0]
	}
}

// buildLogger assembles the connection set, sink, and optional archiver
// described by cfg into a ready-to-start Logger.
func buildLogger(cfg *config.Config) (*datalogger.Logger, error) {
	conns, err := buildConnections(cfg)
	if err != nil {
		return nil, err
	}

	s, err := buildSink(cfg)
	if err != nil {
		return nil, err
	}

	var arch *archiver.Archiver
	if cfg.Archiver != nil {
		arch, err = buildArchiver(cfg, s)
		if err != nil {
			return nil, err
		}
	}

	workingDir := cfg.DataLogger.Dir
	if workingDir == "" {
		workingDir = "."
	}

	return datalogger.New(cfg.DataLogger.Name, workingDir, conns, s, arch,
		datalogger.WithValueCache(valuecache.NewMemory()))
}

func buildConnections(cfg *config.Config) ([]*connection.Connection, error) {
	conns := make([]*connection.Connection, 0, len(cfg.Connections))
	byName := make(map[string]*connection.Connection, len(cfg.Connections))
	readersByQualifier := make(map[string]*variable.Reader)

	for _, cc := range cfg.Connections {
		client, err := buildClient(cc, cfg.DataLogger.Key)
		if err != nil {
			return nil, err
		}

		c, err := connection.New(cc.Name, cc.Type, cc.Address, cc.SampleTicks, client)
		if err != nil {
			return nil, err
		}

		for _, v := range cc.Variables {
			r, err := variable.NewReader(v.Name, v.Address, v.Type, v.Size)
			if err != nil {
				return nil, err
			}
			if err := c.AddReader(r); err != nil {
				return nil, err
			}
			readersByQualifier[variable.Qualifier{Var: v.Name, Connection: cc.Name}.String()] = r
		}

		conns = append(conns, c)
		byName[cc.Name] = c
	}

	for _, cc := range cfg.Connections {
		c := byName[cc.Name]
		for _, w := range cc.Writers {
			source, ok := readersByQualifier[variable.Qualifier{Var: w.SourceVar, Connection: w.SourceConn}.String()]
			if !ok {
				return nil, apperror.Newf(apperror.CodeConfigInvalid, "writer %q::%q sources unknown reader %q::%q", w.Name, cc.Name, w.SourceVar, w.SourceConn)
			}
			writer, err := variable.NewWriter(w.Name, w.Address, source)
			if err != nil {
				return nil, err
			}
			if err := c.AddWriter(writer); err != nil {
				return nil, err
			}
		}
	}

	return conns, nil
}

// buildClient constructs the DeviceClient for cc. sharedKey is the
// [datalogger] section's "key" value, reused to decrypt a connection's
// own password since the opcua section carries only salt/iv (§6) and
// no key of its own.
func buildClient(cc config.ConnectionConfig, sharedKey string) (connection.DeviceClient, error) {
	switch cc.Type {
	case "s7":
		return s7.New(cc.Address, cc.Rack, cc.Slot), nil
	case "modbus-tcp":
		return modbus.New(cc.Address, cc.Port, cc.Reversed), nil
	case "opcua":
		password := cc.Password
		if password != "" && sharedKey != "" && cc.Salt != "" && cc.IV != "" {
			decrypted, err := config.DecryptPassword(password, sharedKey, cc.Salt, cc.IV)
			if err == nil {
				password = decrypted
			}
		}
		return opcua.New(opcua.Options{
			Server:    cc.Address,
			Port:      cc.Port,
			Path:      cc.Path,
			Discovery: cc.Discovery,
			Username:  cc.Username,
			Password:  password,
		}), nil
	case "json":
		return jsonhttp.New(cc.Address), nil
	default:
		return nil, apperror.Newf(apperror.CodeConfigInvalid, "connection %q: unknown type %q", cc.Name, cc.Type)
	}
}

func buildSink(cfg *config.Config) (sink.SqlSink, error) {
	dl := cfg.DataLogger

	password := dl.Password
	if password != "" && dl.Key != "" && cfg.Global.Salt != "" && cfg.Global.IV != "" {
		decrypted, err := config.DecryptPassword(password, dl.Key, cfg.Global.Salt, cfg.Global.IV)
		if err == nil {
			password = decrypted
		}
	}

	switch dl.Type {
	case "dummy":
		return sink.NewDummySink(), nil
	case "sqlite":
		path := filepath.Join(dl.Dir, dl.Name+".db")
		return sink.NewSQLite(path), nil
	case "mariadb":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", dl.Username, password, dl.Server, dl.Port, dl.Name)
		return sink.NewMaria(dsn), nil
	case "monetdb":
		dsn := fmt.Sprintf("%s:%s@%s:%d/%s", dl.Username, password, dl.Server, dl.Port, dl.Name)
		return sink.NewMonet(dsn), nil
	default:
		return nil, apperror.Newf(apperror.CodeConfigInvalid, "unknown datalogger type %q", dl.Type)
	}
}

func buildArchiver(cfg *config.Config, s sink.SqlSink) (*archiver.Archiver, error) {
	day, err := archiver.ParseDayOfWeek(cfg.Archiver.Day)
	if err != nil {
		return nil, err
	}

	snapshotPath := filepath.Join(cfg.DataLogger.Dir, cfg.DataLogger.Name)
	arch := archiver.New(s, snapshotPath)
	if err := arch.SetArchivingService(archiver.Schedule{
		Day:       day,
		Interval:  cfg.Archiver.Interval,
		UseMonths: cfg.Archiver.Monthly,
	}); err != nil {
		return nil, err
	}
	return arch, nil
}

func buildIPCServer(cfg *config.Config, logger *datalogger.Logger, remoteControl bool) (*ipc.Server, error) {
	if cfg.Global.IPCPort == 0 {
		return nil, nil
	}

	tlsConfig, err := ipc.ServerTLSConfig(cfg.Global.IPCKeystore, cfg.Global.IPCKeystore, cfg.Global.IPCTruststore)
	if err != nil {
		return nil, err
	}

	handler := &ipc.RequestHandler{
		Control:        logger,
		Values:         logger,
		ControlEnabled: remoteControl,
	}

	addr := fmt.Sprintf(":%d", cfg.Global.IPCPort)
	return ipc.NewServer(addr, tlsConfig, handler), nil
}
