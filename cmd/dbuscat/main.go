// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Program dbuscat issues method calls on a message channel, or serves an echo
// peer for testing.
//
// Usage:
//
//	dbuscat [options] <address> <dest> <path> <iface.member> [json-body]
//	dbuscat -serve [options] <address>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/creachadair/dbuschan"
	"github.com/creachadair/dbuschan/call"
	"github.com/creachadair/dbuschan/channel/chanutil"
	"github.com/creachadair/dbuschan/message"
	"github.com/creachadair/dbuschan/metrics"
	"github.com/creachadair/dbuschan/server"
	"github.com/creachadair/dbuschan/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	configFile  = flag.String("config", "", "Read settings from this TOML file")
	chanFraming = flag.String("f", "varint", "Channel framing")
	callTimeout = flag.Duration("timeout", 10*time.Second, "Timeout on dialing and each call (0 for no timeout)")
	writeRate   = flag.Float64("rate", 0, "Limit outbound messages per second (0 for no limit)")
	doServe     = flag.Bool("serve", false, "Listen on the address and echo method calls")
	metricsAddr = flag.String("metrics", "", "Serve Prometheus metrics at this address (with -serve)")
	maxConns    = flag.Int("max", 0, "Maximum concurrent connections served (with -serve; 0 for no limit)")
	withLogging = flag.Bool("v", false, "Enable verbose logging")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: %[1]s [options] <address> <dest> <path> <iface.member> [json-body]
       %[1]s -serve [options] <address>

Connect to the specified address and issue a method call to the given member
of the object at path on dest. The body of the reply is printed to stdout.
If a body is given, it must be a JSON value.

With -serve, listen on the address and answer each method call with its own
body. A call to a member named Fail is answered with an error reply.

An address without a colon is treated as a Unix-domain socket path. If the
config file gives an address, it may be omitted from the arguments when no
body is given.

The -f flag sets the framing discipline to use. The client must agree with the
server in order for communication to work. The options are:

  %[2]s

Options:
`, filepath.Base(os.Args[0]), strings.Join(chanutil.Names(), "\n  "))
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()

	cfg, err := loadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	log := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *doServe {
		if flag.NArg() > 1 {
			log.Fatal().Msg("Arguments are -serve <address>")
		} else if flag.NArg() == 1 {
			cfg.Address = flag.Arg(0)
		}
		if err := serve(ctx, cfg, log); err != nil {
			log.Fatal().Err(err).Msg("Serve failed")
		}
		return
	}

	args := flag.Args()
	if len(args) == 4 || len(args) == 5 {
		cfg.Address, args = args[0], args[1:]
	} else if len(args) != 3 || cfg.Address == "" {
		log.Fatal().Msg("Arguments are <address> <dest> <path> <iface.member> [json-body]")
	}
	rsp, err := issueCall(ctx, cfg, log, args)
	if err != nil {
		log.Fatal().Err(err).Msg("Call failed")
	}
	fmt.Println(string(rsp.Body))
}

// loadSettings combines the defaults, the config file, and the flags set on
// the command line. An address argument, if present, overrides the file.
func loadSettings() (config, error) {
	cfg := defaultConfig()
	if *configFile != "" {
		var err error
		cfg, err = loadConfig(*configFile, cfg)
		if err != nil {
			return config{}, err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "f":
			cfg.Framing = *chanFraming
		case "timeout":
			cfg.Timeout = *callTimeout
		case "rate":
			cfg.WriteRate = *writeRate
		case "metrics":
			cfg.MetricsAddr = *metricsAddr
		case "max":
			cfg.MaxConns = *maxConns
		}
	})
	if *withLogging {
		cfg.LogLevel = zerolog.DebugLevel
	}
	return cfg, cfg.check()
}

func newLogger(level zerolog.Level) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).Level(level).With().Timestamp().Str("app", "dbuscat").Logger()
}

// textLogger adapts lg to the text loggers of the library packages, tagging
// each line with the component that wrote it.
func textLogger(lg zerolog.Logger, component string) dbuschan.Logger {
	return func(text string) { lg.Debug().Str("component", component).Msg(text) }
}

func transportOptions(cfg config, lg zerolog.Logger, m *metrics.M) *transport.Options {
	return &transport.Options{
		Logger:     textLogger(lg, "transport"),
		WriteLimit: rate.Limit(cfg.WriteRate),
		Metrics:    m,
	}
}

func network(addr string) string {
	if strings.Contains(addr, ":") {
		return "tcp"
	}
	return "unix"
}

func issueCall(ctx context.Context, cfg config, lg zerolog.Logger, args []string) (*message.Message, error) {
	dest, path := args[0], args[1]
	iface, member := splitMember(args[2])
	var body any
	if len(args) > 3 {
		body = json.RawMessage(args[3])
	}
	msg, err := message.NewMethodCall(dest, path, iface, member, body)
	if err != nil {
		return nil, err
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, network(cfg.Address), cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("dial %q: %w", cfg.Address, err)
	}
	tc := transport.New(chanutil.Framing(cfg.Framing)(conn, conn), transportOptions(cfg, lg, nil))
	cli := call.New(dbuschan.New(tc, &dbuschan.Options{Logger: textLogger(lg, "channel")}), &call.Options{
		Logger: textLogger(lg, "call"),
		Fallback: dbuschan.ConsumerFunc(func(m *message.Message) {
			lg.Info().Stringer("message", m).Msg("Unsolicited message")
		}),
	})
	defer func() {
		if err := cli.Close(); err != nil {
			lg.Warn().Err(err).Msg("Close failed")
		}
	}()

	start := time.Now()
	rsp, err := cli.Call(ctx, msg)
	lg.Debug().Uint32("serial", msg.Serial()).Dur("elapsed", time.Since(start)).Msg("Call complete")
	return rsp, err
}

// splitMember separates a name of the form "iface.member" into its parts.
// A name without a dot has no interface.
func splitMember(name string) (iface, member string) {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return "", name
	}
	return name[:i], name[i+1:]
}

func serve(ctx context.Context, cfg config, lg zerolog.Logger) error {
	if cfg.Address == "" {
		return errors.New("no address given")
	}
	lst, err := net.Listen(network(cfg.Address), cfg.Address)
	if err != nil {
		return err
	}
	lg.Info().Str("address", lst.Addr().String()).Str("framing", cfg.Framing).Msg("Serving")

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		expvar.Publish("dbuschan", dbuschan.ChannelMetrics())
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics.NewCollector("dbuscat", m))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		mux.Handle("/debug/vars", expvar.Handler())
		hsrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := hsrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				lg.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		defer hsrv.Close()
		lg.Info().Str("address", cfg.MetricsAddr).Msg("Serving metrics")
	}

	echo := server.EchoWith(&server.EchoOptions{Logger: textLogger(lg, "echo"), Metrics: m})
	err = server.Loop(ctx, lst, echo, &server.LoopOptions{
		Framing:   chanutil.Framing(cfg.Framing),
		MaxConns:  cfg.MaxConns,
		Logger:    textLogger(lg, "server"),
		Transport: transportOptions(cfg, lg, m),
		Metrics:   m,
	})
	logSummary(lg, m)
	return err
}

// logSummary logs the final value of each metric in m.
func logSummary(lg zerolog.Logger, m *metrics.M) {
	counters := make(map[string]int64)
	maxValues := make(map[string]int64)
	m.Snapshot(counters, maxValues)

	ev := lg.Info()
	for _, name := range m.Names() {
		if v, ok := counters[name]; ok {
			ev = ev.Int64(name, v)
		}
		if v, ok := maxValues[name]; ok {
			ev = ev.Int64(name+".max", v)
		}
	}
	ev.Msg("Server stopped")
}
