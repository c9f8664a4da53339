package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zoomsync/internal/config"
	appLog "zoomsync/internal/log"
	"zoomsync/internal/metrics"
	"zoomsync/internal/pipeline"
	"zoomsync/internal/runner"
	"zoomsync/internal/sink"
	"zoomsync/internal/web"
	"zoomsync/internal/zoom"
)

const version = "0.3.0"

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	dump       bool
}

func main() {
	flags := parseFlags()

	if err := config.LoadDotEnv(); err != nil {
		appLog.Error("failed to read .env", err)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if err := appLog.Init(conf.Log.Level, conf.Log.Format); err != nil {
		appLog.Error("failed to init logger", err)
		os.Exit(1)
	}
	defer appLog.Sync()

	appLog.Info("zoomsync starting", "version", version)

	if err := conf.Validate(); err != nil {
		appLog.Error("config is invalid", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	loc, err := conf.Location()
	if err != nil {
		appLog.Error("failed to load timezone", err)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"api_base_url", conf.API.BaseURL,
		"timezone", loc.String(),
		"meeting_type", conf.MeetingType,
		"concurrency", conf.Concurrency,
		"refresh", conf.RefreshCron,
		"listen", conf.Listen,
		"ics_path", conf.Output.ICSPath,
		"sqlite_path", conf.Output.SQLitePath,
		"once", flags.once,
		"dump", flags.dump,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	code := run(ctx, conf, loc, flags)
	appLog.Info("zoomsync exiting", "code", code)
	if code != 0 {
		appLog.Sync()
		os.Exit(code)
	}
}

func run(ctx context.Context, conf *config.Config, loc *time.Location, flags flagConfig) int {
	client, err := zoom.NewClient(zoom.Options{
		BaseURL:           conf.API.BaseURL,
		Token:             conf.API.Token,
		PageSize:          conf.API.PageSize,
		Timeout:           conf.API.Timeout,
		RequestsPerSecond: conf.API.RequestsPerSecond,
		Burst:             conf.API.Burst,
	})
	if err != nil {
		appLog.Error("failed to create zoom client", err)
		return 1
	}

	var sinks []pipeline.Sink
	var store *sink.Store
	if conf.Output.SQLitePath != "" {
		store, err = sink.OpenStore(conf.Output.SQLitePath)
		if err != nil {
			appLog.Error("failed to open store", err, "path", conf.Output.SQLitePath)
			return 1
		}
		defer store.Close()
		sinks = append(sinks, store)
	}
	if conf.Output.ICSPath != "" {
		sinks = append(sinks, &sink.ICSWriter{Path: conf.Output.ICSPath, Location: loc})
	}

	snapshot := sink.NewSnapshot()
	collector := metrics.New()
	opts := runner.Options{
		Source:      client,
		Location:    loc,
		MeetingType: conf.MeetingType,
		Concurrency: conf.Concurrency,
		Sinks:       sinks,
		Snapshot:    snapshot,
		Metrics:     collector,
	}
	if store != nil {
		opts.Recorder = store
	}
	r := runner.New(opts)

	if flags.once {
		_, err := r.Run(ctx)
		if flags.dump {
			dumpRecords(snapshot.Records())
		}
		if err != nil {
			return 1
		}
		return 0
	}

	go func() {
		if _, err := r.Run(ctx); err != nil && !errors.Is(err, runner.ErrRunning) {
			appLog.Error("initial sync failed", err)
		}
	}()

	stop, err := r.Start(ctx, conf.RefreshCron, loc)
	if err != nil {
		appLog.Error("failed to schedule sync", err)
		return 1
	}
	defer stop()

	if conf.Listen == "" {
		<-ctx.Done()
		return 0
	}

	srvOpts := web.Options{
		Config:    conf,
		Snapshot:  snapshot,
		Refresher: r,
		Metrics:   collector,
		Location:  loc,
	}
	if store != nil {
		srvOpts.Runs = store
	}
	srv := web.NewServer(srvOpts)
	if err := srv.ListenAndServe(ctx, conf.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		appLog.Error("http server failed", err, "listen", conf.Listen)
		return 1
	}
	return 0
}

func dumpRecords(records []pipeline.Record) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		appLog.Error("dump failed", err)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/zoomsync/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one sync and exit")
	flag.BoolVar(&cfg.dump, "dump", false, "With -once, print the emitted records as JSON to stdout")

	flag.Parse()

	return cfg
}
