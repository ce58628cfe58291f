package main

//go:generate go run github.com/google/wire/cmd/wire

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
)

const version = "0.1.0-dev"

func main() {
	var (
		host      = flag.String("host", "", "listen host, overrides config")
		port      = flag.Int("port", 0, "listen port, overrides config")
		logLevel  = flag.String("log-level", "", "critical, error, warning, info, or debug")
		debug     = flag.Bool("debug", false, "enable debug logging (overrides --log-level)")
		debugFlag = flag.Bool("d", false, "shorthand for --debug")
		configFl  = flag.String("config", "", "path to a YAML configuration file")
		tokenHash = flag.String("token-hash", "", "bcrypt hash of the management x-token, overrides config plaintext compare")
		showVer   = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Printf("acctrouter %s\n", version)
		return
	}

	app, err := initializeApplication(*configFl, *tokenHash)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}
	defer app.Cleanup()

	configureLogging(*logLevel, *debug || *debugFlag)
	applyListenOverrides(app.Server, *host, *port)

	go func() {
		slog.Info("server starting", "addr", app.Server.Addr)
		if err := app.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Server.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	slog.Info("server exited")
}

// configureLogging installs a process-wide slog logger whose level is
// driven by --log-level (-d/--debug forces debug whatever --log-level says),
// matching the Python original's get_logger(name) level convention
// translated into a single structured handler (SPEC_FULL.md §10.2).
func configureLogging(level string, debug bool) {
	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warning":
		lvl = slog.LevelWarn
	case "error", "critical":
		lvl = slog.LevelError
	}
	if debug {
		lvl = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

// applyListenOverrides lets --host/--port win over the config file's
// server section without re-threading them through the DI graph.
func applyListenOverrides(srv *http.Server, host string, port int) {
	if host == "" && port == 0 {
		return
	}
	h, p, err := splitHostPort(srv.Addr)
	if err != nil {
		return
	}
	if host != "" {
		h = host
	}
	if port != 0 {
		p = strconv.Itoa(port)
	}
	srv.Addr = h + ":" + p
}

func splitHostPort(addr string) (string, string, error) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i], addr[i+1:], nil
		}
	}
	return "", "", errors.New("main: no port in address " + addr)
}
