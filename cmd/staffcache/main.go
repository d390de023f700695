// Command staffcache serves staffing data through a stale-while-revalidate
// cache in front of the staffing backend.
//
// Usage:
//
//	staffcache serve -config staffcache.yaml
//	staffcache health -addr http://localhost:8080
//	staffcache version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonwraymond/staffcache/config"
	"github.com/jonwraymond/staffcache/observe"
)

// Set at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "staffcache: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cmd := "serve"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		return runServe(args)
	case "health":
		return runHealth(args, stdout)
	case "version":
		fmt.Fprintf(stdout, "staffcache %s (%s)\n", Version, GitCommit)
		return nil
	case "help":
		printUsage(stdout)
		return nil
	default:
		printUsage(stderr)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: staffcache <command> [flags]

Commands:
  serve     Start the cache service (default)
  health    Query a running service's readiness
  version   Print version information
`)
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("STAFFCACHE_CONFIG"), "path to the YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx, *configPath)
	if err != nil {
		return err
	}
	if cfg.Service.Version == "" {
		cfg.Service.Version = Version
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	log := a.logger
	log.Info(ctx, "starting staffcache",
		observe.F("version", cfg.Service.Version),
		observe.F("commit", GitCommit),
		observe.F("addr", cfg.HTTP.Addr),
	)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           a.routes(),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	a.startPreload(ctx)

	select {
	case <-ctx.Done():
		log.Info(context.Background(), "shutting down")
	case err = <-serveErr:
		log.Error(context.Background(), "http server failed", observe.F("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return errors.Join(err, srv.Shutdown(shutdownCtx), a.close(shutdownCtx))
}

func runHealth(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	addr := fs.String("addr", "http://localhost:8080", "service base URL")
	timeout := fs.Duration("timeout", 5*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client := &http.Client{Timeout: *timeout}
	resp, err := client.Get(*addr + "/readyz")
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check: status %d: %s", resp.StatusCode, body)
	}
	fmt.Fprintf(stdout, "%s\n", body)
	return nil
}
