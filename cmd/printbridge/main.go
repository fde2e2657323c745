// Command printbridge runs the POS print bridge agent: a local WebSocket
// command server plus, when a restaurant id is configured, a cloud
// print-queue poller. main loads configuration, wires up the long-running
// services, and blocks on an interrupt signal.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/printbridge/agent/internal/cloudqueue"
	"github.com/printbridge/agent/internal/configstore"
	"github.com/printbridge/agent/internal/supervisor"
	"github.com/printbridge/agent/internal/wsserver"
)

const version = "1.0.0"

func main() {
	opts, fs := parseFlags(os.Args[1:])
	if opts.showHelp {
		fs.Usage()
		os.Exit(0)
	}

	log := newLogger(opts.verbose, opts.quiet)
	log.Info().Str("version", version).Msg("printbridge starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storeFactory := func(ctx context.Context, projectID string) (cloudqueue.DocumentStore, error) {
		if projectID == "" {
			return nil, fmt.Errorf("cloud enabled without a firebase project id configured")
		}
		return cloudqueue.NewFirestoreStore(ctx, projectID, opts.credentialsPath)
	}

	// CLI-provided identity overrides are applied once at startup, before
	// the supervisor loads the persisted config; ongoing changes go through
	// setRestaurantId over the WS connection instead.
	if opts.restaurantID != "" || opts.deviceName != "" || opts.firebaseProject != "" {
		stored := configstore.Load()
		if opts.restaurantID != "" {
			stored.RestaurantID = opts.restaurantID
		}
		if opts.deviceName != "" {
			stored.DeviceName = opts.deviceName
		}
		if opts.firebaseProject != "" {
			stored.FirebaseProject = opts.firebaseProject
		}
		if err := configstore.Save(stored); err != nil {
			log.Warn().Err(err).Msg("failed to persist CLI-provided config overrides")
		}
	}

	sup := supervisor.New(storeFactory, log)
	sup.Start(ctx)
	defer sup.Stop()

	dispatcher := wsserver.NewDispatcher(sup, opts.port)
	server := wsserver.New(opts.allowedOrigins, dispatcher, log)

	mux := http.NewServeMux()
	mux.Handle("/", server)

	addr := fmt.Sprintf("%s:%d", opts.host, opts.port)
	httpServer := &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.Info().Str("addr", addr).Msg("listening for WebSocket connections")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
}

type cliOptions struct {
	port            int
	host            string
	allowedOrigins  []string
	verbose         bool
	quiet           bool
	restaurantID    string
	deviceName      string
	firebaseProject string
	credentialsPath string
	showHelp        bool
}

// parseFlags resolves flags over env-var defaults over hardcoded defaults,
// matching the precedence the ambient stack favors for a headless agent:
// explicit flags win, environment variables seed sane defaults for
// container/service deployment, and only then do the literal fallbacks
// below apply.
func parseFlags(args []string) (cliOptions, *flag.FlagSet) {
	fs := flag.NewFlagSet("printbridge", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "printbridge runs the local print-bridge WebSocket server.")
		fs.PrintDefaults()
	}

	port := fs.IntP("port", "p", envInt("PORT", 7171), "port to listen on")
	host := fs.String("host", envString("HOST", ""), "host/interface to bind (empty = all interfaces)")
	origins := fs.StringSlice("allowed-origins", envStringSlice("ALLOWED_ORIGINS"), "comma-separated list of allowed WebSocket origins (empty = accept all)")
	verbose := fs.BoolP("verbose", "v", envBool("VERBOSE"), "enable debug logging")
	quiet := fs.Bool("quiet", envBool("QUIET"), "only log warnings and errors")
	restaurantID := fs.String("restaurant-id", envString("RESTAURANT_ID", ""), "restaurant id to enable the cloud print queue for")
	deviceName := fs.String("device-name", envString("DEVICE_NAME", ""), "human-readable name for this device")
	firebaseProject := fs.String("firebase-project", envString("FIREBASE_PROJECT", ""), "Firebase/Firestore project id backing the cloud print queue")
	credentials := fs.String("credentials", envString("GOOGLE_APPLICATION_CREDENTIALS", ""), "path to a service-account credentials file (empty = application default credentials)")
	help := fs.BoolP("help", "h", false, "show usage and exit")

	_ = fs.Parse(args)

	return cliOptions{
		port:            *port,
		host:            *host,
		allowedOrigins:  *origins,
		verbose:         *verbose,
		quiet:           *quiet,
		restaurantID:    *restaurantID,
		deviceName:      *deviceName,
		firebaseProject: *firebaseProject,
		credentialsPath: *credentials,
		showHelp:        *help,
	}, fs
}

func newLogger(verbose, quiet bool) zerolog.Logger {
	level := zerolog.InfoLevel
	switch {
	case verbose:
		level = zerolog.DebugLevel
	case quiet:
		level = zerolog.WarnLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return false
	}
	return v == "1" || strings.EqualFold(v, "true")
}

func envStringSlice(key string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
