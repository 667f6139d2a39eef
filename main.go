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

	"github.com/antibyte/catterm/pkg/auth"
	"github.com/antibyte/catterm/pkg/catlang"
	"github.com/antibyte/catterm/pkg/configuration"
	"github.com/antibyte/catterm/pkg/logger"
	"github.com/antibyte/catterm/pkg/session"
	"github.com/antibyte/catterm/pkg/shell"
	"github.com/antibyte/catterm/pkg/terminal"
	tlsmanager "github.com/antibyte/catterm/pkg/tls"
	"github.com/antibyte/catterm/pkg/transcript"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "settings.cfg", "path to the settings file")
	file := flag.String("file", "", "run a C@ program file instead of the prompt")
	strict := flag.Bool("strict", false, "stop at the first failing statement")
	serve := flag.Bool("serve", false, "start the HTTP/websocket server")
	hashPassword := flag.String("hash-password", "", "print a bcrypt hash for [Authentication] password_hash")
	setPassword := flag.String("set-password", "", "hash a password and store it in the settings file")
	export := flag.String("export-transcript", "", "write the transcript of a session id (or \"all\") as YAML")
	list := flag.Bool("list-transcripts", false, "list the sessions in the transcript database")
	verbose := flag.Bool("verbose", false, "log everything to stderr")
	flag.Parse()

	// Configuration comes first, everything else reads from it.
	if err := configuration.Initialize(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing configuration: %v\n", err)
		return 1
	}
	if *verbose {
		logger.InitializeWriter(os.Stderr, logger.DEBUG)
	} else if err := logger.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		return 1
	}
	defer logger.Close()
	logger.ConfigInfo("catterm started - configuration loaded from: %s", *configPath)

	switch {
	case *hashPassword != "":
		hash, err := auth.HashPassword(*hashPassword, auth.ConfiguredCost())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error hashing password: %v\n", err)
			return 1
		}
		fmt.Println(hash)
		return 0
	case *setPassword != "":
		if err := auth.StorePasswordHash(*setPassword); err != nil {
			fmt.Fprintf(os.Stderr, "Error storing password: %v\n", err)
			return 1
		}
		fmt.Printf("password_hash written to %s\n", *configPath)
		return 0
	case *export != "":
		if err := withTranscript(func(store *transcript.Store) error {
			if *export == "all" {
				return store.Export(context.Background(), os.Stdout)
			}
			return store.Export(context.Background(), os.Stdout, *export)
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Error exporting transcript: %v\n", err)
			return 1
		}
		return 0
	case *list:
		if err := withTranscript(func(store *transcript.Store) error {
			return store.WriteSummary(context.Background(), os.Stdout)
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Error listing transcripts: %v\n", err)
			return 1
		}
		return 0
	case *serve || configuration.GetBool("Server", "enable_server", false):
		if err := runServer(); err != nil {
			logger.Error(logger.AreaGeneral, "Server stopped: %v", err)
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}
	return runShell(*file, *strict)
}

func runShell(file string, strict bool) int {
	base, ok := catlang.ParseBase(configuration.GetString("Interpreter", "default_base", "dec"))
	if !ok {
		logger.Warn(logger.AreaConfig, "invalid default_base, using dec")
	}
	interp := catlang.NewWithBase(base)

	opts := shell.Options{
		EchoErrors: configuration.GetBool("Interpreter", "echo_errors", true),
		Strict:     strict,
		ErrOut:     os.Stderr,
	}
	var in io.Reader = os.Stdin
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening program: %v\n", err)
			return 1
		}
		defer f.Close()
		in = f
	} else if shell.IsTerminal(os.Stdin) {
		opts.Interactive = true
		opts.Prompt = configuration.GetString("Interpreter", "prompt", "> ")
		opts.ErrOut = os.Stdout
	}

	stats, err := shell.Run(in, os.Stdout, interp, opts)
	logger.Info(logger.AreaInterpreter, "shell finished: %d statements, %d failed", stats.Executed, stats.Failed)

	if err != nil {
		var lineErr *shell.LineError
		if !errors.As(err, &lineErr) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// withTranscript opens the configured transcript database for fn.
func withTranscript(fn func(store *transcript.Store) error) error {
	store, err := transcript.Open(configuration.GetString("Database", "path", "catterm.db"))
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.CreateTables(); err != nil {
		return err
	}
	return fn(store)
}

func runServer() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := session.OptionsFromConfig()
	var history terminal.HistorySource
	if configuration.GetBool("Database", "enable_transcript", false) {
		dbPath := configuration.GetString("Database", "path", "catterm.db")
		store, err := transcript.Open(dbPath)
		if err != nil {
			return fmt.Errorf("database initialization failed: %w", err)
		}
		defer store.Close()
		if err := store.CreateTables(); err != nil {
			return fmt.Errorf("table creation failed: %w", err)
		}
		logger.DatabaseInfo("Transcript database ready at %s", dbPath)
		opts.Recorder = store
		history = store
	}

	sessions := session.NewManager(opts)
	sessions.StartJanitor(ctx)

	handler := terminal.NewTerminalHandler(sessions, history)
	defer handler.CloseAll()

	mux := http.NewServeMux()
	auth.NewHandlers(sessions).Register(mux)
	handler.Register(mux)

	tlsManager, err := tlsmanager.NewTLSManager(tlsmanager.ConfigFromSettings())
	if err != nil {
		return fmt.Errorf("TLS manager initialization failed: %w", err)
	}

	var servers []*http.Server
	errorChan := make(chan error, 2)
	listen := func(srv *http.Server, useTLS bool) {
		servers = append(servers, srv)
		go func() {
			var err error
			if useTLS {
				err = srv.ListenAndServeTLS("", "")
			} else {
				err = srv.ListenAndServe()
			}
			if !errors.Is(err, http.ErrServerClosed) {
				errorChan <- fmt.Errorf("%s: %w", srv.Addr, err)
			}
		}()
	}

	if tlsManager.IsEnabled() {
		if tlsManager.LetsEncrypt() {
			logger.Info(logger.AreaSecurity, "Using Let's Encrypt certificates for %s", tlsManager.GetDomain())
		}
		logger.Info(logger.AreaSecurity, "Starting HTTPS server on port %s", tlsManager.GetHTTPSPort())
		listen(&http.Server{
			Addr:              ":" + tlsManager.GetHTTPSPort(),
			Handler:           mux,
			TLSConfig:         tlsManager.GetTLSConfig(),
			ReadHeaderTimeout: 10 * time.Second,
		}, true)
		if tlsManager.NeedsHTTPServer() {
			var fallback http.Handler = mux
			if tlsManager.ForceRedirect() {
				fallback = tlsManager.GetHTTPSRedirectHandler()
			}
			logger.Info(logger.AreaSecurity, "Starting HTTP server for ACME challenges/redirects on port %s", tlsManager.GetHTTPPort())
			listen(&http.Server{
				Addr:              ":" + tlsManager.GetHTTPPort(),
				Handler:           tlsManager.GetHTTPHandler(fallback),
				ReadHeaderTimeout: 10 * time.Second,
			}, false)
		}
	} else {
		logger.Info(logger.AreaGeneral, "Starting HTTP server on port %s", tlsManager.GetHTTPPort())
		listen(&http.Server{
			Addr:              ":" + tlsManager.GetHTTPPort(),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}, false)
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info(logger.AreaGeneral, "Shutdown requested")
	case runErr = <-errorChan:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn(logger.AreaGeneral, "Shutdown of %s: %v", srv.Addr, err)
		}
	}
	return runErr
}
