package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/chatsync/internal/reconcile"
	"github.com/gosuda/chatsync/internal/session"
	"github.com/gosuda/chatsync/internal/transport"
	"github.com/gosuda/chatsync/internal/typing"
)

var rootCmd = &cobra.Command{
	Use:   "chatsync",
	Short: "Terminal chat client that mirrors rooms, presence and messages from a chat server",
	RunE:  runChatsync,
}

var (
	flagServerURL         string
	flagUsername          string
	flagAvatar            string
	flagDataPath          string
	flagSessionBackend    string
	flagRequestTimeout    time.Duration
	flagTypingTimeout     time.Duration
	flagReconnectInitial  time.Duration
	flagReconnectMax      time.Duration
	flagReconnectAttempts int
	flagPort              int
	flagLogFile           string
	flagLogLevel          string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagServerURL, "server-url", envOr("CHATSYNC_URL", "ws://127.0.0.1:3000/ws"), "chat server websocket URL (from env CHATSYNC_URL if set)")
	flags.StringVar(&flagUsername, "username", os.Getenv("CHATSYNC_USER"), "username; falls back to the stored session (from env CHATSYNC_USER if set)")
	flags.StringVar(&flagAvatar, "avatar", "", "optional avatar image URL")
	flags.StringVar(&flagDataPath, "data-path", envOr("CHATSYNC_DATA", defaultDataPath()), "where the session is persisted; empty keeps it in memory (from env CHATSYNC_DATA if set)")
	flags.StringVar(&flagSessionBackend, "session-backend", session.BackendPebble, "session storage: pebble, sqlite or memory")
	flags.DurationVar(&flagRequestTimeout, "request-timeout", 10*time.Second, "how long to wait for a server acknowledgement")
	flags.DurationVar(&flagTypingTimeout, "typing-timeout", typing.DefaultTimeout, "inactivity before a stop typing signal is sent")
	flags.DurationVar(&flagReconnectInitial, "reconnect-initial", 500*time.Millisecond, "first reconnect delay")
	flags.DurationVar(&flagReconnectMax, "reconnect-max", 15*time.Second, "upper bound for reconnect delays")
	flags.IntVar(&flagReconnectAttempts, "reconnect-attempts", 0, "reconnect attempts before giving up (0 retries forever)")
	flags.IntVar(&flagPort, "port", -1, "optional local HTTP port exposing /healthz and /state (negative to disable)")
	flags.StringVar(&flagLogFile, "log-file", "", "write logs to this file; logs are discarded when empty")
	flags.StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func defaultDataPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "chatsync", "session")
}

// setupLogging points the global logger at a file so it does not draw over
// the terminal view.
func setupLogging() (func(), error) {
	level, err := zerolog.ParseLevel(flagLogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)
	if flagLogFile == "" {
		log.Logger = zerolog.New(io.Discard)
		return func() {}, nil
	}
	f, err := os.OpenFile(flagLogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.Logger = zerolog.New(f).With().Timestamp().Logger()
	return func() { _ = f.Close() }, nil
}

func sessionPath() string {
	if flagDataPath == "" {
		return ""
	}
	if flagSessionBackend == session.BackendSQLite {
		return filepath.Join(flagDataPath, "session.db")
	}
	return flagDataPath
}

func runChatsync(cmd *cobra.Command, args []string) error {
	closeLogs, err := setupLogging()
	if err != nil {
		return err
	}
	defer closeLogs()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := session.Open(session.Options{Backend: flagSessionBackend, Path: sessionPath()})
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("[chatsync] session close error")
		}
	}()

	username := strings.TrimSpace(flagUsername)
	stored, hasSession := store.Load()
	if username == "" && !hasSession {
		return errors.New("username required: pass --username or set CHATSYNC_USER")
	}
	resume := hasSession && (username == "" || username == stored.Username)
	if username == "" {
		username = stored.Username
	}

	mgr := transport.NewManager(transport.Config{
		Endpoint:       flagServerURL,
		RequestTimeout: flagRequestTimeout,
		Backoff: transport.Backoff{
			Initial:     flagReconnectInitial,
			Max:         flagReconnectMax,
			Multiplier:  2,
			MaxAttempts: flagReconnectAttempts,
		},
	})
	defer mgr.Close()

	// the view is wired before the program exists; nothing renders until the
	// program runs and connects
	var prog *tea.Program
	rec := reconcile.New(reconcile.Config{
		Link:          mgr,
		Session:       store,
		View:          reconcile.ViewFunc(func(in reconcile.Instruction) { prog.Send(renderMsg{in}) }),
		TypingTimeout: flagTypingTimeout,
	})
	defer rec.Close()

	ui := newModel(username, rec)
	ui.connect = connector(mgr, rec, username, flagAvatar, resume)
	prog = tea.NewProgram(ui, tea.WithAltScreen(), tea.WithReportFocus(), tea.WithContext(ctx))

	var httpSrv *http.Server
	if flagPort >= 0 {
		httpSrv = &http.Server{
			Addr:              fmt.Sprintf(":%d", flagPort),
			Handler:           newStateRouter(rec, mgr),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		log.Info().Msgf("[chatsync] state available at http://127.0.0.1:%d/state", flagPort)
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn().Err(err).Msg("[chatsync] local http stopped")
			}
		}()
	}

	_, runErr := prog.Run()
	if httpSrv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(sctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("[chatsync] http server shutdown error")
		}
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("run terminal view: %w", runErr)
	}
	log.Info().Msg("[chatsync] shutdown complete")
	return nil
}
