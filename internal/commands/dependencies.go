package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/atotto/clipboard"
	"golang.org/x/term"

	"github.com/diogo/chatsync/internal/api"
	"github.com/diogo/chatsync/internal/chat"
	"github.com/diogo/chatsync/internal/config"
	"github.com/diogo/chatsync/internal/coordinator"
	"github.com/diogo/chatsync/internal/models"
	"github.com/diogo/chatsync/internal/storage"
	"github.com/diogo/chatsync/internal/tui"
)

// TUIInterface defines the methods required from the TUI package.
type TUIInterface interface {
	RunChat(ctx context.Context, store *chat.Store, coord *coordinator.Coordinator, notifier *tui.Notifier, opts tui.Options) error
}

// Backend is the pair of clients talking to the chat server
type Backend struct {
	API      api.ChatAPI
	Streamer api.Streamer
	Close    func()
}

// Dependencies holds the external dependencies for the commands.
// This allows for dependency injection and easier testing.
type Dependencies struct {
	// LoadConfig reads the user configuration.
	LoadConfig func() (config.Config, error)

	// Connect creates the backend clients for cfg.
	Connect func(cfg config.Config, logger *slog.Logger) (Backend, error)

	// OpenKV opens the settings store for cfg.
	OpenKV func(cfg config.Config) (storage.KV, error)

	// TUI is the terminal user interface.
	TUI TUIInterface

	// Clipboard copies text to the system clipboard.
	Clipboard func(string) error

	// IsTTY reports whether stdout is a terminal.
	IsTTY func() bool

	// TerminalWidth returns the width of the terminal.
	TerminalWidth func() int
}

// DefaultTUI is the production implementation of TUIInterface.
type DefaultTUI struct{}

func (d *DefaultTUI) RunChat(ctx context.Context, store *chat.Store, coord *coordinator.Coordinator, notifier *tui.Notifier, opts tui.Options) error {
	return tui.RunChat(ctx, store, coord, notifier, opts)
}

// NewDependencies creates a new Dependencies struct with default implementations.
func NewDependencies() *Dependencies {
	return &Dependencies{
		LoadConfig:    config.LoadConfig,
		Connect:       connectBackend,
		OpenKV:        openKV,
		TUI:           &DefaultTUI{},
		Clipboard:     clipboard.WriteAll,
		IsTTY:         isStdoutTTY,
		TerminalWidth: getTerminalWidth,
	}
}

func connectBackend(cfg config.Config, logger *slog.Logger) (Backend, error) {
	client, err := api.NewClient(cfg.ResolvedBaseURL(),
		api.WithRequestTimeout(cfg.RequestTimeoutDuration()),
		api.WithLogger(logger),
	)
	if err != nil {
		return Backend{}, err
	}
	streamer := api.NewStreamClient(client, api.WithIdleTimeout(cfg.StreamIdleTimeoutDuration()))
	return Backend{API: client, Streamer: streamer, Close: client.Close}, nil
}

func openKV(cfg config.Config) (storage.KV, error) {
	dir, err := config.EnsureConfigDir()
	if err != nil {
		return nil, err
	}
	return storage.Open(cfg.StorageBackend, dir)
}

// getTerminalWidth returns the terminal width or a default value
func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

// isStdoutTTY returns true if stdout is connected to a terminal
func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// session is the wiring shared by every command that talks to the backend
type session struct {
	cfg     config.Config
	logger  *slog.Logger
	backend Backend
	store   *chat.Store
	kv      storage.KV
	coord   *coordinator.Coordinator
	logFile io.Closer
}

type sessionOptions struct {
	notifier chat.Notifier
	// logToStderr sends logs to the terminal instead of the log file
	logToStderr bool
	verbose     bool
	// coordinated creates a coordinator over the store and the KV store
	coordinated bool
}

func (d *Dependencies) openSession(errOut io.Writer, opts sessionOptions) (*session, error) {
	cfg, err := d.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	s := &session{cfg: cfg}
	logOut := io.Discard
	if opts.logToStderr {
		logOut = errOut
	} else if f, err := openLogFile(); err == nil {
		logOut = f
		s.logFile = f
	}
	s.logger = newLogger(logOut, cfg.LogLevel, opts.verbose)

	s.backend, err = d.Connect(cfg, s.logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	s.store = chat.NewStore(s.backend.API, s.backend.Streamer,
		chat.WithNotifier(opts.notifier),
		chat.WithLogger(s.logger),
	)
	// Configured defaults; persisted settings override them
	s.store.ApplySettings(models.PersistedSettings{
		SelectedModel: cfg.DefaultModel,
		HistoryLimit:  cfg.HistoryLimit,
	})

	if opts.coordinated {
		s.kv, err = d.OpenKV(cfg)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to open settings store: %w", err)
		}
		s.coord = coordinator.New(s.store, s.kv,
			coordinator.WithAutosaveInterval(cfg.AutosaveIntervalDuration()),
			coordinator.WithNotifier(opts.notifier),
			coordinator.WithLogger(s.logger),
		)
	}
	return s, nil
}

// Close persists settings through the coordinator and releases resources
func (s *session) Close() {
	if s.coord != nil {
		if err := s.coord.Close(); err != nil {
			s.logger.Warn("failed to persist settings on exit", "error", err)
		}
	}
	if s.kv != nil {
		_ = s.kv.Close()
	}
	if s.backend.Close != nil {
		s.backend.Close()
	}
	if s.logFile != nil {
		_ = s.logFile.Close()
	}
}

func openLogFile() (*os.File, error) {
	dir, err := config.EnsureConfigDir()
	if err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, "chatsync.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
}

func newLogger(w io.Writer, level string, verbose bool) *slog.Logger {
	lvl := parseLevel(level)
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
