package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ha1tch/conceptmap/pkg/backend"
	"github.com/ha1tch/conceptmap/pkg/cache"
	"github.com/ha1tch/conceptmap/pkg/config"
	"github.com/ha1tch/conceptmap/pkg/engine"
	"github.com/ha1tch/conceptmap/pkg/graph"
	"github.com/ha1tch/conceptmap/pkg/logging"
	"github.com/ha1tch/conceptmap/pkg/mindmap"
)

var version = "0.3.0"

// Global flags. Empty values leave the config file's setting alone.
var (
	configPath string
	backendURL string
	token      string
	cacheDir   string
	logLevel   string
	courseID   string
	bookID     string
	noCache    bool
)

var rootCmd = &cobra.Command{
	Use:   "conceptmap",
	Short: "conceptmap - explore course concept maps",
	Long: Brand.Sprint("conceptmap") + " generates, explores and exports concept maps for courses and books\n" +
		Subtle.Sprint("Maps are cached locally; nodes can be expanded with AI-generated sub-concepts"),
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("conceptmap {{ .Version }}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default "+config.Path()+")")
	pf.StringVar(&backendURL, "backend-url", "", "generation service base URL")
	pf.StringVar(&token, "token", "", "bearer token for the generation service")
	pf.StringVar(&cacheDir, "cache-dir", "", "cache directory")
	pf.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&courseID, "course", "", "course id")
	pf.StringVar(&bookID, "book", "", "book id within the course")
	pf.BoolVar(&noCache, "no-cache", false, "bypass the local cache")

	rootCmd.AddCommand(
		viewCmd(),
		generateCmd(),
		exportCmd(),
		expandCmd(),
		infoCmd(),
		cacheCmd(),
		configCmd(),
	)
}

// app is the wiring shared by every command.
type app struct {
	cfg     *config.Config
	log     *logging.Logger
	client  *backend.Client
	cache   *cache.Manager
	logFile *os.File
}

// setup loads the config, applies flag overrides and opens the cache.
// With quiet set, logs go to a file so they do not corrupt the screen.
func setup(quiet bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if backendURL != "" {
		cfg.Backend.BaseURL = backendURL
	}
	if token != "" {
		cfg.Backend.Token = token
	}
	if cacheDir != "" {
		cfg.Cache.Dir = cacheDir
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	a := &app{cfg: cfg}
	a.log = logging.New()
	a.log.SetLevel(logging.ParseLevel(cfg.Log.Level))
	a.log.SetJSON(cfg.Log.Format == "json")

	logPath := cfg.Log.File
	if quiet && logPath == "" {
		logPath = filepath.Join(config.ConfigDir(), "conceptmap.log")
	}
	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		a.logFile = f
		a.log.SetOutput(f)
	}
	logging.SetDefault(a.log)

	a.client = backend.New(cfg.Backend.BaseURL,
		backend.WithToken(cfg.Backend.Token),
		backend.WithTimeout(cfg.Backend.Timeout.Duration),
		backend.WithLogger(a.log),
	)

	if cfg.Cache.Enabled {
		st, err := cache.Open(cfg.Cache.Backend, cfg.Cache.Dir, a.log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.cache = cache.NewManager(st, cache.Options{TTL: cfg.Cache.TTL.Duration, Logger: a.log})
	}
	return a, nil
}

// Close releases the cache and the log file.
func (a *app) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("closing cache: %v", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}

// session returns a session wired to the app's backend and cache. opts
// may add a dispatcher, scheduler or change callback.
func (a *app) session(opts engine.Options) *engine.Session {
	opts.Config = a.cfg
	if a.client != nil {
		opts.Backend = a.client
	}
	opts.Cache = a.cache
	opts.Logger = a.log
	return engine.New(opts)
}

// key builds the cache key from --course and --book.
func key() (cache.Key, error) {
	if courseID == "" {
		if bookID != "" {
			return cache.Key{}, errors.New("--book needs --course")
		}
		return cache.Key{}, engine.ErrNoCourse
	}
	return cache.Key{CourseID: courseID, BookID: bookID}, nil
}

// readDocument parses a json or yaml document from path, "-" meaning stdin.
func readDocument(path string) (*mindmap.Document, error) {
	var (
		data []byte
		err  error
	)
	format := mindmap.FormatFromPath(path)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
		format = mindmap.FormatJSON
		if trimmed := strings.TrimSpace(string(data)); trimmed != "" && trimmed[0] != '{' {
			format = mindmap.FormatYAML
		}
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return mindmap.Parse(data, format)
}

// load fills s from --file or from the course key.
func load(cmd *cobra.Command, s *engine.Session, file string, regenerate bool) error {
	if file != "" {
		doc, err := readDocument(file)
		if err != nil {
			return err
		}
		k, _ := key()
		return s.Show(k, doc, graph.LoadOptions{Source: engine.SourceFor(k)})
	}
	k, err := key()
	if err != nil {
		return err
	}
	if !regenerate {
		return s.Open(cmd.Context(), k)
	}
	doc, err := s.Fetch(cmd.Context(), k, true)
	if err != nil {
		return err
	}
	return s.Show(k, doc, graph.LoadOptions{Source: engine.SourceFor(k)})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(err)
		stop()
		os.Exit(1)
	}
}
