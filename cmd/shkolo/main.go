package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/smileynet/shkolo/internal/auth"
	"github.com/smileynet/shkolo/internal/cache"
	"github.com/smileynet/shkolo/internal/config"
	"github.com/smileynet/shkolo/internal/logging"
	"github.com/smileynet/shkolo/internal/refresh"
	"github.com/smileynet/shkolo/internal/shkolo"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Globals are the flags shared by every command.
type Globals struct {
	Refresh  bool   `help:"Refetch every dataset once, ignoring the cache." short:"r"`
	NoCache  bool   `help:"Bypass the cache for reads. Results are still cached." name:"no-cache"`
	CacheTTL int    `help:"Cache TTL in seconds (default 3600)." name:"cache-ttl"`
	Config   string `help:"Extra config file layered over the defaults." type:"path"`
}

// CLI is the top-level command structure for shkolo.
type CLI struct {
	Globals

	Version     kong.VersionFlag `help:"Show version." short:"V"`
	Dashboard   DashboardCmd     `cmd:"" aliases:"tui" help:"Open the interactive dashboard."`
	JSON        JSONCmd          `cmd:"" name:"json" help:"Print school records as JSON."`
	Cache       CacheCmd         `cmd:"" help:"Show or manage the local cache."`
	Status      StatusCmd        `cmd:"" help:"Show sign-in and cache status."`
	Login       LoginCmd         `cmd:"" help:"Sign in with username and password."`
	Logout      LogoutCmd        `cmd:"" help:"Sign out and forget the stored token."`
	ImportToken ImportTokenCmd   `cmd:"" name:"import-token" help:"Store a token obtained elsewhere."`
}

// loadConfig loads layered config from user and project paths, then applies
// .env, environment and flag overrides.
func (g *Globals) loadConfig() (*config.Config, error) {
	if err := config.LoadEnvFile(".env"); err != nil {
		return nil, err
	}
	userDir := os.ExpandEnv("$HOME/.config/shkolo")
	paths := []string{
		filepath.Join(userDir, "config.yaml"),
		filepath.Join(userDir, "config.toml"),
		".shkolo.yaml",
	}
	if g.Config != "" {
		paths = append(paths, g.Config)
	}
	cfg, err := config.LoadLayered(paths...)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if g.CacheTTL < 0 {
		return nil, fmt.Errorf("--cache-ttl must be positive, got %d", g.CacheTTL)
	}
	if g.CacheTTL > 0 {
		cfg.Cache.TTL = time.Duration(g.CacheTTL) * time.Second
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// policy is the refresh policy selected by the global flags.
func (g *Globals) policy(cfg *config.Config) refresh.Policy {
	return refresh.Policy{
		TTL:             cfg.Cache.TTL,
		BypassCache:     g.NoCache,
		ForceRefreshAll: g.Refresh,
	}
}

// env is the wiring shared by commands that touch the cache.
type env struct {
	cfg   *config.Config
	log   *zap.Logger
	store *cache.Store
}

// open loads config, starts the file logger and opens the cache.
func (g *Globals) open() (*env, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	log := logging.NewOrNop(cfg.Log)
	store, err := cache.Open(cfg.Cache.Dir, cache.WithLogger(log))
	if err != nil {
		return nil, err
	}
	for _, lerr := range store.LoadErrors() {
		log.Warn("skipping cache record", zap.Error(lerr))
	}
	return &env{cfg: cfg, log: log, store: store}, nil
}

func (e *env) close() {
	_ = e.log.Sync()
}

// client builds an API client for cred.
func (e *env) client(cred auth.Credential) *shkolo.Client {
	return shkolo.New(
		shkolo.WithBaseURL(e.cfg.API.BaseURL),
		shkolo.WithUserAgent(e.cfg.API.UserAgent),
		shkolo.WithTimeout(e.cfg.API.Timeout),
		shkolo.WithCredentials(cred.Token, cred.SchoolYear),
		shkolo.WithLogger(e.log),
	)
}

// credential loads the stored sign-in, or fails with auth.ErrNotLoggedIn.
func (e *env) credential() (auth.Credential, error) {
	cred, err := auth.Load(e.cfg.Cache.Dir)
	if err != nil {
		if errors.Is(err, auth.ErrNotLoggedIn) {
			return cred, fmt.Errorf("%w: run 'shkolo login' or 'shkolo import-token'", err)
		}
		return cred, err
	}
	return cred, nil
}

const (
	exitSuccess = 0
	exitFetch   = 1
	exitSetup   = 2
)

// exitCode maps an error to the process exit code: 1 for failures talking
// to the service or missing sign-in, 2 for everything else.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var (
		fe *refresh.FetchError
		ae *shkolo.APIError
	)
	switch {
	case errors.As(err, &fe), errors.As(err, &ae):
		return exitFetch
	case errors.Is(err, auth.ErrNotLoggedIn), errors.Is(err, shkolo.ErrNoToken), errors.Is(err, refresh.ErrAuthExpired):
		return exitFetch
	}
	return exitSetup
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("shkolo"),
		kong.Description("Cached dashboard for Shkolo school records."),
		kong.Vars{"version": version + " " + commit + " " + date},
	)
	err := ctx.Run(&cli.Globals)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(exitCode(err))
	}
}
