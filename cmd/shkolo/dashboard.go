package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"

	"github.com/smileynet/shkolo/internal/cache"
	"github.com/smileynet/shkolo/internal/dashboard"
	"github.com/smileynet/shkolo/internal/i18n"
	"github.com/smileynet/shkolo/internal/refresh"
)

// shutdownGrace is how long the dashboard waits on exit for in-flight
// fetches to land in the cache.
const shutdownGrace = 2 * time.Second

// DashboardCmd opens the interactive dashboard.
type DashboardCmd struct {
	Lang string `help:"Interface language (bg or en). Overrides the config."`
}

// teaRunner abstracts Bubble Tea program execution for testing.
type teaRunner interface {
	Run() (tea.Model, error)
}

// Run builds real dependencies and launches the dashboard TUI.
func (d *DashboardCmd) Run(g *Globals) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return fmt.Errorf("dashboard: requires a terminal (TTY)")
	}

	e, err := g.open()
	if err != nil {
		return err
	}
	defer e.close()

	cred, err := e.credential()
	if err != nil {
		return err
	}
	if cred.Expired(time.Now()) {
		fmt.Fprintln(os.Stderr, "warning: stored token has expired; showing cached data. Run 'shkolo login' to refresh.")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := e.client(cred)
	coord := refresh.New(e.store, client, g.policy(e.cfg),
		refresh.WithLogger(e.log),
		refresh.WithContext(ctx),
	)

	lang := e.cfg.UI.Language
	if d.Lang != "" {
		lang = d.Lang
	}
	opts := []dashboard.Option{
		dashboard.WithSender(client),
		dashboard.WithLogger(e.log),
	}
	if w, err := cache.Watch(e.store); err != nil {
		e.log.Warn("cache watcher disabled", zap.Error(err))
	} else {
		defer func() { _ = w.Close() }()
		opts = append(opts, dashboard.WithChanges(w.Changes()))
	}

	state := dashboard.NewState(time.Now(), i18n.Parse(lang), e.cfg.UI.PaneRatio)
	m := dashboard.NewModel(state, e.store, coord, opts...)
	prog := tea.NewProgram(m, tea.WithAltScreen())

	runErr := d.run(true, prog)
	drain(coord, shutdownGrace)
	return runErr
}

// run executes the tea program, enabling testable wiring.
func (d *DashboardCmd) run(isTTY bool, prog teaRunner) error {
	if !isTTY {
		return fmt.Errorf("dashboard: requires a terminal (TTY)")
	}
	_, err := prog.Run()
	return err
}

// drain stops event delivery and gives running fetches up to grace to
// store their results.
func drain(coord *refresh.Coordinator, grace time.Duration) {
	coord.Close()
	done := make(chan struct{})
	go func() {
		coord.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
	}
}
