package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/rdioexport/internal/domain"
	"github.com/mmcdole/rdioexport/internal/tui"
	"github.com/mmcdole/rdioexport/internal/usersync"
	"golang.org/x/term"
)

// SyncCmd implements the 'sync' command.
type SyncCmd struct {
	Identifiers []string `arg:"" name:"identifier" help:"Email addresses or vanity names to export"`
	Output      string   `short:"o" help:"Directory for export files (defaults to export.dir)"`
}

func (s *SyncCmd) Run(root *CLI) error {
	e, err := root.open()
	if err != nil {
		return err
	}
	defer e.Close()

	source, err := e.newSource()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	factory := func(identifier string) (*usersync.Controller, error) {
		return usersync.NewController(ctx, identifier, source, e.store, e.controllerOptions()...)
	}
	finish := e.finishFunc(e.exportDir(s.Output))

	if !root.NoTUI && term.IsTerminal(int(os.Stdout.Fd())) {
		return runTUI(ctx, s.Identifiers, factory, finish)
	}
	return runPlain(ctx, os.Stdout, s.Identifiers, factory, finish)
}

// finishFunc saves the user's keys and writes the export into dir. Users
// whose keys were never loaded have nothing to export.
func (e *env) finishFunc(dir string) tui.FinishFunc {
	return func(c *usersync.Controller, _ usersync.Summary, _ error) (string, error) {
		keys := c.UserKeys()
		if keys == nil {
			return "", nil
		}
		if err := e.store.SaveUserKeys(c.Identifier(), keys); err != nil {
			e.logger.Error("failed to save user keys", "identifier", c.Identifier(), "error", err)
		}

		path := filepath.Join(dir, c.FileName())
		if err := c.ExportFile(path); err != nil {
			return "", err
		}
		return path, nil
	}
}

func runTUI(ctx context.Context, identifiers []string, factory tui.ControllerFactory, finish tui.FinishFunc) error {
	p := tea.NewProgram(tui.NewModel(identifiers, factory, finish), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}
	if m, ok := final.(tui.Model); ok {
		return m.Err()
	}
	return nil
}

// runPlain syncs identifiers one after another, printing a line per phase
func runPlain(
	ctx context.Context,
	w io.Writer,
	identifiers []string,
	factory tui.ControllerFactory,
	finish tui.FinishFunc,
) error {
	var errs []error
	for _, id := range identifiers {
		if ctx.Err() != nil {
			fmt.Fprintf(w, "%s: not started\n", id)
			continue
		}

		c, err := factory(id)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}

		sum, runErr := c.Run(&lineObserver{w: w})
		path, err := finish(c, sum, runErr)
		if runErr == nil {
			runErr = err
		}

		switch {
		case runErr != nil:
			fmt.Fprintf(w, "%s: failed at %s: %v\n", id, sum.State.Label(), runErr)
			errs = append(errs, fmt.Errorf("%s: %w", id, runErr))
		case sum.Cancelled:
			fmt.Fprintf(w, "%s: cancelled at %s, %d/%d objects\n", id, sum.State.Label(), sum.SyncedObjects, sum.TotalObjects)
		default:
			fmt.Fprintf(w, "%s: %d objects in %s\n", id, sum.TotalObjects, sum.Duration.Round(time.Millisecond))
		}
		if path != "" {
			fmt.Fprintf(w, "%s: wrote %s\n", id, path)
		}
	}
	return errors.Join(errs...)
}

// lineObserver prints one line whenever the sync enters a new state
type lineObserver struct {
	w    io.Writer
	mu   sync.Mutex
	last string
}

func (o *lineObserver) OnProgress(p domain.SyncProgress) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if p.Done || p.State == o.last {
		return
	}
	o.last = p.State
	label := p.State
	if s, ok := usersync.ParseState(p.State); ok {
		label = s.Label()
	}
	fmt.Fprintf(o.w, "%s: %s\n", p.Identifier, label)
}
