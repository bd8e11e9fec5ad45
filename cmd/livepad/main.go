package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/sokinpui/livepad/cli"
	"github.com/sokinpui/livepad/internal/config"
	"github.com/sokinpui/livepad/internal/logging"
	"github.com/sokinpui/livepad/internal/store"
	"github.com/sokinpui/livepad/internal/tui"
	"github.com/sokinpui/livepad/internal/ui"
	"github.com/sokinpui/livepad/livepad"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := cli.ParseFlags()
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	configPath, explicit := cfg.ConfigPath, cfg.ConfigPath != ""
	if !explicit {
		configPath = config.DefaultPath()
	}
	conf, err := config.Load(configPath, explicit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if conf.Nvim.ListenAddress != "" && os.Getenv("NVIM_LISTEN_ADDRESS") == "" {
		os.Setenv("NVIM_LISTEN_ADDRESS", conf.Nvim.ListenAddress)
	}

	log, err := logging.New(conf.LogPath, cfg.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := livepad.New(ctx, cfg, conf, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		return 1
	}
	defer app.Close()
	app.Confirm = func(name string) bool {
		return ui.Confirm(os.Stdin, fmt.Sprintf("%s already exists. Overwrite?", name))
	}

	theme := app.Settings().Theme(ctx)
	if cfg.Theme != "" {
		theme = store.Theme(cfg.Theme)
	}

	// Commands that prompt on stdin or print plain output do not run the TUI.
	if cfg.Plain || cfg.Upload != "" || cfg.SetKey != "" {
		ui.MarkdownStyle = string(theme)
		summary, err := app.Execute(ctx)
		ui.PrintSummary(summary)
		if err != nil {
			var detailed *livepad.DetailedError
			if errors.As(err, &detailed) {
				fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", detailed.Stack)
			}
			if summary.Message == "" {
				ui.Error("Error: %v", err)
			}
			return 1
		}
		return 0
	}

	model := tui.New(app, cfg.Watch, theme)
	var opts []tea.ProgramOption
	if cfg.Watch {
		opts = append(opts, tea.WithAltScreen())
	}
	p := tea.NewProgram(model, opts...)
	model.SetProgram(p)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		return 1
	}
	if model.Err() != nil {
		return 1
	}
	return 0
}
