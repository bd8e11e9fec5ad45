package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/pflag"

	"github.com/sokinpui/livepad/internal/ai"
)

// Config holds all the command-line flag values.
type Config struct {
	ConfigPath  string
	Dir         string
	Prompt      string
	Model       string
	Watch       bool
	Buffer      bool
	NoAnimation bool
	Plain       bool
	Verbose     bool
	Headful     bool
	Yes         bool
	Theme       string

	// Mutually exclusive commands.
	Undo    bool
	Redo    bool
	Analyze string
	File    string
	Image   string
	Search  string
	Upload  string
	SetKey  string
	APIKey  string

	// Explicit is set for flags given on the command line.
	Explicit map[string]bool
}

// ParseFlags parses os.Args.
func ParseFlags() (*Config, error) {
	return Parse(os.Args[1:], os.Stderr)
}

// Parse defines and parses command-line flags using pflag.
func Parse(args []string, out io.Writer) (*Config, error) {
	cfg := &Config{Explicit: make(map[string]bool)}
	fs := pflag.NewFlagSet("livepad", pflag.ContinueOnError)
	fs.SetOutput(out)

	fs.StringVarP(&cfg.ConfigPath, "config", "c", "", "Path to the YAML config file (default ~/.config/livepad/config.yaml).")
	fs.StringVarP(&cfg.Dir, "dir", "d", "", "Project directory mirrored to disk (default: the current directory).")
	fs.StringVarP(&cfg.Prompt, "prompt", "p", "", "Edit request for the AI. Read from stdin (pipe) or clipboard when empty.")
	fs.StringVarP(&cfg.Model, "model", "m", "", "AI model id.")
	fs.BoolVarP(&cfg.Watch, "watch", "w", false, "Run the live preview session until interrupted.")
	fs.BoolVarP(&cfg.Buffer, "buffer", "b", false, "Update buffers in Neovim without saving them to disk (changes are saved by default).")
	fs.BoolVar(&cfg.NoAnimation, "no-animation", false, "Apply edits in one step instead of typing them out.")
	fs.BoolVar(&cfg.Plain, "plain", false, "Print plain output instead of the interactive view.")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Log at debug level.")
	fs.BoolVar(&cfg.Headful, "headful", false, "Show the preview browser window.")
	fs.BoolVarP(&cfg.Yes, "yes", "y", false, "Overwrite existing files without asking.")
	fs.StringVar(&cfg.Theme, "theme", "", "Store the display theme: dark or light.")

	fs.BoolVarP(&cfg.Undo, "undo", "u", false, "Undo the last operation.")
	fs.BoolVarP(&cfg.Redo, "redo", "r", false, "Redo the last undone operation.")
	fs.StringVarP(&cfg.Analyze, "analyze", "a", "", "Analyze --file: explain, bugs, refactor or comment.")
	fs.StringVarP(&cfg.File, "file", "f", "", "Project file for --analyze.")
	fs.StringVarP(&cfg.Image, "image", "i", "", "Ask about an image file; the prompt is the question.")
	fs.StringVarP(&cfg.Search, "search", "s", "", "Answer a question with web search.")
	fs.StringVar(&cfg.Upload, "upload", "", "Add a local file to the project.")
	fs.StringVar(&cfg.SetKey, "set-key", "", "Store the AI API key.")
	fs.StringVar(&cfg.APIKey, "api-key", "", "AI API key for this run (overrides GEMINI_API_KEY and the stored key).")

	fs.Usage = func() {
		fmt.Fprintln(out, "Usage: livepad [flags]")
		fmt.Fprintln(out, "\nEdit a small HTML/CSS/JS project in Neovim with a live preview and an AI assistant.")
		fmt.Fprintln(out, "\nExample: livepad -p 'make the heading blue'")
		fmt.Fprintln(out, "\nFlags:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *pflag.Flag) {
		cfg.Explicit[f.Name] = true
	})
	if fs.NArg() > 0 && cfg.Prompt == "" {
		cfg.Prompt = strings.Join(fs.Args(), " ")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks flag combinations.
func (c *Config) Validate() error {
	var commands []string
	for name, set := range map[string]bool{
		"--undo":    c.Undo,
		"--redo":    c.Redo,
		"--analyze": c.Analyze != "",
		"--image":   c.Image != "",
		"--search":  c.Search != "",
		"--upload":  c.Upload != "",
		"--set-key": c.SetKey != "",
		"--watch":   c.Watch,
	} {
		if set {
			commands = append(commands, name)
		}
	}
	if len(commands) > 1 {
		sort.Strings(commands)
		return fmt.Errorf("error: %s are mutually exclusive", strings.Join(commands, " and "))
	}
	if c.Analyze != "" {
		if !ai.Action(c.Analyze).Valid() {
			return fmt.Errorf("error: --analyze must be one of explain, bugs, refactor, comment")
		}
		if c.File == "" {
			return fmt.Errorf("error: --analyze needs --file")
		}
	}
	if c.Theme != "" && c.Theme != "dark" && c.Theme != "light" {
		return fmt.Errorf("error: --theme must be dark or light")
	}
	if c.File != "" && c.Analyze == "" {
		return fmt.Errorf("error: --file is only used with --analyze")
	}
	return nil
}
