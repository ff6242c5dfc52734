package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/manash/imgedit/internal/display"
	"github.com/manash/imgedit/internal/image"
	"github.com/manash/imgedit/internal/session"
	"github.com/manash/imgedit/pkg/models"
)

// ModelSelector is the part of the editor the REPL can reconfigure.
type ModelSelector interface {
	Model() string
	SetModel(name string) error
	Format() models.OutputFormat
	SetFormat(format models.OutputFormat) error
}

type REPL struct {
	in        io.Reader
	out       io.Writer
	err       io.Writer
	session   *session.Manager
	editor    ModelSelector
	registry  *models.ModelRegistry
	displayer *display.Displayer
	saver     *image.Saver
	preview   bool
	commands  map[string]Command
	running   bool

	errColor  *color.Color
	okColor   *color.Color
	dimColor  *color.Color
	warnColor *color.Color
}

type Config struct {
	In       io.Reader
	Out      io.Writer
	Err      io.Writer
	Session  *session.Manager
	Editor   ModelSelector
	Registry *models.ModelRegistry
	Saver    *image.Saver
	// Preview enables inline kitty rendering on Out.
	Preview bool
}

func New(cfg *Config) *REPL {
	registry := cfg.Registry
	if registry == nil {
		registry = models.DefaultRegistry()
	}
	saver := cfg.Saver
	if saver == nil {
		saver = image.NewSaver()
	}

	r := &REPL{
		in:        cfg.In,
		out:       cfg.Out,
		err:       cfg.Err,
		session:   cfg.Session,
		editor:    cfg.Editor,
		registry:  registry,
		displayer: display.New(cfg.Out),
		saver:     saver,
		preview:   cfg.Preview,
		commands:  make(map[string]Command),
		errColor:  color.New(color.FgRed),
		okColor:   color.New(color.FgGreen),
		dimColor:  color.New(color.Faint),
		warnColor: color.New(color.FgYellow),
	}
	r.registerCommands()
	return r
}

func (r *REPL) Run(ctx context.Context) error {
	r.running = true
	r.printWelcome()

	scanner := bufio.NewScanner(r.in)
	for r.running {
		r.printPrompt()
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if err := r.execute(ctx, line); err != nil {
			r.errColor.Fprintf(r.err, "Error: %v\n", err)
		}
		if ctx.Err() != nil {
			break
		}
	}

	return scanner.Err()
}

func (r *REPL) execute(ctx context.Context, line string) error {
	parts := parseCommand(line)
	if len(parts) == 0 {
		return nil
	}

	cmdName := strings.ToLower(parts[0])
	args := parts[1:]

	cmd, ok := r.commands[cmdName]
	if !ok {
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", cmdName)
	}

	return cmd.Execute(ctx, r, args)
}

func (r *REPL) Stop() {
	r.running = false
}

func (r *REPL) printWelcome() {
	fmt.Fprintln(r.out, "imgedit interactive mode")
	fmt.Fprintln(r.out, "Upload an image, set a prompt, then 'submit'. Type 'help' for commands.")
	fmt.Fprintln(r.out)
}

func (r *REPL) printPrompt() {
	phase := r.session.Phase()
	if phase == session.PhaseIdle {
		fmt.Fprintf(r.out, "imgedit [%s]> ", r.model())
		return
	}
	fmt.Fprintf(r.out, "imgedit [%s] %s> ", r.model(), r.dimColor.Sprintf("(%s)", phase))
}

func (r *REPL) model() string {
	if r.editor == nil {
		return "none"
	}
	return r.editor.Model()
}

func (r *REPL) warnf(format string, args ...any) {
	r.warnColor.Fprintf(r.err, "Warning: "+format+"\n", args...)
}

// show renders an asset inline, or points at its preview file when the
// terminal cannot draw images.
func (r *REPL) show(asset models.ImageAsset, previewURI string) {
	if r.preview {
		if err := r.displayer.Show(asset); err != nil {
			r.warnf("failed to display: %v", err)
		}
		return
	}
	if strings.HasPrefix(previewURI, "file://") {
		fmt.Fprintf(r.out, "Preview: %s\n", previewURI)
	}
}

func parseCommand(line string) []string {
	var parts []string
	var current strings.Builder
	inQuotes := false
	quoteChar := rune(0)

	for _, ch := range line {
		switch {
		case ch == '"' || ch == '\'':
			if inQuotes && ch == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else if !inQuotes {
				inQuotes = true
				quoteChar = ch
			} else {
				current.WriteRune(ch)
			}
		case ch == ' ' && !inQuotes:
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(ch)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
