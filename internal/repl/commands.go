package repl

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/manash/imgedit/internal/image"
	"github.com/manash/imgedit/internal/session"
	"github.com/manash/imgedit/pkg/models"
)

type Command interface {
	Name() string
	Aliases() []string
	Description() string
	Usage() string
	Execute(ctx context.Context, r *REPL, args []string) error
}

func allCommands() []Command {
	return []Command{
		&UploadCommand{},
		&PromptCommand{},
		&SubmitCommand{},
		&WaitCommand{},
		&StatusCommand{},
		&ShowCommand{},
		&SaveCommand{},
		&HistoryCommand{},
		&ReplayCommand{},
		&ClearCommand{},
		&ExportCommand{},
		&ModelCommand{},
		&FormatCommand{},
		&HelpCommand{},
		&QuitCommand{},
	}
}

func (r *REPL) registerCommands() {
	for _, cmd := range allCommands() {
		r.commands[cmd.Name()] = cmd
		for _, alias := range cmd.Aliases() {
			r.commands[alias] = cmd
		}
	}
}

// UploadCommand makes an image file the current image
type UploadCommand struct{}

func (c *UploadCommand) Name() string        { return "upload" }
func (c *UploadCommand) Aliases() []string   { return []string{"open", "o"} }
func (c *UploadCommand) Description() string { return "Load an image file as the current image" }
func (c *UploadCommand) Usage() string       { return "upload <path>" }

func (c *UploadCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	asset, err := r.session.UploadFile(args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(r.out, "Loaded: %s (%s, %d bytes)\n", asset.Name(), asset.MimeType(), asset.Size())
	r.show(asset, r.session.Snapshot().ImagePreview)
	return nil
}

// PromptCommand sets the edit instruction
type PromptCommand struct{}

func (c *PromptCommand) Name() string        { return "prompt" }
func (c *PromptCommand) Aliases() []string   { return []string{"p"} }
func (c *PromptCommand) Description() string { return "Set the edit prompt, or print it" }
func (c *PromptCommand) Usage() string       { return "prompt [text]" }

func (c *PromptCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		prompt := r.session.Snapshot().Prompt
		if prompt == "" {
			fmt.Fprintln(r.out, "No prompt set")
			return nil
		}
		fmt.Fprintf(r.out, "Prompt: %s\n", prompt)
		return nil
	}

	r.session.SetPrompt(strings.Join(args, " "))
	return nil
}

// SubmitCommand sends the current image and prompt to the editor
type SubmitCommand struct{}

func (c *SubmitCommand) Name() string        { return "submit" }
func (c *SubmitCommand) Aliases() []string   { return []string{"run", "go"} }
func (c *SubmitCommand) Description() string { return "Submit the edit; -b returns without waiting" }
func (c *SubmitCommand) Usage() string       { return "submit [-b]" }

func (c *SubmitCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	background := false
	for _, a := range args {
		switch a {
		case "-b", "--background":
			background = true
		default:
			return fmt.Errorf("usage: %s", c.Usage())
		}
	}

	sub, err := r.session.Submit(ctx)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRequest) {
			return fmt.Errorf("%w (use 'upload' and 'prompt' first)", err)
		}
		return err
	}

	if background {
		fmt.Fprintf(r.out, "Submitted edit #%d with %s\n", sub.Token, r.model())
		return nil
	}

	fmt.Fprintf(r.out, "Editing with %s...\n", r.model())
	if _, err := sub.Wait(ctx); err != nil {
		return err
	}
	return r.report(sub)
}

// WaitCommand blocks until the latest submission finishes
type WaitCommand struct{}

func (c *WaitCommand) Name() string        { return "wait" }
func (c *WaitCommand) Aliases() []string   { return []string{"w"} }
func (c *WaitCommand) Description() string { return "Wait for the latest submitted edit" }
func (c *WaitCommand) Usage() string       { return "wait" }

func (c *WaitCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	sub, err := r.session.Wait(ctx)
	if err != nil {
		return err
	}
	return r.report(sub)
}

// report prints what happened to a finished submission.
func (r *REPL) report(sub *session.Submission) error {
	if !sub.Applied() {
		fmt.Fprintf(r.out, "Edit #%d discarded: the session changed while it was running\n", sub.Token)
		return nil
	}

	outcome := sub.Outcome()
	if outcome.IsFailure() {
		return errors.New(outcome.Message)
	}

	r.okColor.Fprintf(r.out, "Done: %s (%d bytes)\n", outcome.Result.Name(), outcome.Result.Size())
	r.show(outcome.Result, r.session.Snapshot().ResultPreview)
	return nil
}

// StatusCommand prints the current session state
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Aliases() []string   { return []string{"st"} }
func (c *StatusCommand) Description() string { return "Show the current image, prompt and outcome" }
func (c *StatusCommand) Usage() string       { return "status" }

func (c *StatusCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	snap := r.session.Snapshot()

	current := "none"
	if snap.HasImage() {
		current = fmt.Sprintf("%s (%s, %d bytes)", snap.Image.Name(), snap.Image.MimeType(), snap.Image.Size())
	}
	prompt := snap.Prompt
	if prompt == "" {
		prompt = "none"
	}

	fmt.Fprintf(r.out, "Session:  %s\n", r.session.ID())
	fmt.Fprintf(r.out, "Model:    %s\n", r.model())
	fmt.Fprintf(r.out, "Image:    %s\n", current)
	fmt.Fprintf(r.out, "Prompt:   %s\n", prompt)
	fmt.Fprintf(r.out, "Phase:    %s\n", snap.Phase)

	switch snap.Outcome.Kind {
	case session.OutcomePending:
		fmt.Fprintf(r.out, "Outcome:  pending (edit #%d)\n", snap.InFlight)
	case session.OutcomeSuccess:
		fmt.Fprintf(r.out, "Outcome:  %s\n", r.okColor.Sprint(snap.Outcome.Result.Name()))
	case session.OutcomeFailure:
		fmt.Fprintf(r.out, "Outcome:  %s\n", r.errColor.Sprint(snap.Outcome.Message))
	default:
		fmt.Fprintln(r.out, "Outcome:  none")
	}

	fmt.Fprintf(r.out, "History:  %d record(s)\n", len(r.session.History()))
	return nil
}

// ShowCommand renders the current image or result
type ShowCommand struct{}

func (c *ShowCommand) Name() string        { return "show" }
func (c *ShowCommand) Aliases() []string   { return []string{"display", "view"} }
func (c *ShowCommand) Description() string { return "Display the result, or the source image" }
func (c *ShowCommand) Usage() string       { return "show [source|result]" }

func (c *ShowCommand) Execute(_ context.Context, r *REPL, args []string) error {
	snap := r.session.Snapshot()

	which := "result"
	if len(args) > 0 {
		which = strings.ToLower(args[0])
	} else if !snap.Outcome.IsSuccess() {
		which = "source"
	}

	switch which {
	case "source":
		if !snap.HasImage() {
			return fmt.Errorf("no current image to display")
		}
		r.show(snap.Image, snap.ImagePreview)
	case "result":
		if !snap.Outcome.IsSuccess() {
			return fmt.Errorf("no result to display")
		}
		r.show(snap.Outcome.Result, snap.ResultPreview)
	default:
		return fmt.Errorf("usage: %s", c.Usage())
	}
	return nil
}

// SaveCommand writes the result, or the source image, to a file
type SaveCommand struct{}

func (c *SaveCommand) Name() string        { return "save" }
func (c *SaveCommand) Aliases() []string   { return []string{"s"} }
func (c *SaveCommand) Description() string { return "Save the result (or the source image) to a file" }
func (c *SaveCommand) Usage() string       { return "save [source] [filename]" }

func (c *SaveCommand) Execute(_ context.Context, r *REPL, args []string) error {
	snap := r.session.Snapshot()

	var asset models.ImageAsset
	if len(args) > 0 && strings.EqualFold(args[0], "source") {
		if !snap.HasImage() {
			return fmt.Errorf("no current image to save")
		}
		asset = snap.Image
		args = args[1:]
	} else {
		if !snap.Outcome.IsSuccess() {
			return fmt.Errorf("no result to save")
		}
		asset = snap.Outcome.Result
	}
	if len(args) > 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	destPath := ""
	if len(args) == 1 {
		destPath = args[0]
	} else {
		format, ok := models.FormatFromMIME(asset.MimeType())
		if !ok {
			format = models.FormatPNG
		}
		destPath = image.GenerateFilename(format)
	}

	if err := r.saver.SaveAsset(asset, destPath); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}

	fmt.Fprintf(r.out, "Saved: %s\n", destPath)
	return nil
}

// HistoryCommand lists completed edits
type HistoryCommand struct{}

func (c *HistoryCommand) Name() string        { return "history" }
func (c *HistoryCommand) Aliases() []string   { return []string{"h", "hist"} }
func (c *HistoryCommand) Description() string { return "List completed edits, newest first" }
func (c *HistoryCommand) Usage() string       { return "history" }

func (c *HistoryCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	records := r.session.History()
	if len(records) == 0 {
		fmt.Fprintln(r.out, "No history yet")
		return nil
	}

	snap := r.session.Snapshot()
	for i, rec := range records {
		marker := "  "
		if snap.Outcome.IsSuccess() && rec.Result.Equal(snap.Outcome.Result) && rec.Source.Equal(snap.Image) {
			marker = "> "
		}
		fmt.Fprintf(r.out, "%s[%d] %s %s %q\n",
			marker,
			i+1,
			rec.CreatedAt.Local().Format("15:04:05"),
			r.dimColor.Sprint(rec.ID[:10]),
			truncate(rec.Prompt, 50))
	}

	return nil
}

// ReplayCommand restores a past edit
type ReplayCommand struct{}

func (c *ReplayCommand) Name() string        { return "replay" }
func (c *ReplayCommand) Aliases() []string   { return []string{"r", "reapply"} }
func (c *ReplayCommand) Description() string { return "Restore a past edit's image, prompt and result" }
func (c *ReplayCommand) Usage() string       { return "replay <number|id>" }

func (c *ReplayCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	rec, err := r.session.Replay(args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(r.out, "Replayed %s: %q\n", rec.ID[:10], truncate(rec.Prompt, 50))
	r.show(rec.Result, r.session.Snapshot().ResultPreview)
	return nil
}

// ClearCommand resets the session
type ClearCommand struct{}

func (c *ClearCommand) Name() string        { return "clear" }
func (c *ClearCommand) Aliases() []string   { return []string{"reset"} }
func (c *ClearCommand) Description() string { return "Drop the image, prompt and result; history is kept" }
func (c *ClearCommand) Usage() string       { return "clear" }

func (c *ClearCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	r.session.Clear()
	fmt.Fprintln(r.out, "Cleared")
	return nil
}

// ExportCommand writes the history to a directory
type ExportCommand struct{}

func (c *ExportCommand) Name() string        { return "export" }
func (c *ExportCommand) Aliases() []string   { return nil }
func (c *ExportCommand) Description() string { return "Write history images and a manifest to a directory" }
func (c *ExportCommand) Usage() string       { return "export <dir>" }

func (c *ExportCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	manifest, err := image.Export(args[0], r.session.ID(), r.session.History())
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	fmt.Fprintf(r.out, "Exported %d record(s) to %s\n",
		len(manifest.Records), filepath.Join(args[0], image.ManifestName))
	return nil
}

// ModelCommand shows or changes the edit model
type ModelCommand struct{}

func (c *ModelCommand) Name() string        { return "model" }
func (c *ModelCommand) Aliases() []string   { return []string{"m"} }
func (c *ModelCommand) Description() string { return "Show or change the edit model" }
func (c *ModelCommand) Usage() string       { return "model [name]" }

func (c *ModelCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if r.editor == nil {
		return fmt.Errorf("no editor configured")
	}

	if len(args) == 0 {
		current := r.editor.Model()
		fmt.Fprintln(r.out, "Edit models:")
		for _, name := range r.registry.ListEditable() {
			marker := "  "
			if name == current {
				marker = "> "
			}
			fmt.Fprintf(r.out, "%s%s\n", marker, name)
		}
		return nil
	}

	if err := r.editor.SetModel(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Model set to: %s\n", r.editor.Model())
	return nil
}

// FormatCommand shows or changes the requested output format
type FormatCommand struct{}

func (c *FormatCommand) Name() string        { return "format" }
func (c *FormatCommand) Aliases() []string   { return []string{"f"} }
func (c *FormatCommand) Description() string { return "Show or change the result format" }
func (c *FormatCommand) Usage() string       { return "format [png|jpeg|webp]" }

func (c *FormatCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if r.editor == nil {
		return fmt.Errorf("no editor configured")
	}

	if len(args) == 0 {
		fmt.Fprintf(r.out, "Format: %s\n", r.editor.Format())
		return nil
	}

	if err := r.editor.SetFormat(models.OutputFormat(strings.ToLower(args[0]))); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Format set to: %s\n", r.editor.Format())
	return nil
}

// HelpCommand shows available commands
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Aliases() []string   { return []string{"?"} }
func (c *HelpCommand) Description() string { return "Show available commands" }
func (c *HelpCommand) Usage() string       { return "help" }

func (c *HelpCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	fmt.Fprintln(r.out, "Available commands:")
	fmt.Fprintln(r.out)

	for _, cmd := range allCommands() {
		aliases := ""
		if len(cmd.Aliases()) > 0 {
			aliases = fmt.Sprintf(" (%s)", strings.Join(cmd.Aliases(), ", "))
		}
		fmt.Fprintf(r.out, "  %-22s%s\n", cmd.Name()+aliases, cmd.Description())
		fmt.Fprintf(r.out, "  %-22sUsage: %s\n", "", cmd.Usage())
	}

	return nil
}

// QuitCommand exits the REPL
type QuitCommand struct{}

func (c *QuitCommand) Name() string        { return "quit" }
func (c *QuitCommand) Aliases() []string   { return []string{"exit", "q"} }
func (c *QuitCommand) Description() string { return "Exit interactive mode" }
func (c *QuitCommand) Usage() string       { return "quit" }

func (c *QuitCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	fmt.Fprintln(r.out, "Goodbye!")
	r.Stop()
	return nil
}

// truncate shortens s to maxLen runes, ending in "...".
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
