package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/manash/imgedit/internal/config"
	"github.com/manash/imgedit/internal/display"
	"github.com/manash/imgedit/internal/history"
	"github.com/manash/imgedit/internal/image"
	"github.com/manash/imgedit/internal/keys"
	"github.com/manash/imgedit/internal/preview"
	"github.com/manash/imgedit/internal/provider"
	"github.com/manash/imgedit/internal/provider/openai"
	"github.com/manash/imgedit/internal/repl"
	"github.com/manash/imgedit/internal/session"
	"github.com/manash/imgedit/pkg/models"
)

var (
	version = "dev"
	commit  = "none"
)

const (
	providerName = "openai"
	apiKeyEnv    = "OPENAI_API_KEY"
)

type App struct {
	In          io.Reader
	Out         io.Writer
	Err         io.Writer
	Registry    *models.ModelRegistry
	ConfigDir   func() (string, error)
	NewProvider func(cfg *provider.Config, registry *models.ModelRegistry) (provider.Provider, error)
	NewSaver    func() *image.Saver
	CanShow     func(io.Writer) bool
}

func DefaultApp() *App {
	return &App{
		In:        os.Stdin,
		Out:       os.Stdout,
		Err:       os.Stderr,
		Registry:  models.DefaultRegistry(),
		ConfigDir: keys.ConfigDir,
		NewProvider: func(cfg *provider.Config, registry *models.ModelRegistry) (provider.Provider, error) {
			return openai.New(cfg, registry)
		},
		NewSaver: image.NewSaver,
		CanShow:  display.CanShow,
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	app := DefaultApp()
	return newRootCmd(app).Execute()
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imgedit",
		Short: "Edit images with AI from the terminal",
		Long: `imgedit loads a photo, applies a natural-language edit through an AI
image-edit API and shows the result in the terminal.

Without a subcommand it starts an interactive session:
  upload photo.png
  prompt "make the sky purple"
  submit

Settings come from config.toml in the config directory, IMGEDIT_* environment
variables and flags, in rising priority.`,
		Args:          cobra.NoArgs,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteractive(cmd, app)
		},
	}
	cmd.SetOut(app.Out)
	cmd.SetErr(app.Err)
	cmd.SetIn(app.In)

	flags := cmd.PersistentFlags()
	flags.StringP("model", "m", "", "edit model (gpt-image-1, dall-e-2)")
	flags.StringP("format", "f", "", "result format (png, jpeg, webp)")
	flags.String("api-key", "", "API key (defaults to stored key, then "+apiKeyEnv+")")
	flags.BoolP("verbose", "v", false, "log requests and session events to stderr")

	cmd.AddCommand(newEditCmd(app))
	cmd.AddCommand(newKeysCmd(app))
	return cmd
}

func newEditCmd(app *App) *cobra.Command {
	var output string
	var show bool

	cmd := &cobra.Command{
		Use:   "edit <image> <prompt>",
		Short: "Apply one edit to an image and save the result",
		Example: `  imgedit edit cat.png "give the cat a wizard hat"
  imgedit edit -o hat.webp -f webp cat.png "wizard hat"`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(cmd, app, args[0], strings.Join(args[1:], " "), output, show)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output filename (default edit-<timestamp>.<format>)")
	cmd.Flags().BoolVarP(&show, "show", "S", false, "display the result in the terminal (Kitty graphics protocol)")
	return cmd
}

// workspace is everything one command needs to drive an edit session.
type workspace struct {
	cfg      *config.Config
	editor   *provider.ModelEditor
	session  *session.Manager
	saver    *image.Saver
	previews *preview.Pool
}

func (w *workspace) Close() {
	w.session.Close()
	_ = w.previews.Close()
}

func (app *App) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	dir, err := app.ConfigDir()
	if err != nil {
		return nil, err
	}

	v := config.New(dir)
	bindings := map[string]string{
		"model":   config.KeyModel,
		"format":  config.KeyFormat,
		"api-key": config.KeyAPIKey,
		"verbose": config.KeyVerbose,
	}
	for flag, key := range bindings {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		v.Set(key, f.Value.String())
	}
	return config.Load(v)
}

func (app *App) newWorkspace(cmd *cobra.Command) (*workspace, error) {
	cfg, err := app.loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(app.Err, &slog.HandlerOptions{Level: level}))

	dir, err := app.ConfigDir()
	if err != nil {
		return nil, err
	}
	apiKey, source, err := keys.NewStoreAt(dir).Resolve(cfg.APIKey, providerName, apiKeyEnv)
	if err != nil {
		return nil, err
	}
	logger.Debug("api key resolved", "source", source)

	providerCfg := &provider.Config{
		APIKey:     apiKey,
		BaseURL:    cfg.BaseURL,
		TimeoutSec: int(cfg.Timeout.Seconds()),
		Verbose:    cfg.Verbose,
		DebugOut:   app.Err,
	}
	prov, err := app.NewProvider(providerCfg, app.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	factory := provider.NewFactory(app.Registry)
	factory.Configure(prov.Name(), providerCfg)
	factory.Register(prov)

	saver := app.NewSaver()
	editor, err := provider.NewModelEditor(factory, saver, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("model %q: %w (edit models: %v)", cfg.Model, err, app.Registry.ListEditable())
	}
	if err := editor.SetFormat(cfg.Format); err != nil {
		return nil, err
	}

	previews := preview.NewPool()
	if cfg.PreviewDir != "" {
		if previews, err = preview.NewDirPool(cfg.PreviewDir); err != nil {
			return nil, err
		}
	}

	mgr := session.NewManager(&session.Config{
		Editor:   editor,
		History:  history.NewStore(cfg.HistoryLimit),
		Previews: previews,
		Logger:   logger,
		Tracer:   otel.Tracer("github.com/manash/imgedit"),
	})
	if cfg.File != "" {
		logger.Debug("config loaded", "file", cfg.File)
	}

	return &workspace{cfg: cfg, editor: editor, session: mgr, saver: saver, previews: previews}, nil
}

func runInteractive(cmd *cobra.Command, app *App) error {
	ws, err := app.newWorkspace(cmd)
	if err != nil {
		return err
	}
	defer ws.Close()

	r := repl.New(&repl.Config{
		In:       app.In,
		Out:      app.Out,
		Err:      app.Err,
		Session:  ws.session,
		Editor:   ws.editor,
		Registry: app.Registry,
		Saver:    ws.saver,
		Preview:  app.CanShow(app.Out),
	})
	return r.Run(cmd.Context())
}

func runEdit(cmd *cobra.Command, app *App, imagePath, prompt, output string, show bool) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ws, err := app.newWorkspace(cmd)
	if err != nil {
		return err
	}
	defer ws.Close()

	if _, err := ws.session.UploadFile(imagePath); err != nil {
		return err
	}
	ws.session.SetPrompt(prompt)

	sub, err := ws.session.Submit(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(app.Out, "Editing %s with %s...\n", imagePath, ws.editor.Model())
	outcome, err := sub.Wait(ctx)
	if err != nil {
		return err
	}
	if outcome.IsFailure() {
		return fmt.Errorf("%s", outcome.Message)
	}

	result := outcome.Result
	if output == "" {
		format, ok := models.FormatFromMIME(result.MimeType())
		if !ok {
			format = ws.editor.Format()
		}
		output = image.GenerateFilename(format)
	}
	if err := ws.saver.SaveAsset(result, output); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}

	if show {
		if err := display.New(app.Out).Show(result); err != nil {
			fmt.Fprintf(app.Err, "Warning: failed to display: %v\n", err)
		}
	}

	fmt.Fprintf(app.Out, "Saved: %s\n", output)
	return nil
}
