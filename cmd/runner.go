package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/repositories"
	"github.com/desertthunder/spotsync/internal/server"
	"github.com/desertthunder/spotsync/internal/services"
	"github.com/desertthunder/spotsync/internal/shared"
	"github.com/desertthunder/spotsync/internal/tasks"
	"github.com/desertthunder/spotsync/internal/ui"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"
)

// ConfirmFunc asks the user to approve an erase plan.
type ConfirmFunc func(ctx context.Context, plan *tasks.ErasePlan) (bool, error)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The session manager, the engine and the journal are built lazily so that
// commands which never touch Spotify (history, snapshot show) work without credentials.
type Runner struct {
	config      *shared.Config
	configPath  string
	configFixed bool
	logger      *log.Logger
	output      io.Writer
	errOutput   io.Writer
	interactive bool
	cleanCache  bool
	authorizer  services.Authorizer
	transport   func(baseURL string, c *http.Client) services.Transport
	clientOpts  []services.ClientOption
	engineSleep func(ctx context.Context, d time.Duration) error
	confirm     ConfirmFunc
	terminal    func() bool
	sessions    *services.SessionManager
	db          *sql.DB
	closers     []io.Closer
}

// RunnerOpts contains configuration options for creating a Runner.
//
// A non-nil Config is used as is: the --config flag and .env files are then ignored.
type RunnerOpts struct {
	Config        *shared.Config
	Logger        *log.Logger
	Output        io.Writer
	ErrOutput     io.Writer
	Authorizer    services.Authorizer
	Transport     func(baseURL string, c *http.Client) services.Transport
	ClientOptions []services.ClientOption
	EngineSleep   func(ctx context.Context, d time.Duration) error
	Confirm       ConfirmFunc
	Terminal      func() bool
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	r := &Runner{
		config:      opts.Config,
		configFixed: opts.Config != nil,
		logger:      opts.Logger,
		output:      opts.Output,
		errOutput:   opts.ErrOutput,
		authorizer:  opts.Authorizer,
		transport:   opts.Transport,
		clientOpts:  opts.ClientOptions,
		engineSleep: opts.EngineSleep,
		confirm:     opts.Confirm,
		terminal:    opts.Terminal,
	}

	if r.config == nil {
		r.config = shared.DefaultConfig()
	}
	if r.errOutput == nil {
		r.errOutput = os.Stderr
	}
	if r.logger == nil {
		r.logger = shared.NewLogger(r.errOutput)
	}
	if r.output == nil {
		r.output = os.Stdout
	}
	if r.confirm == nil {
		r.confirm = confirmErase
	}
	if r.terminal == nil {
		r.terminal = stdinIsTerminal
	}
	return r
}

// Before loads the configuration and applies the logging section ahead of every command.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	r.interactive = cmd.Bool("interactive")
	r.cleanCache = cmd.Bool("clean-cache")
	r.configPath = cmd.String("config")

	if !r.configFixed {
		if err := r.loadConfig(); err != nil {
			return ctx, err
		}
	}

	closer, err := shared.ConfigureLogger(r.logger, r.errOutput, r.config.Logging, cmd.Bool("debug"))
	if err != nil {
		return ctx, err
	}
	r.closers = append(r.closers, closer)

	// The progress view owns the terminal; logs go to the rotating file only.
	if r.interactive {
		if w, ok := closer.(io.Writer); ok {
			r.logger.SetOutput(w)
		} else {
			r.logger.SetOutput(io.Discard)
		}
	}
	return ctx, nil
}

// After releases the journal database and the log file.
func (r *Runner) After(ctx context.Context, cmd *cli.Command) error {
	return r.Close()
}

// Close releases everything the runner opened. It is safe to call more than once.
func (r *Runner) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers, r.db = nil, nil
	return errors.Join(errs...)
}

func (r *Runner) loadConfig() error {
	if _, err := os.Stat(r.configPath); err == nil {
		cfg, err := shared.LoadConfig(r.configPath)
		if err != nil {
			return err
		}
		r.config = cfg
	} else {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
		r.config = shared.DefaultConfig()
	}
	return r.config.ApplyEnv(".env")
}

func (r *Runner) sessionManager() (*services.SessionManager, error) {
	if r.sessions != nil {
		return r.sessions, nil
	}
	if err := r.config.Validate(); err != nil {
		return nil, err
	}

	authorizer := r.authorizer
	if authorizer == nil {
		a, err := server.NewBrowserAuthorizer(r.config.Credentials.Spotify.RedirectURI, r.config.Server, r.logger)
		if err != nil {
			return nil, err
		}
		a.Out = r.errOutput
		authorizer = a
	}

	api := r.config.API
	clientOpts := append([]services.ClientOption{
		services.WithRetryPolicy(services.RetryPolicyFromConfig(api)),
		services.WithLimiter(rate.NewLimiter(rate.Limit(api.RequestsPerSecond), api.Burst)),
		services.WithLogger(r.logger),
	}, r.clientOpts...)

	sessions, err := services.NewSessionManager(services.SessionManagerOpts{
		Credentials:   r.config.Credentials.Spotify,
		Cache:         services.NewTokenCache(r.config.Cache.Dir),
		Authorizer:    authorizer,
		Timeout:       time.Duration(api.AuthTimeoutSeconds) * time.Second,
		BaseURL:       api.BaseURL,
		ClientOptions: clientOpts,
		Logger:        r.logger,
		NewTransport:  r.transport,
	})
	if err != nil {
		return nil, err
	}
	r.sessions = sessions
	return sessions, nil
}

// identity resolves --account, falling back to the configured account for op.
func (r *Runner) identity(cmd *cli.Command, op string) string {
	if id := cmd.String("account"); id != "" {
		return id
	}
	return r.config.Accounts.Identity(op)
}

func (r *Runner) session(ctx context.Context, cmd *cli.Command, op string) (*services.AuthSession, error) {
	sessions, err := r.sessionManager()
	if err != nil {
		return nil, err
	}
	return sessions.Authenticate(ctx, r.identity(cmd, op), r.cleanCache)
}

// runs opens the journal database on first use.
func (r *Runner) runs() (*repositories.RunRepository, error) {
	if r.db == nil {
		db, err := shared.OpenJournal(r.config.Database)
		if err != nil {
			return nil, err
		}
		r.db = db
		r.closers = append(r.closers, db)
	}
	return repositories.NewRunRepository(r.db), nil
}

// newEngine builds an engine from the api section. A journal that cannot be
// opened only costs the run history, never the operation.
func (r *Runner) newEngine(configure ...func(*tasks.EngineOpts)) *tasks.Engine {
	opts := tasks.EngineOptsFromConfig(r.config.API)
	opts.Logger = r.logger
	opts.Sleep = r.engineSleep

	if journal, err := r.runs(); err != nil {
		r.logger.Warn("run journal unavailable", "path", r.config.Database.Path, "error", err)
	} else {
		opts.Journal = journal
	}

	for _, fn := range configure {
		fn(&opts)
	}
	return tasks.NewEngine(opts)
}

// run executes op behind the progress view when --interactive is set.
func (r *Runner) run(ctx context.Context, title string, op ui.Operation) (*tasks.Report, error) {
	if r.interactive {
		return ui.RunProgress(ctx, title, op)
	}
	return op(ctx, nil)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return errors.Wrap(err, "failed to marshal JSON")
	}

	if _, err := r.output.Write(output); err != nil {
		return errors.Wrap(err, "failed to write output")
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return errors.Wrap(err, "failed to write newline")
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return errors.Wrap(err, "failed to write output")
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return errors.Wrap(err, "failed to write output")
	}
	return nil
}

func stdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
