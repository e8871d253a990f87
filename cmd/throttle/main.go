// Command throttle checks subjects against throttling limits from the shell.
//
// Usage:
//
//	throttle validate --limits config/throttling.yml
//	throttle check --action login --type ip --value 127.0.0.1
//	throttle check --action login --type user_id --value 42 --dry-run
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/kpumuk/throttling"
	"github.com/kpumuk/throttling/counter_stores"
)

// CLI defines the command-line interface.
type CLI struct {
	Check    CheckCmd    `cmd:"" help:"Check a subject against an action's limits."`
	Validate ValidateCmd `cmd:"" help:"Validate the limits file."`

	Config   string `short:"c" help:"Path to the settings file." type:"path" env:"THROTTLING_CONFIG"`
	EnvFile  string `name:"env-file" help:"Dotenv file loaded before settings." default:".env"`
	Limits   string `help:"Path to the limits file (overrides settings)." type:"path"`
	Redis    string `help:"Redis address (overrides settings)."`
	LogLevel string `name:"log-level" help:"Log level (debug, info, warn, error)."`

	Stdout io.Writer `kong:"-"`
}

// CheckCmd runs one check.
type CheckCmd struct {
	Action  string        `required:"" help:"Action name."`
	Type    string        `default:"ip" enum:"ip,user_id,custom" help:"Check type (ip, user_id, custom)."`
	Value   string        `required:"" help:"Subject identifier."`
	DryRun  bool          `name:"dry-run" help:"Evaluate without counting the hit."`
	Timeout time.Duration `default:"2s" help:"Timeout for the counter store."`
}

func (c *CheckCmd) Run(cli *CLI) error {
	cfg, logger, err := cli.settings()
	if err != nil {
		return err
	}

	limits, err := throttling.LoadLimits(cfg.LimitsFile)
	if err != nil {
		return err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		Password: cfg.Redis.Password,
	})
	defer client.Close()

	th, err := throttling.New(throttling.Options{
		Store:    counter_stores.NewRedisStore(client),
		Limits:   limits,
		Disabled: !cfg.IsEnabled(),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	throttle, err := th.For(c.Action)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	result, err := throttle.Execute(ctx, &throttling.CheckRequest{
		Type:   throttling.CheckType(c.Type),
		Value:  c.Value,
		DryRun: c.DryRun,
	})
	if err != nil {
		return err
	}

	out := cli.stdout()
	if result.Tiered {
		fmt.Fprintf(out, "%s value=%v period=%s\n", result.State, result.Value, result.Period)
	} else if result.Period != "" {
		fmt.Fprintf(out, "%s period=%s\n", result.State, result.Period)
	} else {
		fmt.Fprintln(out, result.State)
	}

	if !result.Allowed() {
		return errDenied
	}
	return nil
}

// ValidateCmd checks every action in the limits file.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, _, err := cli.settings()
	if err != nil {
		return err
	}

	limits, err := throttling.LoadLimits(cfg.LimitsFile)
	if err != nil {
		return err
	}
	if err := throttling.ValidateLimits(limits); err != nil {
		return fmt.Errorf("%s: %w", cfg.LimitsFile, err)
	}

	fmt.Fprintf(cli.stdout(), "%s: %d actions OK\n", cfg.LimitsFile, len(limits))
	return nil
}

var errDenied = errors.New("denied")

func (cli *CLI) stdout() io.Writer {
	if cli.Stdout != nil {
		return cli.Stdout
	}
	return os.Stdout
}

// settings loads the dotenv file and settings, then applies flag overrides.
func (cli *CLI) settings() (*throttling.Config, *slog.Logger, error) {
	if cli.EnvFile != "" {
		if err := godotenv.Load(cli.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("failed to load %s: %w", cli.EnvFile, err)
		}
	}

	cfg, err := throttling.LoadConfig(cli.Config)
	if err != nil {
		return nil, nil, err
	}
	if cli.Limits != "" {
		cfg.LimitsFile = cli.Limits
	}
	if cli.Redis != "" {
		cfg.Redis.Addr = cli.Redis
	}
	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}

	logger, err := throttling.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)

	return cfg, logger, nil
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("throttle"),
		kong.Description("Check subjects against throttling limits."),
		kong.UsageOnError(),
	)

	err := ctx.Run(cli)
	if errors.Is(err, errDenied) {
		os.Exit(2)
	}
	ctx.FatalIfErrorf(err)
}
