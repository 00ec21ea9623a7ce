package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	"pkt.systems/pidlock/internal/pathutil"
	"pkt.systems/pidlock/internal/svcfields"
)

const defaultConfigFileName = "config.yaml"

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(context.Background(),
		pslog.WithEnvPrefix("PIDLOCK_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "pidlock")
	cmd := newRootCommand(baseLogger)
	ctx = withSignalCancel(ctx)
	_, err := cmd.ExecuteContextC(ctx)
	return exitCode(err, os.Stderr)
}

// exitError carries a child exit status through cobra.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintf(stderr, "%s\n", err)
	}
	return 1
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("PIDLOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "pidlock",
		Short:         "pidlock serializes commands across processes and hosts with advisory pidfiles",
		SilenceErrors: true,
		Example: `
  # Run a backup unless another one holds the lock
  pidlock run --path /var/run/backup.pid --no-wait -- /usr/local/bin/backup

  # Wait for the lock, reclaiming it when the holder died more than a minute ago
  pidlock run --path /shared/locks/deploy.pid --stale-age 1m -- make deploy

  # Show who holds a lock
  pidlock inspect /shared/locks/deploy.pid --output yaml
`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			configFile, err := loadConfigFile(v)
			if err != nil {
				return err
			}
			if configFile != "" {
				svcfields.WithSubsystem(baseLogger, "cli.root").Debug("loaded config file", "path", configFile)
			}
			return nil
		},
	}

	persistentFlags := cmd.PersistentFlags()
	persistentFlags.StringP("config", "c", "", "path to YAML config file (defaults to $HOME/.pidlock/"+defaultConfigFileName+")")
	persistentFlags.String("log-level", "", "log level (trace, debug, info, warn, error)")

	cmd.AddCommand(newRunCommand(baseLogger, v))
	cmd.AddCommand(newInspectCommand(baseLogger, v))
	cmd.AddCommand(newVersionCommand())
	return cmd
}

// commandLogger applies --log-level to the base logger.
func commandLogger(baseLogger pslog.Logger, v *viper.Viper, subsystem string) (pslog.Logger, error) {
	logger := baseLogger
	if raw := strings.TrimSpace(v.GetString("log-level")); raw != "" {
		level, ok := pslog.ParseLevel(raw)
		if !ok {
			return nil, fmt.Errorf("invalid log level %q", raw)
		}
		logger = logger.LogLevel(level)
	}
	return svcfields.WithSubsystem(logger, subsystem), nil
}

// defaultConfigDir returns $PIDLOCK_CONFIG_DIR or $HOME/.pidlock.
func defaultConfigDir() (string, error) {
	if override := strings.TrimSpace(os.Getenv("PIDLOCK_CONFIG_DIR")); override != "" {
		return pathutil.Expand(override)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".pidlock"), nil
}

func loadConfigFile(v *viper.Viper) (string, error) {
	cfgPath := strings.TrimSpace(v.GetString("config"))
	explicit := cfgPath != ""

	if cfgPath == "" {
		if dir, err := defaultConfigDir(); err == nil {
			candidate := filepath.Join(dir, defaultConfigFileName)
			if _, err := os.Stat(candidate); err == nil {
				cfgPath = candidate
			}
		}
	}
	if cfgPath == "" {
		return "", nil
	}

	expanded, err := pathutil.Expand(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return "", nil
		}
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}
	v.SetConfigFile(expanded)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config %q: %w", expanded, err)
	}
	return expanded, nil
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
