package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	"pkt.systems/pidlock"
)

// lockfileEnv names the variable through which the child learns the path of
// the pidfile held on its behalf.
const lockfileEnv = "PIDLOCK_LOCKFILE"

// childWaitDelay bounds how long a cancelled child may take to exit after
// receiving an interrupt before it is killed.
const childWaitDelay = 10 * time.Second

func newRunCommand(baseLogger pslog.Logger, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] -- command [args...]",
		Short: "Run a command while holding a pidfile lock",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			logger, err := commandLogger(baseLogger, v, "cli.run")
			if err != nil {
				return err
			}
			path, opts, err := runOptions(v)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			lock, err := pidlock.Acquire(ctx, path, append(opts, pidlock.WithLogger(logger))...)
			if err != nil {
				return err
			}
			runErr := runChild(cmd, lock.Path(), args)
			held, relErr := lock.Release()
			if relErr != nil {
				logger.Error("cli.run.release_failed", "error", relErr)
			} else if !held {
				logger.Warn("cli.run.lock_lost", "path", lock.Path())
			}
			if runErr != nil {
				return runErr
			}
			return relErr
		},
	}
	flags := cmd.Flags()
	flags.SetInterspersed(false)
	addAcquireFlags(flags)
	return cmd
}

func addAcquireFlags(flags *pflag.FlagSet) {
	flags.String("path", "", "pidfile path (required)")
	flags.Uint64("owner-id", 0, "owner id written to the pidfile (defaults to the pidlock process id)")
	flags.String("permissions", "0644", "octal mode of the created pidfile")
	flags.Duration("poll-interval", pidlock.DefaultPollInterval, "maximum wait between acquire retries")
	flags.Duration("stale-age", 0, "reclaim pidfiles older than this whose owner is gone (0 disables)")
	flags.Bool("no-wait", false, "fail immediately when the lock is held")
	flags.Bool("disable-watch", false, "poll only, without filesystem notifications")
}

// runOptions maps the bound flags, environment and config file onto Acquire
// options.
func runOptions(v *viper.Viper) (string, []pidlock.Option, error) {
	path := strings.TrimSpace(v.GetString("path"))
	if path == "" {
		return "", nil, errors.New("missing --path")
	}
	perm, err := parsePermissions(v.GetString("permissions"))
	if err != nil {
		return "", nil, err
	}
	cfg := pidlock.Config{
		Permissions:  perm,
		PollInterval: v.GetDuration("poll-interval"),
		StaleAge:     v.GetDuration("stale-age"),
		WaitForLock:  !v.GetBool("no-wait"),
		DisableWatch: v.GetBool("disable-watch"),
	}
	if cfg.StaleAge < 0 {
		return "", nil, fmt.Errorf("invalid --stale-age %s", cfg.StaleAge)
	}
	opts := []pidlock.Option{pidlock.WithConfig(cfg)}
	if v.IsSet("owner-id") {
		opts = append(opts, pidlock.WithOwnerID(v.GetUint64("owner-id")))
	}
	return path, opts, nil
}

func parsePermissions(raw string) (fs.FileMode, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return pidlock.DefaultPermissions, nil
	}
	mode, err := strconv.ParseUint(raw, 8, 32)
	if err != nil || mode > 0o777 {
		return 0, fmt.Errorf("invalid --permissions %q: want octal mode bits such as 0644", raw)
	}
	return fs.FileMode(mode), nil
}

// runChild runs args with inherited stdio and translates a non-zero exit
// status into an exitError.
func runChild(cmd *cobra.Command, lockPath string, args []string) error {
	child := exec.CommandContext(cmd.Context(), args[0], args[1:]...)
	child.Stdin = cmd.InOrStdin()
	child.Stdout = cmd.OutOrStdout()
	child.Stderr = cmd.ErrOrStderr()
	child.Env = append(os.Environ(), lockfileEnv+"="+lockPath)
	child.Cancel = func() error {
		return child.Process.Signal(os.Interrupt)
	}
	child.WaitDelay = childWaitDelay

	err := child.Run()
	if err == nil {
		return nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		code := ee.ExitCode()
		if code <= 0 {
			code = 1
		}
		return &exitError{code: code}
	}
	return fmt.Errorf("run %s: %w", args[0], err)
}
