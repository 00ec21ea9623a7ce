package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
	"pkt.systems/pslog"

	"pkt.systems/pidlock"
)

type inspectReport struct {
	Path       string       `json:"path" yaml:"path"`
	Present    bool         `json:"present" yaml:"present"`
	PID        uint64       `json:"pid,omitempty" yaml:"pid,omitempty"`
	Hostname   string       `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	Local      bool         `json:"local" yaml:"local"`
	ModifiedAt time.Time    `json:"modified_at,omitzero" yaml:"modified_at,omitempty"`
	Age        string       `json:"age,omitempty" yaml:"age,omitempty"`
	Alive      bool         `json:"alive" yaml:"alive"`
	StaleAge   string       `json:"stale_age,omitempty" yaml:"stale_age,omitempty"`
	Stale      *bool        `json:"stale,omitempty" yaml:"stale,omitempty"`
	Process    *processInfo `json:"process,omitempty" yaml:"process,omitempty"`
}

type processInfo struct {
	Name      string    `json:"name,omitempty" yaml:"name,omitempty"`
	Cmdline   string    `json:"cmdline,omitempty" yaml:"cmdline,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero" yaml:"started_at,omitempty"`
}

// lookupProcess resolves details of a local process. Tests replace it.
var lookupProcess = func(ctx context.Context, pid int32) (*processInfo, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, err
	}
	info := &processInfo{}
	if name, err := p.NameWithContext(ctx); err == nil {
		info.Name = name
	}
	if cmdline, err := p.CmdlineWithContext(ctx); err == nil {
		info.Cmdline = cmdline
	}
	if created, err := p.CreateTimeWithContext(ctx); err == nil && created > 0 {
		info.StartedAt = time.UnixMilli(created).UTC()
	}
	return info, nil
}

func newInspectCommand(baseLogger pslog.Logger, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <path>",
		Short: "Report the owner of a pidfile and whether it is stale",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			logger, err := commandLogger(baseLogger, v, "cli.inspect")
			if err != nil {
				return err
			}
			format := strings.ToLower(strings.TrimSpace(v.GetString("output")))
			switch format {
			case "", "text", "json", "yaml":
			default:
				return fmt.Errorf("invalid --output %q (want text, json or yaml)", format)
			}
			staleAge := v.GetDuration("stale-age")
			if staleAge < 0 {
				return fmt.Errorf("invalid --stale-age %s", staleAge)
			}
			report, err := inspectPidfile(cmd.Context(), args[0], staleAge, logger)
			if err != nil {
				return err
			}
			return writeReport(cmd.OutOrStdout(), format, report, time.Now())
		},
	}
	flags := cmd.Flags()
	flags.Duration("stale-age", 0, "also judge staleness against this age (0 skips)")
	flags.StringP("output", "o", "text", "output format: text, json or yaml")
	return cmd
}

func inspectPidfile(ctx context.Context, path string, staleAge time.Duration, logger pslog.Logger) (inspectReport, error) {
	report := inspectReport{Path: path}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return report, nil
		}
		return report, fmt.Errorf("inspect %q: %w", path, err)
	}
	report.Present = true
	report.ModifiedAt = info.ModTime().UTC()

	rec, err := pidlock.DecodeFile(path)
	if err != nil {
		return report, err
	}
	report.PID = rec.PID
	report.Hostname = rec.Hostname
	report.Age = rec.Age.Round(time.Second).String()
	report.Local = rec.Hostname == pidlock.SystemHost().Hostname()
	report.Alive = pidlock.IsPlausiblyAlive(rec.Hostname, rec.PID)

	if staleAge > 0 {
		stale, err := pidlock.IsStale(path, staleAge, pidlock.WithLogger(logger))
		if err != nil {
			return report, err
		}
		report.StaleAge = staleAge.String()
		report.Stale = &stale
	}

	if report.Local && report.Alive && rec.PID > 0 && rec.PID <= math.MaxInt32 {
		proc, err := lookupProcess(ctx, int32(rec.PID))
		if err != nil {
			logger.Debug("cli.inspect.process_lookup_failed", "pid", rec.PID, "error", err)
		} else {
			report.Process = proc
		}
	}
	return report, nil
}

func writeReport(w io.Writer, format string, report inspectReport, now time.Time) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	}

	if !report.Present {
		_, err := fmt.Fprintf(w, "%s: not held\n", report.Path)
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "path:      %s\n", report.Path)
	fmt.Fprintf(&b, "pid:       %d\n", report.PID)
	fmt.Fprintf(&b, "hostname:  %s\n", report.Hostname)
	fmt.Fprintf(&b, "modified:  %s (%s)\n", humanize.RelTime(report.ModifiedAt, now, "ago", "from now"), report.ModifiedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "local:     %t\n", report.Local)
	fmt.Fprintf(&b, "alive:     %t\n", report.Alive)
	if report.Stale != nil {
		fmt.Fprintf(&b, "stale:     %t (stale age %s)\n", *report.Stale, report.StaleAge)
	}
	if p := report.Process; p != nil {
		fmt.Fprintf(&b, "process:   %s\n", p.Name)
		if p.Cmdline != "" {
			fmt.Fprintf(&b, "cmdline:   %s\n", p.Cmdline)
		}
		if !p.StartedAt.IsZero() {
			fmt.Fprintf(&b, "started:   %s\n", humanize.RelTime(p.StartedAt, now, "ago", "from now"))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
