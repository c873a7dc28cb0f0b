package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mfutil/mfutil-go/internal/monitoring"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var device string
	var musicDir string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that an import can run",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := ctx.openStore()
			if err != nil {
				return err
			}

			report := monitoring.NewHealthChecker(version, db).Check(cmd.Context(), monitoring.HealthTarget{
				Device:   device,
				MusicDir: musicDir,
			})
			if ctx.JSONMode() {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				renderHealth(cmd, report)
			}

			if report.Status == monitoring.HealthStatusUnhealthy {
				return fmt.Errorf("environment is unhealthy")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&device, "device", "/dev/sr0", "CD drive to check")
	cmd.Flags().StringVar(&musicDir, "music-dir", "", "Music folder to check")
	return cmd
}

func renderHealth(cmd *cobra.Command, report *monitoring.HealthCheck) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		c := report.Checks[name]
		line := fmt.Sprintf("  %-12s [%s] %s", name+":", c.Status, c.Message)
		if colorize {
			line = healthColor(c.Status) + line + ansiReset
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "\nOverall: %s (mfutil %s, %d MB in use)\n", report.Status, report.Version, report.MemoryUsageMB)
}

func healthColor(s monitoring.HealthStatus) string {
	switch s {
	case monitoring.HealthStatusHealthy:
		return ansiGreen
	case monitoring.HealthStatusDegraded:
		return ansiYellow
	default:
		return ansiRed
	}
}
