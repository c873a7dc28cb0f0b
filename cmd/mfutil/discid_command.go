package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mfutil/mfutil-go/internal/disc"
)

type tocEntry struct {
	Number      int     `json:"number"`
	FirstSector int32   `json:"first_sector"`
	LastSector  int32   `json:"last_sector"`
	Audio       bool    `json:"audio"`
	Seconds     float64 `json:"seconds"`
}

type discIDReport struct {
	Device string     `json:"device"`
	DiscID string     `json:"disc_id"`
	TOC    []tocEntry `json:"toc"`
}

func newDiscIDCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "discid <device>",
		Short: "Print the MusicBrainz disc id and table of contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			device := args[0]

			drive := ctx.newDrive(cfg)
			if err := drive.Open(device); err != nil {
				return fmt.Errorf("open %s: %w", device, err)
			}
			defer drive.Close()

			toc, err := drive.ReadTOC()
			if err != nil {
				return fmt.Errorf("read table of contents: %w", err)
			}
			id, err := disc.ComputeDiscID(toc)
			if err != nil {
				return fmt.Errorf("compute disc id: %w", err)
			}

			report := discIDReport{Device: device, DiscID: id}
			for _, t := range toc {
				report.TOC = append(report.TOC, tocEntry{
					Number:      t.Number,
					FirstSector: t.FirstSector,
					LastSector:  t.LastSector,
					Audio:       t.IsAudio,
					Seconds:     float64(t.Sectors()) / disc.SectorsPerSecond,
				})
			}

			if ctx.JSONMode() {
				return writeJSON(cmd, report)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Disc ID: %s\n\n", id)
			rows := make([][]string, 0, len(report.TOC))
			for _, e := range report.TOC {
				kind := "audio"
				if !e.Audio {
					kind = "data"
				}
				rows = append(rows, []string{
					strconv.Itoa(e.Number),
					strconv.Itoa(int(e.FirstSector)),
					strconv.Itoa(int(e.LastSector)),
					kind,
					fmt.Sprintf("%.1f", e.Seconds),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"#", "First", "Last", "Type", "Seconds"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignRight, alignLeft, alignRight},
			))
			return nil
		},
	}
}
