package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mfutil/mfutil-go/internal/metadata"
	"github.com/mfutil/mfutil-go/internal/store"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [import-id]",
		Short: "Show past CD imports",
		Long: `List recent imports, newest first. With an import id, show the
per-track outcome of that import.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := ctx.openStore()
			if err != nil {
				return err
			}
			if db == nil {
				return fmt.Errorf("the history store is disabled in the configuration")
			}
			hs := store.NewHistoryStore(db)

			if len(args) == 1 {
				return showImport(cmd, ctx, hs, args[0])
			}

			imports, err := hs.ListImports(limit)
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				if imports == nil {
					imports = []*store.ImportRecord{}
				}
				return writeJSON(cmd, imports)
			}

			out := cmd.OutOrStdout()
			if len(imports) == 0 {
				fmt.Fprintln(out, "No imports recorded")
				return nil
			}

			rows := make([][]string, 0, len(imports))
			for _, rec := range imports {
				rows = append(rows, []string{
					rec.StartedAt.Local().Format("2006-01-02 15:04"),
					rec.Artist,
					rec.Album,
					fmt.Sprintf("%d/%d", rec.ImportedTracks, rec.TotalTracks),
					rec.Status,
					rec.ID,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Started", "Artist", "Album", "Tracks", "Status", "ID"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of imports to list")
	cmd.AddCommand(newHistoryVerifyCommand(ctx))
	return cmd
}

type verifyResult struct {
	Number int    `json:"number"`
	Path   string `json:"path"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

func newHistoryVerifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <import-id>",
		Short: "Check that the files of an import are still readable and tagged",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := ctx.openStore()
			if err != nil {
				return err
			}
			if db == nil {
				return fmt.Errorf("the history store is disabled in the configuration")
			}

			rec, tracks, err := store.NewHistoryStore(db).GetImport(args[0])
			if err != nil {
				return fmt.Errorf("import %s: %w", args[0], err)
			}

			var results []verifyResult
			failed := 0
			for _, tr := range tracks {
				if tr.Status != store.TrackImported {
					continue
				}
				res := verifyResult{Number: tr.Number, Path: tr.FilePath, OK: true}
				tags, err := metadata.Read(tr.FilePath)
				switch {
				case err != nil:
					res.OK, res.Error = false, err.Error()
				case tags.TrackNumber != tr.Number || tags.DiscID != rec.DiscID:
					res.OK, res.Error = false, "tags do not match the import"
				}
				if !res.OK {
					failed++
				}
				results = append(results, res)
			}

			if ctx.JSONMode() {
				if results == nil {
					results = []verifyResult{}
				}
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					status := "ok"
					if !r.OK {
						status = r.Error
					}
					rows = append(rows, []string{strconv.Itoa(r.Number), r.Path, status})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"#", "File", "Status"}, rows, []columnAlignment{alignRight}))
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d files failed verification", failed, len(results))
			}
			return nil
		},
	}
}

func showImport(cmd *cobra.Command, ctx *commandContext, hs *store.HistoryStore, id string) error {
	rec, tracks, err := hs.GetImport(id)
	if err != nil {
		return fmt.Errorf("import %s: %w", id, err)
	}
	if ctx.JSONMode() {
		return writeJSON(cmd, struct {
			Import *store.ImportRecord  `json:"import"`
			Tracks []*store.TrackRecord `json:"tracks"`
		}{rec, tracks})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s - %s (%s)\n", rec.Artist, rec.Album, rec.Status)
	fmt.Fprintf(out, "Disc ID: %s\n", rec.DiscID)
	if rec.ReleaseID != "" {
		fmt.Fprintf(out, "Release: %s\n", rec.ReleaseID)
	}
	fmt.Fprintf(out, "Output:  %s\n\n", rec.OutputDir)

	rows := make([][]string, 0, len(tracks))
	for _, tr := range tracks {
		rows = append(rows, []string{strconv.Itoa(tr.Number), tr.Title, tr.Status, tr.ErrorMessage})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Title", "Status", "Error"},
		rows,
		[]columnAlignment{alignRight},
	))
	return nil
}
