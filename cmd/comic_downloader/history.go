package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/italolelis/comic_downloader/internal/storage"
	"github.com/italolelis/comic_downloader/internal/storage/sqlite"
	"github.com/spf13/cobra"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit int
		runID string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		Long:  "Show the most recent runs, or the chapters of one run with --run.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			database, err := sqlite.InitDB(a.cfg.DBPath)
			if err != nil {
				return err
			}
			defer database.Close()

			repo := sqlite.NewRunRepository(database)
			out := cmd.OutOrStdout()

			if runID != "" {
				chapters, err := repo.GetChapters(cmd.Context(), runID)
				if err != nil {
					return fmt.Errorf("failed to read chapters of run %s: %w", runID, err)
				}

				renderChapters(out, runID, chapters)

				return nil
			}

			runs, err := repo.ListRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to read runs: %w", err)
			}

			renderRuns(out, runs)

			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "number of runs to show")
	cmd.Flags().StringVar(&runID, "run", "", "show the chapters of this run")

	return cmd
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}

			return cellStyle
		})
}

func renderRuns(w io.Writer, runs []storage.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded yet. Use 'comic_downloader run <galleryId>' to start one.")

		return
	}

	t := newTable("RUN", "GALLERY", "MODE", "STATUS", "STARTED", "DURATION", "CHAPTERS", "SAVED", "FAILED", "SKIPPED")

	for _, r := range runs {
		t.Row(
			r.ID,
			r.GalleryID,
			r.Mode,
			r.Status,
			humanTime(r.StartedAt),
			duration(r.StartedAt, r.FinishedAt),
			strconv.Itoa(r.Chapters),
			humanize.Comma(int64(r.Success)),
			humanize.Comma(int64(r.Failure)),
			humanize.Comma(int64(r.Skipped)),
		)
	}

	fmt.Fprintf(w, "\n%d recorded %s\n\n", len(runs), plural(len(runs), "run", "runs"))
	fmt.Fprintln(w, t.Render())
}

func renderChapters(w io.Writer, runID string, chapters []storage.ChapterRecord) {
	if len(chapters) == 0 {
		fmt.Fprintf(w, "No chapters recorded for run %s.\n", runID)

		return
	}

	t := newTable("CHAPTER", "IMAGES", "SAVED", "FAILED", "SKIPPED", "ERROR")

	for _, c := range chapters {
		t.Row(
			c.Title,
			strconv.Itoa(c.Images),
			strconv.Itoa(c.Success),
			strconv.Itoa(c.Failure),
			strconv.Itoa(c.Skipped),
			c.Error,
		)
	}

	fmt.Fprintf(w, "\nRun %s (%d %s)\n\n", runID, len(chapters), plural(len(chapters), "chapter", "chapters"))
	fmt.Fprintln(w, t.Render())
}

func humanTime(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}

	return humanize.Time(t)
}

func duration(started, finished string) string {
	s, err := time.Parse(time.RFC3339, started)
	if err != nil {
		return "-"
	}

	f, err := time.Parse(time.RFC3339, finished)
	if err != nil {
		return "-"
	}

	return f.Sub(s).String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}

	return many
}
