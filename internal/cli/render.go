package cli

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/fruitsalade/filebrowser/internal/session"
	"github.com/fruitsalade/filebrowser/pkg/models"
)

const timeLayout = "2006-01-02 15:04"

func displayName(e models.FileEntry) string {
	if e.IsDir {
		return e.Name + "/"
	}
	return e.Name
}

func displaySize(e models.FileEntry) string {
	if e.IsDir {
		return "-"
	}
	return humanize.IBytes(uint64(e.Size))
}

// renderEntries prints a listing in the order the store returned it.
func renderEntries(w io.Writer, entries []models.FileEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "(empty)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Name", "Size", "Modified", "Type"})
	for _, e := range entries {
		t.AppendRow(table.Row{displayName(e), displaySize(e), e.Modified.Local().Format(timeLayout), e.MimeType})
	}
	t.Render()
	fmt.Fprintf(w, "(%d entries)\n", len(entries))
}

// renderEntry prints the metadata of one entry.
func renderEntry(w io.Writer, e *models.FileEntry) {
	kind := "file"
	if e.IsDir {
		kind = "directory"
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendRows([]table.Row{
		{"Name", e.Name},
		{"Path", e.Path},
		{"Kind", kind},
		{"Size", fmt.Sprintf("%s (%d bytes)", displaySize(*e), e.Size)},
		{"Modified", e.Modified.Local().Format(timeLayout)},
		{"Type", e.MimeType},
	})
	t.Render()
}

// renderBatch prints one line per file of a batch upload and a summary.
func renderBatch(w io.Writer, result *session.BatchResult) {
	for _, r := range result.Results {
		target := models.JoinPath(r.File.Dir, r.File.Name)
		if r.Err != nil {
			fmt.Fprintf(w, "FAIL %s: %v\n", target, r.Err)
			continue
		}
		fmt.Fprintf(w, "ok   %s -> %s (%s)\n", target, r.Path, humanize.IBytes(uint64(r.Size)))
	}
	fmt.Fprintf(w, "%d uploaded, %d failed\n", result.Succeeded, result.Failed)
}
