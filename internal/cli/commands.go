package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/fruitsalade/filebrowser/internal/logging"
	"github.com/fruitsalade/filebrowser/internal/metrics"
	"github.com/fruitsalade/filebrowser/pkg/models"
)

func newLsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List a directory",
		Long:  "List the direct children of a directory. Without a path, lists the store root.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			var p string
			if len(args) == 1 {
				p = cleanRemote(args[0])
			}
			if err := a.session.NavigateTo(cmd.Context(), p); err != nil {
				return err
			}
			renderEntries(a.out, a.session.Snapshot().Entries)
			return nil
		},
	}
}

func newStatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Show metadata for a file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			entry, err := a.client.Stat(cmd.Context(), cleanRemote(args[0]))
			if err != nil {
				return err
			}
			renderEntry(a.out, entry)
			return nil
		},
	}
}

func newGetCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Download a file",
		Long:  `Download a file. By default it is written to the current directory under its own name; use -o - for stdout.`,
		Example: `  filebrowser get docs/report.pdf
  filebrowser get docs/notes.txt -o -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			return a.download(cmd.Context(), cleanRemote(args[0]), output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Local file to write (- for stdout)")
	return cmd
}

// download streams remote path p into dest, "-" for stdout, or the remote
// base name when dest is empty.
func (a *app) download(ctx context.Context, p, dest string) error {
	start := time.Now()
	body, size, err := a.client.Download(ctx, p)
	if err != nil {
		return err
	}
	defer body.Close()

	if dest == "-" {
		n, err := io.Copy(a.out, body)
		metrics.RecordDownload(n)
		return err
	}
	if dest == "" {
		dest = models.BaseName(p)
	}

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, body)
	metrics.RecordDownload(n)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if size >= 0 && n != size {
		return fmt.Errorf("download %s: got %d of %d bytes", p, n, size)
	}
	logging.Debug("download finished",
		logging.String("path", p),
		logging.Int64("bytes", n),
		logging.Duration("duration", time.Since(start)),
	)
	fmt.Fprintf(a.out, "Downloaded %s to %s (%s)\n", p, dest, humanize.IBytes(uint64(n)))
	return nil
}

func newPutCommand() *cobra.Command {
	var (
		to        string
		recursive bool
	)
	cmd := &cobra.Command{
		Use:   "put <local>...",
		Short: "Upload files",
		Long: `Upload local files into a remote directory. Each file is checked against the
size and type policy before it is sent. With -r, directories are uploaded
with their tree.`,
		Example: `  filebrowser put report.pdf --to docs
  filebrowser put -r photos --to archive`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			return a.put(cmd.Context(), args, cleanRemote(to), recursive)
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "Remote destination directory (default: root)")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Upload directories recursively")
	return cmd
}

func (a *app) put(ctx context.Context, args []string, to string, recursive bool) error {
	files, err := collectFiles(args, recursive)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files to upload")
	}
	logging.Debug("collected files", logging.Int("count", len(files)), logging.String("to", to))

	result := a.session.UploadManyTo(ctx, files, to)
	renderBatch(a.out, result)
	if result.Failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", result.Failed, len(files))
	}
	return nil
}

func newMkdirCommand() *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   "mkdir <name>",
		Short: "Create a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			if in != "" {
				if err := a.session.NavigateTo(cmd.Context(), cleanRemote(in)); err != nil {
					return err
				}
			}
			if err := a.session.CreateDirectory(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Created %s\n", models.JoinPath(a.session.CurrentPath(), args[0]))
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "Parent directory (default: root)")
	return cmd
}

func newRmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			p := cleanRemote(args[0])
			if err := a.session.DeletePath(cmd.Context(), p); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted %s\n", p)
			return nil
		},
	}
}
