package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/fruitsalade/filebrowser/internal/config"
	"github.com/fruitsalade/filebrowser/internal/events"
	"github.com/fruitsalade/filebrowser/pkg/models"
)

// cleanRemote turns user input into a store-relative path: no leading or
// trailing slash, no "." or ".." segments. "/" and "" are the root.
func cleanRemote(p string) string {
	p = path.Clean("/" + strings.TrimSpace(p))
	return strings.TrimPrefix(p, "/")
}

func newShellCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive session",
		Long: `Start an interactive session that keeps a current directory. Paths are
relative to it unless they start with "/".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runShell(cmd, appFrom(cmd))
		},
	}
}

// shell is the interactive front end over one session.
type shell struct {
	a   *app
	out io.Writer
}

func (s *shell) prompt() string {
	return "filebrowser:/" + s.a.session.CurrentPath() + "> "
}

func runShell(cmd *cobra.Command, a *app) error {
	ctx := cmd.Context()
	sh := &shell{a: a, out: a.out}

	if err := a.session.FetchListing(ctx, ""); err != nil {
		fmt.Fprintf(a.errOut, "Error: %v\n", err)
	}

	historyFile := ""
	if p := config.DefaultFilePath(); p != "" {
		historyFile = filepath.Join(filepath.Dir(p), "shell_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          sh.prompt(),
		HistoryFile:     historyFile,
		AutoComplete:    newShellCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		Stdin:           io.NopCloser(a.in),
		Stdout:          a.out,
		Stderr:          a.errOut,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize shell: %w", err)
	}
	defer func() { _ = rl.Close() }()

	progress := a.session.Subscribe()
	defer a.session.Unsubscribe(progress)
	go reportProgress(rl.Stderr(), progress)

	fmt.Fprintf(a.out, "filebrowser shell (%s)\n", a.cfg.BaseURL)
	fmt.Fprintln(a.out, "Type help for commands, quit to exit")
	fmt.Fprintln(a.out)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if sh.handleLine(ctx, line) {
			break
		}
		rl.SetPrompt(sh.prompt())
	}
	return nil
}

// reportProgress prints upload progress until ch is closed.
func reportProgress(w io.Writer, ch chan events.Event) {
	for e := range ch {
		if e.Type == events.EventProgress && e.Progress > 0 {
			fmt.Fprintf(w, "\ruploading... %3d%%", e.Progress)
			if e.Progress == 100 {
				fmt.Fprintln(w)
			}
		}
	}
}

// resolve makes arg absolute against the current directory.
func (s *shell) resolve(arg string) string {
	if strings.HasPrefix(arg, "/") {
		return cleanRemote(arg)
	}
	return cleanRemote(models.JoinPath(s.a.session.CurrentPath(), arg))
}

// handleLine runs one shell command and reports whether the shell should
// exit. Errors are printed, never returned.
func (s *shell) handleLine(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	command, args := strings.ToLower(parts[0]), parts[1:]
	sess := s.a.session

	var err error
	switch command {
	case "quit", "exit":
		return true

	case "help":
		printShellHelp(s.out)

	case "ls":
		if len(args) > 0 {
			err = sess.NavigateTo(ctx, s.resolve(args[0]))
		} else {
			err = sess.FetchListing(ctx, sess.CurrentPath())
		}
		if err == nil {
			renderEntries(s.out, sess.Snapshot().Entries)
		}

	case "cd":
		switch {
		case len(args) == 0 || args[0] == "/":
			err = sess.NavigateTo(ctx, "")
		case args[0] == "..":
			err = sess.GoUp(ctx)
		default:
			err = sess.NavigateTo(ctx, s.resolve(args[0]))
		}

	case "up":
		err = sess.GoUp(ctx)

	case "pwd":
		fmt.Fprintln(s.out, "/"+sess.CurrentPath())

	case "put":
		if len(args) == 0 {
			fmt.Fprintln(s.out, "Usage: put <local>...")
			return false
		}
		recursive := false
		if args[0] == "-r" {
			recursive, args = true, args[1:]
		}
		err = s.a.put(ctx, args, sess.CurrentPath(), recursive)

	case "mkdir":
		if len(args) != 1 {
			fmt.Fprintln(s.out, "Usage: mkdir <name>")
			return false
		}
		err = sess.CreateDirectory(ctx, args[0])

	case "rm":
		if len(args) != 1 {
			fmt.Fprintln(s.out, "Usage: rm <path>")
			return false
		}
		err = sess.DeletePath(ctx, s.resolve(args[0]))

	case "get":
		if len(args) < 1 || len(args) > 2 {
			fmt.Fprintln(s.out, "Usage: get <path> [local]")
			return false
		}
		dest := ""
		if len(args) == 2 {
			dest = args[1]
		}
		err = s.a.download(ctx, s.resolve(args[0]), dest)

	case "stat":
		if len(args) != 1 {
			fmt.Fprintln(s.out, "Usage: stat <path>")
			return false
		}
		entry, serr := s.a.client.Stat(ctx, s.resolve(args[0]))
		if serr == nil {
			renderEntry(s.out, entry)
		}
		err = serr

	case "clear":
		sess.ClearError()

	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type help for commands)\n", command)
		return false
	}

	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
	return false
}

func printShellHelp(w io.Writer) {
	help := `
Commands:
  ls [path]            List the current directory or path
  cd <path>            Change directory (.. for parent, / for root)
  up                   Go to the parent directory
  pwd                  Print the current directory
  put [-r] <local>...  Upload files into the current directory
  mkdir <name>         Create a directory here
  rm <path>            Delete a file or directory
  get <path> [local]   Download a file
  stat <path>          Show metadata
  clear                Dismiss the last error
  help                 Show this help message
  quit / exit          Leave the shell
`
	fmt.Fprintln(w, help)
}

func newShellCompleter() *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	for _, c := range []string{"ls", "cd", "up", "pwd", "put", "mkdir", "rm", "get", "stat", "clear", "help", "quit", "exit"} {
		items = append(items, readline.PcItem(c))
	}
	return readline.NewPrefixCompleter(items...)
}
