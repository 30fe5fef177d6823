// Command filebrowser is a client for a hierarchical file store served over
// HTTP.
//
// Sub-commands:
//
//	filebrowser ls [path]                 List a directory
//	filebrowser stat <path>               Show entry metadata
//	filebrowser get <path> [-o file]      Download a file
//	filebrowser put [-r] <local>... [--to dir]
//	filebrowser mkdir <name> [--in dir]   Create a directory
//	filebrowser rm <path>                 Delete an entry
//	filebrowser login | logout            Manage the saved token
//	filebrowser shell                     Interactive session
package main

import (
	"os"

	"github.com/fruitsalade/filebrowser/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
