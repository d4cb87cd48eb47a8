// Command famshelf runs the shared family inventory server and its offline
// tools.
//
// Usage:
//
//	famshelf serve --config famshelf.yaml   # sync server
//	famshelf group new                      # issue a group code
//	famshelf items list K7QM2ZXA            # inspect a group offline
//	famshelf test ./scenarios               # replay sync scenarios
package main

import (
	"fmt"
	"os"

	"github.com/roach88/famshelf/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
