// Command murmur is the city micro-forum client.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/murmur/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
