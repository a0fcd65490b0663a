package main

import (
	"fmt"
	"os"

	"github.com/stevemurr/simple-items-server/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "itemsd:", err)
		os.Exit(1)
	}
}
