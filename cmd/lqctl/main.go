package main

import (
	"fmt"
	"os"

	"github.com/jonwraymond/livequery/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "lqctl:", err)
		os.Exit(1)
	}
}
