// Command iprewriterctl loads a rewriter configuration, validates it,
// and can replay a packet capture through it for inspection.
package main

import (
	"fmt"
	"os"

	"github.com/KarpelesLab/iprewriter/internal/cli"
)

func main() {
	if err := cli.New().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
