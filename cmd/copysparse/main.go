package main

import (
	"fmt"
	"os"

	"github.com/sparsetools/sparsectl/internal/cli"
)

func main() {
	if err := cli.NewCopySparseCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
