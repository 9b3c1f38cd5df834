// Command pdftools serves the PDF and Office toolkit over HTTP and runs
// single operations from the command line.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pdftools: %v\n", err)
		os.Exit(1)
	}
}
