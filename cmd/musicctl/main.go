// Command musicctl is the operator CLI: developer tokens, schedule checks, cache keys,
// effective configuration and a local HTTP server for the API.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "musicctl: FAIL: %v\n", err)
		os.Exit(1)
	}
}
