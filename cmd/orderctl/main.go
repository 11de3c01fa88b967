// Command orderctl drives the ordering engine from a terminal: an interactive
// chat loop over the seed catalog, index rebuilds and catalog seeding.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
