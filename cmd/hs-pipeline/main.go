// Command hs-pipeline ingests Hearthstone replays and meta decks and
// converts training samples into fixed-shape tensors.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "hs-pipeline: %v\n", err)
		os.Exit(1)
	}
}
