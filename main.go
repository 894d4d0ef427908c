// The main package for the tripsync executable.
package main

import (
	"github.com/JakeFAU/tripsync/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
