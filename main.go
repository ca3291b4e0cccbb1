// The main package for the page-loader executable.
package main

import (
	"os"

	"github.com/JakeFAU/page-loader/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	os.Exit(cmd.Execute())
}
