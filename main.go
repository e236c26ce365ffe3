// The main package for the causas executable.
package main

import (
	"github.com/JakeFAU/causas-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
