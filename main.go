// The main package for the crawl-pipeline executable.
package main

import (
	"github.com/JakeFAU/crawl-pipeline/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
