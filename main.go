// The main package for the productcrawler executable.
package main

import (
	"github.com/JakeFAU/product-url-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
