// The main package for the jewelry-dataset executable.
package main

import (
	"github.com/JakeFAU/jewelry-dataset-pipeline/cmd"
)

func main() {
	cmd.Execute()
}
