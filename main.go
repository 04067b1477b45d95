// The main package for the crawler executable.
package main

import (
	"github.com/carmarket/crawler/cmd"
)

func main() {
	cmd.Execute()
}
