// The main package for the catalogcrawler executable.
package main

import (
	"github.com/storefrontlab/catalog-crawler/cmd"
)

func main() {
	cmd.Execute()
}
