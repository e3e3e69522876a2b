package main

import (
	"os"

	"github.com/adalundhe/cinesage/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
