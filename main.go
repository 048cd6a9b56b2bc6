package main

import (
	"github.com/wa-platform/core/cmd"
)

func main() {
	cmd.Execute()
}
