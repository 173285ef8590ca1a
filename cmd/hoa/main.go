package main

import (
	"os"

	"github.com/aussiebroadwan/hoa/internal/auth/cli"
)

func main() {
	os.Exit(cli.Execute())
}
