package main

import (
	"os"

	"github.com/melisync/melisync/internal/cli"
)

func main() {
	os.Exit(cli.ExecuteWithErrorCode(os.Args[1:]))
}
