// Package main provides the registry publishing CLI application.
package main

import (
	"log"
	"os"

	"github.com/simple-index-project/sipub/internal/cli"
)

func main() {
	app := cli.NewApp()

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
