package main

import (
	"os"

	"github.com/accessgate/accessgate/app"
)

func main() {
	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}
