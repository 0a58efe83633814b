package main

import (
	"os"

	"github.com/va4unsingh/socket-chat-app/cmd/internal/app"
)

func main() {
	// app.Run logs its own failures.
	if err := app.Run(); err != nil {
		os.Exit(1)
	}
}
