package main

import (
	"os"

	"github.com/iamvkosarev/persona-chat/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
