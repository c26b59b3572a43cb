package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/yuxishi/aws-limit-checker/internal/cli"
)

var version = "dev"

func main() {
	rootCmd := cli.NewRootCommand(version, os.Stdout, os.Stderr)

	if err := rootCmd.Execute(); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(3)
	}
}
