// Package main provides the entry point for the coderag CLI.
package main

import (
	"fmt"
	"os"

	"github.com/Aman-CERP/coderag/cmd/coderag/cmd"
	cerrors "github.com/Aman-CERP/coderag/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, cerrors.FormatForCLI(err))
		os.Exit(1)
	}
}
