// Command keygen prints a fresh ENCRYPTION_KEY for report archives.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/aluoptimize/aluoptimize/pkg/crypto"
)

func main() {
	if err := run(os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "keygen:", err)
		os.Exit(1)
	}
}

func run(w io.Writer) error {
	key, err := crypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	_, err = fmt.Fprintf(w, "ENCRYPTION_KEY=%s\n", key)
	return err
}
