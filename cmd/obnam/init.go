package main

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/obnam-mirror/obnam2/client/keymgr"
)

var insecurePassphrase string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "derive and store the backup encryption keys",
	Long: `Derive the chunk-encryption and associated-data keys from a
passphrase and persist them to the key file. Run this once before the
first backup.`,
	Run: runInit,
}

func init() {
	initCmd.Flags().StringVar(&insecurePassphrase, "insecure-passphrase", "", "passphrase supplied on the command line, for testing only")
}

// passphrasePrompt securely reads a passphrase from stdin, echo disabled.
func passphrasePrompt(prompt string) (string, error) {
	fmt.Print(prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	return string(pw), err
}

func runInit(*cobra.Command, []string) {
	passphrase := insecurePassphrase
	if passphrase == "" {
		var err error
		passphrase, err = passphrasePrompt("Passphrase: ")
		if err != nil {
			die("could not read passphrase:", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(keyPath), 0700); err != nil {
		die("could not create key directory:", err)
	}
	if _, err := keymgr.Init(passphrase, keyPath); err != nil {
		die("could not initialize keys:", err)
	}
	fmt.Println("keys written to", keyPath)
}
