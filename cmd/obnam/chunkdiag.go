package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var encryptChunkCmd = &cobra.Command{
	Use:   "encrypt-chunk <associated-data> <in> <out>",
	Short: "diagnostic: encrypt a file into a chunk envelope",
	Args:  cobra.ExactArgs(3),
	Run:   runEncryptChunk,
}

func runEncryptChunk(_ *cobra.Command, args []string) {
	codec := newCodec(loadClientKeys())
	plaintext, err := os.ReadFile(args[1])
	if err != nil {
		die("could not read input:", err)
	}
	envelope := codec.Encrypt(plaintext, []byte(args[0]))
	if err := os.WriteFile(args[2], envelope, 0600); err != nil {
		die("could not write output:", err)
	}
}

var decryptChunkCmd = &cobra.Command{
	Use:   "decrypt-chunk <associated-data> <in> <out>",
	Short: "diagnostic: decrypt a chunk envelope into plaintext",
	Args:  cobra.ExactArgs(3),
	Run:   runDecryptChunk,
}

func runDecryptChunk(_ *cobra.Command, args []string) {
	codec := newCodec(loadClientKeys())
	envelope, err := os.ReadFile(args[1])
	if err != nil {
		die("could not read input:", err)
	}
	plaintext, err := codec.Decrypt(envelope, []byte(args[0]))
	if err != nil {
		die("could not decrypt chunk:", err)
	}
	if err := os.WriteFile(args[2], plaintext, 0600); err != nil {
		die("could not write output:", err)
	}
}

var getChunkCmd = &cobra.Command{
	Use:   "get-chunk <chunk-id> <out>",
	Short: "diagnostic: download a chunk's raw (still-encrypted) body",
	Args:  cobra.ExactArgs(2),
	Run:   runGetChunk,
}

func runGetChunk(_ *cobra.Command, args []string) {
	cfg := loadClientConfig()
	client := newServerClient(cfg)

	body, label, err := client.Get(context.Background(), args[0])
	if err != nil {
		die("could not download chunk:", err)
	}
	if err := os.WriteFile(args[1], body, 0600); err != nil {
		die("could not write output:", err)
	}
	fmt.Println("label:", label)
}
