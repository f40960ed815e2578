package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/obnam-mirror/obnam2/client/restorer"
	"github.com/obnam-mirror/obnam2/client/trustroot"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <gen> <dest>",
	Short: "reconstruct a generation at a destination directory",
	Long: `Reconstruct a generation at a destination directory. <gen> may be
"latest", a stored alias, or an explicit generation id.`,
	Args: cobra.ExactArgs(2),
	Run:  runRestore,
}

func runRestore(_ *cobra.Command, args []string) {
	cfg := loadClientConfig()
	keys := loadClientKeys()
	codec := newCodec(keys)
	client := newServerClient(cfg)
	log := newClientLogger(cfg)

	ctx := context.Background()
	root, _, err := trustroot.Locate(ctx, client, codec)
	if err != nil {
		die("could not locate trust root:", err)
	}
	generationID, err := root.Resolve(args[0])
	if err != nil {
		die("could not resolve", args[0], ":", err)
	}

	r := &restorer.Restorer{Client: client, Codec: codec, Log: log}
	stats, err := r.Restore(ctx, generationID, args[1])
	if err != nil {
		die("restore failed:", err)
	}

	fmt.Printf("restored %d files, %d hard links, %d fallback copies\n",
		stats.FilesRestored, stats.HardLinksCreated, stats.FallbackCopies)
	for _, w := range stats.Warnings {
		fmt.Println("warning:", w)
	}
}
