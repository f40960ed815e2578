package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/obnam-mirror/obnam2/client/trustroot"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <alias>",
	Short: "print the generation id for an alias",
	Args:  cobra.ExactArgs(1),
	Run:   runResolve,
}

func runResolve(_ *cobra.Command, args []string) {
	cfg := loadClientConfig()
	keys := loadClientKeys()
	codec := newCodec(keys)
	client := newServerClient(cfg)

	ctx := context.Background()
	root, _, err := trustroot.Locate(ctx, client, codec)
	if err != nil {
		die("could not locate trust root:", err)
	}
	id, err := root.Resolve(args[0])
	if err != nil {
		die(err)
	}
	fmt.Println(id)
}
