package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/obnam-mirror/obnam2/client/restorer"
	"github.com/obnam-mirror/obnam2/client/trustroot"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "list generation ids with timestamps",
	Run:   runList,
}

func runList(*cobra.Command, []string) {
	cfg := loadClientConfig()
	keys := loadClientKeys()
	codec := newCodec(keys)
	client := newServerClient(cfg)

	ctx := context.Background()
	root, _, err := trustroot.Locate(ctx, client, codec)
	if err != nil {
		die("could not locate trust root:", err)
	}

	for _, id := range root.GenerationIDs {
		gen, err := trustroot.LoadGeneration(ctx, client, codec, id)
		if err != nil {
			die("could not load generation", id, ":", err)
		}
		ended := "unknown"
		if gen.EndedUnixNano != 0 {
			ended = time.Unix(0, gen.EndedUnixNano).UTC().Format(time.RFC3339)
		}
		fmt.Printf("%s\t%s\n", id, ended)
	}
}

var listFilesCmd = &cobra.Command{
	Use:   "list-files <gen>",
	Short: "list paths in a generation",
	Args:  cobra.ExactArgs(1),
	Run:   runListFiles,
}

func runListFiles(_ *cobra.Command, args []string) {
	cfg := loadClientConfig()
	keys := loadClientKeys()
	codec := newCodec(keys)
	client := newServerClient(cfg)

	ctx := context.Background()
	records, cleanup := openGenerationIndex(ctx, client, codec, args[0])
	defer cleanup()

	for _, rec := range records {
		fmt.Println(rec.Path)
	}
}

var listBackupVersionsCmd = &cobra.Command{
	Use:   "list-backup-versions",
	Short: "list schema versions this build understands",
	Run:   runListBackupVersions,
}

func init() {
	listBackupVersionsCmd.Flags().Bool("default-only", false, "print only the version new backups are written with")
}

func runListBackupVersions(cmd *cobra.Command, _ []string) {
	fmt.Println(restorer.SupportedSchemaMajor)
}
