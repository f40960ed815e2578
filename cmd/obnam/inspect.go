package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/obnam-mirror/obnam2/client/trustroot"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <gen>",
	Short: "print a generation's schema version",
	Args:  cobra.ExactArgs(1),
	Run:   runInspect,
}

func runInspect(_ *cobra.Command, args []string) {
	gen := loadGenerationOrDie(args[0])
	fmt.Printf("%d.%d\n", gen.SchemaVersionMajor, gen.SchemaVersionMinor)
}

var genInfoCmd = &cobra.Command{
	Use:   "gen-info <gen>",
	Short: "print machine-readable generation metadata",
	Args:  cobra.ExactArgs(1),
	Run:   runGenInfo,
}

// genInfo is the JSON shape printed by `gen-info`; extras is reserved for
// forward-compatible fields future schema versions might add.
type genInfo struct {
	GenerationID       string            `json:"generation_id"`
	SchemaVersionMajor int               `json:"schema_version_major"`
	SchemaVersionMinor int               `json:"schema_version_minor"`
	IndexPartCount     int               `json:"index_part_count"`
	EndedUnixNano      int64             `json:"ended_unix_nano,omitempty"`
	Extras             map[string]string `json:"extras,omitempty"`
}

func runGenInfo(_ *cobra.Command, args []string) {
	gen := loadGenerationOrDie(args[0])
	info := genInfo{
		GenerationID:       args[0],
		SchemaVersionMajor: gen.SchemaVersionMajor,
		SchemaVersionMinor: gen.SchemaVersionMinor,
		IndexPartCount:     len(gen.IndexPartIDs),
		EndedUnixNano:      gen.EndedUnixNano,
	}
	out, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		die("could not marshal generation info:", err)
	}
	fmt.Println(string(out))
}

func loadGenerationOrDie(id string) trustroot.Generation {
	cfg := loadClientConfig()
	keys := loadClientKeys()
	codec := newCodec(keys)
	client := newServerClient(cfg)

	gen, err := trustroot.LoadGeneration(context.Background(), client, codec, id)
	if err != nil {
		die("could not load generation", id, ":", err)
	}
	return gen
}
