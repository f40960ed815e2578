package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/obnam-mirror/obnam2/client/chunker"
)

var chunkifyCmd = &cobra.Command{
	Use:   "chunkify <files...>",
	Short: "print the chunk boundaries and content hashes the chunker would produce",
	Args:  cobra.MinimumNArgs(1),
	Run:   runChunkify,
}

func runChunkify(_ *cobra.Command, args []string) {
	cfg := loadClientConfig()
	c := chunker.FixedSize{Size: cfg.ChunkSize}

	for _, path := range args {
		f, err := os.Open(path)
		if err != nil {
			die("could not open", path, ":", err)
		}
		chunks, err := c.Split(f)
		f.Close()
		if err != nil {
			die("could not chunk", path, ":", err)
		}
		for _, chunk := range chunks {
			fmt.Printf("%s\t%d\t%d\t%s\n", path, chunk.Offset, chunk.Length, chunk.Label)
		}
	}
}
