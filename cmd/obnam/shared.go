package main

import (
	"context"
	"os"

	"github.com/obnam-mirror/obnam2/client/genstore"
	"github.com/obnam-mirror/obnam2/client/serverclient"
	"github.com/obnam-mirror/obnam2/client/trustroot"
	"github.com/obnam-mirror/obnam2/client/chunkcodec"
)

// openGenerationIndex downloads and reassembles generationID's index
// database and returns every record in it, sorted by path, along with a
// cleanup function the caller must defer to remove the temporary file.
func openGenerationIndex(ctx context.Context, client *serverclient.Client, codec *chunkcodec.Codec, generationID string) ([]genstore.FileRecord, func()) {
	gen, err := trustroot.LoadGeneration(ctx, client, codec, generationID)
	if err != nil {
		die("could not load generation", generationID, ":", err)
	}

	finalizer := &trustroot.Finalizer{Client: client, Codec: codec}
	indexData, err := finalizer.DownloadIndexFile(ctx, gen)
	if err != nil {
		die("could not download index:", err)
	}

	tmp, err := os.CreateTemp("", "obnam-list-index-*.db")
	if err != nil {
		die("could not create temporary file:", err)
	}
	path := tmp.Name()
	if _, err := tmp.Write(indexData); err != nil {
		die("could not write temporary index:", err)
	}
	tmp.Close()

	store, err := genstore.Open(path)
	if err != nil {
		die("could not open index:", err)
	}
	records, err := store.All()
	if err != nil {
		die("could not list index:", err)
	}

	cleanup := func() {
		store.Close()
		os.Remove(path)
	}
	return records, cleanup
}
