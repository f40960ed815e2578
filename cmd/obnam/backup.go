package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/obnam-mirror/obnam2/client/chunker"
	"github.com/obnam-mirror/obnam2/client/genstore"
	"github.com/obnam-mirror/obnam2/client/trustroot"
	"github.com/obnam-mirror/obnam2/client/uploader"
	"github.com/obnam-mirror/obnam2/client/walker"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "run one backup pass",
	Long: `Walk every configured root, chunk and upload new or changed file
content, and finalize a new generation. Exits non-zero on a hard failure
or when a previously-unknown CACHEDIR.TAG is discovered.`,
	Run: runBackup,
}

// rootPrefix turns a configured backup root into the path prefix its
// entries are stored under in the index, so several roots can share one
// generation without colliding (e.g. "/home/user/live" -> "home/user/live").
func rootPrefix(root string) string {
	clean := filepath.Clean(root)
	clean = strings.TrimPrefix(clean, string(filepath.Separator))
	return filepath.ToSlash(clean)
}

func runBackup(*cobra.Command, []string) {
	cfg := loadClientConfig()
	keys := loadClientKeys()
	codec := newCodec(keys)
	client := newServerClient(cfg)
	log := newClientLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, root := range cfg.Roots {
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			die("backup root does not exist or is not readable:", root)
		}
		if _, err := os.ReadDir(root); err != nil {
			die("backup root does not exist or is not readable:", root)
		}
	}

	currentRoot, previousRootID, err := trustroot.Locate(ctx, client, codec)
	if err != nil {
		die("could not locate current trust root:", err)
	}

	var prevStore *genstore.Store
	if latest := currentRoot.Latest(); latest != "" {
		gen, err := trustroot.LoadGeneration(ctx, client, codec, latest)
		if err != nil {
			die("could not load previous generation:", err)
		}
		finalizer := &trustroot.Finalizer{Client: client, Codec: codec}
		indexData, err := finalizer.DownloadIndexFile(ctx, gen)
		if err != nil {
			die("could not download previous index:", err)
		}
		tmp, err := os.CreateTemp("", "obnam-prev-index-*.db")
		if err != nil {
			die("could not create temporary file:", err)
		}
		defer os.Remove(tmp.Name())
		if _, err := tmp.Write(indexData); err != nil {
			die("could not write temporary index:", err)
		}
		tmp.Close()

		prevStore, err = genstore.Open(tmp.Name())
		if err != nil {
			die("could not open previous index:", err)
		}
		defer prevStore.Close()
	}

	indexTmp, err := os.CreateTemp("", "obnam-index-*.db")
	if err != nil {
		die("could not create temporary file:", err)
	}
	indexPath := indexTmp.Name()
	indexTmp.Close()
	defer os.Remove(indexPath)

	store, err := genstore.Open(indexPath)
	if err != nil {
		die("could not create index database:", err)
	}
	defer store.Close()

	up := uploader.New(client, codec, 0, log)
	builder := &genstore.Builder{
		Store:    store,
		Previous: prevStore,
		Chunker:  chunker.FixedSize{Size: cfg.ChunkSize},
		Uploader: up,
		Log:      log,
	}

	var totalStats genstore.Stats
	var newTags []string
	var warnings int

	for _, root := range cfg.Roots {
		prefix := rootPrefix(root)

		w := walker.New([]string{root}, cfg.ExcludeCacheTags(), log)
		result, err := w.Walk(ctx)
		if err != nil {
			die("could not walk backup root", root, ":", err)
		}
		warnings += len(result.Warnings)

		stats, err := builder.BuildRoot(ctx, root, prefix, result.Entries)
		if err != nil {
			die("could not build index for root", root, ":", err)
		}
		totalStats.FilesReused += stats.FilesReused
		totalStats.FilesRechunked += stats.FilesRechunked
		warnings += len(stats.Warnings)

		for _, tag := range result.CacheTags {
			tagFilePath := filepath.Join(prefix, tag.Path, "CACHEDIR.TAG")
			if prevStore == nil {
				newTags = append(newTags, filepath.Join(root, tag.Path))
				continue
			}
			if _, ok, err := prevStore.Get(tagFilePath); err == nil && !ok {
				newTags = append(newTags, filepath.Join(root, tag.Path))
			}
		}
	}

	if err := store.Close(); err != nil {
		die("could not close index database:", err)
	}
	indexData, err := os.ReadFile(indexPath)
	if err != nil {
		die("could not read index database:", err)
	}

	finalizer := &trustroot.Finalizer{Client: client, Codec: codec, Chunker: chunker.FixedSize{Size: cfg.ChunkSize}, Log: log}
	result, err := finalizer.FinalizeGeneration(ctx, currentRoot, previousRootID, indexData)
	if err != nil {
		die("could not finalize generation:", err)
	}

	counters := up.Counters()
	fmt.Printf("generation %s complete: %d files reused, %d rechunked, %d chunks uploaded, %d reused, %d warnings\n",
		result.GenerationID, totalStats.FilesReused, totalStats.FilesRechunked,
		counters.ChunksUploaded, counters.ChunksReused, warnings)

	if len(newTags) > 0 {
		for _, path := range newTags {
			fmt.Fprintln(os.Stderr, "new cache tag discovered:", path)
		}
		os.Exit(exitCodeGeneral)
	}
}
