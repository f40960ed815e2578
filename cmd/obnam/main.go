// Command obnam is the backup client.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/obnam-mirror/obnam2/build"
	"github.com/obnam-mirror/obnam2/client/chunkcodec"
	"github.com/obnam-mirror/obnam2/client/config"
	"github.com/obnam-mirror/obnam2/client/keymgr"
	"github.com/obnam-mirror/obnam2/client/serverclient"
	"github.com/obnam-mirror/obnam2/persist"
)

// exit codes, inspired by sysexits.h
const (
	exitCodeGeneral = 1
	exitCodeUsage   = 64
)

func die(args ...interface{}) {
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(exitCodeGeneral)
}

var (
	configPath string
	keyPath    string
)

func defaultConfigPath() string {
	return filepath.Join(build.ConfigDir(), "obnam.yaml")
}

// loadClientConfig reads and validates the client configuration named by
// the --config flag, dying on any failure: an invalid config is always
// fatal at startup.
func loadClientConfig() config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		die("could not load config:", err)
	}
	return cfg
}

// loadClientKeys reads the persisted key file, dying with a message
// pointing at `obnam init` when none exists yet.
func loadClientKeys() keymgr.Keys {
	keys, err := keymgr.Load(keyPath)
	if err != nil {
		die(err)
	}
	return keys
}

func newClientLogger(cfg config.Config) *persist.Logger {
	w := io.Discard
	if cfg.Log != "" {
		f, err := os.OpenFile(cfg.Log, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			die("could not open log file:", err)
		}
		return mustLogger(persist.NewLogger(f, build.ClientLogLevel()))
	}
	return mustLogger(persist.NewLogger(w, build.ClientLogLevel()))
}

func mustLogger(log *persist.Logger, err error) *persist.Logger {
	if err != nil {
		die("could not start logger:", err)
	}
	return log
}

func newCodec(keys keymgr.Keys) *chunkcodec.Codec {
	codec, err := chunkcodec.New(keys.Encryption)
	if err != nil {
		die("could not construct chunk codec:", err)
	}
	return codec
}

func newServerClient(cfg config.Config) *serverclient.Client {
	return serverclient.New(cfg.ServerURL, cfg.VerifyTLSCert)
}

func versionCmd(*cobra.Command, []string) {
	fmt.Println("obnam " + build.Version)
}

func main() {
	root := &cobra.Command{
		Use:   "obnam",
		Short: "Obnam backup client v" + build.Version,
		Long:  "Obnam backup client v" + build.Version,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "path to client configuration file")
	root.PersistentFlags().StringVar(&keyPath, "key-file", build.KeyFilePath(), "path to the persisted key file")

	root.AddCommand(
		&cobra.Command{Use: "version", Short: "Print version information", Run: versionCmd},
		initCmd,
		backupCmd,
		listCmd,
		listFilesCmd,
		restoreCmd,
		resolveCmd,
		inspectCmd,
		genInfoCmd,
		listBackupVersionsCmd,
		chunkifyCmd,
		encryptChunkCmd,
		decryptChunkCmd,
		getChunkCmd,
		configCmd,
	)

	if err := root.Execute(); err != nil {
		os.Exit(exitCodeUsage)
	}
}
