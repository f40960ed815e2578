// Command obnam-server runs the chunk server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/obnam-mirror/obnam2/build"
	"github.com/obnam-mirror/obnam2/persist"
	"github.com/obnam-mirror/obnam2/server"
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

var configPath string

func versionCmd(*cobra.Command, []string) {
	fmt.Println("obnam-server " + build.Version)
}

func serveCmd(*cobra.Command, []string) {
	cfg, err := server.LoadConfig(configPath)
	if err != nil {
		die("could not load config:", err)
	}

	log, err := persist.NewLogger(os.Stderr, build.ServerLogLevel())
	if err != nil {
		die("could not start logger:", err)
	}

	srv, err := server.New(cfg, log)
	if err != nil {
		die("could not start server:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(ctx); err != nil {
		die("server exited with error:", err)
	}
}

func main() {
	root := &cobra.Command{
		Use:   "obnam-server",
		Short: "Obnam chunk server v" + build.Version,
		Long:  "Obnam chunk server v" + build.Version,
		Run:   serveCmd,
	}
	root.Flags().StringVarP(&configPath, "config", "c", "/etc/obnam/server.yaml", "path to server configuration file")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   versionCmd,
	})

	if err := root.Execute(); err != nil {
		os.Exit(exitCodeUsage)
	}
}
