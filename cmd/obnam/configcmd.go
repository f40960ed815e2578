package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "print the effective configuration as JSON",
	Run:   runConfig,
}

func runConfig(*cobra.Command, []string) {
	cfg := loadClientConfig()
	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		die("could not marshal config:", err)
	}
	fmt.Println(string(out))
}
