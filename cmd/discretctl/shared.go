package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/discretlib/discret"
	"github.com/discretlib/discret/pkg/config"
)

var (
	handle   *discret.Handle
	handleMu sync.Mutex
)

// sharedHandle lazily opens the node the first time any subcommand needs
// one, reusing it for the rest of the process's lifetime — the same
// lazy-singleton shape the teacher's cmd/cli PersistentPreRunE functions
// use for their own node/peer-manager globals.
func sharedHandle(cmd *cobra.Command) (*discret.Handle, error) {
	handleMu.Lock()
	defer handleMu.Unlock()
	if handle != nil {
		return handle, nil
	}

	env, _ := cmd.Flags().GetString("env")
	cfg, err := config.Load(env)
	if err != nil {
		cfg = &config.Config{}
	}

	modelPath, _ := cmd.Flags().GetString("model")
	if modelPath == "" {
		return nil, fmt.Errorf("discretctl: --model is required")
	}
	modelDSL, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("discretctl: read --model: %w", err)
	}

	keyPath, _ := cmd.Flags().GetString("key")
	if keyPath == "" {
		return nil, fmt.Errorf("discretctl: --key is required")
	}
	keyMaterial, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("discretctl: read --key: %w", err)
	}

	appName, _ := cmd.Flags().GetString("app-name")
	dataPath, _ := cmd.Flags().GetString("data")
	if dataPath != "" {
		cfg.Storage.DBPath = dataPath
	}

	h, err := discret.New(string(modelDSL), appName, keyMaterial, cfg.Storage.DBPath, *cfg)
	if err != nil {
		return nil, err
	}
	handle = h
	return handle, nil
}

// parseParams turns a --param key=value,key2=value2 flag into the
// map[string]interface{} internal/query's parser expects, treating every
// value as a string — callers needing non-string parameters (ids, room
// scope) pass them as their base64/string wire form, same as the
// mutation/query language itself does.
func parseParams(raw map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	return out
}
