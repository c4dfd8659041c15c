package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	devenv "casesync-backend/dev/env"
	"casesync-backend/lib/casedb"
	"casesync-backend/pkg/migrations"
	"casesync-backend/services/keychain"
	keychaindb "casesync-backend/services/keychain/db"
)

func createDb(filename string, schemas ...string) error {
	path, err := devenv.ResolvePath(filepath.Join("<dev_state>", filename))
	if err != nil {
		return err
	}

	_, err = os.Stat(path)
	if err == nil {
		fmt.Println("database already created at", path)
		return nil
	}

	fmt.Println("creating database at", path)
	db, err := migrations.OpenDB(path)
	if err != nil {
		return err
	}
	defer db.Close()
	for _, schema := range schemas {
		err = migrations.Apply(db, schema)
		if err != nil {
			return err
		}
	}
	return nil
}

func CreateServiceDB() error {
	return createDb("casesync.db", casedb.Schema, keychaindb.Schema)
}

// CreateServerConfig writes a config for cmd/casesync-server that keeps all
// of its state under dev/.state. The portal section is left for the
// developer to fill in.
func CreateServerConfig() error {
	path, err := devenv.ResolvePath("<dev_state>/casesync.json5")
	if err != nil {
		return err
	}
	_, err = os.Stat(path)
	if err == nil {
		fmt.Println("server config already created at", path)
		return nil
	}

	stateDir, err := devenv.ResolvePath("<dev_state>")
	if err != nil {
		return err
	}
	secretKey, err := keychain.GenerateKey()
	if err != nil {
		return err
	}

	config := map[string]any{
		"port":   8000,
		"secret": "dev-secret",
		"database": map[string]any{
			"file": filepath.Join(stateDir, "casesync.db"),
		},
		"storage": map[string]any{
			"kind": "local",
			"local": map[string]any{
				"directory": filepath.Join(stateDir, "blobs"),
			},
		},
		"queue": map[string]any{
			"kind": "memory",
		},
		"portal": map[string]any{
			"base_url":      "",
			"identity_host": "",
		},
		"keychain": map[string]any{
			"secret_key": secretKey,
		},
	}
	out, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println("writing server config to", path)
	return os.WriteFile(path, out, 0600)
}

func PrintConfigLocations() {
	slog.Info("live portal tests read dev/.state/portal_config.json5 (see devenv.PortalTestConfig) and are skipped without it.")
	slog.Info("run the server with `go run ./cmd/casesync-server -config dev/.state/casesync.json5` after filling in the portal section.")
}
