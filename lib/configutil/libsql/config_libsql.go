package configlibsql

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	devenv "casesync-backend/dev/env"
	"casesync-backend/pkg/migrations"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

// Struct selects either a local sqlite file or a remote libsql database.
// Url takes precedence when both are set.
type Struct struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func (config Struct) OpenDB() (*sql.DB, error) {
	if config.Url != "" {
		dsn := config.Url
		if config.AuthToken != "" {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "authToken=" + url.QueryEscape(config.AuthToken)
		}
		return sql.Open("libsql", dsn)
	}

	if config.File == "" {
		return nil, fmt.Errorf("a path was not specified")
	}
	dbpath, err := devenv.ResolvePath(config.File)
	if err != nil {
		return nil, err
	}
	return migrations.OpenDB(dbpath)
}

// OpenAndMigrate opens the database and applies schema to it.
func (config Struct) OpenAndMigrate(schema string) (*sql.DB, error) {
	db, err := config.OpenDB()
	if err != nil {
		return nil, err
	}
	err = migrations.Apply(db, schema)
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
