package storage

import (
	"embed"
	"errors"
	"fmt"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mongodb"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/mongo/*.json
var mongoMigrations embed.FS

// MigrateMongo applies the kv collection migrations to database on uri.
// It opens its own connection and closes it when done.
func MigrateMongo(uri, database string) error {
	dbURL, err := mongoDatabaseURL(uri, database)
	if err != nil {
		return err
	}

	src, err := iofs.New(mongoMigrations, "migrations/mongo")
	if err != nil {
		return fmt.Errorf("could not open migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	defer m.Close()

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}
	return nil
}

func mongoDatabaseURL(uri, database string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid mongo uri: %w", err)
	}
	if database == "" {
		return "", errors.New("mongo database name is required")
	}
	u.Path = "/" + database
	return u.String(), nil
}
