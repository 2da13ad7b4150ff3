package database

import (
	"fmt"
	"log/slog"
)

func NewDatabase(databaseType, connectionString string) (database *SQLiteDatabase, err error) {
	switch databaseType {
	case "sqlite":
		database, err = NewSQLiteDatabase(connectionString)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", databaseType)
	}

	if !database.DoesDatabaseExist() {
		_ = database.Close()
		return nil, fmt.Errorf("database %q is not reachable", connectionString)
	}

	// Ensure database schema exists (idempotent), important for in-memory SQLite
	slog.Info("Database: initializing schema (ensuring tables exist)", "type", databaseType)
	if _, err = database.CreateDatabase(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	return database, nil
}
