package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memberportal/internal/database"
	"memberportal/internal/database/dbtest"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func legacyDatabase(t *testing.T) string {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "legacy.db")
	db, err := database.Open(context.Background(), database.Config{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	dbtest.Exec(t, db, dbtest.Schema)
	require.NoError(t, db.Close())
	return dsn
}

func TestAddColumnsCommand(t *testing.T) {
	dsn := legacyDatabase(t)
	args := []string{"add-columns", "--database.driver", "sqlite", "--database.dsn", dsn}

	out, err := run(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "location     added")
	assert.Contains(t, out, "video_link   added")
	assert.Contains(t, out, "duration     added")

	out, err = run(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "location     skipped")
	assert.Contains(t, out, "duration     skipped")
}

func TestAddColumnsCommand_UnknownTable(t *testing.T) {
	dsn := legacyDatabase(t)
	out, err := run(t, "add-columns", "--database.driver", "sqlite", "--database.dsn", dsn, "--table", "Missing")
	assert.Error(t, err)
	assert.Contains(t, out, "error")
}

func TestAddColumnsCommand_ConnectionFailure(t *testing.T) {
	_, err := run(t, "add-columns", "--database.driver", "mysql", "--database.dsn", "not a dsn")
	assert.ErrorIs(t, err, database.ErrConnect)
}

func TestRenameTablesCommand(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "speakers.php")
	require.NoError(t, os.WriteFile(file, []byte(`<?php $q = "SELECT * FROM Refname";`), 0o644))

	out, err := run(t, "rename-tables", "--root", root, "--map", "Refname=speakers", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "scanned 1 files, modified 1, 1 replacements (dry run)")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "FROM Refname")

	out, err = run(t, "rename-tables", "--root", root, "--map", "Refname=speakers")
	require.NoError(t, err)
	assert.Contains(t, out, "modified "+file)

	data, err = os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "FROM speakers")
}

func TestRenameTablesCommand_BadMapping(t *testing.T) {
	_, err := run(t, "rename-tables", "--map", "Refname")
	assert.Error(t, err)
}
