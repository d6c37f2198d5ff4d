// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pulsefm/pulsefm/internal/ds"
)

func TestRunValidateRejectsMissingFile(t *testing.T) {
	code := runValidate([]string{})
	require.Equal(t, 2, code)
}

func TestRunValidateRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("notAField: true\n"), 0o644))

	code := runValidate([]string{"-f", path})
	require.Equal(t, 1, code)
}

func TestRunValidateAcceptsWellFormedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rotation:\n  pollOptionCount: 5\n"), 0o644))

	code := runValidate([]string{"-f", path})
	require.Equal(t, 0, code)
}

func TestRunSeedBootstrapsStationRecord(t *testing.T) {
	dir := t.TempDir()
	code := runSeed([]string{"--data-dir", dir, "--stubbed-duration-ms", "42000"})
	require.Equal(t, 0, code)

	store, err := ds.Open(dir)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	var rec *ds.StationRecord
	require.NoError(t, store.View(context.Background(), func(t *ds.Txn) error {
		r, ok, err := t.GetStationRecord()
		if err != nil {
			return err
		}
		require.True(t, ok)
		rec = r
		return nil
	}))
	require.Equal(t, int64(42000), rec.DurationMs)
}
