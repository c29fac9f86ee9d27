// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/pygraph/internal/config"
)

func TestDefaultConfigIsUsableAsIs(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.NoError(t, cfg.Validate(nil))
	assert.Equal(t, "mem:", cfg.Store.URI)
	assert.True(t, cfg.Ingestion.UseGitDelta)
}

func TestSaveThenLoadConfigRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := config.ConfigPath(dir)

	cfg := config.DefaultConfig()
	cfg.Store.URI = "rocksdb:/var/data/pygraph"
	cfg.Repo.Path = "/srv/project"
	cfg.Ingestion.ParseWorkers = 8

	require.NoError(t, config.SaveConfig(cfg, path))

	loaded, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "rocksdb:/var/data/pygraph", loaded.Store.URI)
	assert.Equal(t, "/srv/project", loaded.Repo.Path)
	assert.Equal(t, 8, loaded.Ingestion.ParseWorkers)
}

func TestLoadConfigDiscoversParentDirectory(t *testing.T) {
	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Repo.Path = root
	require.NoError(t, config.SaveConfig(cfg, config.ConfigPath(root)))

	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	oldWD, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(sub))
	t.Cleanup(func() { _ = os.Chdir(oldWD) })

	loaded, err := config.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, root, loaded.Repo.Path)
}

func TestLoadConfigMissingFileReturnsError(t *testing.T) {
	dir := t.TempDir()
	oldWD, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(oldWD) })

	_, err = config.LoadConfig("")
	assert.Error(t, err)
}

func TestValidateRejectsEmptyStoreURI(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.URI = ""
	assert.Error(t, cfg.Validate(nil))
}

func TestValidateRejectsEmptyRepoPath(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Repo.Path = ""
	assert.Error(t, cfg.Validate(nil))
}

func TestValidateWarnsOnIgnoredCredentialsAgainstEmbeddedBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.User = "neo4j"
	cfg.Store.Password = "secret"
	// Validate never fails for this — it only warns via the logger.
	assert.NoError(t, cfg.Validate(nil))
}
