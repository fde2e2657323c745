package configstore_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printbridge/agent/internal/configstore"
	"github.com/printbridge/agent/internal/model"
)

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	got := configstore.Load()
	assert.Equal(t, model.StoredConfig{}, got)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := model.StoredConfig{
		RestaurantID:    "rest-1",
		DeviceName:      "Kitchen",
		FirebaseProject: "proj-1",
	}
	require.NoError(t, configstore.Save(cfg))

	got := configstore.Load()
	assert.Equal(t, cfg.RestaurantID, got.RestaurantID)
	assert.Equal(t, cfg.DeviceName, got.DeviceName)
	assert.Equal(t, cfg.FirebaseProject, got.FirebaseProject)
	assert.NotEmpty(t, got.UpdatedAt)
}

func TestLoad_CorruptFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	require.NoError(t, configstore.Save(model.StoredConfig{RestaurantID: "will-be-overwritten"}))

	path, err := configstore.Path()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	got := configstore.Load()
	assert.Equal(t, model.StoredConfig{}, got)
}

func TestClear_RemovesFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	require.NoError(t, configstore.Save(model.StoredConfig{RestaurantID: "x"}))

	configstore.Clear()

	got := configstore.Load()
	assert.Equal(t, model.StoredConfig{}, got)
}
