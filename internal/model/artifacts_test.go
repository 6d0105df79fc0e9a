package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveArtifacts(t *testing.T) {
	dir := writeModelDir(t, map[string]string{
		"generation_config.json": `{"eos_token_id": [151645, 151643], "pad_token_id": 151643}`,
		"config.json":            `{"eos_token_id": 2}`,
		"README.md":              "docs",
	})

	a, err := ResolveArtifacts(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "qwen2-vl-2b-instruct-q4_k_m.gguf"), a.Weights)
	assert.Equal(t, filepath.Join(dir, "mmproj-qwen2-vl-2b-instruct-f16.gguf"), a.Projector)
	require.NotNil(t, a.EOSTokenID)
	assert.Equal(t, 151645, *a.EOSTokenID)
}

func TestResolveArtifacts_ConfigFallback(t *testing.T) {
	dir := writeModelDir(t, map[string]string{
		"generation_config.json": `{"do_sample": false}`,
		"config.json":            `{"eos_token_id": 2}`,
	})

	a, err := ResolveArtifacts(dir)
	require.NoError(t, err)
	require.NotNil(t, a.EOSTokenID)
	assert.Equal(t, 2, *a.EOSTokenID)
}

func TestResolveArtifacts_NoEOS(t *testing.T) {
	a, err := ResolveArtifacts(writeModelDir(t, nil))
	require.NoError(t, err)
	assert.Nil(t, a.EOSTokenID)
}

func TestResolveArtifacts_PicksFirstWeightsByName(t *testing.T) {
	dir := writeModelDir(t, map[string]string{"a-model-q8_0.gguf": "w"})

	a, err := ResolveArtifacts(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a-model-q8_0.gguf"), a.Weights)
}

func TestResolveArtifacts_Errors(t *testing.T) {
	_, err := ResolveArtifacts(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	noProjector := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(noProjector, "model.gguf"), []byte("w"), 0o600))
	_, err = ResolveArtifacts(noProjector)
	assert.ErrorIs(t, err, errNoProjector)

	_, err = ResolveArtifacts(t.TempDir())
	assert.ErrorIs(t, err, errNoWeights)

	badConfig := writeModelDir(t, map[string]string{"config.json": `{"eos_token_id": "x"}`})
	_, err = ResolveArtifacts(badConfig)
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "model.gguf")
	require.NoError(t, os.WriteFile(file, []byte("w"), 0o600))
	_, err = ResolveArtifacts(file)
	assert.Error(t, err)
}
