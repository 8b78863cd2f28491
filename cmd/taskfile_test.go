package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTaskFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("json", func(t *testing.T) {
		path := writeTask(t, dir, "t.json", `{"name": "n", "instructions": "i", "parameters": {"urls": ["https://a"]}, "max_steps": 2}`)
		in, err := loadTaskFile(path)
		require.NoError(t, err)
		assert.Equal(t, "i", in.Description())
		assert.JSONEq(t, `["https://a"]`, string(in.Parameters.URLs))
		require.NotNil(t, in.MaxSteps)
		assert.Equal(t, 2, *in.MaxSteps)
	})

	t.Run("yaml keeps malformed urls for validation", func(t *testing.T) {
		path := writeTask(t, dir, "t.yaml", "name: only-name\nparameters:\n  urls: https://a\n")
		in, err := loadTaskFile(path)
		require.NoError(t, err)
		assert.Equal(t, "only-name", in.Description())
		assert.JSONEq(t, `"https://a"`, string(in.Parameters.URLs))
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writeTask(t, dir, "bad.yaml", "parameters: [unclosed\n")
		_, err := loadTaskFile(path)
		assert.Error(t, err)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := loadTaskFile(filepath.Join(dir, "nope.json"))
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
