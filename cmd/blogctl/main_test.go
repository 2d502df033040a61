package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandLayout(t *testing.T) {
	root := (&cli{}).rootCmd()
	for _, name := range []string{"publish", "sync", "open", "serve", "token"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
	publish, _, _ := root.Find([]string{"publish"})
	assert.NotNil(t, publish.Flags().Lookup("draft"))
}

func TestPublishRejectsBadIDBeforeLoadingConfig(t *testing.T) {
	c := &cli{}
	root := c.rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"publish", "not-hex"})

	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid post id")
	assert.Nil(t, c.app)
}

func TestTokenRequiresValidConfig(t *testing.T) {
	c := &cli{}
	root := c.rootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", t.TempDir(), "token", "ci"})

	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt.secret")
}
