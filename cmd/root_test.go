package cmd

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagValue(t *testing.T) {
	assert.Equal(t, "42", flagValue(42))
	assert.Equal(t, "a,b", flagValue([]any{"a", "b"}))
	assert.Equal(t, "", flagValue([]any{}))
}

func TestBindFlagsFromConfig(t *testing.T) {
	v := viper.New()
	v.Set("chat-workers", 3)
	v.Set("chat-ignore-usernames", []any{"bot", "Sim RaceCenter"})

	var workers int
	var ignore []string
	cmd := &cobra.Command{Use: "x"}
	cmd.Flags().IntVar(&workers, "chat-workers", 1, "")
	cmd.Flags().StringSliceVar(&ignore, "chat-ignore-usernames", nil, "")
	root := &cobra.Command{Use: "root"}
	root.AddCommand(cmd)

	bindCommand(root, v)
	require.Equal(t, 3, workers)
	assert.Equal(t, []string{"bot", "Sim RaceCenter"}, ignore)
}

func TestBindFlagsKeepsExplicitValue(t *testing.T) {
	v := viper.New()
	v.Set("chat-workers", 3)

	var workers int
	cmd := &cobra.Command{Use: "x"}
	cmd.Flags().IntVar(&workers, "chat-workers", 1, "")
	require.NoError(t, cmd.Flags().Set("chat-workers", "5"))

	bindFlags(cmd, v)
	assert.Equal(t, 5, workers)
}
