package main

import (
	"bytes"
	"io"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/etc/livequestion.yaml")
	t.Setenv("QUESTION", "")

	opts, err := parseFlags(nil, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "/etc/livequestion.yaml", opts.configPath)
	assert.Empty(t, opts.question)

	opts, err = parseFlags([]string{"--config", "local.yaml", "-q", "interaction=brainstorming&question=Pets"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "local.yaml", opts.configPath)
	assert.Equal(t, "interaction=brainstorming&question=Pets", opts.question)
}

func TestParseFlags_Help(t *testing.T) {
	var out bytes.Buffer
	_, err := parseFlags([]string{"-h"}, &out)
	assert.ErrorIs(t, err, pflag.ErrHelp)
	assert.Contains(t, out.String(), "--question")
}

func TestParseFlags_Rejects(t *testing.T) {
	_, err := parseFlags([]string{"extra"}, io.Discard)
	assert.ErrorContains(t, err, "unexpected argument: extra")

	_, err = parseFlags([]string{"--nope"}, io.Discard)
	assert.Error(t, err)
}
