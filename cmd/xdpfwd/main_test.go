package main

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHelpExitsSuccess(t *testing.T) {
	for _, cmd := range []string{"help", "-h", "--help"} {
		t.Run(cmd, func(t *testing.T) {
			var stdout bytes.Buffer
			code := run([]string{"xdpfwd", cmd}, &stdout, io.Discard)

			assert.Equal(t, 0, code)
			assert.Contains(t, stdout.String(), "Usage: xdpfwd")
			assert.Contains(t, stdout.String(), "run     Attach")
		})
	}
}

func TestNoCommandFails(t *testing.T) {
	var stderr bytes.Buffer
	code := run([]string{"xdpfwd"}, io.Discard, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "Usage: xdpfwd")
}

func TestUnknownCommandFails(t *testing.T) {
	var stderr bytes.Buffer
	code := run([]string{"xdpfwd", "frobnicate"}, io.Discard, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "unknown command: frobnicate")
}
