package utils

import (
	"context"
	"net"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestExtractFromDBURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"postgresql://user:pw@db:5433/agent", "db:5433"},
		{"postgresql://user:pw@db/agent", "db:5432"},
		{"postgres://db", "db:5432"},
		{"sqlite:///tmp/agent.db", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, ExtractFromDBURL(tt.url), tt.want)
		})
	}
}

func TestWaitForTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NilError(t, err)
	defer ln.Close()
	assert.NilError(t, WaitForTCP(context.Background(), ln.Addr().String(), time.Second))
}

func TestWaitForTCPTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NilError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	err = WaitForTCP(context.Background(), addr, 300*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
