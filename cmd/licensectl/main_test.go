package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddListRemove(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "licenses.db")
	base := []string{"-driver", "sqlite", "-dsn", dsn}

	var out bytes.Buffer
	err := run(ctx, append(base, "add",
		"-key", "MNGO-AAAA-BBBB-CCCC",
		"-org", "Acme",
		"-type", "full",
		"-expiry", "2099-01-01",
		"-products", "studio, cli",
	), &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "created license MNGO*")
	assert.NotContains(t, out.String(), "AAAA-BBBB")

	out.Reset()
	require.NoError(t, run(ctx, append(base, "list"), &out))
	assert.Contains(t, out.String(), "Acme")
	assert.Contains(t, out.String(), "Full")
	assert.Contains(t, out.String(), "2099-01-01")
	assert.Contains(t, out.String(), "studio,cli")
	assert.NotContains(t, out.String(), "MNGO-AAAA")

	out.Reset()
	require.NoError(t, run(ctx, append(base, "remove", "-key", "MNGO-AAAA-BBBB-CCCC"), &out))
	assert.Contains(t, out.String(), "removed license")

	assert.Error(t, run(ctx, append(base, "remove", "-key", "MNGO-AAAA-BBBB-CCCC"), &out))
}

func TestRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	base := []string{"-driver", "sqlite", "-dsn", "file:" + filepath.Join(t.TempDir(), "licenses.db")}
	var out bytes.Buffer

	assert.Error(t, run(ctx, base, &out), "missing command")
	assert.Error(t, run(ctx, append(base, "frobnicate"), &out))
	assert.Error(t, run(ctx, append(base, "add", "-key", "K", "-org", "Acme", "-type", "platinum", "-expiry", "2099-01-01"), &out))
	assert.Error(t, run(ctx, append(base, "add", "-key", "K", "-org", "Acme", "-type", "lite", "-expiry", "31/12/2099"), &out))
	assert.Error(t, run(ctx, append(base, "remove"), &out))
}
