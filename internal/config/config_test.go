// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitMissingFileKeepsDefaults(t *testing.T) {
	err := Init(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	require.Equal(t, "sqlite3", Keys.DBDriver)
}

func TestInitOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"addr":":9090","defaultClaimLimit":42}`), 0o644))

	require.NoError(t, Init(path))
	require.Equal(t, ":9090", Keys.Addr)
	require.EqualValues(t, 42, Keys.DefaultClaimLimit)
}

func TestInitRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"bogusField":true}`), 0o644))

	err := Init(path)
	require.Error(t, err)
}
