package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/lionrow/internal/core"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, logs bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&logs)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "lionctl", cmd.Use)

	for _, name := range []string{"version", "check", "stamp"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	for _, flag := range []string{"config", "driver", "dsn", "verbose"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
	assert.Equal(t, "v", cmd.PersistentFlags().Lookup("verbose").Shorthand)
}

func TestStampVersionCheck(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "lion.db")
	db := []string{"--driver", "sqlite3", "--dsn", dsn}

	out, err := run(t, append(db, "stamp", "--version", "7", "--author", "ari")...)
	require.NoError(t, err)
	assert.Equal(t, "recorded schema version 7 by ari\n", out)

	out, err = run(t, append(db, "version")...)
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 7 ")
	assert.Contains(t, out, "by ari")

	out, err = run(t, append(db, "check", "--expect", "7")...)
	require.NoError(t, err)
	assert.Equal(t, "schema version 7 ok\n", out)

	_, err = run(t, append(db, "check", "--expect", "9")...)
	require.Error(t, err)
	var versionErr *core.SchemaVersionError
	require.ErrorAs(t, err, &versionErr)
	assert.Equal(t, 7, versionErr.Found)
	assert.Equal(t, 9, versionErr.Expected)
}

func TestCheck_ExpectedFromConfig(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "lion.db")
	_, err := run(t, "--driver", "sqlite3", "--dsn", dsn, "stamp", "--version", "3")
	require.NoError(t, err)

	path := filepath.Join(dir, "lionrow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: sqlite3\n  dsn: "+dsn+"\n  expected_version: 3\n"), 0o600))

	out, err := run(t, "--config", path, "check")
	require.NoError(t, err)
	assert.Equal(t, "schema version 3 ok\n", out)

	_, err = run(t, "--driver", "sqlite3", "--dsn", dsn, "check")
	assert.ErrorIs(t, err, core.ErrUsage)
}

func TestStamp_RequiresVersion(t *testing.T) {
	_, err := run(t, "--driver", "sqlite3", "--dsn", filepath.Join(t.TempDir(), "lion.db"), "stamp")
	assert.Error(t, err)
}

func TestLoadConfig_FlagsOverride(t *testing.T) {
	t.Setenv("LIONROW_DATABASE_DRIVER", "mysql")
	t.Setenv("LIONROW_DATABASE_DSN", "root@tcp(localhost:3306)/lion")

	cfg, err := loadConfig(&RootOptions{})
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Database.Driver)

	cfg, err = loadConfig(&RootOptions{Driver: "sqlite3", DSN: "lion.db"})
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "lion.db", cfg.Database.DSN)

	_, err = loadConfig(&RootOptions{Driver: "oracle"})
	assert.Error(t, err)
}
