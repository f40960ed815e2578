package keymgr

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.yaml")

	keys, err := Init("hunter2", path)
	require.NoError(t, err)

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, keys, loaded)
}

func TestInitProducesDistinctEncryptionAndMACKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.yaml")
	keys, err := Init("hunter2", path)
	require.NoError(t, err)
	require.NotEqual(t, keys.Encryption, keys.MAC)
}

func TestInitIsDeterministicGivenSameSaltAndPassphrase(t *testing.T) {
	salt := make([]byte, saltSize)
	a := deriveKeys("hunter2", salt)
	b := deriveKeys("hunter2", salt)
	require.Equal(t, a, b)

	c := deriveKeys("different", salt)
	require.NotEqual(t, a, c)
}

func TestLoadFailsWhenFileMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	_, err := Load(path)
	require.ErrorIs(t, err, ErrKeyMissing)
}

func TestLoadFailsWhenPermissionsTooOpen(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not meaningful on windows")
	}
	path := filepath.Join(t.TempDir(), "keys.yaml")
	_, err := Init("hunter2", path)
	require.NoError(t, err)

	require.NoError(t, os.Chmod(path, 0644))
	_, err = Load(path)
	require.ErrorIs(t, err, ErrKeyInsecure)
}
