package platform

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultModelDirForLinuxWithXDG(t *testing.T) {
	t.Parallel()

	dir, err := DefaultModelDirFor("linux", "/home/dev", "/tmp/xdg-data")
	require.NoError(t, err)
	require.Equal(t, "/tmp/xdg-data/murmur/models", dir)
}

func TestDefaultModelDirForLinuxWithoutXDG(t *testing.T) {
	t.Parallel()

	dir, err := DefaultModelDirFor("linux", "/home/dev", "")
	require.NoError(t, err)
	require.Equal(t, "/home/dev/.local/share/murmur/models", dir)
}

func TestDefaultModelDirForMacOS(t *testing.T) {
	t.Parallel()

	dir, err := DefaultModelDirFor("darwin", "/Users/dev", "")
	require.NoError(t, err)
	require.Equal(t, "/Users/dev/Library/Application Support/murmur/models", dir)
}

func TestDefaultModelDirForUnsupportedOS(t *testing.T) {
	t.Parallel()

	_, err := DefaultModelDirFor("windows", "/Users/dev", "")
	require.Error(t, err)
}

func TestDefaultConfigDirForLinuxWithXDG(t *testing.T) {
	t.Parallel()

	dir, err := DefaultConfigDirFor("linux", "/home/dev", "/tmp/xdg-config")
	require.NoError(t, err)
	require.Equal(t, "/tmp/xdg-config/murmur", dir)
}

func TestDefaultConfigDirForLinuxWithoutXDG(t *testing.T) {
	t.Parallel()

	dir, err := DefaultConfigDirFor("linux", "/home/dev", "")
	require.NoError(t, err)
	require.Equal(t, "/home/dev/.config/murmur", dir)
}

func TestDefaultConfigDirForMacOS(t *testing.T) {
	t.Parallel()

	dir, err := DefaultConfigDirFor("darwin", "/Users/dev", "")
	require.NoError(t, err)
	require.Equal(t, "/Users/dev/Library/Application Support/murmur", dir)
}

func TestDefaultConfigDirForEmptyHome(t *testing.T) {
	t.Parallel()

	_, err := DefaultConfigDirFor("linux", "", "")
	require.Error(t, err)
}
