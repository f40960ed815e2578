package walker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, contents []byte) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(t, os.WriteFile(path, contents, 0600))
}

func TestWalkCapturesRegularFilesAndDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), []byte("hello"))
	writeFile(t, filepath.Join(root, "sub", "b.txt"), []byte("world"))

	w := New([]string{root}, false, nil)
	result, err := w.Walk(context.Background())
	require.NoError(t, err)
	require.Empty(t, result.Warnings)

	var paths []string
	for _, e := range result.Entries {
		paths = append(paths, e.Path)
	}
	require.Contains(t, paths, "a.txt")
	require.Contains(t, paths, "sub")
	require.Contains(t, paths, filepath.Join("sub", "b.txt"))
}

func TestWalkEntriesAreSortedWithinADirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "zeta.txt"), []byte("z"))
	writeFile(t, filepath.Join(root, "alpha.txt"), []byte("a"))

	w := New([]string{root}, false, nil)
	result, err := w.Walk(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Entries, 2)
	require.Equal(t, "alpha.txt", result.Entries[0].Path)
	require.Equal(t, "zeta.txt", result.Entries[1].Path)
}

func TestWalkFailsWhenRootDoesNotExist(t *testing.T) {
	w := New([]string{"/does/not/exist/ever"}, false, nil)
	_, err := w.Walk(context.Background())
	require.ErrorIs(t, err, ErrRootUnreadable)
}

func TestWalkCapturesSymlinkTarget(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "target.txt"), []byte("x"))
	require.NoError(t, os.Symlink("target.txt", filepath.Join(root, "link")))

	w := New([]string{root}, false, nil)
	result, err := w.Walk(context.Background())
	require.NoError(t, err)

	var link *Entry
	for i := range result.Entries {
		if result.Entries[i].Path == "link" {
			link = &result.Entries[i]
		}
	}
	require.NotNil(t, link)
	require.Equal(t, KindSymlink, link.Kind)
	require.Equal(t, "target.txt", link.SymlinkTarget)
}

func TestWalkExcludesCacheTaggedDirectoryContentsButKeepsTheTag(t *testing.T) {
	root := t.TempDir()
	cacheDir := filepath.Join(root, "cache")
	writeFile(t, filepath.Join(cacheDir, cacheDirTagName), []byte(cacheDirTagSignature+"\nextra data\n"))
	writeFile(t, filepath.Join(cacheDir, "ignored.txt"), []byte("should not appear"))

	w := New([]string{root}, true, nil)
	result, err := w.Walk(context.Background())
	require.NoError(t, err)

	var paths []string
	for _, e := range result.Entries {
		paths = append(paths, e.Path)
	}
	require.Contains(t, paths, filepath.Join("cache", cacheDirTagName))
	require.NotContains(t, paths, filepath.Join("cache", "ignored.txt"))
	require.Len(t, result.CacheTags, 1)
	require.Equal(t, "cache", result.CacheTags[0].Path)
}

func TestWalkIgnoresCacheTagWhenDisabled(t *testing.T) {
	root := t.TempDir()
	cacheDir := filepath.Join(root, "cache")
	writeFile(t, filepath.Join(cacheDir, cacheDirTagName), []byte(cacheDirTagSignature))
	writeFile(t, filepath.Join(cacheDir, "kept.txt"), []byte("kept"))

	w := New([]string{root}, false, nil)
	result, err := w.Walk(context.Background())
	require.NoError(t, err)

	var paths []string
	for _, e := range result.Entries {
		paths = append(paths, e.Path)
	}
	require.Contains(t, paths, filepath.Join("cache", "kept.txt"))
	require.Empty(t, result.CacheTags)
}

func TestWalkRecordsWarningForUnreadableSubdirectoryAndContinues(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "before.txt"), []byte("x"))
	blocked := filepath.Join(root, "blocked")
	require.NoError(t, os.MkdirAll(blocked, 0700))
	writeFile(t, filepath.Join(blocked, "secret.txt"), []byte("x"))
	writeFile(t, filepath.Join(root, "after.txt"), []byte("x"))

	require.NoError(t, os.Chmod(blocked, 0))
	defer os.Chmod(blocked, 0700)

	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	w := New([]string{root}, false, nil)
	result, err := w.Walk(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, result.Warnings)

	var paths []string
	for _, e := range result.Entries {
		paths = append(paths, e.Path)
	}
	require.Contains(t, paths, "before.txt")
	require.Contains(t, paths, "after.txt")
}
