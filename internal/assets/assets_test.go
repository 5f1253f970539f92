package assets

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sum(data string) string {
	h := md5.Sum([]byte(data))
	return hex.EncodeToString(h[:])
}

func packaged() fstest.MapFS {
	return fstest.MapFS{
		ListFile:                {Data: []byte("hmm/en-us/mdef\nhmm/en-us/means\ndict/cmudict.dict\n")},
		"hmm/en-us/mdef":        {Data: []byte("mdef-v1")},
		"hmm/en-us/mdef.md5":    {Data: []byte(sum("mdef-v1") + "\n")},
		"hmm/en-us/means":       {Data: []byte("means-v1")},
		"dict/cmudict.dict":     {Data: []byte("hello HH AH L OW\n")},
		"dict/cmudict.dict.md5": {Data: []byte(sum("hello HH AH L OW\n"))},
		"unlisted/ignored.bin":  {Data: []byte("x")},
		"unlisted/ignored2.bin": {Data: []byte("y")},
	}
}

type recorded struct {
	mu        sync.Mutex
	started   int
	progress  []string
	completed string
	cancelled bool
	err       error
}

func (r *recorded) callbacks() Callbacks {
	return Callbacks{
		OnStart:     func(n int) { r.started = n },
		OnProgress:  func(p string) { r.mu.Lock(); r.progress = append(r.progress, p); r.mu.Unlock() },
		OnComplete:  func(dir string) { r.completed = dir },
		OnCancelled: func() { r.cancelled = true },
		OnError:     func(err error) { r.err = err },
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestSyncCopiesEverythingFirstTime(t *testing.T) {
	dest := t.TempDir()
	s := NewSyncer(packaged(), dest, 2, nil)

	var r recorded
	dir, err := s.Sync(context.Background(), r.callbacks())
	require.NoError(t, err)

	assert.Equal(t, dest, dir)
	assert.Equal(t, dest, r.completed)
	assert.Equal(t, 3, r.started)
	assert.ElementsMatch(t, []string{"dict/cmudict.dict", "hmm/en-us/mdef", "hmm/en-us/means"}, r.progress)
	assert.Equal(t, "mdef-v1", readFile(t, filepath.Join(dest, "hmm", "en-us", "mdef")))
	assert.NoFileExists(t, filepath.Join(dest, "unlisted", "ignored.bin"))

	list := readFile(t, filepath.Join(dest, ListFile))
	assert.Equal(t,
		"dict/cmudict.dict "+sum("hello HH AH L OW\n")+"\n"+
			"hmm/en-us/mdef "+sum("mdef-v1")+"\n"+
			"hmm/en-us/means "+sum("means-v1")+"\n",
		list)
}

func TestSyncSkipsUnchanged(t *testing.T) {
	dest := t.TempDir()
	src := packaged()
	_, err := NewSyncer(src, dest, 1, nil).Sync(context.Background(), Callbacks{})
	require.NoError(t, err)

	src["hmm/en-us/means"] = &fstest.MapFile{Data: []byte("means-v2")}

	plan, err := NewSyncer(src, dest, 1, nil).Plan()
	require.NoError(t, err)
	assert.Equal(t, []string{"hmm/en-us/means"}, plan.Copy)
	assert.Empty(t, plan.Remove)

	var r recorded
	_, err = NewSyncer(src, dest, 1, nil).Sync(context.Background(), r.callbacks())
	require.NoError(t, err)
	assert.Equal(t, 1, r.started)
	assert.Equal(t, "means-v2", readFile(t, filepath.Join(dest, "hmm", "en-us", "means")))
}

func TestSyncRecopiesMissingFile(t *testing.T) {
	dest := t.TempDir()
	src := packaged()
	_, err := NewSyncer(src, dest, 1, nil).Sync(context.Background(), Callbacks{})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dest, "dict", "cmudict.dict")))

	plan, err := NewSyncer(src, dest, 1, nil).Plan()
	require.NoError(t, err)
	assert.Equal(t, []string{"dict/cmudict.dict"}, plan.Copy)
}

func TestSyncRemovesUnusedItems(t *testing.T) {
	dest := t.TempDir()
	src := packaged()
	_, err := NewSyncer(src, dest, 1, nil).Sync(context.Background(), Callbacks{})
	require.NoError(t, err)

	src[ListFile] = &fstest.MapFile{Data: []byte("hmm/en-us/mdef\n")}

	_, err = NewSyncer(src, dest, 1, nil).Sync(context.Background(), Callbacks{})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dest, "hmm", "en-us", "mdef"))
	assert.NoFileExists(t, filepath.Join(dest, "hmm", "en-us", "means"))
	assert.NoFileExists(t, filepath.Join(dest, "dict", "cmudict.dict"))
	assert.Equal(t, "hmm/en-us/mdef "+sum("mdef-v1")+"\n", readFile(t, filepath.Join(dest, ListFile)))
}

func TestSyncCancelled(t *testing.T) {
	dest := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var r recorded
	_, err := NewSyncer(packaged(), dest, 1, nil).Sync(ctx, r.callbacks())
	require.ErrorIs(t, err, context.Canceled)

	assert.True(t, r.cancelled)
	assert.Empty(t, r.completed)
	assert.Nil(t, r.err)
	assert.NoFileExists(t, filepath.Join(dest, ListFile))
}

func TestSyncMissingListReportsError(t *testing.T) {
	var r recorded
	_, err := NewSyncer(fstest.MapFS{}, t.TempDir(), 1, nil).Sync(context.Background(), r.callbacks())
	require.Error(t, err)
	assert.Contains(t, err.Error(), ListFile)
	assert.Equal(t, err, r.err)
	assert.False(t, r.cancelled)
}

func TestSyncRejectsEscapingPath(t *testing.T) {
	src := fstest.MapFS{ListFile: {Data: []byte("../etc/passwd\n")}}
	_, err := NewSyncer(src, t.TempDir(), 1, nil).Items()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid asset path")
}

func TestSyncIgnoresEscapingDestinationEntries(t *testing.T) {
	root := t.TempDir()
	dest := filepath.Join(root, "assets")
	outside := filepath.Join(root, "outside")
	require.NoError(t, os.WriteFile(outside, []byte("keep"), 0644))

	s := NewSyncer(packaged(), dest, 1, nil)
	_, err := s.Sync(context.Background(), Callbacks{})
	require.NoError(t, err)

	list := filepath.Join(dest, ListFile)
	tampered := readFile(t, list) + "../outside " + sum("keep") + "\n/etc/hosts " + sum("x") + "\n"
	require.NoError(t, os.WriteFile(list, []byte(tampered), 0644))

	external, err := s.ExternalItems()
	require.NoError(t, err)
	assert.NotContains(t, external, "../outside")
	assert.NotContains(t, external, "/etc/hosts")
	assert.Len(t, external, 3)

	plan, err := s.Plan()
	require.NoError(t, err)
	assert.Empty(t, plan.Remove)

	_, err = s.Sync(context.Background(), Callbacks{})
	require.NoError(t, err)
	assert.Equal(t, "keep", readFile(t, outside))
}

func TestExternalItemsMissingList(t *testing.T) {
	items, err := NewSyncer(packaged(), t.TempDir(), 1, nil).ExternalItems()
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCopyAll(t *testing.T) {
	dest := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dest, "unlisted"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "unlisted", "ignored.bin"), []byte("old"), 0644))

	dir, err := NewSyncer(packaged(), dest, 1, nil).CopyAll(context.Background(), "unlisted")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dest, "unlisted"), dir)
	assert.Equal(t, "x", readFile(t, filepath.Join(dir, "ignored.bin")))
	assert.Equal(t, "y", readFile(t, filepath.Join(dir, "ignored2.bin")))
}
