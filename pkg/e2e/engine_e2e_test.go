package e2e

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-kv/pkg/config"
	"github.com/dd0wney/cluso-kv/pkg/env"
	"github.com/dd0wney/cluso-kv/pkg/iterator"
	"github.com/dd0wney/cluso-kv/pkg/keys"
	"github.com/dd0wney/cluso-kv/pkg/memtable"
	"github.com/dd0wney/cluso-kv/pkg/sstable"
)

// flushMemtable writes a memtable's contents into a numbered table file,
// the way a compactor would, and returns the file size.
func flushMemtable(t *testing.T, opts sstable.Options, mt *memtable.MemTable, name string) int64 {
	t.Helper()
	fs := env.Default()
	w, err := fs.NewWritableFile(name)
	require.NoError(t, err)

	b := sstable.NewTableBuilder(opts, w)
	it := mt.NewIterator()
	defer it.Close()
	for it.SeekToFirst(); it.Valid(); it.Next() {
		require.NoError(t, b.Add(it.Key(), it.Value()))
	}
	require.NoError(t, b.Finish())
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	size, err := fs.GetFileSize(name)
	require.NoError(t, err)
	return size
}

// TestEngine_WriteFlushRead drives the full pipeline: mutations into the
// memtable, a flush through the table builder, and point reads back
// through the table cache, including tombstone and snapshot semantics.
func TestEngine_WriteFlushRead(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default(dir)
	cfg.BlockSize = 256
	icmp := keys.NewInternalKeyComparator(keys.BytewiseComparator())
	opts := sstable.NewOptions(cfg, icmp)

	// Writer: values, an overwrite, and a deletion.
	mt := memtable.New(icmp)
	seq := uint64(0)
	put := func(k, v string) {
		seq++
		mt.Add(seq, keys.TypeValue, []byte(k), []byte(v))
	}
	del := func(k string) {
		seq++
		mt.Add(seq, keys.TypeDeletion, []byte(k), nil)
	}

	for i := 0; i < 200; i++ {
		put(fmt.Sprintf("user%04d", i), fmt.Sprintf("payload-%d", i))
	}
	put("user0007", "payload-7-updated")
	del("user0100")
	deleteSeq := seq

	// Reads against the memtable first.
	v, found, err := mt.Get(keys.NewLookupKey([]byte("user0007"), seq))
	require.True(t, found)
	require.NoError(t, err)
	assert.Equal(t, "payload-7-updated", string(v))

	_, found, err = mt.Get(keys.NewLookupKey([]byte("user0100"), seq))
	require.True(t, found)
	assert.ErrorIs(t, err, memtable.ErrNotFound)

	// Before the deletion, the value is still visible.
	v, found, err = mt.Get(keys.NewLookupKey([]byte("user0100"), deleteSeq-1))
	require.True(t, found)
	require.NoError(t, err)
	assert.Equal(t, "payload-100", string(v))

	// Flush and read back through the table cache.
	size := flushMemtable(t, opts, mt, sstable.TableFileName(dir, 1))
	tc := sstable.NewTableCache(env.Default(), dir, opts, 100)
	defer tc.Close()

	get := func(user string, snapshot uint64) (string, error) {
		var value string
		var parsed keys.ParsedInternalKey
		lk := keys.NewLookupKey([]byte(user), snapshot)
		err := tc.Get(1, size, lk.InternalKey(), func(k, v []byte) {
			var ok bool
			parsed, ok = keys.ParseInternalKey(k)
			require.True(t, ok)
			value = string(v)
		})
		if err != nil {
			return "", err
		}
		if parsed.Type == keys.TypeDeletion {
			return "", memtable.ErrNotFound
		}
		return value, nil
	}

	v2, err := get("user0042", seq)
	require.NoError(t, err)
	assert.Equal(t, "payload-42", v2)

	v2, err = get("user0007", seq)
	require.NoError(t, err)
	assert.Equal(t, "payload-7-updated", v2)

	// The tombstone survives the flush.
	_, err = get("user0100", seq)
	assert.ErrorIs(t, err, memtable.ErrNotFound)

	// At the pre-deletion snapshot the old value is readable again.
	v2, err = get("user0100", deleteSeq-1)
	require.NoError(t, err)
	assert.Equal(t, "payload-100", v2)

	// A key that never existed misses outright.
	_, err = get("ghost", seq)
	assert.True(t, errors.Is(err, sstable.ErrNotFound) || errors.Is(err, memtable.ErrNotFound))
}

// TestEngine_MergedScan tests a merged view over a flushed table and a
// newer memtable, the shape the version layer stacks sources in.
func TestEngine_MergedScan(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default(dir)
	icmp := keys.NewInternalKeyComparator(keys.BytewiseComparator())
	opts := sstable.NewOptions(cfg, icmp)

	// Older data goes to disk.
	old := memtable.New(icmp)
	for i := 0; i < 50; i += 2 {
		old.Add(uint64(i+1), keys.TypeValue, []byte(fmt.Sprintf("k%04d", i)), []byte("old"))
	}
	size := flushMemtable(t, opts, old, sstable.TableFileName(dir, 2))

	// Newer data stays in memory.
	fresh := memtable.New(icmp)
	for i := 1; i < 50; i += 2 {
		fresh.Add(uint64(100+i), keys.TypeValue, []byte(fmt.Sprintf("k%04d", i)), []byte("new"))
	}

	tc := sstable.NewTableCache(env.Default(), dir, opts, 100)
	defer tc.Close()
	tableIter, _ := tc.NewIterator(2, size)

	merged := iterator.NewMergingIterator(icmp, fresh.NewIterator(), tableIter)
	defer merged.Close()

	var users []string
	for merged.SeekToFirst(); merged.Valid(); merged.Next() {
		parsed, ok := keys.ParseInternalKey(merged.Key())
		require.True(t, ok)
		users = append(users, string(parsed.UserKey))
	}
	require.NoError(t, merged.Status())

	require.Len(t, users, 50)
	for i, u := range users {
		assert.Equal(t, fmt.Sprintf("k%04d", i), u)
	}
}
