package wal

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Sequence uint64 `json:"seq"`
	Note     string `json:"note"`
}

func readAll(t *testing.T, w *WAL) []record {
	t.Helper()
	var out []record
	require.NoError(t, w.ReadAll(func(raw []byte) error {
		var r record
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	}))
	return out
}

func TestWriteAndReadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := NewWAL(path)
	require.NoError(t, err)

	require.NoError(t, w.Write(record{Sequence: 1, Note: "a"}))
	require.NoError(t, w.Write(record{Sequence: 2, Note: "b"}))
	require.NoError(t, w.Close())

	w, err = NewWAL(path)
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, []record{{1, "a"}, {2, "b"}}, readAll(t, w))

	// 讀完後仍可繼續附加
	require.NoError(t, w.Write(record{Sequence: 3, Note: "c"}))
	assert.Len(t, readAll(t, w), 3)
}

func TestReadAllIgnoresTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	require.NoError(t, os.WriteFile(path, []byte("{\"seq\":1,\"note\":\"a\"}\n{\"seq\":2,\"no"), 0o600))

	w, err := NewWAL(path)
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, []record{{1, "a"}}, readAll(t, w))

	require.NoError(t, w.Write(record{Sequence: 2, Note: "b"}))
	assert.Equal(t, []record{{1, "a"}, {2, "b"}}, readAll(t, w))
}

func TestReadAllRejectsCorruptRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	require.NoError(t, os.WriteFile(path, []byte("{\"seq\":1}\nnot-json\n"), 0o600))

	w, err := NewWAL(path)
	require.NoError(t, err)
	defer w.Close()

	err = w.ReadAll(func([]byte) error { return nil })
	assert.ErrorContains(t, err, "corrupt record")
}

func TestWriteMarshalErrorLeavesFileUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := NewWAL(path)
	require.NoError(t, err)
	defer w.Close()

	err = w.Write(func() {})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrWriteIncomplete)
	assert.NotErrorIs(t, err, ErrSyncFailed)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

// shortFile 寫入只寫一半就失敗，模擬磁碟滿
type shortFile struct {
	*os.File
	failWrites   int
	failTruncate bool
}

func (f *shortFile) Write(p []byte) (int, error) {
	if f.failWrites > 0 {
		f.failWrites--
		n, _ := f.File.Write(p[:len(p)/2])
		return n, errors.New("no space left on device")
	}
	return f.File.Write(p)
}

func (f *shortFile) Truncate(size int64) error {
	if f.failTruncate {
		return errors.New("read-only file system")
	}
	return f.File.Truncate(size)
}

func openShortFile(t *testing.T, path string) *shortFile {
	t.Helper()
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, FileModePrivate)
	require.NoError(t, err)
	return &shortFile{File: file}
}

func TestWriteFailureTruncatesPartialRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	file := openShortFile(t, path)
	w := NewWALFromFile(file)
	defer w.Close()

	require.NoError(t, w.Write(record{Sequence: 1, Note: "a"}))
	before, err := os.Stat(path)
	require.NoError(t, err)

	file.failWrites = 1
	err = w.Write(record{Sequence: 2, Note: "lost"})
	require.ErrorIs(t, err, ErrWriteFailed)
	assert.NotErrorIs(t, err, ErrSyncFailed)

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.Size(), after.Size())

	// 截回去之後可以繼續寫
	require.NoError(t, w.Write(record{Sequence: 2, Note: "b"}))
	assert.Equal(t, []record{{1, "a"}, {2, "b"}}, readAll(t, w))
}

func TestWriteFailureWithoutTruncateBreaksWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	file := openShortFile(t, path)
	w := NewWALFromFile(file)

	require.NoError(t, w.Write(record{Sequence: 1, Note: "a"}))

	file.failWrites = 1
	file.failTruncate = true
	err := w.Write(record{Sequence: 2, Note: "torn"})
	require.ErrorIs(t, err, ErrWriteIncomplete)
	assert.NotErrorIs(t, err, ErrSyncFailed)

	// 檔尾狀態未知，不能再接著寫
	file.failTruncate = false
	err = w.Write(record{Sequence: 2, Note: "b"})
	require.ErrorIs(t, err, ErrBroken)
	require.NoError(t, w.Close())

	// 重開後半筆被丟掉
	w, err = NewWAL(path)
	require.NoError(t, err)
	defer w.Close()
	assert.Equal(t, []record{{1, "a"}}, readAll(t, w))
}
