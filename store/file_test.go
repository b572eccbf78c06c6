package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	require.NoError(t, err)

	data, version, err := b.Load(ctx, DocTickets)
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.Zero(t, version)

	v, err := b.Swap(ctx, DocTickets, []byte(`{"c1":{"userId":"u1","status":"open"}}`), 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v)

	_, err = os.Stat(filepath.Join(dir, DocTickets+".json.tmp"))
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")

	data, version, err = b.Load(ctx, DocTickets)
	require.NoError(t, err)
	assert.EqualValues(t, 1, version)
	assert.JSONEq(t, `{"c1":{"userId":"u1","status":"open"}}`, string(data))
}

func TestFileBackendStaleVersionConflicts(t *testing.T) {
	ctx := context.Background()
	b, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)

	_, err = b.Swap(ctx, DocXP, []byte(`{}`), 0)
	require.NoError(t, err)
	_, err = b.Swap(ctx, DocXP, []byte(`{"a":1}`), 0)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestFileBackendAcceptsComments(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	content := "{\n  // moderators edit this by hand\n  \"words\": [\"badword\",],\n}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, DocBannedWords+".json"), []byte(content), 0o644))

	s := New(mustFileBackend(t, dir))
	doc, err := Read[struct {
		Words []string `json:"words"`
	}](ctx, s, DocBannedWords)
	require.NoError(t, err)
	assert.Equal(t, []string{"badword"}, doc.Words)
}

func TestFileBackendBlankFileIsAbsent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DocXP+".json"), []byte("  \n"), 0o644))

	data, _, err := mustFileBackend(t, dir).Load(ctx, DocXP)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestFileBackendPing(t *testing.T) {
	dir := t.TempDir()
	b := mustFileBackend(t, dir)
	require.NoError(t, b.Ping(context.Background()))
	require.NoError(t, os.RemoveAll(dir))
	assert.Error(t, b.Ping(context.Background()))
}

func mustFileBackend(t *testing.T, dir string) *FileBackend {
	t.Helper()
	b, err := NewFileBackend(dir)
	require.NoError(t, err)
	return b
}
