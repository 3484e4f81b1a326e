package archive

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "archive.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestSave_only_writes_changes(t *testing.T) {
	a := openTemp(t)
	ctx := context.Background()

	_, _, err := a.Latest(ctx, "default")
	assert.True(t, errors.Is(err, ErrNotFound))

	changed, err := a.Save(ctx, "default", []byte(`[]`))
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = a.Save(ctx, "default", []byte(`[]`))
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = a.Save(ctx, "default", []byte(`[{"id":"x"}]`))
	require.NoError(t, err)
	assert.True(t, changed)

	content, savedAt, err := a.Latest(ctx, "default")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"x"}]`, string(content))
	assert.WithinDuration(t, time.Now(), savedAt, time.Minute)
}

func TestRun_saves_on_shutdown(t *testing.T) {
	a := openTemp(t)
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Run(ctx, "default", time.Hour, func() []byte {
			calls.Add(1)
			return []byte(`[{"id":"final"}]`)
		})
	}()
	cancel()
	<-done

	assert.Equal(t, int32(1), calls.Load())
	content, _, err := a.Latest(context.Background(), "default")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"final"}]`, string(content))
}
