package solver

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/paiban/rota/pkg/errors"
)

func TestDebugRecorder_Overwrites(t *testing.T) {
	d := NewDebugRecorder(t.TempDir())

	d.Begin([]byte(`{"n":1}`)).Finish([]byte(`{"r":1}`))
	d.Flush()
	d.Begin([]byte(`{"n":2}`))
	d.Flush()

	last, err := d.Last()
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":2}`, string(last.Request))
	assert.Empty(t, last.Response, "新请求落盘后不能沿用上一次的响应")
}

func TestDebugRecorder_PairsByCall(t *testing.T) {
	d := NewDebugRecorder(t.TempDir())

	first := d.Begin([]byte(`{"n":1}`))
	second := d.Begin([]byte(`{"n":2}`))
	second.Finish([]byte(`{"r":2}`))
	d.Flush()
	// 较早的调用晚到的响应不能覆盖
	first.Finish([]byte(`{"r":1}`))
	d.Flush()

	last, err := d.Last()
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":2}`, string(last.Request))
	assert.JSONEq(t, `{"r":2}`, string(last.Response))
}

func TestDebugRecorder_FailWritesMarker(t *testing.T) {
	d := NewDebugRecorder(t.TempDir())

	d.Begin([]byte(`{"n":1}`)).Fail(apperrors.Timeout(50))
	d.Flush()

	last, err := d.Last()
	require.NoError(t, err)
	assert.Contains(t, string(last.Response), `"code":"TIMEOUT"`)
	assert.Contains(t, string(last.Response), `"error":true`)
}

func TestDebugRecorder_NilIsNoop(t *testing.T) {
	var d *DebugRecorder

	assert.NotPanics(t, func() {
		e := d.Begin([]byte(`{}`))
		e.Finish([]byte(`{}`))
		e.Fail(errors.New("x"))
	})
}

func TestDebugRecorder_NothingRecorded(t *testing.T) {
	_, err := NewDebugRecorder(t.TempDir()).Last()

	assert.ErrorIs(t, err, ErrNoDebugArtifacts)
}

func TestDebugRecorder_WriteFailureIsSilent(t *testing.T) {
	// 目录位置被普通文件占用，写入必然失败
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	d := NewDebugRecorder(filepath.Join(blocker, "debug"))

	assert.NotPanics(t, func() {
		d.Begin([]byte(`{}`)).Finish([]byte(`{}`))
		d.Flush()
	})
	_, err := d.Last()
	assert.Error(t, err)
}
