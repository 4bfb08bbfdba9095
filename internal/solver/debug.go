package solver

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/paiban/rota/internal/metrics"
	apperrors "github.com/paiban/rota/pkg/errors"
	"github.com/paiban/rota/pkg/logger"
)

const (
	debugRequestFile  = "solver_request.json"
	debugResponseFile = "solver_response.json"
)

// ErrNoDebugArtifacts 尚未记录任何调试文件
var ErrNoDebugArtifacts = errors.New("暂无求解调试记录")

// DebugRecorder 把最近一次求解请求与响应写入固定文件，覆盖上一次的内容
//
// 写入在后台完成，失败只记录日志，不影响求解主流程。
// 每次调用分配递增序号，磁盘上的请求与响应总是属于同一次调用。
type DebugRecorder struct {
	dir string
	mu  sync.Mutex
	wg  sync.WaitGroup

	seq     uint64 // 最近一次分配的序号
	current uint64 // 磁盘上请求文件对应的序号
}

// NewDebugRecorder 创建调试记录器
func NewDebugRecorder(dir string) *DebugRecorder {
	if dir == "" {
		dir = "debug"
	}
	return &DebugRecorder{dir: dir}
}

// DebugExchange 一次求解调用的调试记录，nil 时所有方法为空操作
type DebugExchange struct {
	d           *DebugRecorder
	seq         uint64
	requestDone chan struct{}
}

// Begin 记录请求体并清除上一次的响应
func (d *DebugRecorder) Begin(request []byte) *DebugExchange {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	d.seq++
	e := &DebugExchange{d: d, seq: d.seq, requestDone: make(chan struct{})}
	d.mu.Unlock()

	data := append([]byte(nil), request...)
	d.background(debugRequestFile, func() (bool, error) {
		defer close(e.requestDone)
		return d.writeRequest(e.seq, data)
	})
	return e
}

// Finish 记录引擎返回的响应体
func (e *DebugExchange) Finish(response []byte) {
	if e == nil {
		return
	}
	data := append([]byte(nil), response...)
	e.d.background(debugResponseFile, func() (bool, error) {
		<-e.requestDone
		return e.d.writeResponse(e.seq, data)
	})
}

// Fail 未拿到响应体时记录错误标记
func (e *DebugExchange) Fail(err error) {
	if e == nil {
		return
	}
	marker, mErr := json.Marshal(map[string]interface{}{
		"error":   true,
		"code":    apperrors.GetCode(err),
		"message": err.Error(),
	})
	if mErr != nil {
		return
	}
	e.Finish(marker)
}

// Flush 等待后台写入完成
func (d *DebugRecorder) Flush() {
	d.wg.Wait()
}

// Artifacts 最近一次的请求与响应
type Artifacts struct {
	Request  json.RawMessage `json:"request"`
	Response json.RawMessage `json:"response,omitempty"`
}

// Last 读取最近一次的调试文件
func (d *DebugRecorder) Last() (*Artifacts, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	req, err := os.ReadFile(filepath.Join(d.dir, debugRequestFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoDebugArtifacts
	}
	if err != nil {
		return nil, fmt.Errorf("读取调试请求失败: %w", err)
	}

	out := &Artifacts{Request: req}
	resp, err := os.ReadFile(filepath.Join(d.dir, debugResponseFile))
	switch {
	case err == nil:
		out.Response = resp
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("读取调试响应失败: %w", err)
	}
	return out, nil
}

func (d *DebugRecorder) background(name string, fn func() (bool, error)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		written, err := fn()
		if err != nil {
			metrics.RecordDebugArtifact(false)
			logger.Warn().Err(err).Str("file", name).Msg("写入求解调试文件失败")
			return
		}
		if written {
			metrics.RecordDebugArtifact(true)
		}
	}()
}

// writeRequest 较新的调用已落盘时跳过
func (d *DebugRecorder) writeRequest(seq uint64, data []byte) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if seq < d.current {
		return false, nil
	}
	if err := d.write(debugRequestFile, data); err != nil {
		return false, err
	}
	d.current = seq
	if err := os.Remove(filepath.Join(d.dir, debugResponseFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return true, err
	}
	return true, nil
}

// writeResponse 只在请求文件属于同一次调用时写入
func (d *DebugRecorder) writeResponse(seq uint64, data []byte) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if seq != d.current {
		return false, nil
	}
	if err := d.write(debugResponseFile, data); err != nil {
		return false, err
	}
	return true, nil
}

// write 先写临时文件再重命名，读者不会看到写了一半的文件，调用方持有 mu
func (d *DebugRecorder) write(name string, data []byte) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(d.dir, name+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(d.dir, name))
}
