package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/cstring"
)

// WazeroMemory wraps wazero memory to implement cstring.Memory
type WazeroMemory struct {
	mem api.Memory
}

// NewMemory wraps mem.
func NewMemory(mem api.Memory) *WazeroMemory {
	return &WazeroMemory{mem: mem}
}

// Read returns a view of guest memory. The view aliases the memory and is
// invalidated when the guest grows it.
func (m *WazeroMemory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("read out of bounds: offset=%d, length=%d", offset, length)
	}
	return data, nil
}

func (m *WazeroMemory) Write(offset uint32, data []byte) error {
	ok := m.mem.Write(offset, data)
	if !ok {
		return fmt.Errorf("write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	return nil
}

func (m *WazeroMemory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

// wazeroAllocator implements cstring.Allocator using guest exports
type wazeroAllocator struct {
	allocFn    api.Function
	freeFn     api.Function
	currentCtx context.Context
	stackBuf   []uint64
	stackMutex sync.Mutex
	// realloc is set for cabi_realloc(old, old_size, align, new_size)
	realloc bool
	// freeParams is 1 for free(ptr), 3 for dealloc(ptr, size, align) and
	// 4 for cabi_realloc(ptr, size, align, 0)
	freeParams int
}

// memoryOf returns the module's exported memory, or nil. api.Module.Memory
// returns a non-nil interface wrapping a nil instance for memoryless
// modules, so it cannot be compared against nil.
func memoryOf(mod api.Module) api.Memory {
	for name := range mod.ExportedMemoryDefinitions() {
		if mem := mod.ExportedMemory(name); mem != nil {
			return mem
		}
	}
	return nil
}

func newAllocator(mod api.Module, cfg *Config) *wazeroAllocator {
	a := &wazeroAllocator{stackBuf: make([]uint64, 4)}

	if fn := mod.ExportedFunction(cfg.AllocExport); fn != nil && len(fn.Definition().ParamTypes()) == 1 {
		a.allocFn = fn
	} else if fn := mod.ExportedFunction(cabiRealloc); fn != nil && len(fn.Definition().ParamTypes()) == 4 {
		a.allocFn = fn
		a.realloc = true
	} else {
		return nil
	}

	if fn := mod.ExportedFunction(cfg.FreeExport); fn != nil {
		switch n := len(fn.Definition().ParamTypes()); n {
		case 1, 3:
			a.freeFn = fn
			a.freeParams = n
		default:
			Logger().Warn("ignoring free export with unexpected signature",
				zap.String("export", cfg.FreeExport),
				zap.Int("params", n))
		}
	}
	if a.freeFn == nil && a.realloc {
		// cabi_realloc to size 0 releases the block
		a.freeFn = a.allocFn
		a.freeParams = 4
	}
	if a.freeFn == nil {
		// lent buffers would never be reclaimed
		Logger().Warn("guest exports an allocator but no usable free, string arguments disabled",
			zap.String("alloc", cfg.AllocExport),
			zap.String("free", cfg.FreeExport))
		return nil
	}
	return a
}

func (a *wazeroAllocator) setContext(ctx context.Context) {
	a.stackMutex.Lock()
	defer a.stackMutex.Unlock()
	a.currentCtx = ctx
}

func (a *wazeroAllocator) ctx() context.Context {
	if a.currentCtx == nil {
		return context.Background()
	}
	return a.currentCtx
}

func (a *wazeroAllocator) Alloc(size, align uint32) (uint32, error) {
	a.stackMutex.Lock()
	defer a.stackMutex.Unlock()

	stack := a.stackBuf[:1]
	stack[0] = uint64(size)
	if a.realloc {
		stack = a.stackBuf[:4]
		stack[0] = 0
		stack[1] = 0
		stack[2] = uint64(align)
		stack[3] = uint64(size)
	}
	if err := a.allocFn.CallWithStack(a.ctx(), stack); err != nil {
		return 0, err
	}
	return uint32(stack[0]), nil
}

// Free releases ptr. Failures are logged; a guest that cannot free leaks
// memory but the host call has already completed.
func (a *wazeroAllocator) Free(ptr, size, align uint32) {
	if a.freeFn == nil || ptr == 0 {
		return
	}

	a.stackMutex.Lock()
	defer a.stackMutex.Unlock()

	stack := a.stackBuf[:a.freeParams]
	stack[0] = uint64(ptr)
	if a.freeParams >= 3 {
		stack[1] = uint64(size)
		stack[2] = uint64(align)
	}
	if a.freeParams == 4 {
		stack[3] = 0
	}
	if err := a.freeFn.CallWithStack(a.ctx(), stack); err != nil {
		Logger().Warn("free: guest deallocation failed",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size),
			zap.Error(err))
	}
}

var (
	_ cstring.Memory      = (*WazeroMemory)(nil)
	_ cstring.MemorySizer = (*WazeroMemory)(nil)
	_ cstring.Allocator   = (*wazeroAllocator)(nil)
)
