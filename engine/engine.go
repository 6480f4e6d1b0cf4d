package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/cstring/errors"
	"github.com/wippyai/cstring/internal/unsafeutil"
	"github.com/wippyai/cstring/linear"
)

const (
	defaultAlloc = "malloc"
	defaultFree  = "free"
	cabiRealloc  = "cabi_realloc"
)

// Config holds configuration for engine creation
type Config struct {
	// AllocExport names the guest's malloc(size) -> ptr export.
	// Defaults to "malloc". When absent, cabi_realloc is used if exported.
	AllocExport string

	// FreeExport names the guest's free(ptr) export. A three-parameter
	// free(ptr, size, align) is accepted too. Defaults to "free". A
	// cabi_realloc guest without one frees by reallocating to size 0. Any
	// other guest without a usable free cannot take string arguments.
	FreeExport string

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// MaxStringLen bounds strings decoded from guest memory, excluding the
	// NUL. Longer strings fail with a truncated error. 0 means unbounded.
	MaxStringLen uint32

	// EnableWASI instantiates wasi_snapshot_preview1 for guests built
	// against wasi-libc.
	EnableWASI bool
}

func (c *Config) withDefaults() *Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if out.AllocExport == "" {
		out.AllocExport = defaultAlloc
	}
	if out.FreeExport == "" {
		out.FreeExport = defaultFree
	}
	return &out
}

func (c *Config) codecConfig() *linear.Config {
	return &linear.Config{MaxLen: c.MaxStringLen}
}

// Engine owns a wazero runtime
type Engine struct {
	runtime  wazero.Runtime
	cfg      *Config
	wasiMu   sync.Mutex
	wasiDone bool
}

// New creates an engine. cfg may be nil.
func New(ctx context.Context, cfg *Config) (*Engine, error) {
	cfg = cfg.withDefaults()

	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	e := &Engine{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		cfg:     cfg,
	}
	if cfg.EnableWASI {
		if err := e.initWASI(ctx); err != nil {
			_ = e.runtime.Close(ctx)
			return nil, err
		}
	}
	return e, nil
}

// initWASI instantiates the WASI module once per engine.
func (e *Engine) initWASI(ctx context.Context) error {
	e.wasiMu.Lock()
	defer e.wasiMu.Unlock()

	if e.wasiDone || e.runtime.Module(wasi_snapshot_preview1.ModuleName) != nil {
		e.wasiDone = true
		return nil
	}
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, e.runtime); err != nil {
		return errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "instantiate WASI")
	}
	e.wasiDone = true
	return nil
}

// Runtime returns the underlying wazero runtime.
func (e *Engine) Runtime() wazero.Runtime {
	return e.runtime
}

func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// LoadModule compiles a core wasm module.
func (e *Engine) LoadModule(ctx context.Context, wasmBytes []byte) (*Module, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("compile failed: %w", err)
	}
	Logger().Debug("module compiled",
		zap.Int("bytes", len(wasmBytes)),
		zap.Int("exports", len(compiled.ExportedFunctions())))
	return &Module{engine: e, compiled: compiled}, nil
}

// Export describes an exported function
type Export struct {
	Name    string `json:"name"`
	Params  int    `json:"params"`
	Results int    `json:"results"`
}

// Module is a compiled guest
type Module struct {
	engine   *Engine
	compiled wazero.CompiledModule
}

// Exports lists exported functions sorted by name.
func (m *Module) Exports() []Export {
	defs := m.compiled.ExportedFunctions()
	out := make([]Export, 0, len(defs))
	for name, def := range defs {
		out = append(out, Export{
			Name:    name,
			Params:  len(def.ParamTypes()),
			Results: len(def.ResultTypes()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Instantiate creates a running instance. Instances are anonymous so one
// module can be instantiated any number of times.
func (m *Module) Instantiate(ctx context.Context) (*Instance, error) {
	mod, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, fmt.Errorf("instantiate failed: %w", err)
	}
	mem := memoryOf(mod)
	if mem == nil {
		_ = mod.Close(ctx)
		return nil, errors.NotFound(errors.PhaseLoad, "exported memory")
	}

	inst := &Instance{
		instance:  mod,
		memory:    NewMemory(mem),
		funcCache: make(map[string]api.Function),
	}

	// nil *wazeroAllocator must stay a nil interface for the codec
	if a := newAllocator(mod, m.engine.cfg); a != nil {
		inst.alloc = a
		inst.codec = linear.New(inst.memory, a, m.engine.cfg.codecConfig())
	} else {
		inst.codec = linear.New(inst.memory, nil, m.engine.cfg.codecConfig())
		Logger().Debug("no usable guest allocator, string arguments disabled",
			zap.String("alloc", m.engine.cfg.AllocExport))
	}
	return inst, nil
}

func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

// Instance is a running guest.
// It is NOT safe for concurrent use from multiple goroutines.
type Instance struct {
	instance  api.Module
	memory    *WazeroMemory
	alloc     *wazeroAllocator
	codec     *linear.Codec
	funcCache map[string]api.Function
}

// Memory returns the instance's linear memory.
func (i *Instance) Memory() *WazeroMemory {
	return i.memory
}

// Codec returns a codec over the instance's memory and allocator.
func (i *Instance) Codec() *linear.Codec {
	return i.codec
}

func (i *Instance) function(name string) (api.Function, error) {
	if i.instance == nil {
		return nil, errors.New(errors.PhaseCall, errors.KindNilPointer).
			Value(name).
			Detail("call %s on closed instance", name).
			Build()
	}
	if fn, ok := i.funcCache[name]; ok {
		return fn, nil
	}
	fn := i.instance.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseCall, "export "+name)
	}
	i.funcCache[name] = fn
	return fn, nil
}

// Call invokes an export with raw core values.
func (i *Instance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	fn, err := i.function(name)
	if err != nil {
		return nil, err
	}
	return fn.Call(ctx, params...)
}

// CallWithStrings invokes an export whose parameters are all const char*.
// Each argument is lent for the duration of the call only.
func (i *Instance) CallWithStrings(ctx context.Context, name string, args ...string) ([]uint64, error) {
	var results []uint64
	err := i.callWithStrings(ctx, name, args, func(res []uint64) error {
		results = res
		return nil
	})
	return results, err
}

// CallString invokes an export returning a const char* and decodes the
// result. The result is read while the arguments are still lent, so it may
// point into one of them. A NULL result fails with a nil pointer error.
func (i *Instance) CallString(ctx context.Context, name string, args ...string) (string, error) {
	var out string
	err := i.callWithStrings(ctx, name, args, func(res []uint64) error {
		if len(res) != 1 {
			return errors.New(errors.PhaseCall, errors.KindInvalidInput).
				Value(name).
				Detail("%s returns %d values, want 1", name, len(res)).
				Build()
		}
		s, err := i.codec.Decode(uint32(res[0]))
		if err != nil {
			return err
		}
		out = s
		return nil
	})
	return out, err
}

func (i *Instance) callWithStrings(ctx context.Context, name string, args []string, onResult func([]uint64) error) error {
	fn, err := i.function(name)
	if err != nil {
		return err
	}
	if n := len(fn.Definition().ParamTypes()); n != len(args) {
		return errors.New(errors.PhaseCall, errors.KindInvalidInput).
			Value(name).
			Detail("%s takes %d parameters, got %d strings", name, n, len(args)).
			Build()
	}
	if i.alloc != nil {
		i.alloc.setContext(ctx)
		defer i.alloc.setContext(nil)
	}

	Logger().Debug("call", zap.String("func", name), zap.Int("args", len(args)))

	var inner error
	ptrs := make([]uint64, 0, len(args))
	err = i.lendAll(args, 0, ptrs, func(ptrs []uint64) {
		res, err := fn.Call(ctx, ptrs...)
		if err != nil {
			inner = fmt.Errorf("call %s: %w", name, err)
			return
		}
		inner = onResult(res)
	})
	if err != nil {
		return err
	}
	return inner
}

// lendAll lends args[idx:] one inside the other and calls fn with every
// pointer once all are live.
func (i *Instance) lendAll(args []string, idx int, ptrs []uint64, fn func([]uint64)) error {
	if idx == len(args) {
		fn(ptrs)
		return nil
	}
	var inner error
	err := i.codec.Lend(unsafeutil.Bytes(args[idx]), func(ptr uint32) {
		inner = i.lendAll(args, idx+1, append(ptrs, uint64(ptr)), fn)
	})
	if err != nil {
		return fmt.Errorf("argument %d: %w", idx, err)
	}
	return inner
}

func (i *Instance) Close(ctx context.Context) error {
	var err error
	if i.instance != nil {
		err = i.instance.Close(ctx)
		i.instance = nil
	}
	i.funcCache = nil
	i.memory = nil
	i.alloc = nil
	i.codec = nil
	return err
}
