package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/cstring/errors"
	"github.com/wippyai/cstring/linear"
)

var i32 = []api.ValueType{api.ValueTypeI32}

// HostModuleBuilder registers Go functions under one import module name
type HostModuleBuilder struct {
	engine  *Engine
	builder wazero.HostModuleBuilder
	name    string
	count   int
}

// Host starts a host module named name.
func (e *Engine) Host(name string) *HostModuleBuilder {
	return &HostModuleBuilder{
		engine:  e,
		builder: e.runtime.NewHostModuleBuilder(name),
		name:    name,
	}
}

// Func registers a raw function operating on the core value stack.
func (b *HostModuleBuilder) Func(name string, fn api.GoModuleFunc, params, results []api.ValueType) *HostModuleBuilder {
	b.builder.NewFunctionBuilder().
		WithGoModuleFunction(fn, params, results).
		Export(name)
	b.count++
	return b
}

// StringFunc registers fn as name(const char*). The string is copied out of
// the caller's memory before fn runs.
func (b *HostModuleBuilder) StringFunc(name string, fn func(ctx context.Context, s string)) *HostModuleBuilder {
	return b.Func(name, api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
		fn(ctx, b.decodeArg(mod, name, stack[0]))
	}), i32, nil)
}

// StringFuncI32 registers fn as int32 name(const char*).
func (b *HostModuleBuilder) StringFuncI32(name string, fn func(ctx context.Context, s string) uint32) *HostModuleBuilder {
	return b.Func(name, api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
		stack[0] = uint64(fn(ctx, b.decodeArg(mod, name, stack[0])))
	}), i32, i32)
}

// decodeArg reads a C string argument. A bad pointer traps the guest: the
// error panics and wazero returns it from the guest's call.
func (b *HostModuleBuilder) decodeArg(mod api.Module, fn string, arg uint64) string {
	mem := memoryOf(mod)
	if mem == nil {
		panic(errors.NotFound(errors.PhaseHost, "caller memory"))
	}
	s, err := linear.New(NewMemory(mem), nil, b.engine.cfg.codecConfig()).Decode(uint32(arg))
	if err != nil {
		Logger().Warn("host function received invalid string",
			zap.String("module", b.name),
			zap.String("func", fn),
			zap.Uint32("ptr", uint32(arg)),
			zap.Error(err))
		panic(err)
	}
	return s
}

// Build instantiates the host module. It must run before guests importing
// it are instantiated.
func (b *HostModuleBuilder) Build(ctx context.Context) error {
	if _, err := b.builder.Instantiate(ctx); err != nil {
		return errors.Wrap(errors.PhaseHost, errors.KindInvalidInput, err, "instantiate host module "+b.name)
	}
	Logger().Debug("host module ready", zap.String("module", b.name), zap.Int("funcs", b.count))
	return nil
}
