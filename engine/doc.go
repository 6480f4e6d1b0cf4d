// Package engine runs C guests compiled to WebAssembly and exchanges C strings
// with them.
//
// This package wraps wazero. Strings cross the boundary as NUL-terminated
// byte sequences in the guest's linear memory, allocated with the guest's own
// allocator for exactly the duration of one call.
//
// # Architecture
//
//	Engine   - owns a wazero runtime, loads modules, registers host modules
//	Module   - a compiled guest, can create instances
//	Instance - a running guest with string-aware call methods
//
// # Calling Into the Guest
//
//	eng, _ := engine.New(ctx, nil)
//	mod, _ := eng.LoadModule(ctx, wasmBytes)
//	inst, _ := mod.Instantiate(ctx)
//	n, _ := inst.CallWithStrings(ctx, "strlen", "hello")
//	up, _ := inst.CallString(ctx, "upper", "hello")
//
// Every string argument is copied into a guest buffer obtained from the
// guest's allocator (malloc by default, cabi_realloc as a fallback), passed
// as an i32 pointer and freed after the export returns. CallString decodes
// the returned pointer before the arguments are freed, so guests may return
// a pointer into one of their arguments.
//
// # Host Functions
//
// Host modules expose Go functions to guests. StringFunc decodes a
// const char* argument from the calling module's memory:
//
//	err := eng.Host("env").
//		StringFunc("host_log", func(ctx context.Context, s string) {
//			log.Println(s)
//		}).
//		Build(ctx)
//
// Host modules must be built before the modules importing them are
// instantiated.
//
// # Thread Safety
//
// Engine and Module are safe for concurrent use. Instance is NOT safe for
// concurrent use; give each goroutine its own instance.
package engine
