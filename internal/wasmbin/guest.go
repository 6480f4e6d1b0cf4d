package wasmbin

// Addresses of the demo guest's static strings.
const (
	GreetingAddr     = 16
	GarbledAddr      = 48
	UnterminatedAddr = 65533
	HeapBase         = 1024
)

// Static data of the demo guest.
const (
	Greeting = "hello from guest"
	// Garbled decodes to "ok�bad�".
	Garbled = "ok\xFFbad\xE2\x82"
)

var (
	i32ToI32 = FuncType{Params: []ValType{I32}, Results: []ValType{I32}}
	i32ToNil = FuncType{Params: []ValType{I32}}
	nilToI32 = FuncType{Results: []ValType{I32}}
)

// Guest returns a one-page module behaving like a tiny C library:
//
//	malloc(size) -> ptr   bump allocator starting at HeapBase
//	free(ptr)             decrements the live allocation count
//	live() -> n           outstanding allocations
//	strlen(s) -> n
//	upper(s) -> s         ASCII upper-cases s in place
//	echo(s) -> s
//	greeting() -> s       static "hello from guest"
//	garbled() -> s        static string with ill-formed UTF-8
//	unterminated() -> s   string running into the end of memory
//	null() -> 0
func Guest() []byte {
	return guest(false)
}

// LoggingGuest is Guest plus an imported env.host_log(s) and an exported
// say(s) that forwards its argument to it.
func LoggingGuest() []byte {
	return guest(true)
}

func guest(logging bool) []byte {
	m := New()

	var hostLog uint32
	if logging {
		hostLog = m.ImportFunc("env", "host_log", i32ToNil)
	}

	m.Memory(1, "memory")
	heap := m.Global(I32, true, HeapBase)
	live := m.Global(I32, true, 0)

	m.Func("malloc", i32ToI32, nil, Code().
		GlobalGet(heap).
		GlobalGet(heap).LocalGet(0).I32Add().GlobalSet(heap).
		GlobalGet(live).I32Const(1).I32Add().GlobalSet(live))

	m.Func("free", i32ToNil, nil, Code().
		LocalGet(0).If().
		GlobalGet(live).I32Const(1).I32Sub().GlobalSet(live).
		End())

	m.Func("live", nilToI32, nil, Code().GlobalGet(live))

	// local 1 counts bytes
	m.Func("strlen", i32ToI32, []ValType{I32}, Code().
		Block().Loop().
		LocalGet(0).LocalGet(1).I32Add().Load8U().
		I32Eqz().BrIf(1).
		LocalGet(1).I32Const(1).I32Add().LocalSet(1).
		Br(0).
		End().End().
		LocalGet(1))

	// local 1 is the index, local 2 the current byte
	m.Func("upper", i32ToI32, []ValType{I32, I32}, Code().
		Block().Loop().
		LocalGet(0).LocalGet(1).I32Add().Load8U().LocalTee(2).
		I32Eqz().BrIf(1).
		LocalGet(2).I32Const('a').I32GeU().
		LocalGet(2).I32Const('z').I32LeU().
		I32And().If().
		LocalGet(0).LocalGet(1).I32Add().
		LocalGet(2).I32Const('a'-'A').I32Sub().
		Store8().
		End().
		LocalGet(1).I32Const(1).I32Add().LocalSet(1).
		Br(0).
		End().End().
		LocalGet(0))

	m.Func("echo", i32ToI32, nil, Code().LocalGet(0))
	m.Func("greeting", nilToI32, nil, Code().I32Const(GreetingAddr))
	m.Func("garbled", nilToI32, nil, Code().I32Const(GarbledAddr))
	m.Func("unterminated", nilToI32, nil, Code().I32Const(UnterminatedAddr))
	m.Func("null", nilToI32, nil, Code().I32Const(0))

	if logging {
		m.Func("say", i32ToNil, nil, Code().LocalGet(0).Call(hostLog))
	}

	m.Data(GreetingAddr, append([]byte(Greeting), 0))
	m.Data(GarbledAddr, append([]byte(Garbled), 0))
	m.Data(UnterminatedAddr, []byte("xyz"))

	return m.Encode()
}
