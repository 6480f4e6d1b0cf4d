package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/wippyai/cstring"
	"github.com/wippyai/cstring/engine"
	"github.com/wippyai/cstring/errors"
	"github.com/wippyai/cstring/internal/wasmbin"
)

const (
	resultString = "string"
	resultInt    = "int"
	resultNone   = "none"

	builtinName = "<built-in guest>"
)

type options struct {
	wasmPath string
	alloc    string
	free     string
	result   string
	maxLen   uint
	escapes  bool
	wasi     bool
}

// session holds a loaded guest and the messages it logged through
// env.host_log.
type session struct {
	eng     *engine.Engine
	mod     *engine.Module
	inst    *engine.Instance
	name    string
	hostLog []string
}

type argReport struct {
	NullOffset *int   `json:"null_offset,omitempty"`
	Text       string `json:"text"`
	Bytes      string `json:"bytes"`
	Length     int    `json:"length"`
}

type callReport struct {
	String  *string     `json:"string,omitempty"`
	Module  string      `json:"module"`
	Func    string      `json:"func"`
	Mode    string      `json:"mode"`
	Error   string      `json:"error,omitempty"`
	Args    []argReport `json:"args"`
	Values  []uint64    `json:"values,omitempty"`
	HostLog []string    `json:"host_log,omitempty"`
}

func openSession(ctx context.Context, opts options) (*session, error) {
	if uint64(opts.maxLen) > math.MaxUint32 {
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Value(opts.maxLen).
			Detail("max string length %d exceeds %d", opts.maxLen, uint32(math.MaxUint32)).
			Build()
	}

	name := opts.wasmPath
	var wasm []byte
	if name == "" {
		name = builtinName
		wasm = wasmbin.LoggingGuest()
	} else {
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read file: %w", err)
		}
		wasm = data
	}

	eng, err := engine.New(ctx, &engine.Config{
		AllocExport:  opts.alloc,
		FreeExport:   opts.free,
		MaxStringLen: uint32(opts.maxLen),
		EnableWASI:   opts.wasi,
	})
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	s := &session{eng: eng, name: name}
	err = eng.Host("env").
		StringFunc("host_log", func(_ context.Context, msg string) {
			s.hostLog = append(s.hostLog, msg)
		}).
		Build(ctx)
	if err != nil {
		eng.Close(ctx)
		return nil, err
	}

	s.mod, err = eng.LoadModule(ctx, wasm)
	if err != nil {
		eng.Close(ctx)
		return nil, fmt.Errorf("load module: %w", err)
	}
	return s, nil
}

func (s *session) instance(ctx context.Context) (*engine.Instance, error) {
	if s.inst != nil {
		return s.inst, nil
	}
	inst, err := s.mod.Instantiate(ctx)
	if err != nil {
		return nil, err
	}
	s.inst = inst
	return inst, nil
}

// call invokes fn with args as C strings. Failures are recorded in the
// report and returned.
func (s *session) call(ctx context.Context, fn string, args []string, mode string) (*callReport, error) {
	r := &callReport{Module: s.name, Func: fn, Mode: mode, Args: make([]argReport, len(args))}
	for i, a := range args {
		r.Args[i] = describeArg(a)
	}

	err := s.invoke(ctx, r, args)
	if err != nil {
		r.Error = err.Error()
	}
	return r, err
}

func (s *session) invoke(ctx context.Context, r *callReport, args []string) error {
	inst, err := s.instance(ctx)
	if err != nil {
		return err
	}

	start := len(s.hostLog)
	defer func() {
		if len(s.hostLog) > start {
			r.HostLog = append([]string(nil), s.hostLog[start:]...)
		}
	}()

	switch r.Mode {
	case resultString:
		out, err := inst.CallString(ctx, r.Func, args...)
		if err != nil {
			return err
		}
		r.String = &out
	case resultInt, resultNone:
		values, err := inst.CallWithStrings(ctx, r.Func, args...)
		if err != nil {
			return err
		}
		if r.Mode == resultInt {
			r.Values = values
		}
	default:
		return errors.InvalidInput(errors.PhaseCall, "unknown result mode "+strconv.Quote(r.Mode))
	}
	return nil
}

func (s *session) close(ctx context.Context) {
	if s.inst != nil {
		s.inst.Close(ctx)
	}
	s.eng.Close(ctx)
}

// describeArg shows the bytes a string is lent as, or where it fails.
func describeArg(text string) argReport {
	r := argReport{Text: text, Length: len(text)}
	b, err := cstring.Append(nil, text)
	if err != nil {
		if off, ok := errors.Offset(err); ok {
			r.NullOffset = &off
		}
		b = []byte(text)
	}
	r.Bytes = fmt.Sprintf("% x", b)
	return r
}

// unescape interprets Go escape sequences such as \x00 or \n.
// A literal double quote must be written as \".
func unescape(s string) (string, error) {
	out, err := strconv.Unquote(`"` + s + `"`)
	if err != nil {
		return "", fmt.Errorf("invalid escape in %q: %w", s, err)
	}
	return out, nil
}

func formatExport(e engine.Export) string {
	params := make([]string, e.Params)
	for i := range params {
		params[i] = "char*"
	}
	result := ""
	if e.Results > 0 {
		result = " -> i32"
	}
	if e.Results > 1 {
		result = fmt.Sprintf(" -> %d values", e.Results)
	}
	return e.Name + "(" + strings.Join(params, ", ") + ")" + result
}
