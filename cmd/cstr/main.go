package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/cstring/engine"
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to core wasm module (default: built-in demo guest)")
		funcName    = flag.String("func", "", "Export to call")
		listOnly    = flag.Bool("list", false, "List exported functions and exit")
		result      = flag.String("result", resultString, "Result handling: string, int or none")
		maxLen      = flag.Uint("max", 0, "Maximum decoded string length in bytes (0 = until end of memory)")
		alloc       = flag.String("alloc", "malloc", "Guest allocator export")
		free        = flag.String("free", "free", "Guest deallocator export")
		escapes     = flag.Bool("e", false, "Interpret Go escape sequences (\\x00, \\n, ...) in arguments")
		wasi        = flag.Bool("wasi", false, "Provide wasi_snapshot_preview1 to the guest")
		jsonOut     = flag.Bool("json", false, "Print a JSON report")
		verbose     = flag.Bool("v", false, "Verbose engine logging")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: cstr [-wasm file.wasm] -func name [flags] [string args...]")
		fmt.Fprintln(os.Stderr, "       cstr [-wasm file.wasm] -list")
		fmt.Fprintln(os.Stderr, "       cstr [-wasm file.wasm] -i  (interactive mode)")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer l.Sync()
		engine.SetLogger(l)
	}

	opts := options{
		wasmPath: *wasmFile,
		alloc:    *alloc,
		free:     *free,
		result:   *result,
		maxLen:   *maxLen,
		escapes:  *escapes,
		wasi:     *wasi,
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if !*listOnly && *funcName == "" {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(context.Background(), os.Stdout, opts, *funcName, flag.Args(), *listOnly, *jsonOut); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, w io.Writer, opts options, funcName string, args []string, listOnly, jsonOut bool) error {
	if opts.escapes {
		for i, a := range args {
			s, err := unescape(a)
			if err != nil {
				return err
			}
			args[i] = s
		}
	}

	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	if listOnly {
		return list(w, s, jsonOut)
	}

	report, callErr := s.call(ctx, funcName, args, opts.result)
	if jsonOut {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		fmt.Fprintf(w, "%s\n", out)
	} else {
		printReport(w, report)
	}
	if callErr != nil {
		return fmt.Errorf("call %s: %w", funcName, callErr)
	}
	return nil
}

func list(w io.Writer, s *session, jsonOut bool) error {
	exports := s.mod.Exports()
	if jsonOut {
		out, err := json.MarshalIndent(map[string]any{
			"module":  s.name,
			"exports": exports,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("encode exports: %w", err)
		}
		fmt.Fprintf(w, "%s\n", out)
		return nil
	}

	fmt.Fprintf(w, "Module: %s\n", s.name)
	fmt.Fprintf(w, "\nExported functions:\n")
	for _, e := range exports {
		fmt.Fprintf(w, "  %s\n", formatExport(e))
	}
	return nil
}

func printReport(w io.Writer, r *callReport) {
	fmt.Fprintf(w, "Module: %s\n", r.Module)
	fmt.Fprintf(w, "Calling %s with %d argument(s)\n", r.Func, len(r.Args))
	for i, a := range r.Args {
		if a.NullOffset != nil {
			fmt.Fprintf(w, "  arg%d: %s  [%s]  embedded NUL at offset %d\n",
				i, strconv.Quote(a.Text), a.Bytes, *a.NullOffset)
			continue
		}
		fmt.Fprintf(w, "  arg%d: %s  [%s]\n", i, strconv.Quote(a.Text), a.Bytes)
	}
	for _, msg := range r.HostLog {
		fmt.Fprintf(w, "host_log: %s\n", strconv.Quote(msg))
	}

	switch {
	case r.Error != "":
		fmt.Fprintf(w, "Error: %s\n", r.Error)
	case r.String != nil:
		fmt.Fprintf(w, "Result: %s\n", strconv.Quote(*r.String))
	case r.Values != nil:
		fmt.Fprintf(w, "Result: %v\n", r.Values)
	default:
		fmt.Fprintln(w, "Done")
	}
}
