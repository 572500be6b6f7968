package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/lauf-vm/lauf/internal/abi"
	"github.com/lauf-vm/lauf/internal/asm"
	"github.com/lauf-vm/lauf/internal/dump"
	"github.com/lauf-vm/lauf/internal/frontend"
	"github.com/lauf-vm/lauf/internal/lib"
	"github.com/lauf-vm/lauf/internal/pkg"
	"github.com/lauf-vm/lauf/internal/runtime"
)

var (
	showTokens = flag.Bool("tokens", false, "Show lexer tokens")
	showDump   = flag.Bool("dump", false, "Show disassembled module")
	jsonDump   = flag.Bool("json", false, "Render -dump as JSON instead of text")
	parseOnly  = flag.Bool("parse", false, "Parse only, don't run")
	entryName  = flag.String("entry", "main", "Name of the function to run")
	configPath = flag.String("config", "", "Path to a lauf.toml file (searched for if omitted)")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println("lauf v0.1.0")
		fmt.Println()
		fmt.Println("Usage: lauf [options] <filename.lauf>")
		fmt.Println()
		fmt.Println("Options:")
		fmt.Println("  -tokens   Show lexer tokens")
		fmt.Println("  -dump     Show disassembled module")
		fmt.Println("  -json     Render -dump as JSON instead of text")
		fmt.Println("  -parse    Parse only, don't run")
		fmt.Println("  -entry    Name of the function to run (default main)")
		fmt.Println("  -config   Path to a lauf.toml file")
		os.Exit(0)
	}

	filename := flag.Arg(0)
	source, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}

	builtins := abi.NewTable(lib.Standard()...)

	if *showTokens {
		l := frontend.New(string(source))
		for _, tok := range l.ScanTokens() {
			fmt.Printf("  %s\n", tok)
		}
		if errs := l.Errors(); len(errs) > 0 {
			fmt.Println("Lexer errors:")
			for _, e := range errs {
				fmt.Printf("  %s\n", e)
			}
			os.Exit(1)
		}
		return
	}

	p := frontend.NewParser(string(source), filename, builtins)
	mod := p.Parse()
	if p.HasErrors() {
		fmt.Println("Parser errors:")
		for _, e := range p.Errors() {
			fmt.Printf("  %s\n", e)
		}
		os.Exit(1)
	}

	if *parseOnly {
		fmt.Printf("Successfully parsed %s\n", filename)
		fmt.Printf("  Globals: %d\n", len(mod.Globals()))
		fmt.Printf("  Functions: %d\n", len(mod.Functions()))
		return
	}

	if *showDump {
		opts := dump.Options{Builtins: builtins}
		if *jsonDump {
			data, err := dump.ModuleJSON(mod, opts)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(data))
		} else {
			fmt.Println(dump.Module(mod, opts))
		}
		return
	}

	entry := mod.Function(*entryName)
	if entry == nil {
		fmt.Fprintf(os.Stderr, "Error: no function named %q\n", *entryName)
		os.Exit(1)
	}

	config := pkg.DefaultVMConfig()
	path := *configPath
	if path == "" {
		path = pkg.FindConfigFile(filename)
	}
	if path != "" {
		loaded, err := pkg.LoadVMConfig(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", path, err)
			os.Exit(1)
		}
		config = loaded
	}

	vm := runtime.CreateVM(runtime.Options{
		CstackBytes:    config.VM.CstackBytes,
		VstackElements: config.VM.VstackElements,
		StepLimit:      config.VM.StepLimit,
		Builtins:       builtins,
		HeapPageBytes:  config.Heap.PageBytes,
	})

	prog, err := asm.CreateProgram(mod, entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	results, err := vm.Execute(prog, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	for i, v := range results {
		fmt.Printf("result[%d] = %s\n", i, v)
	}
}
