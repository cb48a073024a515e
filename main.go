package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/thiremani/tensorc/compiler"
	"github.com/thiremani/tensorc/lexer"
	"github.com/thiremani/tensorc/parser"
	"github.com/thiremani/tensorc/token"
	"tinygo.org/x/go-llvm"
)

var TK_SUFFIX = ".tk"
var IR_SUFFIX = ".ll"

// defaultTKCache gets env variable TKCACHE
// if it is not set sets it to default value for windows, mac, linux
func defaultTKCache() string {
	if env := os.Getenv("TKCACHE"); env != "" {
		return env
	}

	homeDir, _ := os.UserHomeDir()
	var tkcache string
	switch runtime.GOOS {
	case "windows":
		if localAppData := os.Getenv("LocalAppData"); localAppData != "" {
			tkcache = filepath.Join(localAppData, "tensorc")
			return tkcache
		}
		tkcache = filepath.Join(homeDir, "AppData", "Local", "tensorc")

	case "darwin":
		tkcache = filepath.Join(homeDir, "Library", "Caches", "tensorc")

	default: // Linux and others
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			tkcache = filepath.Join(xdg, "tensorc")
			return tkcache
		}
		tkcache = filepath.Join(homeDir, ".cache", "tensorc")
	}

	os.Setenv("TKCACHE", tkcache)
	return tkcache
}

func printErrors(path string, errs []*token.CompileError) {
	for _, e := range errs {
		fmt.Printf("%s: %s\n", path, e.Msg)
	}
}

// compileKernel parses one kernel file, folds every output expression, and
// lowers the kernel to LLVM IR under outDir.
func compileKernel(kernelFile, outDir string) {
	source, err := os.ReadFile(kernelFile)
	if err != nil {
		fmt.Printf("Error reading %s: %v\n", kernelFile, err)
		return
	}
	name := strings.TrimSuffix(filepath.Base(kernelFile), TK_SUFFIX)

	l := lexer.New(string(source))
	p := parser.New(l)
	k := p.ParseKernel(name)
	if len(p.Errors()) > 0 {
		printErrors(kernelFile, p.Errors())
		return
	}

	for _, out := range k.Outputs {
		out.Expr = compiler.Fold(out.Expr)
	}

	ctx := llvm.NewContext()
	defer ctx.Dispose()
	c := compiler.NewCompiler(ctx, name)
	c.CompileKernel(k)
	if len(c.Errors) > 0 {
		printErrors(kernelFile, c.Errors)
		return
	}

	outPath, cached, err := writeKernelIR(outDir, name, c.GenerateIR())
	if err != nil {
		fmt.Printf("Error writing IR for %s: %v\n", name, err)
		return
	}
	if cached {
		fmt.Printf("Using cached kernel IR: %s\n", outPath)
		return
	}
	fmt.Printf("✅ Compiled kernel %s -> %s\n", name, outPath)
}

func main() {
	var cwd string
	var err error
	if len(os.Args) > 1 {
		if os.Args[1] == "--version" || os.Args[1] == "-v" {
			printVersion()
			return
		}
		cwd = os.Args[1]
	} else {
		cwd, err = os.Getwd()
		if err != nil {
			fmt.Printf("Error getting current working directory: %v\n", err)
			os.Exit(1)
		}
	}

	tkcache := defaultTKCache()
	fmt.Printf("Using TKCACHE: %s\n", tkcache)
	if err := os.MkdirAll(tkcache, 0755); err != nil {
		fmt.Printf("Error creating TKCACHE directory: %v\n", err)
		os.Exit(1)
	}

	pkg := filepath.Base(cwd)
	outDir := filepath.Join(tkcache, pkg)

	dirEntries, err := os.ReadDir(cwd)
	if err != nil {
		fmt.Printf("Error reading current directory: %v\n", err)
		os.Exit(1)
	}

	kernelFiles := []string{}
	for _, entry := range dirEntries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, TK_SUFFIX) {
			kernelFiles = append(kernelFiles, filepath.Join(cwd, name))
		}
	}

	if len(kernelFiles) == 0 {
		fmt.Printf("No %s kernel files found in %s\n", TK_SUFFIX, cwd)
		return
	}

	for _, kernelFile := range kernelFiles {
		compileKernel(kernelFile, outDir)
	}
}
