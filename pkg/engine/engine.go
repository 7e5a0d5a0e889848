// Package engine runs Wasm jobs in a sandboxed wasmer-go instance: stdin
// is piped in, stdout/stderr are captured, and a single host-side
// "invoke_raw" extension-dispatch function is exposed to the guest, gated
// by the job's granted permissions.
package engine

import (
	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/serval-mesh/agent/pkg/servalerr"
	"github.com/serval-mesh/agent/pkg/types"
)

// Engine owns the compilation backend shared by every Execute call and
// the registry of host extensions a job may be granted access to.
type Engine struct {
	wasmEngine *wasmer.Engine
	extensions *Registry
}

// New builds an Engine whose extension registry is loaded from
// extensionsPath (a directory of *.wasm files, one per extension name).
// An empty path yields an Engine with no extensions available.
func New(extensionsPath string) (*Engine, error) {
	registry := NewRegistry()
	if extensionsPath != "" {
		if err := registry.Load(extensionsPath); err != nil {
			return nil, servalerr.Wrap(servalerr.KindExecution, "failed to load extensions", err)
		}
	}
	return &Engine{
		wasmEngine: wasmer.NewEngine(),
		extensions: registry,
	}, nil
}

// Execute compiles and runs binary in a fresh sandbox: stdin is wired to
// the given bytes, stdout and stderr are captured, and the job's
// permissions gate which host extensions "invoke_raw" may reach. HTTP
// host and /proc permissions are not consulted here, and the guest is
// given no outbound HTTP function. A non-zero exit code is reported in the returned
// WasmResult, not as an error; Execute only errors on sandbox setup or
// interop failures.
func (e *Engine) Execute(binary []byte, stdin []byte, permissions []types.Permission) (types.WasmResult, error) {
	store := wasmer.NewStore(e.wasmEngine)

	module, err := wasmer.NewModule(store, binary)
	if err != nil {
		return types.WasmResult{}, servalerr.Wrap(servalerr.KindExecution, "failed to compile wasm module", err)
	}

	wasiStateBuilder := wasmer.NewWasiStateBuilder("serval-job").
		CaptureStdout().
		CaptureStderr().
		CaptureStdin()
	wasiEnv, err := wasiStateBuilder.Finalize()
	if err != nil {
		return types.WasmResult{}, servalerr.Wrap(servalerr.KindExecution, "failed to build wasi environment", err)
	}

	if len(stdin) > 0 {
		if _, err := wasiEnv.StdinWrite(stdin); err != nil {
			return types.WasmResult{}, servalerr.Wrap(servalerr.KindExecution, "failed to write job stdin", err)
		}
	}

	importObject, err := wasiEnv.GenerateImportObject(store, module)
	if err != nil {
		return types.WasmResult{}, servalerr.Wrap(servalerr.KindExecution, "failed to generate wasi imports", err)
	}

	host := &hostContext{permissions: permissions, extensions: e.extensions}
	importObject.Register("serval", map[string]wasmer.IntoExtern{
		"invoke_raw": registerInvoke(store, host),
	})

	instance, err := wasmer.NewInstance(module, importObject)
	if err != nil {
		return types.WasmResult{}, servalerr.Wrap(servalerr.KindExecution, "failed to instantiate wasm module", err)
	}

	memory, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return types.WasmResult{}, servalerr.Wrap(servalerr.KindInterop, "guest does not export memory", err)
	}
	host.memory = memory
	host.instance = instance

	start, err := instance.Exports.GetWasiStartFunction()
	if err != nil {
		return types.WasmResult{}, servalerr.Wrap(servalerr.KindExecution, "guest does not export a wasi start function", err)
	}

	// A trapping guest (panic, unreachable, explicit non-zero wasi
	// exit) surfaces here as a plain error rather than a typed exit
	// code; wasmer-go does not distinguish them, so any trap is
	// reported as a generic non-zero failure.
	var exitCode int32
	if _, callErr := start(); callErr != nil {
		exitCode = 1
	}

	stdout, _ := wasiEnv.ReadStdout()
	stderr, _ := wasiEnv.ReadStderr()

	return types.WasmResult{Code: exitCode, Stdout: stdout, Stderr: stderr}, nil
}
