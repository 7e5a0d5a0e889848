/*
Package engine executes Wasm job binaries in sandboxed wasmer-go
instances.

Execute compiles a fresh wasmer.Module per call, wires stdin/stdout/
stderr through a captured WASI environment, and runs the guest's WASI
start function to completion (or trap). No network or filesystem access
is exposed beyond what WASI's capability-based imports grant by default
— none, unless explicitly configured.

# Extension Dispatch

A single host function, "serval::invoke_raw", lets a guest call out to a
named host extension with an arbitrary byte payload. The guest passes a
pointer/length pair for the extension name and another for the request
data; the host checks the job's granted permissions
(types.AllowsExtension), dispatches through the Registry, and writes a
length-prefixed response back into guest memory via the guest's
exported "alloc" function. Failure is reported as one of a small set of
negative sentinel values, since Wasm functions cannot return Go errors
directly.

# Permissions

A job's []types.Permission list gates invoke_raw: an extension call for
a name not covered by AllowsExtension fails before the Registry is ever
consulted, regardless of whether that extension exists.
*/
package engine
