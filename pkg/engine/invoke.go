package engine

import (
	"encoding/binary"
	"errors"

	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/serval-mesh/agent/pkg/types"
)

var (
	errOutOfBounds      = errors.New("guest memory access out of bounds")
	errAllocUnavailable = errors.New("guest does not export an alloc function")
	errAllocFailed      = errors.New("guest alloc function did not return a valid pointer")
)

// The five negative sentinel values invoke_raw returns to the guest on
// failure; a non-negative return is a pointer into guest memory holding
// the length-prefixed response.
const (
	invokeErrFailedToGetMemory     int32 = -1
	invokeErrFailedToReadName      int32 = -2
	invokeErrFailedToReadData      int32 = -3
	invokeErrFailedToWriteResponse int32 = -4
	invokeErrPermissionDenied      int32 = -5
)

// hostContext carries the per-execution state the invoke_raw host
// function needs: the job's granted permissions, the shared extension
// registry, and (once known) the guest's instance and memory.
type hostContext struct {
	permissions []types.Permission
	extensions  *Registry

	instance *wasmer.Instance
	memory   *wasmer.Memory
}

// registerInvoke builds the "serval::invoke_raw" host function: given a
// pointer/length pair naming an extension and a pointer/length pair
// carrying a request payload, it checks the job's permissions, dispatches
// to the named extension, and writes the length-prefixed response back
// into guest memory.
func registerInvoke(store *wasmer.Store, host *hostContext) *wasmer.Function {
	return wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(
			wasmer.NewValueTypes(
				wasmer.ValueKind(wasmer.I32),
				wasmer.ValueKind(wasmer.I32),
				wasmer.ValueKind(wasmer.I32),
				wasmer.ValueKind(wasmer.I32),
			),
			wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I32)),
		),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			namePtr := args[0].I32()
			nameLen := args[1].I32()
			dataPtr := args[2].I32()
			dataLen := args[3].I32()

			if host.memory == nil {
				return result(invokeErrFailedToGetMemory), nil
			}

			nameBytes, err := readGuestBytes(host.memory, namePtr, nameLen)
			if err != nil {
				return result(invokeErrFailedToReadName), nil
			}
			extensionName := string(nameBytes)

			data, err := readGuestBytes(host.memory, dataPtr, dataLen)
			if err != nil {
				return result(invokeErrFailedToReadData), nil
			}

			if !types.AllowsExtension(host.permissions, extensionName) {
				return result(invokeErrPermissionDenied), nil
			}

			response, err := host.extensions.Invoke(extensionName, data)
			if err != nil {
				return result(invokeErrFailedToReadData), nil
			}

			ptr, err := writeGuestBytes(host.instance, host.memory, response)
			if err != nil {
				return result(invokeErrFailedToWriteResponse), nil
			}

			return result(ptr), nil
		},
	)
}

func result(v int32) []wasmer.Value {
	return []wasmer.Value{wasmer.NewI32(v)}
}

// readGuestBytes copies len bytes out of guest memory starting at ptr.
func readGuestBytes(memory *wasmer.Memory, ptr, length int32) ([]byte, error) {
	data := memory.Data()
	if ptr < 0 || length < 0 || int(ptr)+int(length) > len(data) {
		return nil, errOutOfBounds
	}
	out := make([]byte, length)
	copy(out, data[ptr:int(ptr)+int(length)])
	return out, nil
}

// writeGuestBytes calls the guest's exported "alloc" function to reserve
// enough space for a little-endian u32 length prefix plus payload, then
// writes both into guest memory, returning the pointer to the prefix.
func writeGuestBytes(instance *wasmer.Instance, memory *wasmer.Memory, payload []byte) (int32, error) {
	alloc, err := instance.Exports.GetFunction("alloc")
	if err != nil {
		return 0, errAllocUnavailable
	}

	totalLen := 4 + len(payload)
	raw, err := alloc(int32(totalLen))
	if err != nil {
		return 0, errAllocFailed
	}
	ptr, ok := raw.(int32)
	if !ok {
		return 0, errAllocFailed
	}

	data := memory.Data()
	if ptr < 0 || int(ptr)+totalLen > len(data) {
		return 0, errOutOfBounds
	}

	binary.LittleEndian.PutUint32(data[ptr:ptr+4], uint32(len(payload)))
	copy(data[int(ptr)+4:int(ptr)+totalLen], payload)

	return ptr, nil
}
