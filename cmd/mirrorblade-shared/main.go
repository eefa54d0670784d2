// Package main builds the embeddable C surface (go build -buildmode=c-shared).
// Exported strings are C-heap allocated; callers free them with MBFreeString.
package main

/*
#include <stdlib.h>
*/
import "C"

import (
	"encoding/json"
	"sync"
	"unsafe"

	"github.com/itskum47/mirrorblade/bridge"
)

var (
	mu sync.Mutex
	b  *bridge.Bridge
)

//export MBInit
func MBInit(rootC *C.char) C.int {
	mu.Lock()
	defer mu.Unlock()
	if b != nil {
		return 1
	}
	root := "."
	if rootC != nil {
		root = C.GoString(rootC)
	}
	br, err := bridge.Init(bridge.Options{Root: root})
	if err != nil {
		return 0
	}
	b = br
	return 1
}

//export MBShutdown
func MBShutdown() {
	mu.Lock()
	defer mu.Unlock()
	if b != nil {
		b.Shutdown()
		b = nil
	}
}

//export MBVersion
func MBVersion() *C.char {
	return C.CString(bridge.Version)
}

//export MBPing
func MBPing() C.int {
	return 1
}

//export MBDispatchJSON
func MBDispatchJSON(opC, argsC *C.char) *C.char {
	out := dispatch(C.GoString(opC), C.GoString(argsC))
	return C.CString(out)
}

//export MBFreeString
func MBFreeString(s *C.char) {
	if s != nil {
		C.free(unsafe.Pointer(s))
	}
}

// dispatch never panics; every failure becomes an error envelope string.
func dispatch(op, argsJSON string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			data, _ := json.Marshal(map[string]any{"ok": false, "error": "internal error"})
			out = string(data)
		}
	}()

	args := map[string]any{}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			data, _ := json.Marshal(map[string]any{"ok": false, "error": "args parse: " + err.Error()})
			return string(data)
		}
	}

	mu.Lock()
	br := b
	mu.Unlock()
	if br == nil {
		data, _ := json.Marshal(map[string]any{"ok": false, "error": "bridge not initialized"})
		return string(data)
	}

	reply := br.Dispatch(op, args)
	data, err := json.Marshal(reply)
	if err != nil {
		return `{"ok":false,"error":"reply marshal failed"}`
	}
	return string(data)
}

func main() {}
