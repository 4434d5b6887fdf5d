package taskworker

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID extracts the id of the calling goroutine from its stack
// header ("goroutine N [running]:"). Go exposes no goroutine-identity
// API; parsing the stack header is the standard workaround.
func goroutineID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i >= 0 {
		buf = buf[:i]
	}
	id, _ := strconv.ParseUint(string(buf), 10, 64)
	return id
}
