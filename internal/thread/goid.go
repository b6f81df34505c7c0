package thread

import (
	"bytes"
	"runtime"
	"strconv"
)

var goroutinePrefix = []byte("goroutine ")

// currentGoroutineID returns the runtime's identifier for the calling
// goroutine, parsed from the header line of its stack trace
// ("goroutine 42 [running]:").
func currentGoroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], goroutinePrefix)
	end := bytes.IndexByte(b, ' ')
	if end <= 0 {
		panic("thread: cannot parse goroutine header: " + string(buf[:n]))
	}
	id, err := strconv.ParseInt(string(b[:end]), 10, 64)
	if err != nil {
		panic("thread: cannot parse goroutine id: " + err.Error())
	}
	return id
}
