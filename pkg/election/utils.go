package election

import (
	"fmt"
	"runtime"
)

func Panicf(format string, args ...interface{}) {
	panic(fmt.Sprintf(format, args...))
}

// PanicMessage formats a value recovered from a panic.
func PanicMessage(value interface{}) string {
	switch v := value.(type) {
	case error:
		return v.Error()
	case string:
		return v
	default:
		return fmt.Sprintf("%#v", v)
	}
}

// PanicStackTrace returns the stack trace of the calling goroutine, for
// logging after a recovered panic.
func PanicStackTrace() string {
	buf := make([]byte, 16*1024)
	return string(buf[:runtime.Stack(buf, false)])
}
