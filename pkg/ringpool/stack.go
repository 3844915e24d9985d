package ringpool

import (
	"bytes"
	"runtime/debug"
)

// captureStack returns the calling goroutine's stack without the capture frames themselves.
func captureStack() string {

	stack := debug.Stack()

	// drop "goroutine N [running]:" plus the debug.Stack and captureStack frames (two lines each)
	for i := 0; i < 5; i++ {
		idx := bytes.IndexByte(stack, '\n')
		if idx < 0 {
			break
		}

		stack = stack[idx+1:]
	}

	return string(stack)
}
