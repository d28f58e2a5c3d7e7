package concurrency

import (
	"log/slog"
	"runtime/debug"
)

// SafeGo runs a function in a goroutine with panic recovery.
func SafeGo(name string, fn func(), onPanic func(interface{})) {
	go func() {
		defer Recover(name, onPanic)
		fn()
	}()
}

// Recover logs a recovered panic with its stack; it must be deferred directly.
func Recover(name string, onPanic func(interface{})) {
	if r := recover(); r != nil {
		slog.Error("Panic recovered", "routine", name, "panic", r, "stack", string(debug.Stack()))
		if onPanic != nil {
			onPanic(r)
		}
	}
}
