package safe

import (
	"PPKitchen/logger"
	"PPKitchen/tools/errs"

	"go.uber.org/zap"
)

// Go starts f in a goroutine that recovers from panics, so a faulty task
// cannot crash the process. The panic is logged with its stack.
func Go(name string, f func()) {
	go Run(name, f)
}

// Run calls f and converts a panic into a logged error.
func Run(name string, f func()) (recovered error) {
	defer func() {
		if r := recover(); r != nil {
			recovered = errs.ErrPanic(r)
			logger.Log.Error("panic recovered",
				zap.String("task", name),
				zap.Error(recovered),
				zap.Stack("stack"),
			)
		}
	}()
	f()
	return nil
}
