package goroutine

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/tcgbazaar/escrow-backend/internal/logger"
)

// SafeGo запускает fn в горутине и перехватывает panic, чтобы сбой фоновой
// задачи (свипер заявок, сохранение уведомления) не ронял процесс.
func SafeGo(fn func()) {
	go func() {
		defer recoverAndLog()
		fn()
	}()
}

// SafeGoWithContext — то же самое для задач, привязанных к контексту сервера.
func SafeGoWithContext(ctx context.Context, fn func(context.Context)) {
	go func() {
		defer recoverAndLog()
		fn(ctx)
	}()
}

func recoverAndLog() {
	r := recover()
	if r == nil {
		return
	}
	stack := debug.Stack()
	if logger.Log != nil {
		logger.Log.WithField("panic", fmt.Sprintf("%v", r)).
			Errorf("panic в горутине:\n%s", stack)
		return
	}
	// До инициализации логгера остаётся только stderr-подобный вывод.
	fmt.Printf("[ERROR] panic в горутине: %v\n%s\n", r, stack)
}
