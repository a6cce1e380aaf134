package notify

import "log"

// Notifier carries transient user-facing messages. The UI layer supplies its
// own implementation; the default writes to the process log so headless runs
// still surface outcomes.
type Notifier interface {
	Successf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type logNotifier struct{}

func NewLog() Notifier { return logNotifier{} }

func (logNotifier) Successf(format string, args ...interface{}) {
	log.Printf("ok: "+format, args...)
}

func (logNotifier) Errorf(format string, args ...interface{}) {
	log.Printf("error: "+format, args...)
}

type noopNotifier struct{}

func Noop() Notifier { return noopNotifier{} }

func (noopNotifier) Successf(string, ...interface{}) {}
func (noopNotifier) Errorf(string, ...interface{})   {}
