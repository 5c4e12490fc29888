package safetime

// Executor schedules a function for execution. The sync executor runs the
// whole sync task; the listener executor runs individual callbacks.
// Callback ordering is preserved as long as the executor runs submissions
// in order, which both provided implementations do.
type Executor interface {
	Execute(fn func())
}

// ExecutorFunc adapts a function to the Executor interface
type ExecutorFunc func(fn func())

func (f ExecutorFunc) Execute(fn func()) { f(fn) }

// callerExecutor runs submissions inline on the submitting goroutine
type callerExecutor struct{}

func (callerExecutor) Execute(fn func()) { fn() }

// goExecutor runs each submission on its own goroutine. Used as the
// default sync executor; unsuitable for listeners because it drops
// ordering.
type goExecutor struct{}

func (goExecutor) Execute(fn func()) { go fn() }

// SerialExecutor runs submissions one at a time on a dedicated goroutine,
// preserving submission order. Close it when done; Execute after Close
// drops the submission.
type SerialExecutor struct {
	tasks chan func()
	done  chan struct{}
}

// NewSerialExecutor starts the worker goroutine
func NewSerialExecutor() *SerialExecutor {
	e := &SerialExecutor{
		tasks: make(chan func(), 64),
		done:  make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *SerialExecutor) run() {
	for fn := range e.tasks {
		fn()
	}
	close(e.done)
}

// Execute enqueues fn behind every prior submission
func (e *SerialExecutor) Execute(fn func()) {
	defer func() {
		// Sending on a closed channel means Close raced this Execute;
		// the submission is dropped.
		_ = recover()
	}()
	e.tasks <- fn
}

// Close stops the worker after draining queued submissions
func (e *SerialExecutor) Close() {
	close(e.tasks)
	<-e.done
}
