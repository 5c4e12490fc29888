package safetime

import "time"

// Listener receives progress and terminal notifications for a sync task.
// For a given task the sequence is zero or more OnNtpResponseFailed /
// NextRetryLoopIn calls followed by exactly one terminal pair or event:
// OnNtpResponseSuccessful + OnSuccessful, or OnFailed. A cancelled task
// emits nothing further.
type Listener interface {
	// OnSuccessful delivers the final validated sample of a sync, or the
	// extrapolated cached sample on a cache hit
	OnSuccessful(sample TimeSample)

	// OnFailed reports that the retry budget was exhausted
	OnFailed(err error)

	// OnNtpResponseSuccessful reports the attempt that produced the sample
	OnNtpResponseSuccessful(sample TimeSample, host string, retryCount, cycle int)

	// OnNtpResponseFailed reports one failed attempt
	OnNtpResponseFailed(host string, retryCount, cycle int, err error)

	// NextRetryLoopIn announces the wait before the next pass over the
	// host list. Not called when no inter-cycle delay is configured.
	NextRetryLoopIn(cycle int, delay time.Duration)
}

// ListenerFuncs adapts a set of optional callbacks into a Listener.
// Nil callbacks are no-ops.
type ListenerFuncs struct {
	Successful            func(sample TimeSample)
	Failed                func(err error)
	NtpResponseSuccessful func(sample TimeSample, host string, retryCount, cycle int)
	NtpResponseFailed     func(host string, retryCount, cycle int, err error)
	RetryLoopIn           func(cycle int, delay time.Duration)
}

func (l ListenerFuncs) OnSuccessful(sample TimeSample) {
	if l.Successful != nil {
		l.Successful(sample)
	}
}

func (l ListenerFuncs) OnFailed(err error) {
	if l.Failed != nil {
		l.Failed(err)
	}
}

func (l ListenerFuncs) OnNtpResponseSuccessful(sample TimeSample, host string, retryCount, cycle int) {
	if l.NtpResponseSuccessful != nil {
		l.NtpResponseSuccessful(sample, host, retryCount, cycle)
	}
}

func (l ListenerFuncs) OnNtpResponseFailed(host string, retryCount, cycle int, err error) {
	if l.NtpResponseFailed != nil {
		l.NtpResponseFailed(host, retryCount, cycle, err)
	}
}

func (l ListenerFuncs) NextRetryLoopIn(cycle int, delay time.Duration) {
	if l.RetryLoopIn != nil {
		l.RetryLoopIn(cycle, delay)
	}
}

// dispatcher delivers listener callbacks on the configured executor, in
// submission order. A nil listener drops every event.
type dispatcher struct {
	listener Listener
	exec     Executor
}

func newDispatcher(listener Listener, exec Executor) *dispatcher {
	if exec == nil {
		exec = callerExecutor{}
	}
	return &dispatcher{listener: listener, exec: exec}
}

func (d *dispatcher) successful(sample TimeSample) {
	if d.listener == nil {
		return
	}
	d.exec.Execute(func() { d.listener.OnSuccessful(sample) })
}

func (d *dispatcher) failed(err error) {
	if d.listener == nil {
		return
	}
	d.exec.Execute(func() { d.listener.OnFailed(err) })
}

func (d *dispatcher) ntpResponseSuccessful(sample TimeSample, host string, retryCount, cycle int) {
	if d.listener == nil {
		return
	}
	d.exec.Execute(func() { d.listener.OnNtpResponseSuccessful(sample, host, retryCount, cycle) })
}

func (d *dispatcher) ntpResponseFailed(host string, retryCount, cycle int, err error) {
	if d.listener == nil {
		return
	}
	d.exec.Execute(func() { d.listener.OnNtpResponseFailed(host, retryCount, cycle, err) })
}

func (d *dispatcher) nextRetryLoopIn(cycle int, delay time.Duration) {
	if d.listener == nil {
		return
	}
	d.exec.Execute(func() { d.listener.NextRetryLoopIn(cycle, delay) })
}
