package safetime

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSerialExecutor_PreservesOrder(t *testing.T) {
	exec := NewSerialExecutor()

	var mu sync.Mutex
	var got []int
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		i := i
		wg.Add(1)
		exec.Execute(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			wg.Done()
		})
	}

	wg.Wait()
	exec.Close()

	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestSerialExecutor_CloseDrainsQueue(t *testing.T) {
	exec := NewSerialExecutor()

	ran := 0
	for i := 0; i < 10; i++ {
		exec.Execute(func() { ran++ })
	}
	exec.Close()

	assert.Equal(t, 10, ran)
}

func TestSerialExecutor_ExecuteAfterCloseDoesNotPanic(t *testing.T) {
	exec := NewSerialExecutor()
	exec.Close()

	assert.NotPanics(t, func() {
		exec.Execute(func() {})
	})
}

func TestCallerExecutor_RunsInline(t *testing.T) {
	ran := false
	callerExecutor{}.Execute(func() { ran = true })
	assert.True(t, ran)
}

func TestExecutorFunc_Adapts(t *testing.T) {
	ran := false
	ExecutorFunc(func(fn func()) { fn() }).Execute(func() { ran = true })
	assert.True(t, ran)
}
