package mathutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAbsInt64(t *testing.T) {
	assert.Equal(t, int64(5), AbsInt64(5))
	assert.Equal(t, int64(5), AbsInt64(-5))
	assert.Equal(t, int64(0), AbsInt64(0))
}

func TestAbsDuration(t *testing.T) {
	assert.Equal(t, time.Second, AbsDuration(time.Second))
	assert.Equal(t, time.Second, AbsDuration(-time.Second))
	assert.Equal(t, time.Duration(0), AbsDuration(0))
}

func TestMinMaxDuration(t *testing.T) {
	assert.Equal(t, time.Second, MinDuration(time.Second, time.Minute))
	assert.Equal(t, time.Minute, MaxDuration(time.Second, time.Minute))
	assert.Equal(t, time.Second, MinDuration(time.Second, time.Second))
}

func TestClampInt64(t *testing.T) {
	assert.Equal(t, int64(10), ClampInt64(5, 10, 20))
	assert.Equal(t, int64(20), ClampInt64(25, 10, 20))
	assert.Equal(t, int64(15), ClampInt64(15, 10, 20))
}
