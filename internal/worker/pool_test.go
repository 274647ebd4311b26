package worker

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolRunsAllJobsBeforeStop(t *testing.T) {
	p := NewPool(3, nil)
	var n atomic.Int32
	for i := 0; i < 50; i++ {
		assert.True(t, p.Submit("count", func() { n.Add(1) }))
	}
	p.Stop()
	assert.EqualValues(t, 50, n.Load())
}

func TestPoolSurvivesPanicsAndRejectsAfterStop(t *testing.T) {
	p := NewPool(1, nil)
	var ran atomic.Bool
	p.Submit("panics", func() { panic("boom") })
	p.Submit("after", func() { ran.Store(true) })
	p.Stop()

	assert.True(t, ran.Load())
	assert.False(t, p.Submit("late", func() {}))
}
