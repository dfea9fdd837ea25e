package mainloop

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoop_RunsInPostOrder(t *testing.T) {
	l := New(nil)
	defer l.Stop()

	var got []int
	for i := 0; i < 10; i++ {
		i := i
		assert.True(t, l.Post(func() { got = append(got, i) }))
	}
	l.Call(func() {})
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestLoop_SerializesConcurrentPosters(t *testing.T) {
	l := New(nil)
	defer l.Stop()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Post(func() { counter++ })
		}()
	}
	wg.Wait()
	l.Call(func() {})
	assert.Equal(t, 50, counter)
}

func TestLoop_StopRejectsNewWork(t *testing.T) {
	l := New(nil)
	l.Stop()
	l.Stop()
	assert.False(t, l.Post(func() {}))
	assert.False(t, l.Call(func() {}))
}

func TestLoop_SurvivesPanickingTask(t *testing.T) {
	l := New(nil)
	defer l.Stop()

	l.Post(func() { panic("boom") })
	ran := false
	assert.True(t, l.Call(func() { ran = true }))
	assert.True(t, ran)
}
