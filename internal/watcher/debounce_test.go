// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package watcher

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncer_Basic(t *testing.T) {
	var callCount atomic.Int32

	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Trigger(func() {
		callCount.Add(1)
	})

	// Wait for debounce to fire
	time.Sleep(150 * time.Millisecond)

	assert.Equal(t, int32(1), callCount.Load())
}

func TestDebouncer_BurstCoalesces(t *testing.T) {
	var callCount atomic.Int32

	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	// A burst of rapid triggers within the quiet window
	for i := 0; i < 10; i++ {
		d.Trigger(func() {
			callCount.Add(1)
		})
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(150 * time.Millisecond)

	// Should only fire once, for the trailing trigger
	assert.Equal(t, int32(1), callCount.Load())
}

func TestDebouncer_ResetOnTrigger(t *testing.T) {
	var callCount atomic.Int32

	d := NewDebouncer(60 * time.Millisecond)
	defer d.Stop()

	d.Trigger(func() {
		callCount.Add(1)
	})

	// Re-trigger before the window elapses; the first callback must never run
	time.Sleep(30 * time.Millisecond)
	d.Trigger(func() {
		callCount.Add(1)
	})

	// Not yet fired at 30ms after the reset
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), callCount.Load())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), callCount.Load())
}

func TestDebouncer_SeparateBursts(t *testing.T) {
	var callCount atomic.Int32

	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	d.Trigger(func() { callCount.Add(1) })
	time.Sleep(100 * time.Millisecond)

	d.Trigger(func() { callCount.Add(1) })
	time.Sleep(100 * time.Millisecond)

	// Two quiet-separated bursts fire independently
	assert.Equal(t, int32(2), callCount.Load())
}

func TestDebouncer_Stop(t *testing.T) {
	var callCount atomic.Int32

	d := NewDebouncer(50 * time.Millisecond)

	d.Trigger(func() {
		callCount.Add(1)
	})
	d.Stop()

	time.Sleep(150 * time.Millisecond)

	// Stopped before firing: callback never runs
	assert.Equal(t, int32(0), callCount.Load())

	// Triggers after Stop are rejected
	d.Trigger(func() {
		callCount.Add(1)
	})
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(0), callCount.Load())
}

func TestDebouncer_ZeroDurationDefaults(t *testing.T) {
	d := NewDebouncer(0)
	defer d.Stop()

	assert.Equal(t, defaultDebounceDuration, d.duration)
}

func TestDebouncer_ConcurrentTriggers(t *testing.T) {
	var callCount atomic.Int32

	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Trigger(func() {
				callCount.Add(1)
			})
		}()
	}
	wg.Wait()

	time.Sleep(150 * time.Millisecond)

	assert.Equal(t, int32(1), callCount.Load())
}
