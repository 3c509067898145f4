package monitor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/netixx/flexsentry/internal/runner"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type safeWriter struct {
	mu  *sync.Mutex
	buf *strings.Builder
}

func (w safeWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func captureLogger(buf *strings.Builder, mu *sync.Mutex) zerolog.Logger {
	return zerolog.New(safeWriter{mu: mu, buf: buf})
}

type fakeRunner struct {
	mu     sync.Mutex
	stdout []string
	calls  int
}

func (f *fakeRunner) setStdout(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stdout = append(f.stdout, s)
}

func (f *fakeRunner) Run(ctx context.Context, cmd string) (runner.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	idx := f.calls - 1
	if idx >= len(f.stdout) {
		idx = len(f.stdout) - 1
	}
	if idx < 0 {
		return runner.Result{}, nil
	}
	return runner.Result{Stdout: f.stdout[idx]}, nil
}

const sampleDump = `Flexible License Manager status on Tue 9/3/2013 09:52

Users of DOORS:  (Total of 56 licenses issued;  Total of 39 licenses in use)

    SBX035 VSDS-BIE-L0150 VSDS-BIE-L0150 (v6.000000) (VSDS-BIE-S002/7587 677), start Wed 9/3 08:00
`

func TestMonitorCycleAppliesDumpToState(t *testing.T) {
	fr := &fakeRunner{}
	fr.setStdout(sampleDump)
	m := New("HOST1", "DOORS", "stat-cmd", fr, nil)

	go m.Run(context.Background())
	defer m.Terminate()

	m.Trigger()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	state, err := m.Data(ctx)
	require.NoError(t, err)

	assert.Equal(t, 56, state.Total())
	assert.Equal(t, 39, state.Used())
	assert.Equal(t, 1, state.UserCount())
	u, ok := state.User("sbx035")
	require.True(t, ok)
	assert.Equal(t, "SBX035", u.UID)
}

func TestMonitorDataBlocksUntilTriggerCompletes(t *testing.T) {
	fr := &fakeRunner{}
	fr.setStdout(sampleDump)
	m := New("HOST1", "DOORS", "stat-cmd", fr, nil)

	go func() {
		time.Sleep(10 * time.Millisecond)
		m.Trigger()
	}()

	go m.Run(context.Background())
	defer m.Terminate()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	state, err := m.Data(ctx)
	require.NoError(t, err)
	assert.Equal(t, 56, state.Total())
}

func TestMonitorTerminateStopsWorkerWithoutProducingDump(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fr := &fakeRunner{}
	m := New("HOST1", "DOORS", "stat-cmd", fr, nil)

	done := make(chan struct{})
	go func() {
		m.Run(context.Background())
		close(done)
	}()

	m.Terminate()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after Terminate")
	}

	fr.mu.Lock()
	calls := fr.calls
	fr.mu.Unlock()
	assert.Equal(t, 0, calls)
}

func TestMonitorTriggerIsIdempotentWhileArmed(t *testing.T) {
	fr := &fakeRunner{}
	fr.setStdout(sampleDump)
	m := New("HOST1", "DOORS", "stat-cmd", fr, nil)

	m.Trigger()
	m.Trigger()
	m.Trigger()

	go m.Run(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	state, err := m.Data(ctx)
	require.NoError(t, err)
	assert.Equal(t, 56, state.Total())

	m.Terminate()
}

func TestMonitorNoDumpHeaderDoesNotUpdateState(t *testing.T) {
	fr := &fakeRunner{}
	fr.setStdout("garbage, no header here\n")
	m := New("HOST1", "DOORS", "stat-cmd", fr, nil)

	go m.Run(context.Background())
	defer m.Terminate()

	m.Trigger()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	state, err := m.Data(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, state.Total())
	_, hasDump := state.LastDump()
	assert.False(t, hasDump)
}

func TestMonitorReplaysRelevantLinesToSnapshot(t *testing.T) {
	var buf strings.Builder
	var mu sync.Mutex
	log := captureLogger(&buf, &mu)

	fr := &fakeRunner{}
	fr.setStdout(sampleDump)
	sink := NewSnapshotSink(log)
	m := New("HOST1", "DOORS", "stat-cmd", fr, sink)

	go m.Run(context.Background())
	defer m.Terminate()

	m.Trigger()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := m.Data(ctx)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, buf.String(), "new dump")
	assert.Contains(t, buf.String(), "end of dump")
}
