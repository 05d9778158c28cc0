package verify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgast/examiner/pkg/events"
	"github.com/cgast/examiner/pkg/exam"
	"github.com/cgast/examiner/pkg/sshpool"
)

type fakeProber struct {
	got []sshpool.Target
}

func (f *fakeProber) ProbeAll(_ context.Context, targets []sshpool.Target) []sshpool.ProbeResult {
	f.got = targets
	results := make([]sshpool.ProbeResult, len(targets))
	for i, t := range targets {
		results[i] = sshpool.ProbeResult{Host: t.Host, OK: t.Host == "control", Message: "probed " + t.Addr}
	}
	return results
}

func TestTargets(t *testing.T) {
	e := labExam()

	all, err := Targets(e)
	require.NoError(t, err)
	assert.Equal(t, []sshpool.Target{
		{Host: "control", Addr: "10.0.0.10", User: "vagrant"},
		{Host: "node1", Addr: "10.0.0.11", User: "admin"},
	}, all)

	some, err := Targets(e, "node1")
	require.NoError(t, err)
	assert.Len(t, some, 1)

	_, err = Targets(e, "node9")
	var uh *exam.UnknownHostError
	assert.ErrorAs(t, err, &uh)
}

func TestProbeHostsPublishesResults(t *testing.T) {
	e := labExam()
	bus := events.NewMemoryBus()
	r := NewRunner(e, &fakePool{}, WithBus(bus))

	targets, err := Targets(e)
	require.NoError(t, err)
	p := &fakeProber{}
	results := r.ProbeHosts(context.Background(), p, targets)

	assert.Equal(t, targets, p.got)
	require.Len(t, results, 2)
	assert.True(t, results[0].OK)
	assert.False(t, results[1].OK)

	history := bus.History(time.Time{})
	require.Len(t, history, 2)
	assert.Equal(t, events.EventProbeResult, history[1].Type)
	assert.Equal(t, events.ProbeData{Host: "node1", OK: false, Message: "probed 10.0.0.11"}, history[1].Data)
}
