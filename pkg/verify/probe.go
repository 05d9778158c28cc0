package verify

import (
	"context"

	"go.uber.org/zap"

	"github.com/cgast/examiner/pkg/events"
	"github.com/cgast/examiner/pkg/exam"
	"github.com/cgast/examiner/pkg/sshpool"
)

// Prober checks reachability of many hosts. *sshpool.Pool implements it.
type Prober interface {
	ProbeAll(ctx context.Context, targets []sshpool.Target) []sshpool.ProbeResult
}

// Targets lists the exam's hosts in name order. When names are given only
// those hosts are returned; unknown names are reported as an error.
func Targets(e *exam.Exam, names ...string) ([]sshpool.Target, error) {
	if len(names) == 0 {
		names = e.HostNames()
	}
	targets := make([]sshpool.Target, 0, len(names))
	for _, name := range names {
		h, err := e.ResolveHost(name)
		if err != nil {
			return nil, err
		}
		targets = append(targets, sshpool.Target{Host: name, Addr: h.IP, User: h.User})
	}
	return targets, nil
}

// ProbeHosts probes targets through p and publishes one probe.result event
// per host.
func (r *Runner) ProbeHosts(ctx context.Context, p Prober, targets []sshpool.Target) []sshpool.ProbeResult {
	results := p.ProbeAll(ctx, targets)
	for _, res := range results {
		r.bus.Publish(events.NewEvent(events.EventProbeResult, events.ProbeData{
			Host:    res.Host,
			OK:      res.OK,
			Message: res.Message,
		}))
		r.log.Info("probed host",
			zap.String("host", res.Host),
			zap.Bool("ok", res.OK),
			zap.String("message", res.Message))
	}
	return results
}
