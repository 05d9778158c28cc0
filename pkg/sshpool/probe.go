package sshpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Target names a host to probe.
type Target struct {
	Host string `json:"host"`
	Addr string `json:"addr"`
	User string `json:"user"`
}

// ProbeResult is the outcome of probing one Target.
type ProbeResult struct {
	Host    string `json:"host"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// ProbeAll probes every target and returns results in input order. Targets
// are probed one at a time unless per-host locking is enabled.
func (p *Pool) ProbeAll(ctx context.Context, targets []Target) []ProbeResult {
	results := make([]ProbeResult, len(targets))

	var g errgroup.Group
	if !p.perHost {
		g.SetLimit(1)
	}
	for i, t := range targets {
		g.Go(func() error {
			ok, msg := p.Probe(ctx, t.Host, t.Addr, t.User)
			results[i] = ProbeResult{Host: t.Host, OK: ok, Message: msg}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
