// Package sshpool keeps one reusable SSH session per lab host.
//
// Sessions are opened lazily, reused while they are fresh and answer a
// liveness probe, and replaced otherwise. Authentication tries the host's
// Vagrant-generated key first and falls back to the shared lab password.
package sshpool

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

// Default pool settings.
const (
	DefaultUser           = "vagrant"
	DefaultPassword       = "vagrant"
	DefaultConnectTimeout = 10 * time.Second
	DefaultCommandTimeout = 30 * time.Second
	DefaultProbeTimeout   = 5 * time.Second
	DefaultStaleAfter     = 300 * time.Second
	DefaultPort           = "22"
)

// Config holds connection settings. Zero values select the defaults.
type Config struct {
	KeyDir         string
	Password       string
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	ProbeTimeout   time.Duration
	StaleAfter     time.Duration
}

func (c Config) withDefaults() Config {
	c.KeyDir = ResolveKeyDir(c.KeyDir)
	if c.Password == "" {
		c.Password = DefaultPassword
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = DefaultStaleAfter
	}
	return c
}

// Option configures a Pool.
type Option func(*Pool)

// WithDialer replaces the network dialer.
func WithDialer(dial DialFunc) Option {
	return func(p *Pool) {
		p.dial = dial
	}
}

// WithClock replaces the time source used for staleness.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		p.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pool) {
		p.log = l
	}
}

// WithPerHostLocking serialises admission per host instead of pool-wide, so
// connecting to one slow host does not block the others.
func WithPerHostLocking() Option {
	return func(p *Pool) {
		p.perHost = true
	}
}

type entry struct {
	session Session
	stamp   time.Time
}

// Pool caches at most one session per host.
type Pool struct {
	cfg     Config
	dial    DialFunc
	now     func() time.Time
	log     *zap.Logger
	perHost bool

	admit sync.Mutex // pool-wide admission, unless perHost

	mu        sync.Mutex // guards entries and hostLocks
	entries   map[string]*entry
	hostLocks map[string]*sync.Mutex
}

// New creates an empty pool.
func New(cfg Config, opts ...Option) *Pool {
	p := &Pool{
		cfg:       cfg.withDefaults(),
		dial:      Dial,
		now:       time.Now,
		log:       zap.NewNop(),
		entries:   make(map[string]*entry),
		hostLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PerHostLocking reports whether admission is serialised per host.
func (p *Pool) PerHostLocking() bool {
	return p.perHost
}

// lockHost enters the admission critical section for host.
func (p *Pool) lockHost(host string) func() {
	if !p.perHost {
		p.admit.Lock()
		return p.admit.Unlock
	}
	p.mu.Lock()
	l, ok := p.hostLocks[host]
	if !ok {
		l = &sync.Mutex{}
		p.hostLocks[host] = l
	}
	p.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// lockAll enters the admission critical section of every host. Host locks
// are taken in name order.
func (p *Pool) lockAll() func() {
	if !p.perHost {
		p.admit.Lock()
		return p.admit.Unlock
	}
	p.mu.Lock()
	names := make([]string, 0, len(p.hostLocks))
	for name := range p.hostLocks {
		names = append(names, name)
	}
	locks := make([]*sync.Mutex, 0, len(names))
	sort.Strings(names)
	for _, name := range names {
		locks = append(locks, p.hostLocks[name])
	}
	p.mu.Unlock()

	for _, l := range locks {
		l.Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

func (p *Pool) lookup(host string) *entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entries[host]
}

func (p *Pool) store(host string, e *entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e == nil {
		delete(p.entries, host)
		return
	}
	p.entries[host] = e
}

// Acquire returns a live session for host, reusing the cached one when it is
// younger than the staleness window and answers a liveness probe.
func (p *Pool) Acquire(ctx context.Context, host, addr, user string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap(host, "connect", KindCanceled, err)
	}

	unlock := p.lockHost(host)
	defer unlock()

	if e := p.lookup(host); e != nil {
		if p.now().Sub(e.stamp) < p.cfg.StaleAfter && p.alive(ctx, host, e.session) {
			e.stamp = p.now()
			return e.session, nil
		}
		p.log.Debug("discarding cached session", zap.String("host", host))
		_ = e.session.Close()
		p.store(host, nil)
	}

	s, err := p.open(ctx, host, addr, user)
	if err != nil {
		return nil, err
	}
	p.store(host, &entry{session: s, stamp: p.now()})
	return s, nil
}

func (p *Pool) alive(ctx context.Context, host string, s Session) bool {
	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
	defer cancel()
	rc, _, err := s.Run(probeCtx, "true")
	if err != nil || rc != 0 {
		p.log.Debug("liveness probe failed",
			zap.String("host", host),
			zap.Int("rc", rc),
			zap.Error(err))
		return false
	}
	return true
}

// open authenticates with the host key when one exists, then with the
// shared password.
func (p *Pool) open(ctx context.Context, host, addr, user string) (Session, error) {
	if user == "" {
		user = DefaultUser
	}
	addr = hostPort(addr)

	if path, ok := FindKey(p.cfg.KeyDir, host); ok {
		s, err := p.attemptKey(ctx, addr, user, path)
		if err == nil {
			p.log.Debug("connected with key", zap.String("host", host), zap.String("key", path))
			return s, nil
		}
		if errors.Is(err, context.Canceled) {
			return nil, wrap(host, "connect", KindCanceled, err)
		}
		p.log.Debug("key authentication failed, trying password",
			zap.String("host", host),
			zap.String("key", path),
			zap.Error(err))
	}

	s, err := p.attempt(ctx, addr, user, ssh.Password(p.cfg.Password))
	if err != nil {
		return nil, wrap(host, "connect", KindConnection, err)
	}
	p.log.Debug("connected with password", zap.String("host", host))
	return s, nil
}

func (p *Pool) attemptKey(ctx context.Context, addr, user, path string) (Session, error) {
	auth, err := keyAuth(path)
	if err != nil {
		return nil, err
	}
	return p.attempt(ctx, addr, user, auth)
}

func (p *Pool) attempt(ctx context.Context, addr, user string, auth ssh.AuthMethod) (Session, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()

	config := &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{auth},
		// Lab VMs are recreated with fresh host keys.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         p.cfg.ConnectTimeout,
	}
	s, err := p.dial(ctx, addr, config)
	if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		err = fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return s, err
}

// Run executes command on host under the command timeout.
func (p *Pool) Run(ctx context.Context, host, addr, command, user string) (int, string, error) {
	s, err := p.Acquire(ctx, host, addr, user)
	if err != nil {
		return -1, "", err
	}

	runCtx, cancel := context.WithTimeout(ctx, p.cfg.CommandTimeout)
	defer cancel()

	rc, out, err := s.Run(runCtx, command)
	if err != nil {
		p.evict(host, s)
		if runCtx.Err() != nil && !errors.Is(err, runCtx.Err()) {
			err = fmt.Errorf("%w: %v", runCtx.Err(), err)
		}
		return -1, "", wrap(host, "run", KindSession, err)
	}
	return rc, out, nil
}

// evict drops s from the cache if it is still the cached session for host.
func (p *Pool) evict(host string, s Session) {
	p.mu.Lock()
	e, ok := p.entries[host]
	if ok && e.session == s {
		delete(p.entries, host)
	}
	p.mu.Unlock()
	if ok && e.session == s {
		_ = s.Close()
	}
}

// Probe checks connectivity by running hostname. It never returns an error.
func (p *Pool) Probe(ctx context.Context, host, addr, user string) (bool, string) {
	_, out, err := p.Run(ctx, host, addr, "hostname", user)
	switch KindOf(err) {
	case KindNone:
		return true, fmt.Sprintf("Connected — hostname: %s", strings.TrimSpace(out))
	case KindTimeout:
		return false, "Connection timed out"
	default:
		return false, fmt.Sprintf("Connection failed: %v", cause(err))
	}
}

// Cached reports the hosts with a cached session.
func (p *Pool) Cached() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// ReleaseAll closes every cached session and clears the cache. It waits for
// in-flight admissions so no session is cached after it returns. Close
// errors are ignored.
func (p *Pool) ReleaseAll() {
	unlock := p.lockAll()
	defer unlock()

	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[string]*entry)
	p.mu.Unlock()

	for host, e := range entries {
		if err := e.session.Close(); err != nil {
			p.log.Debug("close session", zap.String("host", host), zap.Error(err))
		}
	}
}

func hostPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(strings.Trim(addr, "[]"), DefaultPort)
}
