// Package rpc implements the Bitcoin RPC adapter (§4.4): live JSON-RPC
// calls to bitcoind, falling back to deterministic simulated values when
// EnableRealNetworking is off or the node is unreachable, each result
// tagged with its provenance.
package rpc

import (
	"context"
	"net"
	"sync"
	"time"
)

// pooledConn wraps a net.Conn with the time it was released back to the pool.
type pooledConn struct {
	net.Conn
	idleSince time.Time
}

// DialPool is a minimal idle-connection pool keyed by address, handed to
// http.Transport.DialContext and adapted from the teacher's
// connection_pool.go idiom. DialContext returns a pooled connection only if
// one was handed back through Release; BitcoinAdapter never calls Release,
// so reuse of warm connections between its RPC calls comes from
// http.Transport's own keep-alive pool.
type DialPool struct {
	dialer  net.Dialer
	mu      sync.Mutex
	conns   map[string][]*pooledConn
	maxIdle int
	idleTTL time.Duration

	closing chan struct{}
	closeOnce sync.Once
}

// NewDialPool constructs a pool with the given per-address idle cap and TTL.
func NewDialPool(maxIdle int, idleTTL time.Duration) *DialPool {
	p := &DialPool{
		conns:   make(map[string][]*pooledConn),
		maxIdle: maxIdle,
		idleTTL: idleTTL,
		closing: make(chan struct{}),
	}
	go p.reap()
	return p
}

// DialContext implements the signature http.Transport.DialContext expects.
func (p *DialPool) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	p.mu.Lock()
	if conns := p.conns[addr]; len(conns) > 0 {
		pc := conns[len(conns)-1]
		p.conns[addr] = conns[:len(conns)-1]
		p.mu.Unlock()
		return pc.Conn, nil
	}
	p.mu.Unlock()
	return p.dialer.DialContext(ctx, network, addr)
}

// Release returns a connection to the pool for reuse instead of closing it.
func (p *DialPool) Release(addr string, conn net.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.conns[addr]) >= p.maxIdle {
		_ = conn.Close()
		return
	}
	p.conns[addr] = append(p.conns[addr], &pooledConn{Conn: conn, idleSince: time.Now()})
}

// reap evicts idle connections past idleTTL, run as a background goroutine
// for the pool's lifetime.
func (p *DialPool) reap() {
	ticker := time.NewTicker(p.idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-p.closing:
			return
		case <-ticker.C:
			p.mu.Lock()
			for addr, conns := range p.conns {
				kept := conns[:0]
				for _, pc := range conns {
					if time.Since(pc.idleSince) > p.idleTTL {
						_ = pc.Conn.Close()
						continue
					}
					kept = append(kept, pc)
				}
				p.conns[addr] = kept
			}
			p.mu.Unlock()
		}
	}
}

// Close stops the reaper and closes every pooled connection.
func (p *DialPool) Close() error {
	p.closeOnce.Do(func() {
		close(p.closing)
		p.mu.Lock()
		for _, conns := range p.conns {
			for _, pc := range conns {
				_ = pc.Conn.Close()
			}
		}
		p.conns = nil
		p.mu.Unlock()
	})
	return nil
}
