// Package server implements the NornDB wire server: a framed TCP listener
// that decodes protocol requests, drives the embedded engine through the
// statement adapter and streams responses back, plus the HTTP admin
// surface exposing health and metrics.
package server

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/norndb/norn/pkg/engine"
	"github.com/norndb/norn/pkg/schema"
	"github.com/norndb/norn/pkg/wire"
)

// ProtocolVersion is the version word clients send right after connecting.
const ProtocolVersion uint64 = 1

// Protocol-level failure codes, reported in Failure responses alongside
// the engine's own codes.
const (
	codeError uint64 = 1
	codeProto uint64 = 3
	codeParse uint64 = 4
	codeEOM   uint64 = 6
)

// requestDecodeCode maps a request decoding failure to its failure code.
func requestDecodeCode(err error) uint64 {
	switch {
	case errors.Is(err, schema.ErrUnknownType):
		return codeProto
	case errors.Is(err, wire.ErrEOM):
		return codeEOM
	case errors.Is(err, wire.ErrParse):
		return codeParse
	}
	return codeError
}

// Config holds the server's runtime parameters.
type Config struct {
	// Address is the wire address advertised to clients. Defaults to the
	// listener address.
	Address string

	// HeartbeatTimeout is the interval clients are told to heartbeat at.
	HeartbeatTimeout time.Duration

	// Nodes is the static cluster view returned to heartbeats. When
	// empty, the server reports only itself.
	Nodes []schema.Node
}

// Server accepts wire connections and serves them, one goroutine each.
type Server struct {
	cfg     Config
	driver  engine.Driver
	log     *logrus.Logger
	metrics *Metrics

	mu     sync.Mutex
	ln     net.Listener
	closed bool
	wg     sync.WaitGroup
}

// New creates a server for the given engine driver. A nil logger falls
// back to the standard one and a nil metrics value registers against the
// default Prometheus registerer.
func New(driver engine.Driver, cfg Config, log *logrus.Logger, metrics *Metrics) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.DefaultRegisterer)
	}
	if cfg.HeartbeatTimeout == 0 {
		cfg.HeartbeatTimeout = 15 * time.Second
	}
	return &Server{
		cfg:     cfg,
		driver:  driver,
		log:     log,
		metrics: metrics,
	}
}

// ListenAndServe listens on addr and serves until Close.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Close. It always returns a non-nil
// error; after Close the error is or wraps net.ErrClosed.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return net.ErrClosed
	}
	s.ln = ln
	s.mu.Unlock()

	s.log.WithField("address", ln.Addr().String()).Info("wire server listening")

	for {
		netConn, err := ln.Accept()
		if err != nil {
			return err
		}
		c := newConn(s, netConn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			c.serve()
		}()
	}
}

// Close stops the listener and waits for in-flight connections to finish.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	ln := s.ln
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.wg.Wait()
	return err
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) address() string {
	if s.cfg.Address != "" {
		return s.cfg.Address
	}
	if addr := s.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (s *Server) heartbeatTimeout() uint64 {
	return uint64(s.cfg.HeartbeatTimeout / time.Millisecond)
}

func (s *Server) nodes() []schema.Node {
	if len(s.cfg.Nodes) > 0 {
		return s.cfg.Nodes
	}
	return []schema.Node{{ID: 1, Address: s.address()}}
}
