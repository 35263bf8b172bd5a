package server

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/sirupsen/logrus"

	"github.com/norndb/norn/pkg/schema"
)

// conn drives one wire connection: handshake, then a frame loop reading
// requests and writing responses until the peer goes away.
type conn struct {
	id      ksuid.KSUID
	srv     *Server
	netConn net.Conn
	gw      *gateway
	log     *logrus.Entry

	req  schema.Request
	resp schema.Response
}

func newConn(srv *Server, netConn net.Conn) *conn {
	id := ksuid.New()
	return &conn{
		id:      id,
		srv:     srv,
		netConn: netConn,
		gw:      newGateway(srv),
		log: srv.log.WithFields(logrus.Fields{
			"conn":   id.String(),
			"remote": netConn.RemoteAddr().String(),
		}),
	}
}

// handshake reads and validates the protocol version word.
func (c *conn) handshake() error {
	var buf [8]byte
	if _, err := io.ReadFull(c.netConn, buf[:]); err != nil {
		return fmt.Errorf("failed to read protocol version: %w", err)
	}
	version := binary.BigEndian.Uint64(buf[:])
	if version != ProtocolVersion {
		return fmt.Errorf("unknown protocol version %#x", version)
	}
	return nil
}

func (c *conn) serve() {
	defer func() {
		c.gw.close()
		c.req.Close()
		c.resp.Close()
		c.netConn.Close()
		c.srv.metrics.ConnClosed()
		c.log.Info("connection closed")
	}()

	c.srv.metrics.ConnOpened()
	c.log.Info("connection accepted")

	if err := c.handshake(); err != nil {
		c.log.WithError(err).Warn("handshake failed")
		return
	}

	for {
		c.req.Reset()
		c.resp.Reset()

		if err := c.req.Message.ReadFrom(c.netConn); err != nil {
			if !errors.Is(err, io.EOF) {
				c.log.WithError(err).Warn("failed to read frame")
			}
			return
		}

		start := time.Now()
		typ := c.req.Message.Type()

		if err := c.req.Decode(); err != nil {
			c.log.WithError(err).WithField("type", typ).Warn("failed to decode request")
			failure(&c.resp, requestDecodeCode(err), c.req.Err.String())
		} else {
			c.gw.handle(&c.req, &c.resp)
		}

		if err := c.resp.Encode(); err != nil {
			c.log.WithError(err).Warn("failed to encode response")
			failure(&c.resp, requestDecodeCode(err), c.resp.Err.String())
			if err := c.resp.Encode(); err != nil {
				return
			}
		}

		n, err := c.resp.Message.WriteTo(c.netConn)
		c.srv.metrics.RecordResponseBytes(n)
		success := c.resp.Type != schema.ResponseFailure
		c.srv.metrics.RecordRequest(requestName(typ), success, time.Since(start))
		if err != nil {
			c.log.WithError(err).Warn("failed to write response")
			return
		}
	}
}

// requestName labels request types for logs and metrics.
func requestName(typ uint8) string {
	switch typ {
	case schema.RequestLeader:
		return "leader"
	case schema.RequestClient:
		return "client"
	case schema.RequestHeartbeat:
		return "heartbeat"
	case schema.RequestOpen:
		return "open"
	case schema.RequestPrepare:
		return "prepare"
	case schema.RequestExec:
		return "exec"
	case schema.RequestQuery:
		return "query"
	case schema.RequestFinalize:
		return "finalize"
	case schema.RequestExecSQL:
		return "exec-sql"
	case schema.RequestQuerySQL:
		return "query-sql"
	case schema.RequestInterrupt:
		return "interrupt"
	}
	return "unknown"
}
