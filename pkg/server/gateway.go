package server

import (
	"github.com/norndb/norn/pkg/engine"
	"github.com/norndb/norn/pkg/schema"
	"github.com/norndb/norn/pkg/stmt"
)

// gateway translates decoded requests into engine operations and fills in
// the matching response variant. One gateway serves one connection.
type gateway struct {
	srv *Server
	reg *registry
}

func newGateway(srv *Server) *gateway {
	return &gateway{srv: srv, reg: newRegistry()}
}

func (g *gateway) close() {
	g.reg.close()
}

// failure fills resp with a Failure variant, discarding any partially
// encoded body.
func failure(resp *schema.Response, code uint64, message string) {
	resp.Message.Reset()
	resp.Type = schema.ResponseFailure
	resp.Failure.Code = code
	resp.Failure.Message = message
}

// handle dispatches one decoded request. The response handler is reset and
// ready; handle only picks the variant and fills its fields (or, for
// Rows, writes the body through the statement adapter).
func (g *gateway) handle(req *schema.Request, resp *schema.Response) {
	switch req.Type {
	case schema.RequestLeader:
		resp.Type = schema.ResponseServer
		resp.Server.Address = g.srv.address()

	case schema.RequestClient:
		resp.Type = schema.ResponseWelcome
		resp.Welcome.HeartbeatTimeout = g.srv.heartbeatTimeout()

	case schema.RequestHeartbeat:
		resp.Type = schema.ResponseServers
		resp.Servers.Nodes = g.srv.nodes()

	case schema.RequestOpen:
		db, err := g.srv.driver.Open(req.Open.Name)
		if err != nil {
			failure(resp, uint64(engine.Error), err.Error())
			return
		}
		resp.Type = schema.ResponseDb
		resp.Db.ID = g.reg.addDB(db)
		resp.Db.Unused = 0

	case schema.RequestPrepare:
		g.handlePrepare(req, resp)

	case schema.RequestExec:
		g.handleExec(req, resp)

	case schema.RequestQuery:
		g.handleQuery(req, resp)

	case schema.RequestFinalize:
		s, ok := g.reg.removeStmt(req.Finalize.Stmt)
		if !ok {
			failure(resp, uint64(engine.Error), "no such statement")
			return
		}
		s.Finalize()
		resp.Type = schema.ResponseEmpty

	case schema.RequestExecSQL:
		g.handleExecSQL(req, resp)

	case schema.RequestQuerySQL:
		g.handleQuerySQL(req, resp)

	case schema.RequestInterrupt:
		// The codec layer is synchronous, so there is nothing in flight
		// to stop; reset any registered statements and acknowledge.
		for _, s := range g.reg.stmts {
			s.Reset()
		}
		resp.Type = schema.ResponseEmpty

	default:
		failure(resp, uint64(engine.Error), req.Err.String())
	}
}

func (g *gateway) handlePrepare(req *schema.Request, resp *schema.Response) {
	db, ok := g.reg.db(req.Prepare.Db)
	if !ok {
		failure(resp, uint64(engine.Error), "no such database")
		return
	}
	prepared, _, rc := db.Prepare(req.Prepare.SQL)
	if rc != engine.OK {
		failure(resp, uint64(rc), db.ErrMsg())
		return
	}
	s := stmt.New(db, prepared)
	resp.Type = schema.ResponseStmt
	resp.Stmt.Db = req.Prepare.Db
	resp.Stmt.ID = g.reg.addStmt(s)
	resp.Stmt.Params = uint64(s.ParamCount())
}

func (g *gateway) handleExec(req *schema.Request, resp *schema.Response) {
	db, ok := g.reg.db(req.Exec.Db)
	if !ok {
		failure(resp, uint64(engine.Error), "no such database")
		return
	}
	s, ok := g.reg.stmt(req.Exec.Stmt)
	if !ok {
		failure(resp, uint64(engine.Error), "no such statement")
		return
	}
	s.Reset()
	if rc := s.Bind(&req.Message); rc != engine.OK {
		failure(resp, uint64(rc), s.Error())
		return
	}
	if rc := s.Exec(); rc != engine.Done {
		failure(resp, uint64(rc), s.Error())
		return
	}
	resp.Type = schema.ResponseResult
	resp.Result.LastInsertID = uint64(db.LastInsertRowID())
	resp.Result.RowsAffected = uint64(db.Changes())
}

func (g *gateway) handleQuery(req *schema.Request, resp *schema.Response) {
	s, ok := g.reg.stmt(req.Query.Stmt)
	if !ok {
		failure(resp, uint64(engine.Error), "no such statement")
		return
	}
	if rc := s.Bind(&req.Message); rc != engine.OK {
		failure(resp, uint64(rc), s.Error())
		return
	}
	rc := s.Query(&resp.Message)
	if rc != engine.Done && rc != engine.Row {
		failure(resp, uint64(rc), s.Error())
		return
	}
	resp.Type = schema.ResponseRows
	if rc == engine.Row {
		resp.Flags = schema.FlagRowsMore
	}
	g.srv.metrics.RecordRowsStreamed(s.RowsEncoded())
}

func (g *gateway) handleExecSQL(req *schema.Request, resp *schema.Response) {
	db, ok := g.reg.db(req.ExecSQL.Db)
	if !ok {
		failure(resp, uint64(engine.Error), "no such database")
		return
	}
	sql := req.ExecSQL.SQL
	for sql != "" {
		prepared, tail, rc := db.Prepare(sql)
		if rc != engine.OK {
			failure(resp, uint64(rc), db.ErrMsg())
			return
		}
		s := stmt.New(db, prepared)
		if rc := s.Bind(&req.Message); rc != engine.OK {
			failure(resp, uint64(rc), s.Error())
			s.Finalize()
			return
		}
		if rc := s.Exec(); rc != engine.Done {
			failure(resp, uint64(rc), s.Error())
			s.Finalize()
			return
		}
		s.Finalize()
		sql = tail
	}
	resp.Type = schema.ResponseResult
	resp.Result.LastInsertID = uint64(db.LastInsertRowID())
	resp.Result.RowsAffected = uint64(db.Changes())
}

func (g *gateway) handleQuerySQL(req *schema.Request, resp *schema.Response) {
	db, ok := g.reg.db(req.QuerySQL.Db)
	if !ok {
		failure(resp, uint64(engine.Error), "no such database")
		return
	}
	prepared, _, rc := db.Prepare(req.QuerySQL.SQL)
	if rc != engine.OK {
		failure(resp, uint64(rc), db.ErrMsg())
		return
	}
	s := stmt.New(db, prepared)
	defer s.Finalize()

	if rc := s.Bind(&req.Message); rc != engine.OK {
		failure(resp, uint64(rc), s.Error())
		return
	}
	rc = s.Query(&resp.Message)
	if rc != engine.Done && rc != engine.Row {
		failure(resp, uint64(rc), s.Error())
		return
	}
	resp.Type = schema.ResponseRows
	if rc == engine.Row {
		resp.Flags = schema.FlagRowsMore
	}
	g.srv.metrics.RecordRowsStreamed(s.RowsEncoded())
}
