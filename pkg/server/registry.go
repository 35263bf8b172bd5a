package server

import (
	"github.com/norndb/norn/pkg/engine"
	"github.com/norndb/norn/pkg/stmt"
)

// registry tracks the databases and prepared statements of one connection.
// Identifiers are per-connection and never reused within its lifetime.
type registry struct {
	dbs      map[uint64]engine.DB
	stmts    map[uint64]*stmt.Stmt
	nextDB   uint64
	nextStmt uint64
}

func newRegistry() *registry {
	return &registry{
		dbs:   make(map[uint64]engine.DB),
		stmts: make(map[uint64]*stmt.Stmt),
	}
}

func (r *registry) addDB(db engine.DB) uint64 {
	r.nextDB++
	r.dbs[r.nextDB] = db
	return r.nextDB
}

func (r *registry) db(id uint64) (engine.DB, bool) {
	db, ok := r.dbs[id]
	return db, ok
}

func (r *registry) addStmt(s *stmt.Stmt) uint64 {
	r.nextStmt++
	r.stmts[r.nextStmt] = s
	return r.nextStmt
}

func (r *registry) stmt(id uint64) (*stmt.Stmt, bool) {
	s, ok := r.stmts[id]
	return s, ok
}

func (r *registry) removeStmt(id uint64) (*stmt.Stmt, bool) {
	s, ok := r.stmts[id]
	if ok {
		delete(r.stmts, id)
	}
	return s, ok
}

// close finalizes every statement and closes every database.
func (r *registry) close() {
	for id, s := range r.stmts {
		s.Finalize()
		delete(r.stmts, id)
	}
	for id, db := range r.dbs {
		db.Close()
		delete(r.dbs, id)
	}
}
