package schema

import "github.com/norndb/norn/pkg/wire"

// Response types.
const (
	ResponseFailure uint8 = iota
	ResponseServer
	ResponseWelcome
	ResponseServers
	ResponseDb
	ResponseStmt
	ResponseResult
	ResponseRows
	ResponseEmpty
)

// FlagRowsMore marks a partial Rows frame: the result set did not fit and
// the client should issue another Query to continue.
const FlagRowsMore uint8 = 1 << 0

// Failure reports an error code and a human-readable message.
type Failure struct {
	Code    uint64
	Message string
}

// Server carries the address of the leader node.
type Server struct {
	Address string
}

// Welcome acknowledges a client registration.
type Welcome struct {
	HeartbeatTimeout uint64
}

// Servers lists the nodes of the cluster.
type Servers struct {
	Nodes []Node
}

// Db identifies an opened database.
type Db struct {
	ID     uint64
	Unused uint64
}

// Stmt identifies a prepared statement and its parameter count.
type Stmt struct {
	Db     uint64
	ID     uint64
	Params uint64
}

// Result reports the outcome of a mutating statement.
type Result struct {
	LastInsertID uint64
	RowsAffected uint64
}

// Rows is a result-set frame. Its body (column count, column names and
// the encoded rows) is produced directly by the statement adapter, so the
// record itself has no fields.
type Rows struct{}

// Empty acknowledges a request that has nothing to report.
type Empty struct {
	Unused uint64
}

// Response encodes outbound frames from one of the response variants.
type Response struct {
	Message wire.Message
	Type    uint8
	Flags   uint8
	Err     wire.Error

	Failure Failure
	Server  Server
	Welcome Welcome
	Servers Servers
	Db      Db
	Stmt    Stmt
	Result  Result
	Rows    Rows
	Empty   Empty
}

func (r *Response) fields(typ uint8) []field {
	switch typ {
	case ResponseFailure:
		return []field{
			uint64Field("code", &r.Failure.Code),
			textField("message", &r.Failure.Message),
		}
	case ResponseServer:
		return []field{textField("address", &r.Server.Address)}
	case ResponseWelcome:
		return []field{uint64Field("heartbeatTimeout", &r.Welcome.HeartbeatTimeout)}
	case ResponseServers:
		return []field{nodesField("servers", &r.Servers.Nodes)}
	case ResponseDb:
		return []field{
			uint64Field("id", &r.Db.ID),
			uint64Field("unused", &r.Db.Unused),
		}
	case ResponseStmt:
		return []field{
			uint64Field("db", &r.Stmt.Db),
			uint64Field("id", &r.Stmt.ID),
			uint64Field("params", &r.Stmt.Params),
		}
	case ResponseResult:
		return []field{
			uint64Field("lastInsertId", &r.Result.LastInsertID),
			uint64Field("rowsAffected", &r.Result.RowsAffected),
		}
	case ResponseRows:
		return []field{}
	case ResponseEmpty:
		return []field{uint64Field("unused", &r.Empty.Unused)}
	}
	return nil
}

// Encode stamps the header with the current type and writes the matching
// variant into the message body.
func (r *Response) Encode() error {
	r.Message.HeaderPut(r.Type, r.Flags)
	fields := r.fields(r.Type)
	if fields == nil {
		r.Err.Printf("unknown message type %d", r.Type)
		return ErrUnknownType
	}
	return putRecord(&r.Message, &r.Err, fields...)
}

// Decode sets the handler type from the decoded message header and parses
// the matching variant from the body. Rows frames are left for the caller
// to walk with the message getters.
func (r *Response) Decode() error {
	r.Type = r.Message.Type()
	r.Flags = r.Message.Flags()
	fields := r.fields(r.Type)
	if fields == nil {
		r.Err.Printf("unknown message type %d", r.Type)
		return ErrUnknownType
	}
	if err := getRecord(&r.Message, &r.Err, fields...); err != nil {
		r.Err.Wrapf(&r.Err, "failed to decode response")
		return err
	}
	return nil
}

// Reset prepares the handler for the next frame.
func (r *Response) Reset() {
	r.Message.Reset()
	r.Type = 0
	r.Flags = 0
	r.Err.Reset()
}

// Close releases the underlying message buffers.
func (r *Response) Close() {
	r.Message.Close()
}
