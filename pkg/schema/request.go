package schema

import "github.com/norndb/norn/pkg/wire"

// Request types.
const (
	RequestLeader uint8 = iota
	RequestClient
	RequestHeartbeat
	RequestOpen
	RequestPrepare
	RequestExec
	RequestQuery
	RequestFinalize
	RequestExecSQL
	RequestQuerySQL
	RequestInterrupt
)

// Leader asks which node is the leader. Records are never empty on the
// wire, so it carries one unused word.
type Leader struct {
	Unused uint64
}

// Client registers the client with its unique identifier.
type Client struct {
	ID uint64
}

// Heartbeat keeps the connection alive and refreshes the node list.
type Heartbeat struct {
	Timestamp uint64
}

// Open opens a database on the node.
type Open struct {
	Name  string
	Flags uint64
	Vfs   string
}

// Prepare compiles a statement against an open database.
type Prepare struct {
	Db  uint64
	SQL string
}

// Exec runs a prepared statement. The parameter tuple, if any, follows the
// record in the message body and is consumed by the statement adapter.
type Exec struct {
	Db   uint64
	Stmt uint64
}

// Query runs a prepared statement that yields rows. Like Exec, a parameter
// tuple may follow the record.
type Query struct {
	Db   uint64
	Stmt uint64
}

// Finalize releases a prepared statement.
type Finalize struct {
	Db   uint64
	Stmt uint64
}

// ExecSQL prepares, runs and finalizes SQL text in one round trip.
type ExecSQL struct {
	Db  uint64
	SQL string
}

// QuerySQL prepares, queries and finalizes SQL text in one round trip.
type QuerySQL struct {
	Db  uint64
	SQL string
}

// Interrupt stops whatever statement is in progress on the database.
type Interrupt struct {
	Db uint64
}

// Request decodes inbound frames into one of the request variants. It owns
// the message the frame is read into; after Decode the variant matching
// Type holds the parsed fields, with the read cursor left on any trailing
// parameter tuple.
type Request struct {
	Message wire.Message
	Type    uint8
	Flags   uint8
	Err     wire.Error

	Leader    Leader
	Client    Client
	Heartbeat Heartbeat
	Open      Open
	Prepare   Prepare
	Exec      Exec
	Query     Query
	Finalize  Finalize
	ExecSQL   ExecSQL
	QuerySQL  QuerySQL
	Interrupt Interrupt
}

func (r *Request) fields(typ uint8) []field {
	switch typ {
	case RequestLeader:
		return []field{uint64Field("unused", &r.Leader.Unused)}
	case RequestClient:
		return []field{uint64Field("id", &r.Client.ID)}
	case RequestHeartbeat:
		return []field{uint64Field("timestamp", &r.Heartbeat.Timestamp)}
	case RequestOpen:
		return []field{
			textField("name", &r.Open.Name),
			uint64Field("flags", &r.Open.Flags),
			textField("vfs", &r.Open.Vfs),
		}
	case RequestPrepare:
		return []field{
			uint64Field("db", &r.Prepare.Db),
			textField("sql", &r.Prepare.SQL),
		}
	case RequestExec:
		return []field{
			uint64Field("db", &r.Exec.Db),
			uint64Field("stmt", &r.Exec.Stmt),
		}
	case RequestQuery:
		return []field{
			uint64Field("db", &r.Query.Db),
			uint64Field("stmt", &r.Query.Stmt),
		}
	case RequestFinalize:
		return []field{
			uint64Field("db", &r.Finalize.Db),
			uint64Field("stmt", &r.Finalize.Stmt),
		}
	case RequestExecSQL:
		return []field{
			uint64Field("db", &r.ExecSQL.Db),
			textField("sql", &r.ExecSQL.SQL),
		}
	case RequestQuerySQL:
		return []field{
			uint64Field("db", &r.QuerySQL.Db),
			textField("sql", &r.QuerySQL.SQL),
		}
	case RequestInterrupt:
		return []field{uint64Field("db", &r.Interrupt.Db)}
	}
	return nil
}

// Encode stamps the header with the current type and writes the matching
// variant into the message body.
func (r *Request) Encode() error {
	r.Message.HeaderPut(r.Type, r.Flags)
	fields := r.fields(r.Type)
	if fields == nil {
		r.Err.Printf("unknown message type %d", r.Type)
		return ErrUnknownType
	}
	return putRecord(&r.Message, &r.Err, fields...)
}

// Decode sets the handler type from the decoded message header and parses
// the matching variant from the body.
func (r *Request) Decode() error {
	r.Type = r.Message.Type()
	r.Flags = r.Message.Flags()
	fields := r.fields(r.Type)
	if fields == nil {
		r.Err.Printf("unknown message type %d", r.Type)
		return ErrUnknownType
	}
	if err := getRecord(&r.Message, &r.Err, fields...); err != nil {
		r.Err.Wrapf(&r.Err, "failed to decode request")
		return err
	}
	return nil
}

// Reset prepares the handler for the next frame.
func (r *Request) Reset() {
	r.Message.Reset()
	r.Type = 0
	r.Flags = 0
	r.Err.Reset()
}

// Close releases the underlying message buffers.
func (r *Request) Close() {
	r.Message.Close()
}
