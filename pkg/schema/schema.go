// Package schema defines the request and response vocabulary of the wire
// protocol. Each variant is a record described as an ordered list of named
// fields; the field lists compose the message body codecs into matching
// put/get pairs, and the Request/Response handlers dispatch over the closed
// variant sets by the type byte of the message header.
package schema

import (
	"errors"

	"github.com/norndb/norn/pkg/wire"
)

// ErrUnknownType is returned when a handler is asked to encode or decode a
// message whose type byte matches no variant.
var ErrUnknownType = errors.New("unknown message type")

// field pairs a name with the put/get closures of one record member.
type field struct {
	name string
	put  func(*wire.Message) error
	get  func(*wire.Message) error
}

func uint64Field(name string, v *uint64) field {
	return field{
		name: name,
		put:  func(m *wire.Message) error { return m.BodyPutUint64(*v) },
		get: func(m *wire.Message) error {
			x, err := m.BodyGetUint64()
			if err != nil {
				return err
			}
			*v = x
			return nil
		},
	}
}

func textField(name string, v *string) field {
	return field{
		name: name,
		put:  func(m *wire.Message) error { return m.BodyPutText(*v) },
		get: func(m *wire.Message) error {
			x, err := m.BodyGetText()
			if err != nil {
				return err
			}
			*v = x
			return nil
		},
	}
}

// Node identifies one server of the cluster.
type Node struct {
	ID      uint64
	Address string
}

// nodesField encodes a node list as a count word followed by one
// (id, address) pair per node.
func nodesField(name string, v *[]Node) field {
	return field{
		name: name,
		put: func(m *wire.Message) error {
			if err := m.BodyPutUint64(uint64(len(*v))); err != nil {
				return err
			}
			for _, node := range *v {
				if err := m.BodyPutUint64(node.ID); err != nil {
					return err
				}
				if err := m.BodyPutText(node.Address); err != nil {
					return err
				}
			}
			return nil
		},
		get: func(m *wire.Message) error {
			n, err := m.BodyGetUint64()
			if err != nil {
				return err
			}
			// Each node takes at least two words; a larger count cannot
			// be honest.
			if n > uint64(m.Words()) {
				return wire.ErrParse
			}
			nodes := make([]Node, 0, n)
			for i := uint64(0); i < n; i++ {
				var node Node
				if node.ID, err = m.BodyGetUint64(); err != nil {
					return err
				}
				if node.Address, err = m.BodyGetText(); err != nil {
					return err
				}
				nodes = append(nodes, node)
			}
			*v = nodes
			return nil
		},
	}
}

// putRecord encodes the fields in order, annotating failures with the field
// name.
func putRecord(m *wire.Message, e *wire.Error, fields ...field) error {
	for _, f := range fields {
		if err := f.put(m); err != nil {
			e.Printf("failed to put %s: %v", f.name, err)
			return err
		}
	}
	return nil
}

// getRecord decodes the fields in order, annotating failures with the field
// name.
func getRecord(m *wire.Message, e *wire.Error, fields ...field) error {
	for _, f := range fields {
		if err := f.get(m); err != nil {
			e.Printf("failed to get %q field: %v", f.name, err)
			return err
		}
	}
	return nil
}
