package cluster

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidArgument is returned when a node, state or condition cannot be
// constructed from the given input.
var ErrInvalidArgument = errors.New("invalid argument")

// NodeType identifies the service role a node plays in the content cluster.
type NodeType int

const (
	// Storage nodes hold the documents.
	Storage NodeType = iota
	// Distributor nodes route operations to storage nodes.
	Distributor
)

// NodeTypes lists the node types in the order they are rendered.
var NodeTypes = []NodeType{Distributor, Storage}

func (t NodeType) String() string {
	switch t {
	case Storage:
		return "storage"
	case Distributor:
		return "distributor"
	default:
		return "unknown(" + strconv.Itoa(int(t)) + ")"
	}
}

// Valid reports whether t is one of the known node types.
func (t NodeType) Valid() bool {
	return t == Storage || t == Distributor
}

// Other returns the node type a node of type t is paired with.
func (t NodeType) Other() NodeType {
	if t == Storage {
		return Distributor
	}
	return Storage
}

// ParseNodeType parses "storage" or "distributor" (case-insensitive).
func ParseNodeType(s string) (NodeType, error) {
	switch strings.ToLower(s) {
	case "storage":
		return Storage, nil
	case "distributor":
		return Distributor, nil
	}
	return 0, fmt.Errorf("%w: unknown node type %q", ErrInvalidArgument, s)
}

// Node is the identity of one node in a cluster. Two nodes with the same
// type and index are the same node; a storage and a distributor node with the
// same index are a pair.
//
// Node is a comparable value and can be used as a map key.
type Node struct {
	Type  NodeType
	Index int
}

// NewNode constructs a node, rejecting negative indexes and unknown types.
func NewNode(t NodeType, index int) (Node, error) {
	if !t.Valid() {
		return Node{}, fmt.Errorf("%w: unknown node type %d", ErrInvalidArgument, int(t))
	}
	if index < 0 {
		return Node{}, fmt.Errorf("%w: negative node index %d", ErrInvalidArgument, index)
	}
	return Node{Type: t, Index: index}, nil
}

// StorageNode returns the storage node with the given index. It panics on a
// negative index and is meant for tests and static tables.
func StorageNode(index int) Node {
	return mustNode(Storage, index)
}

// DistributorNode returns the distributor node with the given index. It
// panics on a negative index.
func DistributorNode(index int) Node {
	return mustNode(Distributor, index)
}

func mustNode(t NodeType, index int) Node {
	n, err := NewNode(t, index)
	if err != nil {
		panic(err)
	}
	return n
}

// Pair returns the node of the other type with the same index.
func (n Node) Pair() Node {
	return Node{Type: n.Type.Other(), Index: n.Index}
}

// String renders the node as "<type>.<index>", e.g. "storage.2".
func (n Node) String() string {
	return n.Type.String() + "." + strconv.Itoa(n.Index)
}

// ParseNode parses the form produced by Node.String.
func ParseNode(s string) (Node, error) {
	typ, idx, ok := strings.Cut(s, ".")
	if !ok {
		return Node{}, fmt.Errorf("%w: malformed node %q", ErrInvalidArgument, s)
	}
	t, err := ParseNodeType(typ)
	if err != nil {
		return Node{}, err
	}
	i, err := strconv.Atoi(idx)
	if err != nil {
		return Node{}, fmt.Errorf("%w: malformed node index %q", ErrInvalidArgument, idx)
	}
	return NewNode(t, i)
}

// Less orders nodes by type (distributors first) and then by index.
func (n Node) Less(o Node) bool {
	if n.Type != o.Type {
		return n.Type == Distributor
	}
	return n.Index < o.Index
}
