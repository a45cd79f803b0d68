package node

import "errors"

// Domain errors for the node package.
// Check with errors.Is().
var (
	// ErrNodeCreation is returned when a server node cannot be created,
	// typically a port or identity conflict. Fatal for the shared node in
	// bridge topology; isolated to one plugin in childbridge topology.
	ErrNodeCreation = errors.New("node: creation failed")

	// ErrNodeStart is returned when a created node fails to come online.
	ErrNodeStart = errors.New("node: start failed")

	// ErrNodeNotFound is returned when a handle names a node the factory
	// does not know (already closed, or foreign handle).
	ErrNodeNotFound = errors.New("node: not found")

	// ErrAlreadyStarted is returned when starting a node twice.
	ErrAlreadyStarted = errors.New("node: already started")

	// ErrNotStarted is returned when advertising a node that is offline.
	ErrNotStarted = errors.New("node: not started")
)
