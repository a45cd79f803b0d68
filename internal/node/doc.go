// Package node defines the protocol node factory surface consumed by the
// bridge orchestrator.
//
// The underlying smart-home wire protocol (session establishment,
// commissioning cryptography, cluster encoding) is an external collaborator;
// the orchestrator needs only a handful of verbs from it: create an
// aggregator or server node, start/stop a node, open/close a commissioning
// window, and a notification stream for fabric and session changes. This
// package specifies exactly those verbs.
//
// The built-in implementation lives in node/local: an in-process factory
// that manages node lifecycle and announces commissionable nodes over mDNS.
package node
