// Package realtime keeps the set of live WebSocket clients and fans task
// change events out to them.
//
// The Registry is the only shared mutable structure in the process: request
// handlers and the importer broadcast through it concurrently, and every
// connection's receive loop registers and removes itself. Membership changes
// are serialised by a single RWMutex; sends happen outside that lock with a
// per-connection write mutex, so one slow or broken client never blocks
// delivery to, or bookkeeping of, any other.
package realtime
