// Package importer periodically pulls todos from an external paginated API,
// stores the ones not seen before and announces them to realtime clients.
//
// Every cycle, loop-driven or manual, runs under one mutex that also guards
// the pagination cursor. Failures never escape a cycle: a failed fetch yields
// an empty page with the cursor left in place, a failed item is skipped.
package importer
