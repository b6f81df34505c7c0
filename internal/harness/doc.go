// Package harness runs cookie proxy scenarios end to end.
//
// A scenario drives a real client thread, store thread, Owner and proxy
// through a list of steps and records every callback delivered on the
// client thread. The resulting trace is checked by assertions and can be
// compared byte-for-byte against a golden file.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: owner_destroyed_while_queued
//	description: "Destroying the owner under a queued request yields the default"
//	variant: weak          # weak (default) or guarded
//	store: memory          # memory (default) or absent
//	steps:
//	  - op: block_store
//	  - op: set
//	    label: s1
//	    url: https://example.com/
//	    name: foo
//	    value: bar
//	  - op: destroy_owner
//	  - op: unblock_store
//	assertions:
//	  - type: result
//	    label: s1
//	    expect: { ok: false }
//	  - type: store_calls
//	    count: 0
//
// # Steps
//
//   - set, get_all, get_list, get_line, delete_between, flush: issue the
//     matching proxy operation on the client thread
//   - close_proxy: close the proxy on the client thread
//   - destroy_owner: destroy the Owner on the store thread; while the store
//     thread is blocked this happens right after unblock_store, ahead of the
//     requests queued behind the block
//   - block_store, unblock_store: park and release the store thread
//   - wait: let every request in flight finish its hops
//
// A set step with repeat: N issues N sets named name-000, name-001, ...
// labelled label-000, label-001, ... .
//
// # Determinism
//
// Both threads are FIFO, the Monster runs on a testutil.DeterministicClock
// and request IDs come from testutil.SequentialIDs, so the same scenario
// always produces the same trace. Traces are serialized as canonical JSON
// (sorted keys, NFC strings, no floats, no nulls) for golden comparison.
package harness
