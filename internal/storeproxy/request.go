package storeproxy

import (
	"fmt"
	"sync/atomic"
)

// Operation identifies a forwarded store method.
type Operation int

const (
	OpSetCookieWithDetails Operation = iota
	OpGetCookiesWithOptions
	OpGetCookieListWithOptions
	OpGetAllCookies
	OpDeleteAllCreatedBetween
	OpFlushStore
)

var operationNames = [...]string{
	"set_cookie_with_details",
	"get_cookies_with_options",
	"get_cookie_list_with_options",
	"get_all_cookies",
	"delete_all_created_between",
	"flush_store",
}

func (o Operation) String() string {
	if o < 0 || int(o) >= len(operationNames) {
		return fmt.Sprintf("Operation(%d)", int(o))
	}
	return operationNames[o]
}

// State is the lifecycle position of a forwarded request.
type State int32

const (
	StateCreated State = iota
	StateQueuedOnStoreThread
	StateExecuted
	StateSkippedAbsentStore
	StateQueuedOnClientThread
	StateDelivered
	StateDiscarded
)

var stateNames = [...]string{
	"created",
	"queued_on_store_thread",
	"executed",
	"skipped_absent_store",
	"queued_on_client_thread",
	"delivered",
	"discarded",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDelivered || s == StateDiscarded
}

// transitions lists the legal successors of each state.
var transitions = map[State][]State{
	StateCreated:              {StateQueuedOnStoreThread},
	StateQueuedOnStoreThread:  {StateExecuted, StateSkippedAbsentStore, StateDiscarded},
	StateExecuted:             {StateQueuedOnClientThread, StateDiscarded},
	StateSkippedAbsentStore:   {StateQueuedOnClientThread, StateDiscarded},
	StateQueuedOnClientThread: {StateDelivered, StateDiscarded},
}

func legal(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// request is the record of one forwarded operation. Arguments and the
// caller's callback travel in the posted closures, not here.
type request struct {
	id    string
	op    Operation
	state atomic.Int32
}

func (r *request) State() State {
	return State(r.state.Load())
}

// advance moves r to next. It panics on an illegal transition, which can
// only come from a bug in this package.
func (r *request) advance(next State) {
	for {
		cur := r.State()
		if !legal(cur, next) {
			panic(fmt.Sprintf("storeproxy: request %s (%s): illegal transition %s -> %s", r.id, r.op, cur, next))
		}
		if r.state.CompareAndSwap(int32(cur), int32(next)) {
			return
		}
	}
}
