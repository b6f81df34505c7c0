// Package thread provides single-goroutine FIFO task runners.
//
// A Thread owns exactly one goroutine that runs posted closures one at a
// time, in the order they were posted. It is the Go rendition of a
// single-threaded task runner: state owned by a Thread is only ever touched
// from tasks running on it, so that state needs no locking.
//
// Thread-safety model:
//   - PostTask(): safe from any goroutine
//   - RunsTasksOnCurrentThread(): safe from any goroutine
//   - Stop(): safe from any goroutine except the Thread's own
//
// Affinity checks (AssertCurrent) compare goroutine identities. A failed
// check panics: calling thread-bound code from the wrong goroutine is a
// programming error, never a recoverable condition.
package thread
