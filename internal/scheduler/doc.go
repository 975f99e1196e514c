// Package scheduler owns the per-chat recurring market-update subscriptions.
//
// # Model
//
// One Scheduler instance holds an explicit chat-id keyed registry; there is
// no ambient global job state. Each live subscription is a single goroutine
// driven by an initial short delay and then a fixed-interval ticker. The
// tick body is injected by the caller and is treated as infallible from the
// scheduler's point of view: a failed cycle delivers a substitute notice (or
// nothing) but never unregisters the subscription.
//
// # Replace semantics
//
// Enable cancels any existing entry for the chat and installs the new one
// inside a single critical section. Once Enable returns, no tick can fire
// under the old cadence; a tick already delivering is allowed to finish.
// Disable is idempotent.
package scheduler
