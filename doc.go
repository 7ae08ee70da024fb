// Package hitl implements the server side of a human-in-the-loop review
// protocol. An automated process creates a review case describing a decision
// a human must make, a human resolves it out-of-band (web page, polling
// client or event stream) and the result becomes available to the original
// process.
//
// The engine keeps cases in a volatile in-memory registry and comes with
// pluggable service layers:
//
//   - review    – the lifecycle state machine and Service contract
//   - token     – capability-token minting and verification
//   - ratelimit – per-case fixed-window polling guard
//   - notify    – per-case publish/subscribe notification fan-out
//   - schedule  – cancellable auto-expiration timers
//   - endpoint  – the HTTP/SSE protocol surface
//
// hitl is designed to be embedded in host applications. End-users typically
// interact via the high-level Service façade exposed by the root package:
//
//	srv := hitl.New()
//	defer srv.Close()
//	http.ListenAndServe(":3458", srv.Handler())
//
// For more details see the README and individual sub-packages.
package hitl
