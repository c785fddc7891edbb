// Package poller runs status poll chains for taskstatus.
//
// The main components are:
//
//   - [Client]: HTTP client wrapper with per-request timeouts and a body size limit
//   - [Chain]: state machine that polls a status URL until it is ready or failed
//   - [Classify]: maps a status code to the next chain state
//   - [Scheduler]: runs one chain per watch and emits their events
//   - [Limiter]: bounds concurrent requests across chains
//
// Users of the taskstatus library should not need to use this package
// directly. Configuration is done through the root package.
package poller
