// Package ingest owns the network side of the gateway.
//
// Ownership boundary:
// - the TCP listening socket
//
// - one accepted connection at a time
//
// - the codec -> gate -> forwarder -> notifier pass per connection
//
// - listener restarts after a fault
//
// Lifecycle order:
// - starting -> listening -> accepting -> processing -> listening
//
// - any state -> faulted on an unexpected loop error; the Supervisor
// then asks the sink whether to restart.
//
// Per-connection failures never leave the loop. They become a failure
// Outcome and the listener keeps accepting.
package ingest
