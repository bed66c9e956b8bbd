// Package commands defines the qrgate CLI.
//
// Commands
//
//   - serve    Run the listener, notifier and status server
//   - send     Deliver one payload to a running listener
//   - seal     Produce a secretbox token for a payload
//   - sign     Produce an ed25519 token for a payload
//   - keygen   Generate an ed25519 key pair
//
// The root command configures logging and resolves --config (or
// QRGATE_CONFIG) before any subcommand runs.
package commands
