// Package ipc provides JSON-RPC communication between the butler CLI
// and the daemon over a Unix domain socket. The server wraps the daemon
// facade under the "Butler" RPC name; the client exposes one typed
// method per RPC. Scheduler pause/resume (Stop/Start) is distinct from
// Shutdown, which asks the daemon process itself to exit.
package ipc
