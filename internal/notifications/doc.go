// Package notifications delivers daemon events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when no topic is set. The
// per-kind switches under [notifications] suppress individual event types, so
// callers publish unconditionally and the service decides what goes out.
//
// Extend this package if you need alternative transports; all daemon code
// depends only on the Service interface.
package notifications
