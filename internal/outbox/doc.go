// Package outbox keeps a durable SQLite queue of prompt mutations waiting to
// be mirrored to a remote backend.
//
// Callers enqueue entries fire-and-forget after the local state file has been
// written; a separate agent drains them through an injected delivery
// function. Entries are keyed by project and prompt, so enqueuing a newer
// mutation for the same prompt replaces the older one and resets its attempt
// counter. The package implements no transport and retries nothing on its
// own beyond SQLite busy back-off.
package outbox
