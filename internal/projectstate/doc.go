// Package projectstate persists the ordered prompt list of each project.
//
// Every project owns one JSON document under <root>/v1/projects/<id>/. Writes
// replace the document atomically (temp file, fsync, rename, directory fsync)
// while holding exclusive coordination on the path, so concurrent readers in
// this or another process observe either the previous or the new list and
// never a partial file. Reads take shared coordination. Read-modify-write
// operations such as UpdateStatus run inside a single exclusive region.
//
// A project without a state file is valid and loads as an empty list.
// Updating the status of an unknown prompt is a silent no-op.
package projectstate
