// Package projects composes the project state store and the sync outbox into
// the API used by the CLI: add, edit, reorder, delete and status updates of a
// project's prompts.
package projects
