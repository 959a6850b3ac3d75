// Package store is the durable record of channels, posts and their
// lifecycle state.
//
// It owns the sqlite schema and its migrations, enforces the post status
// state machine, and provides the atomic claim that keeps two scheduler
// ticks from delivering the same post twice.
package store
