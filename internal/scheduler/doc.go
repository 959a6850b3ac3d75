// Package scheduler turns stored trigger times into delivery work: the
// periodic due-post scan, the atomic claim, the worker pool and the
// best-effort self-destruct timers.
//
// It operates on absolute timestamps only; time-zone resolution happens
// once, upstream, when a post is scheduled.
package scheduler
