// Package delivery is the delivery orchestration core: per-attempt
// transport selection, failure classification, the bounded retry loop
// and the single code path that records a post's outcome.
package delivery
