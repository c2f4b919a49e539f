// Package watch turns a bursty stream of filesystem notifications into settled
// update/delete batches for a build consumer.
//
// A Source feeds ChangeEvents into an Aggregator. The Aggregator filters them through
// IgnoreRules, keeps two mutually exclusive pending sets of project-relative paths and
// flushes them to its Consumer once no new change has arrived for the debounce window.
package watch
