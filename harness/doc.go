// Package harness drives stdio JSON-RPC servers through scripted request
// sequences and records byte-exact evidence of their behavior.
//
// Characteristics
//
//	Targets    : opaque child processes speaking newline-delimited JSON-RPC
//	Sequencing : strictly one step at a time per target, no pipelining
//	Matching   : responses correlate by id value and JSON type, not arrival order
//	Failures   : recorded per step; a bad step never aborts the ones after it,
//	             except broken pipes and peer exits, which mark the remainder
//	             as not-run
//
// The runner borrows a proc.Handle for the duration of one run and always
// walks the terminate-then-kill ladder before returning its TargetReport.
package harness
