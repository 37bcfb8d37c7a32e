// Package control holds the run-time gates around agent output: the
// confidence heuristic that can force an extra reasoning turn, and the
// approval handlers consulted by approval-gated workflow steps.
package control
