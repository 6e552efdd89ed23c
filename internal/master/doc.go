// Package master implements the hive host.
// The host owns the task queue and the result aggregate, serves workers over
// TCP, sweeps stale assignments, snapshots results periodically and writes the
// final report once every task reached a terminal state.
package master
