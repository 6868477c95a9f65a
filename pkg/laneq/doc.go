// Package laneq provides lane-based task execution with FIFO ordering per lane.
//
// Invariants:
// - Tasks in the same lane execute in FIFO order, one at a time by default.
// - Tasks in different lanes may execute concurrently.
// - Queue activity is observable through metrics.
package laneq
