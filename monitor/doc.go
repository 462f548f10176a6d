// Package monitor runs the sampling worker of a measurement session.
//
// A Sampler polls a telemetry Source at a fixed rate (golang.org/x/time/rate),
// feeds every snapshot to one freq.Engine and forwards failures as status
// lines. It is the only goroutine that touches the engine while running.
// Each run carries a random session id on
// its log records.
package monitor
