// Package freq estimates a signal frequency from the timer-edge samples of
// LOSP telemetry snapshots.
//
// Each consecutive edge pair yields an instantaneous frequency
// f = SysClockHz*m/n, where m is the high-resolution tick delta and n the
// reference count delta. The Engine keeps a running period average (so the
// frequency average is harmonic), the extrema and the sums of squares, and
// reports the RMS uncertainty
//
//	sqrt(eps + max(0, meanSquare - mean²)) / sqrt(eps + count)
//
// # Publication
//
// Without a target accuracy a result is published each time the interval
// deadline passes. With a target, a result is published as soon as at least
// MinSamples(target) samples are held and the period accuracy is below the
// target. Publishing resets the interval statistics. A zero reference delta
// means no signal: the interval statistics are reset and the rest of the
// snapshot is dropped.
package freq
