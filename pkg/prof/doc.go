// Package prof writes runtime/pprof profiles of a lospctl run.
//
//	stop, err := prof.StartCPU("cpu.prof")
//	defer stop()
//	// ... measure ...
//	prof.Write(prof.ProfileHeap, "heap.prof")
package prof
