package prof

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"
)

// Profiling errors.
var (
	// ErrCPUProfileActive indicates CPU profiling is already active.
	ErrCPUProfileActive = errors.New("cpu profile already active")

	// ErrInvalidProfile indicates an unknown snapshot profile name.
	ErrInvalidProfile = errors.New("invalid profile")
)

// Snapshot profile names accepted by Write.
const (
	ProfileHeap      = "heap"
	ProfileAllocs    = "allocs"
	ProfileGoroutine = "goroutine"
	ProfileBlock     = "block"
	ProfileMutex     = "mutex"
)

var (
	cpuMutex  sync.Mutex
	cpuActive bool
)

// StartCPU starts a CPU profile written to path. The returned function
// stops the profile and closes the file.
func StartCPU(path string) (stop func() error, err error) {
	cpuMutex.Lock()
	defer cpuMutex.Unlock()
	if cpuActive {
		return nil, ErrCPUProfileActive
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return nil, err
	}
	cpuActive = true

	var once sync.Once
	return func() error {
		var err error
		once.Do(func() {
			pprof.StopCPUProfile()
			err = f.Close()
			cpuMutex.Lock()
			cpuActive = false
			cpuMutex.Unlock()
		})
		return err
	}, nil
}

// Write writes the named snapshot profile to path. The heap profile is
// preceded by a garbage collection so it reflects live objects.
func Write(name, path string) error {
	p := pprof.Lookup(name)
	if p == nil {
		return fmt.Errorf("%w: %q", ErrInvalidProfile, name)
	}
	if name == ProfileHeap {
		runtime.GC()
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.WriteTo(f, 0); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
