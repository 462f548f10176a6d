// Package lospsim simulates LOSP instrument firmware on top of a
// msctest.Device.
//
// An Instrument watches writes to the command sector and rewrites reads of
// the answer sector. Each command is answered BUSY a configurable number of
// times before the real answer appears. GET_PHASE_BUFFER latches edges of a
// synthetic signal whose frequency is SysClockHz*TicksPerEdge/RefPerEdge,
// optionally with jitter and periodic reference dropouts.
//
// # Example
//
//	dev, inst := lospsim.NewDisk(lospsim.WithBusyPolls(5))
//	disk, _ := msc.Open(dev, dev.Endpoints())
//	client := losp.New(disk)
//	err := client.Nop(ctx) // six answer sector reads
package lospsim
