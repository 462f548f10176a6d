package lospsim

import (
	"sync"

	"github.com/ardnew/lospdisk/host/class/msc"
	"github.com/ardnew/lospdisk/host/class/msc/msctest"
	"github.com/ardnew/lospdisk/losp"
	"github.com/ardnew/lospdisk/pkg"
)

// Instrument simulates the LOSP firmware behind a simulated disk. It
// decodes command records written to the command sector and substitutes
// its answer record whenever the answer sector is read.
type Instrument struct {
	cfg Config
	mu  sync.Mutex

	pending  *losp.Answer
	busyLeft int
	lastCode losp.CommandCode
	lastRaw  uint32
	received []losp.CommandCode
	polls    int

	data []byte

	// Signal generator state
	ticks    uint32
	ref      uint32
	edgeNum  int
	fixCount uint32
	edges    []losp.Edge
}

// New creates an instrument.
func New(opts ...Option) *Instrument {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Instrument{
		cfg:  cfg,
		data: make([]byte, max(cfg.DataSize, 0)),
	}
}

// Attach installs the instrument on the tunnel sectors of dev.
func (in *Instrument) Attach(dev *msctest.Device) {
	dev.OnWrite(in.cfg.CommandLBA, in.onCommand)
	dev.OnRead(in.cfg.AnswerLBA, in.onAnswerRead)
}

// NewDisk returns a simulated 1024 x 512 disk with an attached instrument.
func NewDisk(opts ...Option) (*msctest.Device, *Instrument) {
	dev := msctest.New(msctest.NewMemoryStorage(1024, msc.DefaultBlockSize))
	dev.SetIdentity("LOSP", "Instrument Disk", "1.0")
	in := New(opts...)
	in.Attach(dev)
	return dev, in
}

// Config returns the instrument configuration.
func (in *Instrument) Config() Config { return in.cfg }

// Frequency returns the nominal frequency of the generated signal.
func (in *Instrument) Frequency() float64 {
	return float64(in.cfg.SysClockHz) * float64(in.cfg.TicksPerEdge) / float64(in.cfg.RefPerEdge)
}

// SetBusyPolls changes the number of BUSY answers for later commands.
func (in *Instrument) SetBusyPolls(n int) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.cfg.BusyPolls = max(n, 0)
}

// Polls returns the number of answer sector reads.
func (in *Instrument) Polls() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.polls
}

// Received returns the command codes decoded so far.
func (in *Instrument) Received() []losp.CommandCode {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]losp.CommandCode(nil), in.received...)
}

// Data returns a copy of the data area.
func (in *Instrument) Data() []byte {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]byte(nil), in.data...)
}

func (in *Instrument) onCommand(_ uint32, sector []byte) {
	in.mu.Lock()
	defer in.mu.Unlock()

	var cmd losp.Command
	if !losp.ParseCommand(sector, &cmd) {
		pkg.LogWarn(pkg.ComponentSim, "undecodable command record")
		in.pending = &losp.Answer{Code: losp.CmdUnknown, Return: losp.ReturnError}
		in.busyLeft = 0
		return
	}

	in.received = append(in.received, cmd.Code)
	in.lastCode = cmd.Code
	in.lastRaw = cmd.RawCode
	in.pending = in.handle(&cmd)
	in.busyLeft = in.cfg.BusyPolls

	pkg.LogDebug(pkg.ComponentSim, "command",
		"code", cmd.Code,
		"return", in.pending.Return,
		"out", len(in.pending.Payload))
}

func (in *Instrument) onAnswerRead(_ uint32, sector []byte) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.polls++

	var ans *losp.Answer
	switch {
	case in.pending == nil:
		ans = &losp.Answer{Code: in.lastCode, RawCode: in.lastRaw, Return: losp.ReturnNotData}
	case in.busyLeft > 0:
		in.busyLeft--
		ans = &losp.Answer{Code: in.pending.Code, RawCode: in.pending.RawCode, Return: losp.ReturnBusy}
	default:
		ans = in.pending
	}
	ans.MarshalTo(sector)
}

func (in *Instrument) handle(cmd *losp.Command) *losp.Answer {
	ans := &losp.Answer{Code: cmd.Code, RawCode: cmd.RawCode, Return: losp.ReturnOK}

	switch cmd.Code {
	case losp.CmdNop:

	case losp.CmdGetVersion:
		v := append([]byte(in.cfg.Version), 0)
		ans.Payload = v[:min(len(v), int(cmd.OutLen))]

	case losp.CmdReadData:
		ans.Return = in.checkRange(int(cmd.Offset), int(cmd.OutLen))
		if ans.Return == losp.ReturnOK {
			ans.Payload = append([]byte(nil), in.data[cmd.Offset:int(cmd.Offset)+int(cmd.OutLen)]...)
		}

	case losp.CmdWriteData:
		ans.Return = in.checkRange(int(cmd.Offset), len(cmd.Payload))
		if ans.Return == losp.ReturnOK {
			copy(in.data[cmd.Offset:], cmd.Payload)
		}

	case losp.CmdGetPhaseBuffer:
		ans.Payload = in.phaseBuffer(int(cmd.OutLen))
		if ans.Payload == nil {
			ans.Return = losp.ReturnError
		}

	case losp.CmdResetPhaseBuffer:
		in.edges = in.edges[:0]
		in.fixCount = 0

	default:
		ans.Return = losp.ReturnError
	}
	return ans
}

func (in *Instrument) checkRange(offset, n int) losp.ReturnCode {
	if n <= 0 || offset < 0 || offset+n > len(in.data) {
		return losp.ReturnBadParameter
	}
	if offset < in.cfg.LockedTo && in.cfg.LockedFrom < offset+n {
		return losp.ReturnLocked
	}
	return losp.ReturnOK
}

// latch generates the next edge.
func (in *Instrument) latch() losp.Edge {
	in.edgeNum++
	ticks := in.cfg.TicksPerEdge
	if in.cfg.Jitter > 0 {
		if in.edgeNum%2 == 0 {
			ticks += in.cfg.Jitter
		} else {
			ticks -= in.cfg.Jitter
		}
	}
	in.ticks += ticks
	if in.cfg.DropoutEvery <= 0 || in.edgeNum%in.cfg.DropoutEvery != 0 {
		in.ref += in.cfg.RefPerEdge
	}
	if in.cfg.Layout == losp.StructPhaseV1 {
		in.ref &= 0xFFFF
	}
	return losp.Edge{Ticks: in.ticks, Ref: in.ref}
}

// phaseBuffer latches new edges and encodes the newest ones that fit in
// outLen bytes.
func (in *Instrument) phaseBuffer(outLen int) []byte {
	for i := 0; i < in.cfg.EdgesPerPoll; i++ {
		in.edges = append(in.edges, in.latch())
		in.fixCount++
	}
	if extra := len(in.edges) - in.cfg.MaxCount; extra > 0 {
		in.edges = append(in.edges[:0], in.edges[extra:]...)
	}

	analog := make([]uint16, 4)
	if in.cfg.Layout == losp.StructPhaseV1 {
		analog = analog[:2]
	}
	for i := range analog {
		analog[i] = uint16(1000 + 100*i)
	}
	pb := losp.PhaseBuffer{
		Type:       in.cfg.Layout,
		MaxCount:   uint16(in.cfg.MaxCount),
		FixCount:   in.fixCount,
		SysClockHz: in.cfg.SysClockHz,
		Analog:     analog,
		Edges:      in.edges,
	}
	for len(pb.Edges) > 0 && pb.Size() > outLen {
		pb.Edges = pb.Edges[1:]
	}

	buf := make([]byte, pb.Size())
	if pb.MarshalTo(buf) == 0 || len(buf) > outLen {
		return nil
	}
	return buf
}
