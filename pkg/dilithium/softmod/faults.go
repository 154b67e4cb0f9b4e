package softmod

import "sync"

// Op names an export of the module for fault injection and call counting.
type Op uint8

const (
	OpMalloc Op = iota
	OpFree
	OpKeypair
	OpSign
	OpVerify
	opCount
)

func (o Op) String() string {
	switch o {
	case OpMalloc:
		return "malloc"
	case OpFree:
		return "free"
	case OpKeypair:
		return "keypair"
	case OpSign:
		return "sign"
	case OpVerify:
		return "verify"
	default:
		return "unknown"
	}
}

// fault is a one-shot behavior armed for the next call of one export.
type fault struct {
	status   *int32
	trap     error
	panicMsg string
}

type faults struct {
	mu sync.Mutex

	next [opCount]fault

	// allocBudget is the number of mallocs that still succeed before one
	// fails; negative disarms.
	allocBudget int
	allocArmed  bool

	sigLen      uint32
	sigLenArmed bool
}

func (f *faults) take(op Op) fault {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.next[op]
	f.next[op] = fault{}
	return out
}

func (f *faults) allocFails() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.allocArmed {
		return false
	}
	if f.allocBudget > 0 {
		f.allocBudget--
		return false
	}
	f.allocArmed = false
	return true
}

func (f *faults) takeSignatureLength() (uint32, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.sigLenArmed {
		return 0, false
	}
	f.sigLenArmed = false
	return f.sigLen, true
}

// FailAllocAfter makes malloc return 0 once, after n further successful
// allocations. A negative n disarms it.
func (m *Module) FailAllocAfter(n int) {
	m.faults.mu.Lock()
	defer m.faults.mu.Unlock()
	m.faults.allocArmed = n >= 0
	m.faults.allocBudget = n
}

// ForceStatus makes the next call of op return status without doing any
// work. It applies to the keypair, sign and verify exports.
func (m *Module) ForceStatus(op Op, status int32) {
	m.faults.mu.Lock()
	defer m.faults.mu.Unlock()
	m.faults.next[op].status = &status
}

// ForceSignatureLength makes the next successful sign report n in the length
// cell instead of the real signature length.
func (m *Module) ForceSignatureLength(n uint32) {
	m.faults.mu.Lock()
	defer m.faults.mu.Unlock()
	m.faults.sigLen = n
	m.faults.sigLenArmed = true
}

// PanicOnNext makes the next call of op panic with msg.
func (m *Module) PanicOnNext(op Op, msg string) {
	m.faults.mu.Lock()
	defer m.faults.mu.Unlock()
	if msg == "" {
		msg = "softmod: injected panic in " + op.String()
	}
	m.faults.next[op].panicMsg = msg
}

// TrapOnNext makes the next call of op fail with err, the way a WebAssembly
// trap surfaces from wazero.
func (m *Module) TrapOnNext(op Op, err error) {
	m.faults.mu.Lock()
	defer m.faults.mu.Unlock()
	if err == nil {
		err = ErrTrap
	}
	m.faults.next[op].trap = err
}
