package walb

import (
	"sync"

	"github.com/cybozu-go/walb/internal/device"
)

// MockDevice wraps internal/device.MemDevice with call-tracking and fault
// injection, for tests that exercise the public API without a real log
// or data device.
type MockDevice struct {
	inner *device.MemDevice

	mu         sync.Mutex
	readCalls  int
	writeCalls int
	syncCalls  int
	failReads  bool
	failWrites bool
}

// NewMockDevice creates a mock device of the given size in bytes.
func NewMockDevice(size int64) *MockDevice {
	return &MockDevice{inner: device.NewMemDevice(size)}
}

func (m *MockDevice) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	m.readCalls++
	fail := m.failReads
	m.mu.Unlock()
	if fail {
		return 0, NewError("mock.read", "device", CodeIO, "injected read failure")
	}
	return m.inner.ReadAt(p, off)
}

func (m *MockDevice) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	m.writeCalls++
	fail := m.failWrites
	m.mu.Unlock()
	if fail {
		return 0, NewError("mock.write", "device", CodeIO, "injected write failure")
	}
	return m.inner.WriteAt(p, off)
}

func (m *MockDevice) Size() int64 { return m.inner.Size() }

func (m *MockDevice) Sync() error {
	m.mu.Lock()
	m.syncCalls++
	m.mu.Unlock()
	return m.inner.Sync()
}

func (m *MockDevice) Close() error { return m.inner.Close() }

func (m *MockDevice) Discard(offset, length int64) error {
	return m.inner.Discard(offset, length)
}

// FailReads toggles injected read failures, for exercising the I/O error
// propagation policy (§7) in tests.
func (m *MockDevice) FailReads(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failReads = fail
}

// FailWrites toggles injected write failures.
func (m *MockDevice) FailWrites(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = fail
}

// CallCounts returns the number of times each method has been called.
func (m *MockDevice) CallCounts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]int{
		"read":  m.readCalls,
		"write": m.writeCalls,
		"sync":  m.syncCalls,
	}
}

var (
	_ device.Device         = (*MockDevice)(nil)
	_ device.DiscardDevice  = (*MockDevice)(nil)
)
