package modbusx

import (
	"sync"

	"hil-scheduler/internal/model"
)

// RegisterFile is an in-memory, concurrency-safe holding-register table
// backing the plant emulator's Modbus/TCP server. The emulator loop and
// the server's request handler share one RegisterFile instance; no
// network loopback is involved for local reads/writes.
type RegisterFile struct {
	mu   sync.RWMutex
	regs map[uint16]uint16
}

// NewRegisterFile returns an empty RegisterFile.
func NewRegisterFile() *RegisterFile {
	return &RegisterFile{regs: make(map[uint16]uint16)}
}

// ReadWords returns `count` consecutive registers starting at address.
func (r *RegisterFile) ReadWords(address uint16, count int) []uint16 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uint16, count)
	for i := 0; i < count; i++ {
		out[i] = r.regs[address+uint16(i)]
	}
	return out
}

// WriteWords stores consecutive registers starting at address.
func (r *RegisterFile) WriteWords(address uint16, words []uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, w := range words {
		r.regs[address+uint16(i)] = w
	}
}

// ReadPoint decodes the engineering value currently stored for spec.
func (r *RegisterFile) ReadPoint(ep model.ModbusEndpoint, spec model.PointSpec) float64 {
	words := r.ReadWords(spec.Address, spec.Format.WordCount())
	v, _ := Decode(ep, spec, words)
	return v
}

// WritePoint encodes and stores an engineering value for spec.
func (r *RegisterFile) WritePoint(ep model.ModbusEndpoint, spec model.PointSpec, value float64) error {
	words, err := Encode(ep, spec, value)
	if err != nil {
		return err
	}
	r.WriteWords(spec.Address, words)
	return nil
}
