package modbusx

import (
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
)

// Server is a Modbus/TCP server backed by a RegisterFile. The plant
// emulator owns one Server per plant and mutates the RegisterFile
// directly from its simulation loop; the server only answers remote
// holding-register reads/writes from schedulers and samplers.
type Server struct {
	file   *RegisterFile
	server *modbus.Server
}

// NewServer starts listening on host:port, serving holding-register
// reads/writes against file.
func NewServer(host string, port int, file *RegisterFile) (*Server, error) {
	s := &Server{file: file}
	srv, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:        fmt.Sprintf("tcp://%s:%d", host, port),
		Timeout:    10 * time.Second,
		MaxClients: 8,
	}, s)
	if err != nil {
		return nil, fmt.Errorf("modbusx: new server: %w", err)
	}
	s.server = srv
	if err := srv.Start(); err != nil {
		return nil, fmt.Errorf("modbusx: start server: %w", err)
	}
	return s, nil
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	return s.server.Stop()
}

// HandleCoils is unused; the point map only uses holding registers.
func (s *Server) HandleCoils(req *modbus.CoilsRequest) (res []bool, err error) {
	return nil, modbus.ErrIllegalFunction
}

// HandleDiscreteInputs is unused; the point map only uses holding registers.
func (s *Server) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) (res []bool, err error) {
	return nil, modbus.ErrIllegalFunction
}

// HandleInputRegisters is unused; the point map only uses holding registers.
func (s *Server) HandleInputRegisters(req *modbus.InputRegistersRequest) (res []uint16, err error) {
	return nil, modbus.ErrIllegalFunction
}

// HandleHoldingRegisters serves reads and writes against the shared
// RegisterFile.
func (s *Server) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) (res []uint16, err error) {
	addr := req.Addr
	count := int(req.Quantity)
	if req.IsWrite {
		s.file.WriteWords(addr, req.Args)
		return nil, nil
	}
	return s.file.ReadWords(addr, count), nil
}
