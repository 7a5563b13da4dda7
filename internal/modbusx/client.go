package modbusx

import (
	"fmt"
	"time"

	"github.com/simonvetter/modbus"

	"hil-scheduler/internal/model"
)

// Client is a thin wrapper around a Modbus/TCP client scoped to one plant
// endpoint, used by the scheduler, sampler, and control engine. Each
// owning agent holds its own Client; clients are never shared across
// goroutines (spec §5).
type Client struct {
	endpoint model.ModbusEndpoint
	client   *modbus.Client
}

// Dial opens a Modbus/TCP connection to the endpoint.
func Dial(ep model.ModbusEndpoint, timeout time.Duration) (*Client, error) {
	c, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", ep.Host, ep.Port),
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("modbusx: new client: %w", err)
	}
	if err := c.Open(); err != nil {
		return nil, fmt.Errorf("modbusx: open %s:%d: %w", ep.Host, ep.Port, err)
	}
	return &Client{endpoint: ep, client: c}, nil
}

// Close releases the underlying TCP connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// ReadPoint reads and decodes one named point.
func (c *Client) ReadPoint(name model.PointName) (float64, error) {
	spec, ok := c.endpoint.Points[name]
	if !ok {
		return 0, fmt.Errorf("modbusx: unknown point %q", name)
	}
	words, err := c.client.ReadRegisters(spec.Address, uint16(spec.Format.WordCount()), modbus.HOLDING_REGISTER)
	if err != nil {
		return 0, fmt.Errorf("modbusx: read %q: %w", name, err)
	}
	return Decode(c.endpoint, spec, words)
}

// WritePoint encodes and writes one named point.
func (c *Client) WritePoint(name model.PointName, value float64) error {
	spec, ok := c.endpoint.Points[name]
	if !ok {
		return fmt.Errorf("modbusx: unknown point %q", name)
	}
	words, err := Encode(c.endpoint, spec, value)
	if err != nil {
		return err
	}
	return c.client.WriteRegisters(spec.Address, words)
}

// Endpoint returns the endpoint this client is connected to.
func (c *Client) Endpoint() model.ModbusEndpoint {
	return c.endpoint
}
