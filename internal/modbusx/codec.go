// Package modbusx encodes and decodes engineering values to/from Modbus
// holding registers, and wraps github.com/simonvetter/modbus into the
// client/server roles the dispatch scheduler needs.
package modbusx

import (
	"fmt"
	"math"

	"hil-scheduler/internal/model"
)

// Encode converts an engineering value into raw holding-register words,
// using the point's format, eng_per_count scale, and the endpoint's byte
// and word order.
func Encode(ep model.ModbusEndpoint, spec model.PointSpec, value float64) ([]uint16, error) {
	switch spec.Format {
	case model.FormatInt16:
		count := int16(math.Round(value / spec.EngPerCount))
		return []uint16{orderBytes(uint16(count), ep.ByteOrder)}, nil
	case model.FormatUint16:
		count := uint16(math.Round(value / spec.EngPerCount))
		return []uint16{orderBytes(count, ep.ByteOrder)}, nil
	case model.FormatInt32:
		count := int32(math.Round(value / spec.EngPerCount))
		return orderWords(uint32(count), ep), nil
	case model.FormatUint32:
		count := uint32(math.Round(value / spec.EngPerCount))
		return orderWords(count, ep), nil
	case model.FormatFloat32:
		bits := math.Float32bits(float32(value / spec.EngPerCount))
		return orderWords(bits, ep), nil
	default:
		return nil, fmt.Errorf("modbusx: unknown point format %q", spec.Format)
	}
}

// Decode converts raw holding-register words back into an engineering value.
func Decode(ep model.ModbusEndpoint, spec model.PointSpec, words []uint16) (float64, error) {
	if len(words) != spec.Format.WordCount() {
		return 0, fmt.Errorf("modbusx: expected %d words for format %q, got %d", spec.Format.WordCount(), spec.Format, len(words))
	}
	switch spec.Format {
	case model.FormatInt16:
		raw := int16(orderBytes(words[0], ep.ByteOrder))
		return float64(raw) * spec.EngPerCount, nil
	case model.FormatUint16:
		raw := orderBytes(words[0], ep.ByteOrder)
		return float64(raw) * spec.EngPerCount, nil
	case model.FormatInt32:
		raw := int32(unorderWords(words, ep))
		return float64(raw) * spec.EngPerCount, nil
	case model.FormatUint32:
		raw := unorderWords(words, ep)
		return float64(raw) * spec.EngPerCount, nil
	case model.FormatFloat32:
		raw := unorderWords(words, ep)
		return float64(math.Float32frombits(raw)) * spec.EngPerCount, nil
	default:
		return 0, fmt.Errorf("modbusx: unknown point format %q", spec.Format)
	}
}

// orderBytes swaps the high/low byte of a single register when the
// endpoint declares little-endian byte order within the register.
func orderBytes(v uint16, order model.ByteOrder) uint16 {
	if order == model.ByteOrderLittle {
		return v<<8 | v>>8
	}
	return v
}

// orderWords splits a 32-bit value into two registers in the endpoint's
// configured word order (MSW-first by default, LSW-first if configured).
func orderWords(v uint32, ep model.ModbusEndpoint) []uint16 {
	hi := orderBytes(uint16(v>>16), ep.ByteOrder)
	lo := orderBytes(uint16(v&0xFFFF), ep.ByteOrder)
	if ep.WordOrder == model.WordOrderLSWFirst {
		return []uint16{lo, hi}
	}
	return []uint16{hi, lo}
}

// unorderWords is the inverse of orderWords.
func unorderWords(words []uint16, ep model.ModbusEndpoint) uint32 {
	w0 := orderBytes(words[0], ep.ByteOrder)
	w1 := orderBytes(words[1], ep.ByteOrder)
	if ep.WordOrder == model.WordOrderLSWFirst {
		return uint32(w1)<<16 | uint32(w0)
	}
	return uint32(w0)<<16 | uint32(w1)
}
