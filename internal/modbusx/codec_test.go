package modbusx

import (
	"math"
	"testing"

	"hil-scheduler/internal/model"
)

func endpoint(byteOrder model.ByteOrder, wordOrder model.WordOrder) model.ModbusEndpoint {
	return model.ModbusEndpoint{ByteOrder: byteOrder, WordOrder: wordOrder}
}

func TestRoundTripInt16(t *testing.T) {
	ep := endpoint(model.ByteOrderBig, model.WordOrderMSWFirst)
	spec := model.PointSpec{Format: model.FormatInt16, EngPerCount: 0.1}
	for _, v := range []float64{0, 12.3, -45.6, 3276.7, -3276.8} {
		words, err := Encode(ep, spec, v)
		if err != nil {
			t.Fatalf("encode(%v): %v", v, err)
		}
		got, err := Decode(ep, spec, words)
		if err != nil {
			t.Fatalf("decode(%v): %v", v, err)
		}
		if math.Abs(got-v) > spec.EngPerCount {
			t.Errorf("round trip %v: got %v", v, got)
		}
	}
}

func TestRoundTripFloat32(t *testing.T) {
	ep := endpoint(model.ByteOrderBig, model.WordOrderMSWFirst)
	spec := model.PointSpec{Format: model.FormatFloat32, EngPerCount: 1.0}
	words, err := Encode(ep, spec, 1234.5)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(ep, spec, words)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-1234.5) > 0.01 {
		t.Errorf("got %v", got)
	}
}

func TestRoundTripUint32WordOrders(t *testing.T) {
	spec := model.PointSpec{Format: model.FormatUint32, EngPerCount: 1.0}
	for _, wo := range []model.WordOrder{model.WordOrderMSWFirst, model.WordOrderLSWFirst} {
		ep := endpoint(model.ByteOrderBig, wo)
		words, err := Encode(ep, spec, 70000)
		if err != nil {
			t.Fatal(err)
		}
		got, err := Decode(ep, spec, words)
		if err != nil {
			t.Fatal(err)
		}
		if got != 70000 {
			t.Errorf("word order %v: got %v", wo, got)
		}
	}
}

func TestDecodeWrongWordCount(t *testing.T) {
	ep := endpoint(model.ByteOrderBig, model.WordOrderMSWFirst)
	spec := model.PointSpec{Format: model.FormatInt32, EngPerCount: 1.0}
	if _, err := Decode(ep, spec, []uint16{1}); err == nil {
		t.Fatal("expected error for wrong word count")
	}
}
