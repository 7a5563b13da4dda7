package emulator

import "testing"

func TestLimitActivePowerSOCChargeBound(t *testing.T) {
	// Capacity 100 kWh, currently at 99 kWh, requesting -50kW charge for 1h
	// would overshoot to 149kWh: must clamp to exactly fill capacity.
	pActual, limited := limitActivePowerSOC(99, 100, -50, 1.0)
	if !limited {
		t.Fatal("expected limiting")
	}
	if pActual != -1 {
		t.Fatalf("expected p_actual=-1 (fills remaining 1kWh), got %v", pActual)
	}
}

func TestLimitActivePowerSOCDischargeBound(t *testing.T) {
	// SoC at 1kWh, requesting 50kW discharge for 1h would go negative.
	pActual, limited := limitActivePowerSOC(1, 100, 50, 1.0)
	if !limited {
		t.Fatal("expected limiting")
	}
	if pActual != 1 {
		t.Fatalf("expected p_actual=1 (drains remaining 1kWh), got %v", pActual)
	}
}

func TestLimitActivePowerSOCWithinBounds(t *testing.T) {
	pActual, limited := limitActivePowerSOC(50, 100, 10, 1.0)
	if limited {
		t.Fatal("should not be limited")
	}
	if pActual != 10 {
		t.Fatalf("expected unchanged p_actual, got %v", pActual)
	}
}

func TestLimitActivePowerSOCNeverExceedsBounds(t *testing.T) {
	capacity := 50.0
	for _, soc := range []float64{0, 10, 25, 49, 50} {
		for _, req := range []float64{-1000, -10, 0, 10, 1000} {
			pActual, _ := limitActivePowerSOC(soc, capacity, req, 1.0)
			future := soc - pActual*1.0
			if future < -1e-6 || future > capacity+1e-6 {
				t.Fatalf("soc=%v req=%v: future_soc=%v out of bounds", soc, req, future)
			}
		}
	}
}
