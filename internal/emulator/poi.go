package emulator

import (
	"math"
	"math/cmplx"
)

// poiModelConstants are the plant-emulator-internal POI model constants;
// defaultPOIConstants holds the values the emulator uses.
// Per spec.md §9 open question (c), these are not threaded through
// internal/config; they stay internal defaults.
type poiModelConstants struct {
	PowerFactor float64
	ResistanceOhm float64
	ReactanceOhm  float64
}

var defaultPOIConstants = poiModelConstants{
	PowerFactor:   0.98,
	ResistanceOhm: 0.02,
	ReactanceOhm:  0.05,
}

// calculatePOIPower derives the point-of-interconnection real/reactive
// power and line-to-line voltage from the battery's actual P/Q, modeling
// a three-phase series R+jX impedance drop between the battery terminals
// and the POI. Grounded on original_source/plant_agent.py's
// calculate_poi_power (which uses Python's cmath for the same derivation).
func calculatePOIPower(pActualKW, qActualKVAr, poiVoltageKV float64, c poiModelConstants) (pPOIKW, qPOIKVAr, vPOIKV float64) {
	if poiVoltageKV <= 0 {
		poiVoltageKV = 1
	}
	vNominalV := poiVoltageKV * 1000
	vPhase := complex(vNominalV/math.Sqrt(3), 0)

	sTotalVA := complex(pActualKW*1000, qActualKVAr*1000)
	sPerPhase := sTotalVA / complex(3, 0)

	// S = V * conj(I)  =>  I = conj(S / V)
	iPhase := cmplx.Conj(sPerPhase / vPhase)

	z := complex(c.ResistanceOhm, c.ReactanceOhm)
	vDrop := iPhase * z
	vPOIPhase := vPhase - vDrop

	sLossPerPhase := iPhase * cmplx.Conj(iPhase) * z
	pLossKW := real(sLossPerPhase) * 3 / 1000
	qLossKVAr := imag(sLossPerPhase) * 3 / 1000

	pPOIKW = pActualKW - pLossKW
	qPOIKVAr = qActualKVAr - qLossKVAr
	vPOIKV = cmplx.Abs(vPOIPhase) * math.Sqrt(3) / 1000
	return
}
