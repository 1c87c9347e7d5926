package npu

import "github.com/x448/float16"

var f16LookupTable [65536]float32

func init() {
	// precompute every half precision value for fast output conversion
	for i := range f16LookupTable {
		f16LookupTable[i] = float16.Frombits(uint16(i)).Float32()
	}
}

// halfToFloat converts a buffer of IEEE 754 half precision bit patterns to
// float32
func halfToFloat(buf []uint16) []float32 {

	out := make([]float32, len(buf))

	for i, v := range buf {
		out[i] = f16LookupTable[v]
	}

	return out
}
