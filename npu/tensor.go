// Package npu runs quantized YOLOv8 models compiled for the Rockchip NPU.
//
// The runtime binding needs the rknnrt library and is only built with the
// rknn build tag.  Tensor decoding, core selection and CPU affinity are plain
// Go and available on every platform.
package npu

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable is returned when the binary was built without NPU support
var ErrUnavailable = errors.New("npu support not built, rebuild with -tags rknn")

// Core selects the NPU cores a model runs on.  Values match rknn_core_mask
type Core int

const (
	CoreAuto    Core = 0
	Core0       Core = 1
	Core1       Core = 2
	Core2       Core = 4
	Core01      Core = 3
	Core012     Core = 7
	SkipSetCore Core = 9999
)

// ParseCore converts a core name such as "auto", "0", "1", "2", "0_1" or
// "0_1_2" into a Core.  "skip" leaves the mask unset, which is needed on
// chips with a single NPU core
func ParseCore(s string) (Core, error) {

	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return CoreAuto, nil
	case "0":
		return Core0, nil
	case "1":
		return Core1, nil
	case "2":
		return Core2, nil
	case "0_1":
		return Core01, nil
	case "0_1_2":
		return Core012, nil
	case "skip":
		return SkipSetCore, nil
	}

	return CoreAuto, fmt.Errorf("unknown npu core %q", s)
}

// ErrorCode is a status code returned by the rknn C API
type ErrorCode int

const (
	Success                ErrorCode = 0
	ErrFail                ErrorCode = -1
	ErrTimeout             ErrorCode = -2
	ErrDeviceUnavailable   ErrorCode = -3
	ErrMallocFail          ErrorCode = -4
	ErrParamInvalid        ErrorCode = -5
	ErrModelInvalid        ErrorCode = -6
	ErrCtxInvalid          ErrorCode = -7
	ErrInputInvalid        ErrorCode = -8
	ErrOutputInvalid       ErrorCode = -9
	ErrDeviceMismatch      ErrorCode = -10
	ErrPreCompiledModel    ErrorCode = -11
	ErrOptimizationVersion ErrorCode = -12
	ErrPlatformMismatch    ErrorCode = -13
)

// String returns a readable description of the error code
func (e ErrorCode) String() string {
	switch e {
	case Success:
		return "execution successful"
	case ErrFail:
		return "execution failed"
	case ErrTimeout:
		return "execution timed out"
	case ErrDeviceUnavailable:
		return "device is unavailable"
	case ErrMallocFail:
		return "C memory allocation failed"
	case ErrParamInvalid:
		return "parameter is invalid"
	case ErrModelInvalid:
		return "model file is invalid"
	case ErrCtxInvalid:
		return "context is invalid"
	case ErrInputInvalid:
		return "input is invalid"
	case ErrOutputInvalid:
		return "output is invalid"
	case ErrDeviceMismatch:
		return "device mismatch, please update rknn sdk and npu driver/firmware"
	case ErrPreCompiledModel:
		return "the model uses pre_compile mode, but is not compatible with current driver"
	case ErrOptimizationVersion:
		return "the model optimization level is not compatible with current driver"
	case ErrPlatformMismatch:
		return "the model target platform is not compatible with the current platform"
	default:
		return fmt.Sprintf("unknown error code %d", int(e))
	}
}

// callError formats a failed C API call
func callError(call string, code int) error {
	return fmt.Errorf("%s failed with code %d, error: %s", call, code, ErrorCode(code))
}

// TensorType is the element type of a tensor, matching rknn_tensor_type
type TensorType int

const (
	TensorFloat32 TensorType = iota
	TensorFloat16
	TensorInt8
	TensorUint8
	TensorInt16
	TensorUint16
	TensorInt32
	TensorUint32
	TensorInt64
	TensorBool
	TensorInt4
)

var tensorTypeNames = []string{"FP32", "FP16", "INT8", "UINT8", "INT16",
	"UINT16", "INT32", "UINT32", "INT64", "BOOL", "INT4"}

func (t TensorType) String() string {

	if t < 0 || int(t) >= len(tensorTypeNames) {
		return "UNKNOWN"
	}

	return tensorTypeNames[t]
}

// TensorFormat is the memory layout of a tensor, matching rknn_tensor_format
type TensorFormat int

const (
	TensorNCHW TensorFormat = iota
	TensorNHWC
	TensorNC1HWC2
	TensorUndefined
)

func (f TensorFormat) String() string {
	switch f {
	case TensorNCHW:
		return "NCHW"
	case TensorNHWC:
		return "NHWC"
	case TensorNC1HWC2:
		return "NC1HWC2"
	default:
		return "UNDEFINED"
	}
}

// TensorAttr describes a model input or output tensor
type TensorAttr struct {
	Index  uint32
	Name   string
	Dims   []uint32
	NElems uint32
	Size   uint32
	Fmt    TensorFormat
	Type   TensorType
	ZP     int32
	Scale  float32
}

// String returns the attributes in the layout printed by the rknn tools
func (a TensorAttr) String() string {

	dims := make([]string, len(a.Dims))

	for i, d := range a.Dims {
		dims[i] = fmt.Sprint(d)
	}

	return fmt.Sprintf("index=%d, name=%s, n_dims=%d, dims=[%s], n_elems=%d, size=%d, fmt=%s, type=%s, zp=%d, scale=%f",
		a.Index, a.Name, len(a.Dims), strings.Join(dims, ", "), a.NElems, a.Size,
		a.Fmt, a.Type, a.ZP, a.Scale)
}

// Tensor is an output tensor copied out of the runtime.  Quantized outputs
// fill Int8, float outputs fill Float
type Tensor struct {
	Dims  []uint32
	Int8  []int8
	Float []float32
	ZP    int32
	Scale float32
}

// at returns element i as a float, dequantizing int8 data
func (t Tensor) at(i int) float32 {

	if t.Float != nil {
		return t.Float[i]
	}

	return deqnt(t.Int8[i], t.ZP, t.Scale)
}

// dim returns dimension n or 0 when the tensor has fewer dimensions
func (t Tensor) dim(n int) int {

	if n >= len(t.Dims) {
		return 0
	}

	return int(t.Dims[n])
}

// deqnt converts an affine quantized int8 to float32
func deqnt(q int8, zp int32, scale float32) float32 {
	return (float32(q) - float32(zp)) * scale
}

// qnt converts a float32 to an affine quantized int8, saturating at the int8
// range
func qnt(f float32, zp int32, scale float32) int8 {

	v := f/scale + float32(zp)

	if v <= -128 {
		return -128
	}

	if v >= 127 {
		return 127
	}

	return int8(v)
}
