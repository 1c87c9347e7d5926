//go:build rknn

package npu

/*
#cgo LDFLAGS: -lrknnrt
#include "rknn_api.h"
#include <stdlib.h>
*/
import "C"
import (
	"fmt"
	"io"
	"os"
	"strings"
	"unsafe"

	"gocv.io/x/gocv"
)

// runtime is a loaded model bound to an rknn context
type runtime struct {
	ctx     C.rknn_context
	inputs  []TensorAttr
	outputs []TensorAttr
}

// openRuntime loads the model file and caches its tensor attributes
func openRuntime(modelFile string, core Core) (*runtime, error) {

	info, err := os.Stat(modelFile)

	if err != nil {
		return nil, fmt.Errorf("model file does not exist at %s, error: %w", modelFile, err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("model file %s is a directory", modelFile)
	}

	r := &runtime{}

	cModelFile := C.CString(modelFile)
	defer C.free(unsafe.Pointer(cModelFile))

	if ret := C.rknn_init(&r.ctx, unsafe.Pointer(cModelFile), 0, 0, nil); ret != C.RKNN_SUCC {
		return nil, callError("C.rknn_init", int(ret))
	}

	// the core mask is only supported on multi core chips like the rk3588
	if core != SkipSetCore {
		if ret := C.rknn_set_core_mask(r.ctx, C.rknn_core_mask(core)); ret != C.RKNN_SUCC {
			r.Close()
			return nil, callError("C.rknn_set_core_mask", int(ret))
		}
	}

	var num C.rknn_input_output_num

	ret := C.rknn_query(r.ctx, C.RKNN_QUERY_IN_OUT_NUM, unsafe.Pointer(&num),
		C.uint(C.sizeof_rknn_input_output_num))

	if ret != C.RKNN_SUCC {
		r.Close()
		return nil, callError("C.rknn_query RKNN_QUERY_IN_OUT_NUM", int(ret))
	}

	if r.inputs, err = r.queryAttrs(C.RKNN_QUERY_INPUT_ATTR, uint32(num.n_input)); err != nil {
		r.Close()
		return nil, err
	}

	if r.outputs, err = r.queryAttrs(C.RKNN_QUERY_OUTPUT_ATTR, uint32(num.n_output)); err != nil {
		r.Close()
		return nil, err
	}

	return r, nil
}

// queryAttrs reads the attributes of n input or output tensors
func (r *runtime) queryAttrs(cmd C.rknn_query_cmd, n uint32) ([]TensorAttr, error) {

	attrs := make([]TensorAttr, n)

	for i := range attrs {

		var cAttr C.rknn_tensor_attr
		cAttr.index = C.uint32_t(i)

		ret := C.rknn_query(r.ctx, cmd, unsafe.Pointer(&cAttr), C.uint(unsafe.Sizeof(cAttr)))

		if ret != C.RKNN_SUCC {
			return nil, callError("C.rknn_query tensor attr", int(ret))
		}

		attrs[i] = convertTensorAttr(&cAttr)
	}

	return attrs, nil
}

// convertTensorAttr copies a C tensor attribute into Go memory
func convertTensorAttr(cAttr *C.rknn_tensor_attr) TensorAttr {

	name := C.GoBytes(unsafe.Pointer(&cAttr.name[0]), C.int(C.RKNN_MAX_NAME_LEN))

	if n := strings.IndexByte(string(name), 0); n != -1 {
		name = name[:n]
	}

	dims := make([]uint32, int(cAttr.n_dims))

	for i := range dims {
		dims[i] = uint32(cAttr.dims[i])
	}

	return TensorAttr{
		Index:  uint32(cAttr.index),
		Name:   string(name),
		Dims:   dims,
		NElems: uint32(cAttr.n_elems),
		Size:   uint32(cAttr.size),
		Fmt:    TensorFormat(cAttr.fmt),
		Type:   TensorType(cAttr._type),
		ZP:     int32(cAttr.zp),
		Scale:  float32(cAttr.scale),
	}
}

// sdkVersion returns the driver and API versions of the runtime
func (r *runtime) sdkVersion() (driver, api string, err error) {

	var ver C.rknn_sdk_version

	ret := C.rknn_query(r.ctx, C.RKNN_QUERY_SDK_VERSION, unsafe.Pointer(&ver),
		C.uint(C.sizeof_rknn_sdk_version))

	if ret != C.RKNN_SUCC {
		return "", "", callError("C.rknn_query RKNN_QUERY_SDK_VERSION", int(ret))
	}

	return C.GoString(&ver.drv_version[0]), C.GoString(&ver.api_version[0]), nil
}

// run feeds an RGB uint8 NHWC image through the model and returns copies of
// the raw output tensors.  The C buffers are released before returning
func (r *runtime) run(img gocv.Mat) ([]Tensor, error) {

	if !img.IsContinuous() {
		img = img.Clone()
		defer img.Close()
	}

	data, err := img.DataPtrUint8()

	if err != nil {
		return nil, fmt.Errorf("error getting data pointer to Mat: %w", err)
	}

	input := C.rknn_input{
		index: 0,
		buf:   unsafe.Pointer(&data[0]),
		size:  C.uint32_t(len(data)),
		_type: C.RKNN_TENSOR_UINT8,
		fmt:   C.RKNN_TENSOR_NHWC,
	}

	if ret := C.rknn_inputs_set(r.ctx, 1, &input); ret != C.RKNN_SUCC {
		return nil, callError("C.rknn_inputs_set", int(ret))
	}

	if ret := C.rknn_run(r.ctx, nil); ret != C.RKNN_SUCC {
		return nil, callError("C.rknn_run", int(ret))
	}

	cOutputs := make([]C.rknn_output, len(r.outputs))

	for i := range cOutputs {
		cOutputs[i].index = C.uint32_t(i)
		cOutputs[i].want_float = 0
	}

	ret := C.rknn_outputs_get(r.ctx, C.uint32_t(len(cOutputs)), &cOutputs[0], nil)

	if ret < 0 {
		return nil, callError("C.rknn_outputs_get", int(ret))
	}

	outs := make([]Tensor, len(cOutputs))

	for i, o := range cOutputs {

		attr := r.outputs[i]
		outs[i] = Tensor{Dims: attr.Dims, ZP: attr.ZP, Scale: attr.Scale}
		size := int(o.size)

		switch attr.Type {
		case TensorFloat16:
			outs[i].Float = halfToFloat(unsafe.Slice((*uint16)(o.buf), size/2))
		case TensorFloat32:
			outs[i].Float = append([]float32(nil), unsafe.Slice((*float32)(o.buf), size/4)...)
		default:
			outs[i].Int8 = append([]int8(nil), unsafe.Slice((*int8)(o.buf), size)...)
		}
	}

	if ret := C.rknn_outputs_release(r.ctx, C.uint32_t(len(cOutputs)), &cOutputs[0]); ret != C.RKNN_SUCC {
		return nil, callError("C.rknn_outputs_release", int(ret))
	}

	return outs, nil
}

// describe writes the SDK version and tensor attributes of the model
func (r *runtime) describe(w io.Writer) error {

	driver, api, err := r.sdkVersion()

	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Driver Version: %s, API Version: %s\n", driver, api)
	fmt.Fprintf(w, "Model Input Number: %d, Output Number: %d\n", len(r.inputs), len(r.outputs))
	fmt.Fprintf(w, "Input tensors:\n")

	for _, attr := range r.inputs {
		fmt.Fprintf(w, "  %s\n", attr)
	}

	fmt.Fprintf(w, "Output tensors:\n")

	for _, attr := range r.outputs {
		fmt.Fprintf(w, "  %s\n", attr)
	}

	return nil
}

// Close destroys the rknn context
func (r *runtime) Close() error {

	if ret := C.rknn_destroy(r.ctx); ret != C.RKNN_SUCC {
		return callError("C.rknn_destroy", int(ret))
	}

	return nil
}
