package policy

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/danielpatrickdp/policy-eval/internal/window"
	"google.golang.org/protobuf/types/known/structpb"
)

// Tensors cross the wire as {"shape": [...], "dtype": "...", "data": base64}.
const (
	dtypeUint8   = "uint8"
	dtypeFloat32 = "float32"
	dtypeBool    = "bool"
)

// #region encode
func shapeList(shape []int) []interface{} {
	out := make([]interface{}, len(shape))
	for i, d := range shape {
		out[i] = d
	}
	return out
}

func imageTensorValue(t window.Tensor) map[string]interface{} {
	return map[string]interface{}{
		"shape": shapeList(t.Shape),
		"dtype": dtypeUint8,
		"data":  t.Data,
	}
}

func maskValue(mask [][]bool) map[string]interface{} {
	rows := len(mask)
	cols := 0
	if rows > 0 {
		cols = len(mask[0])
	}
	data := make([]byte, 0, rows*cols)
	for _, row := range mask {
		for _, v := range row {
			if v {
				data = append(data, 1)
			} else {
				data = append(data, 0)
			}
		}
	}
	return map[string]interface{}{
		"shape": shapeList([]int{rows, cols}),
		"dtype": dtypeBool,
		"data":  data,
	}
}

// FloatTensorValue encodes a float32 tensor as little-endian bytes.
func FloatTensorValue(shape []int, data []float32) map[string]interface{} {
	buf := make([]byte, len(data)*4)
	for i, f := range data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return map[string]interface{}{
		"shape": shapeList(shape),
		"dtype": dtypeFloat32,
		"data":  buf,
	}
}

func observationValue(obs window.Observation) map[string]interface{} {
	return map[string]interface{}{
		"image_primary":     imageTensorValue(obs.ImagePrimary),
		"image_wrist":       imageTensorValue(obs.ImageWrist),
		"timestep_pad_mask": maskValue(obs.TimestepPadMask),
	}
}

// #endregion encode

// #region decode
// decodeShape reads the "shape" list of an encoded tensor.
func decodeShape(s *structpb.Struct) ([]int, error) {
	v, ok := s.GetFields()["shape"]
	if !ok {
		return nil, fmt.Errorf("tensor missing shape")
	}
	vals := v.GetListValue().GetValues()
	shape := make([]int, len(vals))
	for i, d := range vals {
		f := d.GetNumberValue()
		if f < 0 || f != math.Trunc(f) {
			return nil, fmt.Errorf("invalid dimension %v", f)
		}
		shape[i] = int(f)
	}
	return shape, nil
}

func decodeBytes(s *structpb.Struct) ([]byte, error) {
	v, ok := s.GetFields()["data"]
	if !ok {
		return nil, fmt.Errorf("tensor missing data")
	}
	data, err := base64.StdEncoding.DecodeString(v.GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("decode tensor data: %w", err)
	}
	return data, nil
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// DecodeFloatTensor decodes a float32 tensor written by FloatTensorValue.
func DecodeFloatTensor(s *structpb.Struct) ([]int, []float32, error) {
	if s == nil {
		return nil, nil, fmt.Errorf("nil tensor")
	}
	if dt := s.GetFields()["dtype"].GetStringValue(); dt != dtypeFloat32 {
		return nil, nil, fmt.Errorf("tensor dtype %q, want %s", dt, dtypeFloat32)
	}
	shape, err := decodeShape(s)
	if err != nil {
		return nil, nil, err
	}
	raw, err := decodeBytes(s)
	if err != nil {
		return nil, nil, err
	}
	n := numElements(shape)
	if len(raw) != n*4 {
		return nil, nil, fmt.Errorf("tensor data is %d bytes, shape %v needs %d", len(raw), shape, n*4)
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return shape, out, nil
}

// decodeImageTensor decodes a uint8 tensor written by imageTensorValue.
func decodeImageTensor(s *structpb.Struct) (window.Tensor, error) {
	if s == nil {
		return window.Tensor{}, fmt.Errorf("nil tensor")
	}
	shape, err := decodeShape(s)
	if err != nil {
		return window.Tensor{}, err
	}
	raw, err := decodeBytes(s)
	if err != nil {
		return window.Tensor{}, err
	}
	if len(raw) != numElements(shape) {
		return window.Tensor{}, fmt.Errorf("tensor data is %d bytes, shape %v needs %d", len(raw), shape, numElements(shape))
	}
	return window.Tensor{Shape: shape, Data: raw}, nil
}

func floatList(v *structpb.Value) []float32 {
	vals := v.GetListValue().GetValues()
	out := make([]float32, len(vals))
	for i, x := range vals {
		out[i] = float32(x.GetNumberValue())
	}
	return out
}

func boolList(v *structpb.Value) []bool {
	vals := v.GetListValue().GetValues()
	out := make([]bool, len(vals))
	for i, x := range vals {
		out[i] = x.GetBoolValue()
	}
	return out
}

// #endregion decode
