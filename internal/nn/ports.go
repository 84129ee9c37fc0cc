package nn

import "github.com/born-ml/convnet/internal/tensor"

// imageInputShape validates a connected image port and returns [n, c, h, w].
func imageInputShape(layer string, in *ImagePort) (tensor.Shape, error) {
	if in == nil {
		return nil, configError(layer, "", "input not connected")
	}
	if err := in.Value.Validate(); err != nil {
		return nil, configError(layer, "", "empty or inconsistent input: %v", err)
	}
	shape := in.Value.Shape()
	if in.Grad != nil && !in.Grad.Shape().Equal(shape) {
		return nil, configError(layer, "", "input gradient %v does not match input %v", in.Grad.Shape(), shape)
	}
	return shape, nil
}

// flatInputShape validates a connected flat port and returns its dimensions.
func flatInputShape(layer string, in *FlatPort) (int, int, error) {
	if in == nil || in.Value == nil {
		return 0, 0, configError(layer, "", "input not connected")
	}
	rows, cols := in.Value.Rows(), in.Value.Cols()
	if rows == 0 || cols == 0 {
		return 0, 0, configError(layer, "", "empty input %dx%d", rows, cols)
	}
	if in.Grad != nil && !in.Grad.SameShape(in.Value) {
		return 0, 0, configError(layer, "", "input gradient %v does not match input %v", in.Grad.Shape(), in.Value.Shape())
	}
	return rows, cols, nil
}
