// Package im2col unrolls sliding windows of a multi-channel feature map into
// matrix columns, and scatters such columns back (the adjoint transform).
//
// Layout of the column matrix for an image with C channels and a winH × winW
// window:
//
//	row    = ch*winH*winW + kr*winW + kc   (channel-major, then window row, then window col)
//	column = wr*outCols + wc               (window position, row-major)
//
// Positions that fall into the zero padding read as 0 in Im2Col and are
// discarded by Col2Im.
package im2col

import (
	"github.com/born-ml/convnet/internal/geometry"
	"github.com/born-ml/convnet/internal/tensor"
)

// Layout captures the derived sizes of one transform.
type Layout struct {
	Channels   int
	InRows     int
	InCols     int
	WinH       int
	WinW       int
	OutRows    int // windows along the vertical axis
	OutCols    int // windows along the horizontal axis
	Stride     geometry.StrideGeometry
	Pad        geometry.PadGeometry
	ColRows    int // Channels*WinH*WinW
	ColColumns int // OutRows*OutCols
}

// NewLayout validates img against the window geometry and derives the sizes
// of the column matrix.
func NewLayout(img tensor.Image, winH, winW int, stride geometry.StrideGeometry, pad geometry.PadGeometry) (Layout, error) {
	if err := img.Validate(); err != nil {
		return Layout{}, err
	}
	rows, cols := img[0].Rows(), img[0].Cols()
	return LayoutFor(len(img), rows, cols, winH, winW, stride, pad)
}

// LayoutFor derives the layout from explicit sizes.
func LayoutFor(channels, rows, cols, winH, winW int, stride geometry.StrideGeometry, pad geometry.PadGeometry) (Layout, error) {
	if channels <= 0 {
		return Layout{}, tensor.Mismatch("im2col", "no channels")
	}
	outRows, outCols, err := geometry.OutputSize(rows, cols, winH, winW, stride, pad)
	if err != nil {
		return Layout{}, tensor.Mismatch("im2col", "%v", err)
	}
	return Layout{
		Channels:   channels,
		InRows:     rows,
		InCols:     cols,
		WinH:       winH,
		WinW:       winW,
		OutRows:    outRows,
		OutCols:    outCols,
		Stride:     stride,
		Pad:        pad,
		ColRows:    channels * winH * winW,
		ColColumns: outRows * outCols,
	}, nil
}

func (l Layout) checkColumns(op string, m *tensor.Matrix) error {
	if m.Rows() != l.ColRows || m.Cols() != l.ColColumns {
		return tensor.Mismatch(op, "column matrix is %v, want [%d %d]", m.Shape(), l.ColRows, l.ColColumns)
	}
	return nil
}

func (l Layout) checkImage(op string, img tensor.Image) error {
	if err := img.Validate(); err != nil {
		return err
	}
	if len(img) != l.Channels || img[0].Rows() != l.InRows || img[0].Cols() != l.InCols {
		return tensor.Mismatch(op, "image is %v, want [%d %d %d]", img.Shape(), l.Channels, l.InRows, l.InCols)
	}
	return nil
}

// Im2Col writes every window of src into dst, one window per column.
//
// dst must be Channels*winH*winW × outRows*outCols; every element of dst is
// overwritten.
func Im2Col(dst *tensor.Matrix, src tensor.Image, winH, winW int, stride geometry.StrideGeometry, pad geometry.PadGeometry) error {
	l, err := NewLayout(src, winH, winW, stride, pad)
	if err != nil {
		return err
	}
	return l.Im2Col(dst, src)
}

// Im2Col runs the transform with a precomputed layout.
func (l Layout) Im2Col(dst *tensor.Matrix, src tensor.Image) error {
	if err := l.checkImage("im2col", src); err != nil {
		return err
	}
	if err := l.checkColumns("im2col", dst); err != nil {
		return err
	}

	out := dst.Data()
	n := l.ColColumns
	row := 0
	for ch := 0; ch < l.Channels; ch++ {
		in := src[ch].Data()
		for kr := 0; kr < l.WinH; kr++ {
			for kc := 0; kc < l.WinW; kc++ {
				dstRow := out[row*n : (row+1)*n]
				col := 0
				for wr := 0; wr < l.OutRows; wr++ {
					r := wr*l.Stride.StepRow - l.Pad.Top + kr
					if r < 0 || r >= l.InRows {
						clear(dstRow[col : col+l.OutCols])
						col += l.OutCols
						continue
					}
					inRow := in[r*l.InCols : (r+1)*l.InCols]
					for wc := 0; wc < l.OutCols; wc++ {
						c := wc*l.Stride.StepCol - l.Pad.Left + kc
						if c < 0 || c >= l.InCols {
							dstRow[col] = 0
						} else {
							dstRow[col] = inRow[c]
						}
						col++
					}
				}
				row++
			}
		}
	}
	return nil
}

// Col2Im scatter-adds every column of src back into the window positions of
// dst. It is the linear adjoint of Im2Col: overlapping windows accumulate and
// padded positions are dropped. dst is not cleared first.
func Col2Im(dst tensor.Image, src *tensor.Matrix, winH, winW int, stride geometry.StrideGeometry, pad geometry.PadGeometry) error {
	l, err := NewLayout(dst, winH, winW, stride, pad)
	if err != nil {
		return err
	}
	return l.Col2Im(dst, src)
}

// Col2Im runs the adjoint transform with a precomputed layout.
func (l Layout) Col2Im(dst tensor.Image, src *tensor.Matrix) error {
	if err := l.checkImage("col2im", dst); err != nil {
		return err
	}
	if err := l.checkColumns("col2im", src); err != nil {
		return err
	}

	cols := src.Data()
	n := l.ColColumns
	row := 0
	for ch := 0; ch < l.Channels; ch++ {
		out := dst[ch].Data()
		for kr := 0; kr < l.WinH; kr++ {
			for kc := 0; kc < l.WinW; kc++ {
				srcRow := cols[row*n : (row+1)*n]
				col := 0
				for wr := 0; wr < l.OutRows; wr++ {
					r := wr*l.Stride.StepRow - l.Pad.Top + kr
					if r < 0 || r >= l.InRows {
						col += l.OutCols
						continue
					}
					outRow := out[r*l.InCols : (r+1)*l.InCols]
					for wc := 0; wc < l.OutCols; wc++ {
						c := wc*l.Stride.StepCol - l.Pad.Left + kc
						if c >= 0 && c < l.InCols {
							outRow[c] += srcRow[col]
						}
						col++
					}
				}
				row++
			}
		}
	}
	return nil
}
