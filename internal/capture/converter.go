package capture

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Converter rescales decoded frames to the session's output size in RGBA.
// The destination image and any repacking scratch space are allocated once
// and reused for every frame.
type Converter struct {
	src    Size
	format PixelFormat
	dst    Size

	scaler draw.Interpolator
	out    *image.RGBA

	// scratch for formats image/draw cannot read directly
	ycc  *image.YCbCr
	rgba *image.RGBA
}

// NewConverter builds a converter from src/format to dst
func NewConverter(src Size, format PixelFormat, dst Size) (*Converter, error) {
	if src.IsZero() {
		return nil, fmt.Errorf("invalid source size %s", src)
	}
	if dst.IsZero() {
		dst = src
	}

	c := &Converter{
		src:    src,
		format: format,
		dst:    dst,
		scaler: draw.ApproxBiLinear,
		out:    image.NewRGBA(image.Rect(0, 0, dst.Width, dst.Height)),
	}

	rect := image.Rect(0, 0, src.Width, src.Height)
	switch format {
	case PixelFormatI420, PixelFormatRGBA:
	case PixelFormatNV12:
		c.ycc = image.NewYCbCr(rect, image.YCbCrSubsampleRatio420)
	case PixelFormatRGB24, PixelFormatBGR24:
		c.rgba = image.NewRGBA(rect)
	default:
		return nil, fmt.Errorf("unsupported pixel format %s", format)
	}

	return c, nil
}

// SourceSize returns the frame size the converter accepts
func (c *Converter) SourceSize() Size { return c.src }

// SourceFormat returns the pixel format the converter accepts
func (c *Converter) SourceFormat() PixelFormat { return c.format }

// TargetSize returns the output size
func (c *Converter) TargetSize() Size { return c.dst }

// Convert scales f into the converter's reusable RGBA buffer. The returned
// image is overwritten by the next call; use ToOutputImage to keep it.
func (c *Converter) Convert(f Frame) (*image.RGBA, error) {
	if f.Size() != c.src || f.Format != c.format {
		return nil, fmt.Errorf("%w: got %s %s, want %s %s", ErrFormatChanged, f.Size(), f.Format, c.src, c.format)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	src, err := c.wrap(f)
	if err != nil {
		return nil, err
	}

	if c.src == c.dst {
		draw.Draw(c.out, c.out.Bounds(), src, src.Bounds().Min, draw.Src)
	} else {
		c.scaler.Scale(c.out, c.out.Bounds(), src, src.Bounds(), draw.Src, nil)
	}
	return c.out, nil
}

// ToOutputImage copies converted pixels into a newly allocated image owned
// by the caller. Rows are copied one at a time so source padding never leaks
// into the tightly packed destination.
func (c *Converter) ToOutputImage(converted *image.RGBA) *image.RGBA {
	return copyRGBA(converted)
}

func copyRGBA(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	rowBytes := b.Dx() * 4
	if rowBytes > out.Stride {
		rowBytes = out.Stride
	}
	for y := 0; y < b.Dy(); y++ {
		so := src.PixOffset(b.Min.X, b.Min.Y+y)
		end := so + rowBytes
		if end > len(src.Pix) {
			end = len(src.Pix)
		}
		copy(out.Pix[y*out.Stride:], src.Pix[so:end])
	}
	return out
}

func (c *Converter) wrap(f Frame) (image.Image, error) {
	rect := image.Rect(0, 0, f.Width, f.Height)

	switch f.Format {
	case PixelFormatI420:
		if f.Strides[1] != f.Strides[2] {
			return nil, fmt.Errorf("I420 chroma strides differ: %d != %d", f.Strides[1], f.Strides[2])
		}
		return &image.YCbCr{
			Y:              f.Planes[0],
			Cb:             f.Planes[1],
			Cr:             f.Planes[2],
			YStride:        f.Strides[0],
			CStride:        f.Strides[1],
			SubsampleRatio: image.YCbCrSubsampleRatio420,
			Rect:           rect,
		}, nil

	case PixelFormatRGBA:
		return &image.RGBA{Pix: f.Planes[0], Stride: f.Strides[0], Rect: rect}, nil

	case PixelFormatNV12:
		for y := 0; y < f.Height; y++ {
			copy(c.ycc.Y[y*c.ycc.YStride:y*c.ycc.YStride+f.Width], f.Planes[0][y*f.Strides[0]:])
		}
		cw, ch := (f.Width+1)/2, (f.Height+1)/2
		for y := 0; y < ch; y++ {
			row := f.Planes[1][y*f.Strides[1]:]
			cb := c.ycc.Cb[y*c.ycc.CStride:]
			cr := c.ycc.Cr[y*c.ycc.CStride:]
			for x := 0; x < cw; x++ {
				cb[x] = row[2*x]
				cr[x] = row[2*x+1]
			}
		}
		return c.ycc, nil

	case PixelFormatRGB24, PixelFormatBGR24:
		ri, bi := 0, 2
		if f.Format == PixelFormatBGR24 {
			ri, bi = 2, 0
		}
		for y := 0; y < f.Height; y++ {
			in := f.Planes[0][y*f.Strides[0]:]
			out := c.rgba.Pix[y*c.rgba.Stride:]
			for x := 0; x < f.Width; x++ {
				out[4*x] = in[3*x+ri]
				out[4*x+1] = in[3*x+1]
				out[4*x+2] = in[3*x+bi]
				out[4*x+3] = 0xff
			}
		}
		return c.rgba, nil
	}

	return nil, fmt.Errorf("unsupported pixel format %s", f.Format)
}
