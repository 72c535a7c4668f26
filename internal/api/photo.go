package api

import (
	"image"

	"golang.org/x/image/draw"
)

// FaceDetector finds face rectangles in an image
type FaceDetector interface {
	Detect(img image.Image) ([]image.Rectangle, error)
}

// PhotoOptions sizes the portrait served by /takephoto
type PhotoOptions struct {
	Width  int
	Height int
	Margin int
}

// DefaultPhotoOptions is a 3:4 720x960 portrait with a 200px margin
func DefaultPhotoOptions() PhotoOptions {
	return PhotoOptions{Width: 720, Height: 960, Margin: 200}
}

// LargestFace returns the widest rectangle; on ties the later one wins
func LargestFace(faces []image.Rectangle) (image.Rectangle, bool) {
	if len(faces) == 0 {
		return image.Rectangle{}, false
	}
	best := faces[0]
	for _, f := range faces[1:] {
		if best.Dx() <= f.Dx() {
			best = f
		}
	}
	return best, true
}

// PortraitRect grows face by the margin, caps it at the output size, forces
// it to the output aspect ratio, centres it on the face and shifts it back
// inside frame
func PortraitRect(face, frame image.Rectangle, opts PhotoOptions) image.Rectangle {
	ratio := float64(opts.Width) / float64(opts.Height)

	w := float64(min(face.Dx()+opts.Margin, opts.Width))
	h := float64(min(face.Dy()+opts.Margin, opts.Height))
	if w/h < ratio {
		h = w / ratio
	} else {
		w = h * ratio
	}

	fw, fh := float64(frame.Dx()), float64(frame.Dy())
	if w > fw {
		w, h = fw, fw/ratio
	}
	if h > fh {
		h, w = fh, fh*ratio
	}

	iw, ih := int(w), int(h)
	if iw <= 0 || ih <= 0 {
		return frame
	}

	center := image.Pt((face.Min.X+face.Max.X)/2, (face.Min.Y+face.Max.Y)/2)
	x := clampInt(center.X-iw/2, frame.Min.X, frame.Max.X-iw)
	y := clampInt(center.Y-ih/2, frame.Min.Y, frame.Max.Y-ih)
	return image.Rect(x, y, x+iw, y+ih)
}

func clampInt(v, lo, hi int) int {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}

// Portrait crops img around its largest face and resizes the result to the
// output size. Without a detector or a face the whole frame is resized.
func Portrait(img *image.RGBA, detector FaceDetector, opts PhotoOptions) (*image.RGBA, error) {
	crop := img.Bounds()
	if detector != nil {
		faces, err := detector.Detect(img)
		if err != nil {
			return nil, err
		}
		if face, ok := LargestFace(faces); ok {
			crop = PortraitRect(face, img.Bounds(), opts)
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, crop, draw.Src, nil)
	return dst, nil
}
