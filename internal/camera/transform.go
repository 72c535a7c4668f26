package camera

import "image"

// NormalizeRotation maps anything other than 90, 180 or 270 to 0
func NormalizeRotation(deg int) int {
	switch deg {
	case 90, 180, 270:
		return deg
	default:
		return 0
	}
}

// FlipVertical returns img mirrored top to bottom
func FlipVertical(img *image.RGBA) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	rowBytes := w * 4
	for y := 0; y < h; y++ {
		src := img.Pix[img.PixOffset(b.Min.X, b.Max.Y-1-y):]
		copy(out.Pix[y*out.Stride:y*out.Stride+rowBytes], src[:rowBytes])
	}
	return out
}

// Rotate returns img turned clockwise by deg. 90 and 270 swap the width and
// height; 0 returns img itself.
func Rotate(img *image.RGBA, deg int) *image.RGBA {
	deg = NormalizeRotation(deg)
	if deg == 0 {
		return img
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	var out *image.RGBA
	if deg == 180 {
		out = image.NewRGBA(image.Rect(0, 0, w, h))
	} else {
		out = image.NewRGBA(image.Rect(0, 0, h, w))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch deg {
			case 90:
				dx, dy = h-1-y, x
			case 180:
				dx, dy = w-1-x, h-1-y
			case 270:
				dx, dy = y, w-1-x
			}
			si := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			di := out.PixOffset(dx, dy)
			copy(out.Pix[di:di+4], img.Pix[si:si+4])
		}
	}
	return out
}

// Apply runs the fixed transform chain on img: vertical flip when flip is
// set, then the camera's own rotation, then the requested one
func Apply(img *image.RGBA, flip bool, intrinsic, requested int) *image.RGBA {
	if flip {
		img = FlipVertical(img)
	}
	img = Rotate(img, intrinsic)
	return Rotate(img, requested)
}
