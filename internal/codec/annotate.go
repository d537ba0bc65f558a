package codec

import (
	"image"
	"image/color"
	stddraw "image/draw"

	"signstream/internal/detector"
)

// Marker colors per landmark group.
var (
	handColor = color.RGBA{R: 0, G: 220, B: 90, A: 255}
	faceColor = color.RGBA{R: 80, G: 160, B: 255, A: 255}
	poseColor = color.RGBA{R: 255, G: 170, B: 0, A: 255}
)

// markerRadius is the half-size in pixels of each landmark marker.
const markerRadius = 2

// Annotate draws landmark markers onto a copy of img. Landmark coordinates
// are normalized to the frame, so they are scaled by the image bounds. The
// input image is never mutated.
func Annotate(img image.Image, res *detector.Result) image.Image {
	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)
	stddraw.Draw(dst, bounds, img, bounds.Min, stddraw.Src)

	if res == nil {
		return dst
	}

	for i := range res.Hands {
		for _, p := range res.Hands[i].Points {
			drawMarker(dst, p, handColor)
		}
	}
	if res.Face != nil {
		for _, p := range res.Face.Points {
			drawMarker(dst, p, faceColor)
		}
	}
	if res.Pose != nil {
		for _, p := range res.Pose.Points {
			drawMarker(dst, p, poseColor)
		}
	}

	return dst
}

func drawMarker(dst *image.RGBA, p detector.Point3D, c color.RGBA) {
	bounds := dst.Bounds()
	cx := bounds.Min.X + int(p.X*float64(bounds.Dx()))
	cy := bounds.Min.Y + int(p.Y*float64(bounds.Dy()))

	for y := cy - markerRadius; y <= cy+markerRadius; y++ {
		for x := cx - markerRadius; x <= cx+markerRadius; x++ {
			if image.Pt(x, y).In(bounds) {
				dst.SetRGBA(x, y, c)
			}
		}
	}
}
