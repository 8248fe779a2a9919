package overlay

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"

	"overlaysync/internal/domain"
)

const defaultCaptureQuality = 90

type CaptureOptions struct {
	// CommentsOnly puts the overlay on a black background instead of the
	// video frame.
	CommentsOnly bool
	// Quality is the JPEG quality, 1..100. Zero selects the default.
	Quality int
}

// composite draws the base layer (video frame or black) at the surface
// size and the overlay layer on top of it.
func composite(overlay image.Image, size image.Point, frame image.Image, commentsOnly bool) (*image.RGBA, error) {
	if size.X <= 0 || size.Y <= 0 {
		if overlay == nil {
			return nil, domain.ErrNoVideoFrame
		}
		size = overlay.Bounds().Size()
	}
	canvas := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))

	if commentsOnly {
		xdraw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, xdraw.Src)
	} else {
		if frame == nil || frame.Bounds().Empty() {
			return nil, domain.ErrNoVideoFrame
		}
		xdraw.ApproxBiLinear.Scale(canvas, canvas.Bounds(), frame, frame.Bounds(), xdraw.Src, nil)
	}

	if overlay != nil {
		xdraw.Draw(canvas, canvas.Bounds(), overlay, overlay.Bounds().Min, xdraw.Over)
	}
	return canvas, nil
}

func capture(overlay image.Image, size image.Point, frame image.Image, opts CaptureOptions) ([]byte, error) {
	canvas, err := composite(overlay, size, frame, opts.CommentsOnly)
	if err != nil {
		return nil, err
	}
	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = defaultCaptureQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
