// Package facedetect finds faces with an OpenCV Haar cascade.
package facedetect

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// ErrNoCascade is returned when no cascade file was configured
var ErrNoCascade = errors.New("facedetect: no cascade file configured")

// Cascade detects faces with gocv.CascadeClassifier. The classifier is
// not safe for concurrent use, so Detect calls are serialized.
type Cascade struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
	closed     bool
}

// NewCascade loads the cascade XML at path
func NewCascade(path string) (*Cascade, error) {
	if path == "" {
		return nil, ErrNoCascade
	}
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load cascade %s", path)
	}
	return &Cascade{classifier: classifier}, nil
}

// Detect returns face rectangles in img coordinates
func (c *Cascade) Detect(img image.Image) ([]image.Rectangle, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorRGBToGray)
	gocv.EqualizeHist(gray, &gray)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("cascade closed")
	}

	rects := c.classifier.DetectMultiScale(gray)
	min := img.Bounds().Min
	for i := range rects {
		rects[i] = rects[i].Add(min)
	}
	return rects, nil
}

// Close releases the classifier
func (c *Cascade) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.classifier.Close()
}
