package viewer

import (
	"fmt"

	"github.com/abworrall/ambient-viewer/pkg/algorithm"
	"github.com/abworrall/ambient-viewer/pkg/imageio"
)

// State is the display lifecycle that the UI follows.
type State int

const (
	StateUninitialized State = iota // no image loaded
	StateLoading                    // import in flight
	StateProcessing                 // a render is in flight
	StateDisplaying
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "LOADING"
	case StateProcessing:
		return "PROCESSING"
	case StateDisplaying:
		return "DISPLAYING"
	}
	return "UNINITIALIZED"
}

// NotLoaded is true until an image has been decoded.
func (s State) NotLoaded() bool { return s == StateUninitialized || s == StateLoading }

type ImageKind int

const (
	ImageOriginal ImageKind = iota
	ImageWorking
)

func (k ImageKind) String() string {
	if k == ImageWorking {
		return "WORKING"
	}
	return "ORIGINAL"
}

// An Image is what the display shows. Parameters is nil for the original.
type Image struct {
	Kind       ImageKind
	Bitmap     *imageio.Bitmap
	Parameters *algorithm.Parameters
}

func (i *Image) String() string {
	if i.Parameters == nil {
		return fmt.Sprintf("%s %s", i.Kind, i.Bitmap)
	}
	return fmt.Sprintf("%s %s [%s]", i.Kind, i.Bitmap, i.Parameters)
}

// Event is one of the one-shot notifications for the UI.
type Event interface {
	isEvent()
}

type NonSrgbWarning struct{}

type UnsupportedFileType struct {
	MimeType string
}

type ReadError struct {
	Err error
}

type LightSensorParameterComputed struct {
	Parameter float64
}

func (NonSrgbWarning) isEvent()               {}
func (UnsupportedFileType) isEvent()          {}
func (ReadError) isEvent()                    {}
func (LightSensorParameterComputed) isEvent() {}
