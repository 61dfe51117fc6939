// Package camera samples the colour calibration a camera's auto white
// balance settles on. It drives the capture session state machine against
// a hardware abstraction (Manager, Device, Session) and publishes gains and
// the colour correction matrix as ecolor.ColorInfo.
package camera

import (
	"errors"
	"fmt"

	"github.com/abworrall/ambient-viewer/pkg/ecolor"
	"github.com/abworrall/ambient-viewer/pkg/live"
)

var (
	ErrNoSuchCamera     = errors.New("camera: no such camera")
	ErrPermissionDenied = errors.New("camera: permission denied")
	ErrNotInitialized   = errors.New("camera: not initialized")
	ErrDeviceClosed     = errors.New("camera: device closed")
	ErrSessionClosed    = errors.New("camera: session closed")
	ErrNoOutputSizes    = errors.New("camera: no output sizes for format")
)

type PixelFormat int

const (
	FormatYUV420 PixelFormat = iota + 1
	FormatJPEG
	FormatRaw
)

func (f PixelFormat) String() string {
	switch f {
	case FormatYUV420:
		return "YUV_420_888"
	case FormatJPEG:
		return "JPEG"
	case FormatRaw:
		return "RAW_SENSOR"
	}
	return fmt.Sprintf("PixelFormat(%d)", int(f))
}

type Size struct {
	Width, Height int
}

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

type Facing int

const (
	FacingBack Facing = iota
	FacingFront
	FacingExternal
)

func (f Facing) String() string {
	switch f {
	case FacingFront:
		return "front"
	case FacingExternal:
		return "external"
	}
	return "back"
}

type Characteristics struct {
	ID          string
	Facing      Facing
	OutputSizes map[PixelFormat][]Size
}

// Manager is the entry point to the camera hardware. Open is asynchronous:
// the outcome arrives on cb, via exec.
type Manager interface {
	CheckAccess() error
	CameraIDs() ([]string, error)
	Characteristics(id string) (Characteristics, error)
	Open(id string, cb DeviceCallback, exec live.Executor) error
}

type DeviceCallback interface {
	OnOpened(d Device)
	OnDisconnected(d Device)
	OnError(d Device, err error)
	OnClosed(d Device)
}

type Device interface {
	ID() string
	CreateSession(outputs []Surface, cb SessionCallback, exec live.Executor) error
	Close()
}

type SessionCallback interface {
	OnConfigured(s Session)
	OnConfigureFailed(err error)
}

type Session interface {
	Device() Device
	Capture(req Request, cb CaptureCallback, exec live.Executor) error
	Close()
}

type CaptureCallback interface {
	OnCaptureCompleted(s Session, res CaptureResult)
	OnCaptureFailed(s Session, err error)
}

// A Surface receives the image data of each captured frame.
type Surface interface {
	Size() Size
	Format() PixelFormat
	Queue(f Frame)
}

// A Frame holds a hardware buffer until it is closed.
type Frame interface {
	Size() Size
	Close()
}

type ControlMode int

const (
	ControlOff ControlMode = iota
	ControlAuto
)

type Template int

const (
	TemplatePreview Template = iota
	TemplateStillCapture
)

type Request struct {
	Template    Template
	Targets     []Surface
	Control     ControlMode
	AWB         ControlMode
	Antibanding ControlMode
	Flash       bool
}

type RggbGains struct {
	R, GEven, GOdd, B float64
}

// CaptureResult is the metadata of one completed capture.
type CaptureResult struct {
	Gains     RggbGains
	Transform [9]ecolor.Rational
}

func (cr CaptureResult) ColorInfo() ecolor.ColorInfo {
	return ecolor.ColorInfo{
		Gains:  ecolor.Gains{R: cr.Gains.R, G: cr.Gains.GEven, B: cr.Gains.B},
		Matrix: ecolor.ColorMatrixFromRationals(cr.Transform),
	}
}

// IdentityTransform is the colour correction matrix of a neutral capture.
func IdentityTransform() [9]ecolor.Rational {
	one, zero := ecolor.R(1, 1), ecolor.R(0, 1)
	return [9]ecolor.Rational{
		one, zero, zero,
		zero, one, zero,
		zero, zero, one,
	}
}
