package camera

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abworrall/ambient-viewer/pkg/ecolor"
	"github.com/abworrall/ambient-viewer/pkg/live"
)

const DefaultCaptureInterval = 1000 * time.Millisecond

type Permission int

const (
	PermissionUninitialized Permission = iota
	PermissionNeeded
	PermissionInitialized
)

func (p Permission) String() string {
	switch p {
	case PermissionNeeded:
		return "NEED_PERMISSION"
	case PermissionInitialized:
		return "INITIALIZED"
	}
	return "UNINITIALIZED"
}

type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StateSessionConfiguring
	StateSessionReady
	StateCapturing
)

func (s State) String() string {
	return [...]string{"CLOSED", "OPENING", "OPEN", "SESSION_CONFIGURING", "SESSION_READY", "CAPTURING"}[s]
}

type NoticeKind int

const (
	NoticeOpenFailed NoticeKind = iota
	NoticeConfigureFailed
	NoticeCaptureFailed
	NoticeDisconnected
	NoticeError
)

func (k NoticeKind) String() string {
	return [...]string{"open failed", "configure failed", "capture failed", "disconnected", "error"}[k]
}

// A Notice is a transient hardware failure, for showing to the user. None of
// them are retried automatically.
type Notice struct {
	CameraID string
	Kind     NoticeKind
	Err      error
}

func (n Notice) String() string {
	if n.Err == nil {
		return fmt.Sprintf("camera %s: %s", n.CameraID, n.Kind)
	}
	return fmt.Sprintf("camera %s: %s: %v", n.CameraID, n.Kind, n.Err)
}

type Options struct {
	Interval time.Duration // between captures, DefaultCaptureInterval if zero
	Format   PixelFormat   // of the sentinel surface, FormatYUV420 if zero
}

// Feed keeps one capture session open against the selected camera, and
// captures a throwaway frame from it every Interval to read back the colour
// calibration.
//
// The exported methods are for the main executor. All hardware callbacks
// and the session state machine run on a dedicated camera worker.
type Feed struct {
	Permission    *live.Value[Permission]
	State         *live.Value[State]
	CurrentCamera *live.Value[string]
	ColorInfo     *live.Value[ecolor.ColorInfo]
	Notices       *live.Value[*live.Event[Notice]]

	log    *slog.Logger
	worker *live.Worker
	opts   Options

	mu        sync.Mutex
	manager   Manager
	sessionID string

	resumed bool // main only

	// Owned by the worker
	attempt uint64
	state   State
	device  Device
	session Session
	surface *sentinelSurface
	request Request
	timer   *live.Timer
}

func NewFeed(main live.Executor, log *slog.Logger, opts Options) *Feed {
	if log == nil {
		log = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultCaptureInterval
	}
	if opts.Format == 0 {
		opts.Format = FormatYUV420
	}
	return &Feed{
		Permission:    live.NewValueOf(main, PermissionUninitialized),
		State:         live.NewValueOf(main, StateClosed),
		CurrentCamera: live.NewValue[string](main),
		ColorInfo:     live.NewValueOf(main, ecolor.IdentityColorInfo()),
		Notices:       live.NewValue[*live.Event[Notice]](main),
		log:           log,
		worker:        live.NewWorker("camera"),
		opts:          opts,
	}
}

// Initialize checks camera access; it does nothing once access is granted.
func (f *Feed) Initialize(m Manager) {
	if f.Permission.Value() == PermissionInitialized {
		return
	}
	if err := m.CheckAccess(); err != nil {
		f.log.Warn("camera: no access", "err", err)
		f.Permission.Set(PermissionNeeded)
		return
	}

	f.mu.Lock()
	f.manager = m
	f.mu.Unlock()
	f.Permission.Set(PermissionInitialized)
}

func (f *Feed) getManager() Manager {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.manager
}

// CameraList is empty until Initialize has succeeded.
func (f *Feed) CameraList() []string {
	m := f.getManager()
	if m == nil {
		return nil
	}
	ids, err := m.CameraIDs()
	if err != nil {
		f.log.Warn("camera: list failed", "err", err)
		return nil
	}
	return ids
}

func (f *Feed) Characteristics(id string) (Characteristics, error) {
	m := f.getManager()
	if m == nil {
		return Characteristics{}, ErrNotInitialized
	}
	return m.Characteristics(id)
}

// SessionID identifies the currently configured session, or is empty.
func (f *Feed) SessionID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessionID
}

// SelectCamera switches to the camera; an empty id means none. If the feed
// is resumed, any open session is fully closed before the new camera is
// opened.
func (f *Feed) SelectCamera(id string) {
	f.CurrentCamera.Set(id)
	if !f.resumed {
		return
	}
	f.worker.Do(f.stopListener)
	f.worker.Execute(func() { f.startListener(id) })
}

func (f *Feed) Resume() {
	if f.resumed {
		return
	}
	f.resumed = true
	id := f.CurrentCamera.Value()
	f.worker.Execute(func() { f.startListener(id) })
}

// Pause closes the session and device; it returns once they are closed.
func (f *Feed) Pause() {
	if !f.resumed {
		return
	}
	f.resumed = false
	f.worker.Do(f.stopListener)
}

// Close pauses the feed and stops its worker.
func (f *Feed) Close() {
	f.Pause()
	f.worker.Close()
}

func (f *Feed) setState(s State) {
	if f.state == s {
		return
	}
	f.log.Debug("camera: state", "from", f.state, "to", s)
	f.state = s
	f.State.Post(s)
}

func (f *Feed) notify(id string, kind NoticeKind, err error) {
	n := Notice{CameraID: id, Kind: kind, Err: err}
	f.log.Warn("camera: "+kind.String(), "camera", id, "err", err)
	f.Notices.Post(live.NewEvent(n))
}

func (f *Feed) startListener(id string) {
	if id == "" {
		return
	}
	m := f.getManager()
	if m == nil {
		f.notify(id, NoticeOpenFailed, ErrNotInitialized)
		return
	}

	f.attempt++
	f.setState(StateOpening)
	f.log.Info("camera: opening", "camera", id)
	if err := m.Open(id, &deviceCallback{f: f, attempt: f.attempt}, f.worker); err != nil {
		f.notify(id, NoticeOpenFailed, err)
		f.setState(StateClosed)
	}
}

// stopListener releases the session and device. The capture timer is
// stopped first, so no capture can fire against a closed device.
func (f *Feed) stopListener() {
	f.attempt++

	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	if f.session != nil {
		f.session.Close()
		f.session = nil
	}
	if f.device != nil {
		f.log.Info("camera: closing", "camera", f.device.ID())
		f.device.Close()
		f.device = nil
	}
	f.surface = nil

	f.mu.Lock()
	f.sessionID = ""
	f.mu.Unlock()

	f.setState(StateClosed)
}

func (f *Feed) onOpened(d Device) {
	m := f.getManager()
	chars, err := m.Characteristics(d.ID())
	if err != nil {
		f.notify(d.ID(), NoticeConfigureFailed, err)
		f.stopListener()
		return
	}

	size, err := smallestSize(chars.OutputSizes[f.opts.Format])
	if err != nil {
		f.notify(d.ID(), NoticeConfigureFailed, fmt.Errorf("%w %s", err, f.opts.Format))
		f.stopListener()
		return
	}

	f.surface = newSentinelSurface(size, f.opts.Format, f.worker)
	f.setState(StateSessionConfiguring)
	f.log.Debug("camera: configuring session", "camera", d.ID(), "size", size)

	cb := &sessionCallback{f: f, attempt: f.attempt, device: d}
	if err := d.CreateSession([]Surface{f.surface}, cb, f.worker); err != nil {
		f.notify(d.ID(), NoticeConfigureFailed, err)
		f.stopListener()
	}
}

func smallestSize(sizes []Size) (Size, error) {
	if len(sizes) == 0 {
		return Size{}, ErrNoOutputSizes
	}
	return slices.MinFunc(sizes, func(a, b Size) int { return a.Width - b.Width }), nil
}

func (f *Feed) onConfigured(s Session) {
	id := uuid.NewString()
	f.session = s
	f.request = Request{
		Template:    TemplatePreview,
		Targets:     []Surface{f.surface},
		Control:     ControlAuto,
		AWB:         ControlAuto,
		Antibanding: ControlAuto,
		Flash:       false,
	}

	f.mu.Lock()
	f.sessionID = id
	f.mu.Unlock()

	f.log.Info("camera: session configured", "camera", f.device.ID(), "session", id)
	f.setState(StateSessionReady)
	f.scheduleCapture()
}

func (f *Feed) scheduleCapture() {
	if f.session == nil {
		return
	}
	s := f.session
	f.timer = f.worker.ExecuteAfter(f.opts.Interval, func() { f.captureFrame(s) })
}

func (f *Feed) captureFrame(s Session) {
	f.timer = nil
	if f.session != s || s.Device() != f.device {
		return // session already closed
	}

	f.setState(StateCapturing)
	if err := s.Capture(f.request, &captureCallback{f: f}, f.worker); err != nil {
		f.notify(f.device.ID(), NoticeCaptureFailed, err)
		f.setState(StateSessionReady)
	}
}

type deviceCallback struct {
	f       *Feed
	attempt uint64
}

func (cb *deviceCallback) OnOpened(d Device) {
	f := cb.f
	if cb.attempt != f.attempt {
		f.log.Debug("camera: closing stale open", "camera", d.ID())
		d.Close()
		return
	}
	f.device = d
	f.setState(StateOpen)
	f.onOpened(d)
}

func (cb *deviceCallback) OnDisconnected(d Device) {
	f := cb.f
	switch {
	case f.device != nil && f.device == d:
		f.notify(d.ID(), NoticeDisconnected, nil)
		f.stopListener()
	case f.device == nil && cb.attempt == f.attempt:
		// Lost while opening
		f.notify(idOf(d), NoticeDisconnected, nil)
		cb.closeUnowned(d)
		f.setState(StateClosed)
	default:
		cb.closeUnowned(d)
	}
}

func (cb *deviceCallback) OnError(d Device, err error) {
	f := cb.f
	switch {
	case f.device != nil && f.device == d:
		f.notify(d.ID(), NoticeError, err)
		f.stopListener()
	case f.device == nil && cb.attempt == f.attempt:
		// Failed while opening
		f.notify(idOf(d), NoticeOpenFailed, err)
		cb.closeUnowned(d)
		f.setState(StateClosed)
	default:
		cb.closeUnowned(d)
	}
}

// closeUnowned closes a device handle the feed never adopted, so that
// callbacks for abandoned or failed opens still release it.
func (cb *deviceCallback) closeUnowned(d Device) {
	if d == nil {
		return
	}
	cb.f.log.Debug("camera: closing stale device", "camera", d.ID())
	d.Close()
}

func (cb *deviceCallback) OnClosed(d Device) {
	if cb.f.device == d {
		cb.f.device = nil
	}
}

func idOf(d Device) string {
	if d == nil {
		return ""
	}
	return d.ID()
}

type sessionCallback struct {
	f       *Feed
	attempt uint64
	device  Device
}

func (cb *sessionCallback) OnConfigured(s Session) {
	if cb.attempt != cb.f.attempt || cb.f.device != cb.device {
		s.Close()
		return
	}
	cb.f.onConfigured(s)
}

func (cb *sessionCallback) OnConfigureFailed(err error) {
	if cb.attempt != cb.f.attempt {
		return
	}
	cb.f.notify(cb.device.ID(), NoticeConfigureFailed, err)
	cb.f.stopListener()
}

type captureCallback struct {
	f *Feed
}

func (cb *captureCallback) OnCaptureCompleted(s Session, res CaptureResult) {
	f := cb.f
	if f.session != s {
		return // closed while the capture was in flight
	}
	ci := res.ColorInfo()
	f.log.Debug("camera: captured", "session", f.SessionID(), "colorinfo", ci)
	f.ColorInfo.Post(ci)
	f.setState(StateSessionReady)
	f.scheduleCapture()
}

func (cb *captureCallback) OnCaptureFailed(s Session, err error) {
	f := cb.f
	if f.session != s {
		return
	}
	f.notify(f.device.ID(), NoticeCaptureFailed, err)
	f.setState(StateSessionReady)
}

// sentinelSurface drops every frame unread; only the capture metadata is
// of interest.
type sentinelSurface struct {
	size   Size
	format PixelFormat
	exec   live.Executor
}

func newSentinelSurface(size Size, format PixelFormat, exec live.Executor) *sentinelSurface {
	return &sentinelSurface{size: size, format: format, exec: exec}
}

func (s *sentinelSurface) Size() Size          { return s.size }
func (s *sentinelSurface) Format() PixelFormat { return s.format }
func (s *sentinelSurface) Queue(fr Frame)      { s.exec.Execute(fr.Close) }
