package camera

import (
	"fmt"
	"sort"
	"sync"

	"github.com/abworrall/ambient-viewer/pkg/live"
)

// SimCamera is one camera of a SimManager. Results are returned in order,
// the last one repeating. The errors, if set, make the matching step fail.
type SimCamera struct {
	ID          string
	Facing      Facing
	OutputSizes map[PixelFormat][]Size
	Results     []CaptureResult

	OpenErr      error
	ConfigureErr error
	CaptureErr   error

	DisconnectOnOpen bool // the device goes away before it finishes opening
}

func NewSimCamera(id string, results ...CaptureResult) *SimCamera {
	return &SimCamera{
		ID: id,
		OutputSizes: map[PixelFormat][]Size{
			FormatYUV420: {{1920, 1080}, {640, 480}, {320, 240}, {1280, 720}},
			FormatJPEG:   {{4032, 3024}},
		},
		Results: results,
	}
}

type SimStats struct {
	Opens           int
	OpenDevices     int
	OpenSessions    int
	MaxOpenSessions int
	Captures        int
	FramesClosed    int
	LastFrameSize   Size
}

// SimManager is an in-process Manager. It records what happened to it, so
// tests can check the hardware was driven correctly.
type SimManager struct {
	Denied bool

	mu      sync.Mutex
	cameras map[string]*SimCamera
	devices map[string]*simDevice
	stats   SimStats
	events  []string
}

func NewSimManager(cams ...*SimCamera) *SimManager {
	m := &SimManager{cameras: map[string]*SimCamera{}, devices: map[string]*simDevice{}}
	for _, c := range cams {
		m.cameras[c.ID] = c
	}
	return m
}

func (m *SimManager) Stats() SimStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Events is the log of opens, session creations and closes, in order.
func (m *SimManager) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

func (m *SimManager) event(format string, args ...interface{}) {
	m.events = append(m.events, fmt.Sprintf(format, args...))
}

func (m *SimManager) camera(id string) (*SimCamera, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cameras[id]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrNoSuchCamera, id)
	}
	return c, nil
}

func (m *SimManager) CheckAccess() error {
	if m.Denied {
		return ErrPermissionDenied
	}
	return nil
}

func (m *SimManager) CameraIDs() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.cameras))
	for id := range m.cameras {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *SimManager) Characteristics(id string) (Characteristics, error) {
	c, err := m.camera(id)
	if err != nil {
		return Characteristics{}, err
	}
	return Characteristics{ID: c.ID, Facing: c.Facing, OutputSizes: c.OutputSizes}, nil
}

func (m *SimManager) Open(id string, cb DeviceCallback, exec live.Executor) error {
	c, err := m.camera(id)
	if err != nil {
		return err
	}

	d := &simDevice{m: m, cam: c, cb: cb, exec: exec}
	if c.OpenErr != nil {
		d.closed = true
		exec.Execute(func() { cb.OnError(d, c.OpenErr) })
		return nil
	}

	m.mu.Lock()
	m.stats.Opens++
	m.stats.OpenDevices++
	m.devices[id] = d
	m.event("open %s", id)
	m.mu.Unlock()

	if c.DisconnectOnOpen {
		exec.Execute(func() { cb.OnDisconnected(d) })
		return nil
	}
	exec.Execute(func() { cb.OnOpened(d) })
	return nil
}

// Disconnect simulates the camera going away, e.g. taken by another app.
func (m *SimManager) Disconnect(id string) {
	m.mu.Lock()
	d := m.devices[id]
	m.mu.Unlock()
	if d != nil {
		d.exec.Execute(func() { d.cb.OnDisconnected(d) })
	}
}

type simDevice struct {
	m    *SimManager
	cam  *SimCamera
	cb   DeviceCallback
	exec live.Executor

	closed  bool // guarded by m.mu
	session *simSession
}

func (d *simDevice) ID() string { return d.cam.ID }

func (d *simDevice) CreateSession(outputs []Surface, cb SessionCallback, exec live.Executor) error {
	m := d.m
	m.mu.Lock()
	defer m.mu.Unlock()

	if d.closed {
		return ErrDeviceClosed
	}
	if d.cam.ConfigureErr != nil {
		err := d.cam.ConfigureErr
		exec.Execute(func() { cb.OnConfigureFailed(err) })
		return nil
	}

	if d.session != nil {
		d.session.closeLocked()
	}
	s := &simSession{d: d, outputs: outputs}
	d.session = s
	m.stats.OpenSessions++
	m.stats.MaxOpenSessions = max(m.stats.MaxOpenSessions, m.stats.OpenSessions)
	m.event("session %s", d.cam.ID)

	exec.Execute(func() { cb.OnConfigured(s) })
	return nil
}

func (d *simDevice) Close() {
	m := d.m
	m.mu.Lock()
	if d.closed {
		m.mu.Unlock()
		return
	}
	if d.session != nil {
		d.session.closeLocked()
	}
	d.closed = true
	m.stats.OpenDevices--
	if m.devices[d.cam.ID] == d {
		delete(m.devices, d.cam.ID)
	}
	m.event("close %s", d.cam.ID)
	m.mu.Unlock()

	d.exec.Execute(func() { d.cb.OnClosed(d) })
}

type simSession struct {
	d       *simDevice
	outputs []Surface
	closed  bool
	next    int
}

func (s *simSession) Device() Device { return s.d }

func (s *simSession) Close() {
	s.d.m.mu.Lock()
	defer s.d.m.mu.Unlock()
	s.closeLocked()
}

func (s *simSession) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	s.d.m.stats.OpenSessions--
	if s.d.session == s {
		s.d.session = nil
	}
}

func (s *simSession) Capture(req Request, cb CaptureCallback, exec live.Executor) error {
	m := s.d.m
	m.mu.Lock()
	if s.closed {
		m.mu.Unlock()
		return ErrSessionClosed
	}
	m.stats.Captures++
	cam := s.d.cam
	failErr := cam.CaptureErr

	var res CaptureResult
	if len(cam.Results) > 0 {
		res = cam.Results[min(s.next, len(cam.Results)-1)]
		s.next++
	} else {
		res = CaptureResult{Gains: RggbGains{1, 1, 1, 1}, Transform: IdentityTransform()}
	}
	m.mu.Unlock()

	if failErr != nil {
		exec.Execute(func() { cb.OnCaptureFailed(s, failErr) })
		return nil
	}

	for _, target := range req.Targets {
		target.Queue(&simFrame{m: m, size: target.Size()})
	}
	exec.Execute(func() { cb.OnCaptureCompleted(s, res) })
	return nil
}

type simFrame struct {
	m    *SimManager
	size Size
	once sync.Once
}

func (f *simFrame) Size() Size { return f.size }

func (f *simFrame) Close() {
	f.once.Do(func() {
		f.m.mu.Lock()
		defer f.m.mu.Unlock()
		f.m.stats.FramesClosed++
		f.m.stats.LastFrameSize = f.size
	})
}
