package pylon

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrMockUnavailable is returned by MockDriver.Open while a mock camera is
// rebooting or held by someone else
var ErrMockUnavailable = errors.New("mock camera unavailable")

type mockFeature struct {
	kind Kind

	implemented, available, readable, writable bool

	i int64
	f float64
	b bool
	s string
}

func (m *mockFeature) value() interface{} {
	switch m.kind {
	case KindInt:
		return m.i
	case KindFloat:
		return m.f
	case KindBool:
		return m.b
	}
	return m.s
}

// Write is a feature write recorded by a MockCamera
type Write struct {
	Feature string
	Value   interface{}
}

// MockCamera is an in-memory camera with a Basler ace USB3 feature set
type MockCamera struct {
	mu sync.Mutex

	model, serial string

	features map[string]*mockFeature
	writes   []Write
	reject   map[string]error

	open bool

	// InUse makes Open fail as if another process held the camera
	InUse bool

	// RebootOpens is how many Open calls fail after a DeviceReset
	RebootOpens int
	rebooting   int

	resets   int
	triggers int
	pending  int // triggers not yet turned into frames

	statusBusy int // AcquisitionStatus reads returning false before true

	acquiring bool
	grabber   *mockGrabber
}

// NewMockCamera returns a 1920x1200 color camera with its power-on defaults
func NewMockCamera(model, serial string) *MockCamera {
	c := &MockCamera{model: model, serial: serial, reject: map[string]error{}}
	c.defaults()
	return c
}

func (c *MockCamera) defaults() {
	c.features = map[string]*mockFeature{}
	rw := func(name string, k Kind) *mockFeature {
		f := &mockFeature{kind: k, implemented: true, available: true, readable: true, writable: true}
		c.features[name] = f
		return f
	}
	ro := func(name string, k Kind) *mockFeature {
		f := rw(name, k)
		f.writable = false
		return f
	}
	ro("WidthMax", KindInt).i = 1920
	ro("HeightMax", KindInt).i = 1200
	rw("Width", KindInt).i = 1920
	rw("Height", KindInt).i = 1200
	rw("OffsetX", KindInt)
	rw("OffsetY", KindInt)
	rw("CenterX", KindBool)
	rw("CenterY", KindBool)
	rw("ReverseX", KindBool)
	rw("ReverseY", KindBool)
	rw("PixelFormat", KindEnum).s = "BayerBG8"
	ro("PixelSize", KindEnum).s = "Bpp8"
	ro("PayloadSize", KindInt)
	rw("TestImageSelector", KindEnum).s = "Off"
	rw("SensorReadoutMode", KindEnum).s = "Normal"
	rw("DeviceLinkThroughputLimitMode", KindEnum).s = "On"
	rw("DeviceLinkThroughputLimit", KindInt).i = 360000000
	ro("DeviceLinkCurrentThroughput", KindInt)
	ro("DeviceLinkSpeed", KindInt).i = 400000000
	rw("AcquisitionFrameRateEnable", KindBool)
	rw("AcquisitionFrameRate", KindFloat).f = 100
	ro("ResultingFrameRate", KindFloat).f = 164.5
	ro("SensorReadoutTime", KindFloat).f = 5900
	rw("LightSourcePreset", KindEnum).s = "Daylight5000K"
	rw("ExposureAuto", KindEnum).s = "Off"
	rw("GainAuto", KindEnum).s = "Off"
	rw("BalanceWhiteAuto", KindEnum).s = "Off"
	rw("AutoExposureTimeLowerLimit", KindFloat).f = 105
	rw("AutoExposureTimeUpperLimit", KindFloat).f = 1000000
	rw("AutoGainLowerLimit", KindFloat)
	rw("AutoGainUpperLimit", KindFloat).f = 12.00921
	rw("AutoTargetBrightness", KindFloat).f = 0.50196
	rw("AutoFunctionProfile", KindEnum).s = "MinimizeGain"
	rw("BalanceRatioSelector", KindEnum).s = "Red"
	rw("BalanceRatio", KindFloat).f = 1
	rw("ColorAdjustmentSelector", KindEnum).s = "Red"
	rw("ColorAdjustmentHue", KindFloat)
	rw("ColorAdjustmentSaturation", KindFloat).f = 1
	rw("ColorTransformationSelector", KindEnum).s = "RGBtoRGB"
	rw("ColorTransformationValueSelector", KindEnum).s = "Gain00"
	rw("ColorTransformationValue", KindFloat).f = 1
	rw("ExposureTime", KindFloat).f = 5000
	rw("Gain", KindFloat)
	rw("BlackLevel", KindFloat)
	rw("Gamma", KindFloat).f = 1
	rw("DemosaicingMode", KindEnum).s = "Simple"
	rw("NoiseReduction", KindFloat)
	rw("SharpnessEnhancement", KindFloat)
	rw("TriggerSelector", KindEnum).s = "FrameStart"
	rw("TriggerMode", KindEnum).s = "Off"
	rw("TriggerSource", KindEnum).s = "Line1"
	rw("AcquisitionMode", KindEnum).s = "Continuous"
	rw("AcquisitionStatusSelector", KindEnum).s = "FrameTriggerWait"
	ro("AcquisitionStatus", KindBool).b = true
	for _, cmd := range []string{"AcquisitionStart", "AcquisitionStop", "TriggerSoftware", "DeviceReset"} {
		f := rw(cmd, KindCommand)
		f.readable = false
	}
	ro("DeviceModelName", KindString).s = c.model
	ro("DeviceSerialNumber", KindString).s = c.serial
	rw("DeviceUserID", KindString)

	entries := map[string][]string{
		"PixelFormat": {"Mono8", "BayerBG8", "BayerGB8", "BayerGR8", "BayerRG8",
			"BayerBG10", "BayerGB10", "BayerGR10", "BayerRG10",
			"BayerBG10p", "BayerGB10p", "BayerGR10p", "BayerRG10p",
			"RGB8", "BGR8", "YCbCr422_8"},
		"TestImageSelector": {"Off", "Testimage1", "Testimage2", "Testimage3", "Testimage4", "Testimage5", "Testimage6"},
		"TriggerSelector":   {"FrameStart", "FrameBurstStart"},
	}
	for feature, vals := range entries {
		for _, v := range vals {
			f := ro(EnumEntry(feature, v), KindBool)
			f.b = true
		}
	}
	c.updatePayload()
}

func bytesPerPixel(format string) (int, string) {
	switch {
	case strings.HasPrefix(format, "RGB8"), strings.HasPrefix(format, "BGR8"):
		return 3, "Bpp24"
	case strings.HasPrefix(format, "YCbCr422"):
		return 2, "Bpp16"
	case strings.HasSuffix(format, "10"):
		return 2, "Bpp16"
	}
	return 1, "Bpp8"
}

// updatePayload keeps PixelSize and the throughput features in step with
// the image size, as the camera does.  c.mu must be held.
func (c *MockCamera) updatePayload() {
	format := c.features["PixelFormat"].s
	bpp, size := bytesPerPixel(format)
	npix := c.features["Width"].i * c.features["Height"].i
	payload := npix * int64(bpp)
	if strings.HasSuffix(format, "10p") {
		// four pixels in five bytes
		size = "Bpp10"
		payload = (npix*10 + 7) / 8
	}
	c.features["PixelSize"].s = size
	c.features["PayloadSize"].i = payload
	throughput := int64(float64(payload) * c.features["ResultingFrameRate"].f)
	if c.features["DeviceLinkThroughputLimitMode"].s == "On" && throughput > c.features["DeviceLinkThroughputLimit"].i {
		throughput = c.features["DeviceLinkThroughputLimit"].i
	}
	c.features["DeviceLinkCurrentThroughput"].i = throughput
}

// Remove makes the camera behave as if it did not implement feature
func (c *MockCamera) Remove(feature string) {
	c.SetAccess(feature, false, false, false, false)
}

// SetAccess sets the four predicates of a feature, creating it if needed
func (c *MockCamera) SetAccess(feature string, implemented, available, readable, writable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.features[feature]
	if !ok {
		f = &mockFeature{kind: Features[feature]}
		c.features[feature] = f
	}
	f.implemented, f.available, f.readable, f.writable = implemented, available, readable, writable
}

// SetEntry sets whether entry is an available value of the enumeration feature
func (c *MockCamera) SetEntry(feature, entry string, available bool) {
	c.SetAccess(EnumEntry(feature, entry), available, available, available, false)
}

// SetValue sets a feature's value without recording a write
func (c *MockCamera) SetValue(feature string, v interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.features[feature]
	if !ok {
		return
	}
	switch t := v.(type) {
	case int:
		f.i = int64(t)
	case int64:
		f.i = t
	case float64:
		f.f = t
	case bool:
		f.b = t
	case string:
		f.s = t
	}
	c.updatePayload()
}

// Value returns a feature's current value, nil if it does not exist
func (c *MockCamera) Value(feature string) interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.features[feature]
	if !ok {
		return nil
	}
	return f.value()
}

// Reject makes writes to feature fail with err
func (c *MockCamera) Reject(feature string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reject[feature] = err
}

// Writes returns the writes and commands made so far, in order
func (c *MockCamera) Writes() []Write {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Write, len(c.writes))
	copy(out, c.writes)
	return out
}

// WritesTo returns the values written to one feature, in order
func (c *MockCamera) WritesTo(feature string) []interface{} {
	out := []interface{}{}
	for _, w := range c.Writes() {
		if w.Feature == feature {
			out = append(out, w.Value)
		}
	}
	return out
}

// ClearWrites forgets the recorded writes
func (c *MockCamera) ClearWrites() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = nil
}

// Triggers is the number of software triggers executed
func (c *MockCamera) Triggers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.triggers
}

// Resets is the number of DeviceReset commands executed
func (c *MockCamera) Resets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resets
}

// IsOpen returns true while a Device for this camera is open
func (c *MockCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Acquiring returns true between AcquisitionStart and AcquisitionStop
func (c *MockCamera) Acquiring() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquiring
}

// StatusBusy makes the next n reads of AcquisitionStatus return false
func (c *MockCamera) StatusBusy(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusBusy = n
}

// Grabber returns the stream grabber controls of the camera, nil before the
// first call to Device.StreamGrabber.  Every call to StreamGrabber returns
// the same grabber.
func (c *MockCamera) Grabber() *MockGrabberControl {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.grabber == nil {
		return nil
	}
	return &MockGrabberControl{g: c.grabber}
}

// triggered is true if frame start waits for a trigger.  c.mu must be held.
func (c *MockCamera) triggered() bool {
	return c.features["TriggerMode"].s == "On"
}

// MockDriver is a Driver over a set of MockCameras
type MockDriver struct {
	mu sync.Mutex

	Cameras []*MockCamera

	// EnumerateErr is returned by DeviceCount when set
	EnumerateErr error

	initialized bool
	inits       int
}

// NewMockDriver returns a driver with n mock cameras
func NewMockDriver(n int) *MockDriver {
	d := &MockDriver{}
	for i := 0; i < n; i++ {
		d.Cameras = append(d.Cameras, NewMockCamera("acA1920-155uc", strconv.Itoa(40000000+i)))
	}
	return d
}

// Initialize satisfies Driver
func (d *MockDriver) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initialized = true
	d.inits++
	return nil
}

// Terminate satisfies Driver
func (d *MockDriver) Terminate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initialized = false
	return nil
}

// Initializations is the number of times Initialize was called
func (d *MockDriver) Initializations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inits
}

// DeviceCount satisfies Driver
func (d *MockDriver) DeviceCount() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.EnumerateErr != nil {
		return 0, d.EnumerateErr
	}
	if !d.initialized {
		return 0, errNotInitialized
	}
	return len(d.Cameras), nil
}

// Open satisfies Driver
func (d *MockDriver) Open(idx int) (Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if idx < 0 || idx >= len(d.Cameras) {
		return nil, errInvalidArg
	}
	c := d.Cameras[idx]
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rebooting > 0 {
		c.rebooting--
		return nil, ErrMockUnavailable
	}
	if c.InUse || c.open {
		return nil, ErrMockUnavailable
	}
	c.open = true
	return &mockDevice{cam: c}, nil
}

type mockDevice struct {
	cam     *MockCamera
	closed  bool
	lastErr string
}

func (m *mockDevice) Close() error {
	c := m.cam
	c.mu.Lock()
	defer c.mu.Unlock()
	if m.closed {
		return errInvalidHandle
	}
	m.closed = true
	c.open = false
	c.acquiring = false
	return nil
}

func (m *mockDevice) lookup(feature string) *mockFeature {
	f, ok := m.cam.features[feature]
	if !ok {
		return &mockFeature{}
	}
	return f
}

func (m *mockDevice) IsImplemented(feature string) bool {
	m.cam.mu.Lock()
	defer m.cam.mu.Unlock()
	return m.lookup(feature).implemented
}

func (m *mockDevice) IsAvailable(feature string) bool {
	m.cam.mu.Lock()
	defer m.cam.mu.Unlock()
	return m.lookup(feature).available
}

func (m *mockDevice) IsReadable(feature string) bool {
	m.cam.mu.Lock()
	defer m.cam.mu.Unlock()
	return m.lookup(feature).readable
}

func (m *mockDevice) IsWritable(feature string) bool {
	m.cam.mu.Lock()
	defer m.cam.mu.Unlock()
	return m.lookup(feature).writable
}

// read returns the feature if it may be read.  cam.mu must be held.
func (m *mockDevice) read(feature string) (*mockFeature, error) {
	if m.closed {
		return nil, errInvalidHandle
	}
	f := m.lookup(feature)
	if !f.implemented {
		return nil, errNotImplemented
	}
	if !f.readable {
		return nil, errNotReadable
	}
	return f, nil
}

// write returns the feature if it may be written and records the write.
// cam.mu must be held.
func (m *mockDevice) write(feature string, v interface{}) (*mockFeature, error) {
	if m.closed {
		return nil, errInvalidHandle
	}
	f := m.lookup(feature)
	if !f.implemented {
		m.lastErr = "Node not existing"
		return nil, errNotImplemented
	}
	if !f.writable {
		m.lastErr = "Node is not writable"
		return nil, errNotWritable
	}
	if err, ok := m.cam.reject[feature]; ok {
		m.lastErr = err.Error()
		return nil, errOutOfRange
	}
	m.cam.writes = append(m.cam.writes, Write{Feature: feature, Value: v})
	return f, nil
}

func (m *mockDevice) GetInt(feature string) (int64, error) {
	m.cam.mu.Lock()
	defer m.cam.mu.Unlock()
	f, err := m.read(feature)
	if err != nil {
		return 0, err
	}
	return f.i, nil
}

func (m *mockDevice) SetInt(feature string, v int64) error {
	m.cam.mu.Lock()
	defer m.cam.mu.Unlock()
	f, err := m.write(feature, v)
	if err != nil {
		return err
	}
	f.i = v
	m.cam.updatePayload()
	return nil
}

func (m *mockDevice) GetFloat(feature string) (float64, error) {
	m.cam.mu.Lock()
	defer m.cam.mu.Unlock()
	f, err := m.read(feature)
	if err != nil {
		return 0, err
	}
	return f.f, nil
}

func (m *mockDevice) SetFloat(feature string, v float64) error {
	m.cam.mu.Lock()
	defer m.cam.mu.Unlock()
	f, err := m.write(feature, v)
	if err != nil {
		return err
	}
	f.f = v
	return nil
}

func (m *mockDevice) GetBool(feature string) (bool, error) {
	m.cam.mu.Lock()
	defer m.cam.mu.Unlock()
	f, err := m.read(feature)
	if err != nil {
		return false, err
	}
	if feature == "AcquisitionStatus" && m.cam.statusBusy > 0 {
		m.cam.statusBusy--
		return false, nil
	}
	return f.b, nil
}

func (m *mockDevice) SetBool(feature string, v bool) error {
	m.cam.mu.Lock()
	defer m.cam.mu.Unlock()
	f, err := m.write(feature, v)
	if err != nil {
		return err
	}
	f.b = v
	return nil
}

func (m *mockDevice) GetString(feature string) (string, error) {
	m.cam.mu.Lock()
	defer m.cam.mu.Unlock()
	f, err := m.read(feature)
	if err != nil {
		return "", err
	}
	switch f.kind {
	case KindInt:
		return strconv.FormatInt(f.i, 10), nil
	case KindBool:
		if f.b {
			return "1", nil
		}
		return "0", nil
	}
	return f.s, nil
}

func (m *mockDevice) SetString(feature, value string) error {
	m.cam.mu.Lock()
	defer m.cam.mu.Unlock()
	if f := m.lookup(feature); f.kind == KindEnum {
		entry := m.lookup(EnumEntry(feature, value))
		known := false
		for name := range m.cam.features {
			if strings.HasPrefix(name, "EnumEntry_"+feature+"_") {
				known = true
				break
			}
		}
		if known && !entry.available {
			m.lastErr = "Feature '" + feature + "': value '" + value + "' is not available"
			return errNotAvailable
		}
	}
	f, err := m.write(feature, value)
	if err != nil {
		return err
	}
	f.s = value
	m.cam.updatePayload()
	return nil
}

func (m *mockDevice) Execute(feature string) error {
	c := m.cam
	c.mu.Lock()
	defer c.mu.Unlock()
	f, err := m.write(feature, "execute")
	if err != nil {
		return err
	}
	if f.kind != KindCommand {
		return errInvalidArg
	}
	switch feature {
	case "AcquisitionStart":
		c.acquiring = true
	case "AcquisitionStop":
		c.acquiring = false
	case "TriggerSoftware":
		c.triggers++
		c.pending++
		if c.grabber != nil {
			c.grabber.signal()
		}
	case "DeviceReset":
		c.resets++
		c.rebooting = c.RebootOpens
		c.defaults()
	}
	return nil
}

func (m *mockDevice) LastError() (string, string) {
	m.cam.mu.Lock()
	defer m.cam.mu.Unlock()
	return m.lastErr, ""
}

func (m *mockDevice) StreamChannels() (int, error) {
	return 1, nil
}

func (m *mockDevice) StreamGrabber(channel int) (StreamGrabber, error) {
	if channel != 0 {
		return nil, errInvalidArg
	}
	c := m.cam
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.grabber == nil {
		c.grabber = &mockGrabber{cam: c, bufs: map[BufferHandle]*mockBuffer{}, wake: make(chan struct{})}
	}
	return c.grabber, nil
}

type mockBuffer struct {
	buf     []byte
	context int
	queued  bool
}

type mockGrabber struct {
	cam *MockCamera

	open, prepared  bool
	maxNum, maxSize int

	bufs   map[BufferHandle]*mockBuffer
	next   BufferHandle
	fifo   []BufferHandle
	output []GrabResult

	allocs    int
	failAlloc int // 1-based allocation which fails, 0 for none
	failNext  int // results to report as Failed
	drop      int // ready signals with no result behind them
	stall     bool
	block     uint64
	waiting   int // goroutines inside Wait
	waits     int // Wait calls which have returned

	wake chan struct{}
}

// signal wakes every goroutine in Wait.  cam.mu must be held.
func (g *mockGrabber) signal() {
	close(g.wake)
	g.wake = make(chan struct{})
}

// frameReady reports if RetrieveResult would return something.  cam.mu must be held.
func (g *mockGrabber) frameReady() bool {
	if len(g.output) > 0 || g.drop > 0 {
		return true
	}
	if g.stall || !g.cam.acquiring || len(g.fifo) == 0 {
		return false
	}
	if g.cam.triggered() && g.cam.pending == 0 {
		return false
	}
	return true
}

func (g *mockGrabber) Open() error {
	g.cam.mu.Lock()
	defer g.cam.mu.Unlock()
	g.open = true
	return nil
}

func (g *mockGrabber) Close() error {
	g.cam.mu.Lock()
	defer g.cam.mu.Unlock()
	if !g.open {
		return errInvalidHandle
	}
	g.open = false
	g.signal()
	return nil
}

func (g *mockGrabber) SetMaxNumBuffer(n int) error {
	g.cam.mu.Lock()
	defer g.cam.mu.Unlock()
	g.maxNum = n
	return nil
}

func (g *mockGrabber) SetMaxBufferSize(size int) error {
	g.cam.mu.Lock()
	defer g.cam.mu.Unlock()
	g.maxSize = size
	return nil
}

func (g *mockGrabber) PrepareGrab() error {
	g.cam.mu.Lock()
	defer g.cam.mu.Unlock()
	if !g.open {
		return errNotInitialized
	}
	g.prepared = true
	return nil
}

func (g *mockGrabber) FinishGrab() error {
	g.cam.mu.Lock()
	defer g.cam.mu.Unlock()
	g.prepared = false
	return nil
}

func (g *mockGrabber) AllocBuffer(size int) ([]byte, error) {
	g.cam.mu.Lock()
	defer g.cam.mu.Unlock()
	g.allocs++
	if g.failAlloc == g.allocs {
		return nil, errors.New("out of memory")
	}
	return make([]byte, size), nil
}

func (g *mockGrabber) FreeBuffer(buf []byte) {}

func (g *mockGrabber) RegisterBuffer(buf []byte) (BufferHandle, error) {
	g.cam.mu.Lock()
	defer g.cam.mu.Unlock()
	if !g.prepared {
		return 0, errNotInitialized
	}
	if len(g.bufs) >= g.maxNum || len(buf) > g.maxSize {
		return 0, errInvalidArg
	}
	g.next++
	g.bufs[g.next] = &mockBuffer{buf: buf}
	return g.next, nil
}

func (g *mockGrabber) DeregisterBuffer(h BufferHandle) error {
	g.cam.mu.Lock()
	defer g.cam.mu.Unlock()
	b, ok := g.bufs[h]
	if !ok || b.queued {
		return errInvalidHandle
	}
	delete(g.bufs, h)
	return nil
}

func (g *mockGrabber) QueueBuffer(h BufferHandle, context int) error {
	g.cam.mu.Lock()
	defer g.cam.mu.Unlock()
	b, ok := g.bufs[h]
	if !ok || b.queued {
		return errInvalidHandle
	}
	b.queued = true
	b.context = context
	g.fifo = append(g.fifo, h)
	g.signal()
	return nil
}

func (g *mockGrabber) Wait(timeout time.Duration) (bool, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	g.cam.mu.Lock()
	g.waiting++
	g.cam.mu.Unlock()
	defer func() {
		g.cam.mu.Lock()
		g.waiting--
		g.waits++
		g.cam.mu.Unlock()
	}()
	for {
		g.cam.mu.Lock()
		if !g.open {
			g.cam.mu.Unlock()
			return false, errInvalidHandle
		}
		if g.frameReady() {
			g.cam.mu.Unlock()
			return true, nil
		}
		wake := g.wake
		g.cam.mu.Unlock()
		select {
		case <-wake:
		case <-deadline.C:
			return false, nil
		}
	}
}

func (g *mockGrabber) RetrieveResult() (GrabResult, bool, error) {
	g.cam.mu.Lock()
	defer g.cam.mu.Unlock()
	if len(g.output) > 0 {
		r := g.output[0]
		g.output = g.output[1:]
		g.bufs[r.Handle].queued = false
		return r, true, nil
	}
	if g.drop > 0 {
		g.drop--
		return GrabResult{}, false, nil
	}
	if !g.frameReady() {
		return GrabResult{}, false, nil
	}
	h := g.fifo[0]
	g.fifo = g.fifo[1:]
	if g.cam.triggered() {
		g.cam.pending--
	}
	b := g.bufs[h]
	b.queued = false
	g.block++
	w, ht := g.cam.features["Width"].i, g.cam.features["Height"].i
	payload := int(g.cam.features["PayloadSize"].i)
	if payload > len(b.buf) {
		payload = len(b.buf)
	}
	r := GrabResult{Handle: h, Context: b.context, SizeX: int(w), SizeY: int(ht), BlockID: g.block,
		TimeStamp: uint64(time.Now().UnixNano())}
	if g.failNext > 0 {
		g.failNext--
		r.Status = Failed
		r.ErrorCode = 0xE1000014
		r.ErrorDescription = "The buffer was incompletely grabbed."
		return r, true, nil
	}
	for i := 0; i < payload; i++ {
		b.buf[i] = byte(g.block)
	}
	r.Status = Grabbed
	r.PayloadSize = payload
	return r, true, nil
}

func (g *mockGrabber) CancelGrab() error {
	g.cam.mu.Lock()
	defer g.cam.mu.Unlock()
	for _, h := range g.fifo {
		b := g.bufs[h]
		g.output = append(g.output, GrabResult{Handle: h, Context: b.context, Status: Canceled})
	}
	g.fifo = nil
	g.signal()
	return nil
}

// MockGrabberControl steers the stream grabber of a MockCamera
type MockGrabberControl struct {
	g *mockGrabber
}

// FailAlloc makes the nth buffer allocation (1-based) fail
func (m *MockGrabberControl) FailAlloc(n int) {
	m.g.cam.mu.Lock()
	defer m.g.cam.mu.Unlock()
	m.g.failAlloc = n
}

// FailNext makes the next n grab results report status Failed
func (m *MockGrabberControl) FailNext(n int) {
	m.g.cam.mu.Lock()
	defer m.g.cam.mu.Unlock()
	m.g.failNext = n
}

// DropNext makes the next n ready signals come without a result
func (m *MockGrabberControl) DropNext(n int) {
	m.g.cam.mu.Lock()
	defer m.g.cam.mu.Unlock()
	m.g.drop = n
	m.g.signal()
}

// Stall stops or resumes frame delivery
func (m *MockGrabberControl) Stall(stall bool) {
	m.g.cam.mu.Lock()
	defer m.g.cam.mu.Unlock()
	m.g.stall = stall
	m.g.signal()
}

// Queued is the number of buffers waiting for a frame
func (m *MockGrabberControl) Queued() int {
	m.g.cam.mu.Lock()
	defer m.g.cam.mu.Unlock()
	return len(m.g.fifo)
}

// Registered is the number of registered buffers
func (m *MockGrabberControl) Registered() int {
	m.g.cam.mu.Lock()
	defer m.g.cam.mu.Unlock()
	return len(m.g.bufs)
}

// Open reports if the grabber is open
func (m *MockGrabberControl) Open() bool {
	m.g.cam.mu.Lock()
	defer m.g.cam.mu.Unlock()
	return m.g.open
}

// Waiting is the number of goroutines blocked waiting for a frame
func (m *MockGrabberControl) Waiting() int {
	m.g.cam.mu.Lock()
	defer m.g.cam.mu.Unlock()
	return m.g.waiting
}

// Waits is the number of waits for a frame which have returned
func (m *MockGrabberControl) Waits() int {
	m.g.cam.mu.Lock()
	defer m.g.cam.mu.Unlock()
	return m.g.waits
}
