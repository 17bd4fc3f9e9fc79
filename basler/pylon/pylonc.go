//go:build pylonc

package pylon

/*
#cgo CFLAGS: -I/opt/pylon/include
#cgo LDFLAGS: -L/opt/pylon/lib -lpylonc
#include <stdlib.h>
#include <pylonc/PylonC.h>

static inline const void* ctxptr(size_t i) { return (const void*)i; }
static inline size_t ctxidx(const void* p) { return (size_t)p; }
*/
import "C"
import (
	"sync"
	"time"
	"unsafe"
)

// lengthOfUndefinedBuffers is how large a buffer to allocate for a string
// read from the SDK when its size is not known ahead of time
const lengthOfUndefinedBuffers = 512

func result(r C.GENAPIC_RESULT) error {
	return Result(uint32(r))
}

// CDriver is the Driver backed by the pylon C library
type CDriver struct{}

// Initialize satisfies Driver
func (CDriver) Initialize() error {
	return result(C.PylonInitialize())
}

// Terminate satisfies Driver
func (CDriver) Terminate() error {
	return result(C.PylonTerminate())
}

// DeviceCount satisfies Driver
func (CDriver) DeviceCount() (int, error) {
	var n C.size_t
	if err := result(C.PylonEnumerateDevices(&n)); err != nil {
		return 0, err
	}
	return int(n), nil
}

// Open satisfies Driver.  The device is destroyed if it cannot be opened.
func (CDriver) Open(idx int) (Device, error) {
	var h C.PYLON_DEVICE_HANDLE
	if err := result(C.PylonCreateDeviceByIndex(C.size_t(idx), &h)); err != nil {
		return nil, err
	}
	err := result(C.PylonDeviceOpen(h, C.PYLONC_ACCESS_MODE_CONTROL|C.PYLONC_ACCESS_MODE_STREAM))
	if err != nil {
		C.PylonDestroyDevice(h)
		return nil, err
	}
	return &cDevice{h: h}, nil
}

type cDevice struct {
	h C.PYLON_DEVICE_HANDLE
}

func (d *cDevice) Close() error {
	err := result(C.PylonDeviceClose(d.h))
	if err2 := result(C.PylonDestroyDevice(d.h)); err == nil {
		err = err2
	}
	return err
}

// cstr returns a C copy of s and the func that frees it
func cstr(s string) (*C.char, func()) {
	cs := C.CString(s)
	return cs, func() { C.free(unsafe.Pointer(cs)) }
}

func (d *cDevice) IsImplemented(feature string) bool {
	cs, free := cstr(feature)
	defer free()
	return bool(C.PylonDeviceFeatureIsImplemented(d.h, cs))
}

func (d *cDevice) IsAvailable(feature string) bool {
	cs, free := cstr(feature)
	defer free()
	return bool(C.PylonDeviceFeatureIsAvailable(d.h, cs))
}

func (d *cDevice) IsReadable(feature string) bool {
	cs, free := cstr(feature)
	defer free()
	return bool(C.PylonDeviceFeatureIsReadable(d.h, cs))
}

func (d *cDevice) IsWritable(feature string) bool {
	cs, free := cstr(feature)
	defer free()
	return bool(C.PylonDeviceFeatureIsWritable(d.h, cs))
}

func (d *cDevice) GetInt(feature string) (int64, error) {
	cs, free := cstr(feature)
	defer free()
	var v C.int64_t
	err := result(C.PylonDeviceGetIntegerFeature(d.h, cs, &v))
	return int64(v), err
}

func (d *cDevice) SetInt(feature string, v int64) error {
	cs, free := cstr(feature)
	defer free()
	return result(C.PylonDeviceSetIntegerFeature(d.h, cs, C.int64_t(v)))
}

func (d *cDevice) GetFloat(feature string) (float64, error) {
	cs, free := cstr(feature)
	defer free()
	var v C.double
	err := result(C.PylonDeviceGetFloatFeature(d.h, cs, &v))
	return float64(v), err
}

func (d *cDevice) SetFloat(feature string, v float64) error {
	cs, free := cstr(feature)
	defer free()
	return result(C.PylonDeviceSetFloatFeature(d.h, cs, C.double(v)))
}

func (d *cDevice) GetBool(feature string) (bool, error) {
	cs, free := cstr(feature)
	defer free()
	var v C._Bool
	err := result(C.PylonDeviceGetBooleanFeature(d.h, cs, &v))
	return bool(v), err
}

func (d *cDevice) SetBool(feature string, v bool) error {
	cs, free := cstr(feature)
	defer free()
	return result(C.PylonDeviceSetBooleanFeature(d.h, cs, C._Bool(v)))
}

func (d *cDevice) GetString(feature string) (string, error) {
	cs, free := cstr(feature)
	defer free()
	buf := (*C.char)(C.malloc(lengthOfUndefinedBuffers))
	defer C.free(unsafe.Pointer(buf))
	n := C.size_t(lengthOfUndefinedBuffers)
	if err := result(C.PylonDeviceFeatureToString(d.h, cs, buf, &n)); err != nil {
		return "", err
	}
	return C.GoString(buf), nil
}

func (d *cDevice) SetString(feature, value string) error {
	cs, free := cstr(feature)
	defer free()
	cv, freev := cstr(value)
	defer freev()
	return result(C.PylonDeviceFeatureFromString(d.h, cs, cv))
}

func (d *cDevice) Execute(feature string) error {
	cs, free := cstr(feature)
	defer free()
	return result(C.PylonDeviceExecuteCommandFeature(d.h, cs))
}

func (d *cDevice) LastError() (string, string) {
	buf := (*C.char)(C.malloc(lengthOfUndefinedBuffers))
	defer C.free(unsafe.Pointer(buf))
	n := C.size_t(lengthOfUndefinedBuffers)
	C.GenApiGetLastErrorMessage(buf, &n)
	msg := C.GoString(buf)
	n = C.size_t(lengthOfUndefinedBuffers)
	C.GenApiGetLastErrorDetail(buf, &n)
	return msg, C.GoString(buf)
}

func (d *cDevice) StreamChannels() (int, error) {
	var n C.size_t
	err := result(C.PylonDeviceGetNumStreamGrabberChannels(d.h, &n))
	return int(n), err
}

func (d *cDevice) StreamGrabber(channel int) (StreamGrabber, error) {
	var h C.PYLON_STREAMGRABBER_HANDLE
	if err := result(C.PylonDeviceGetStreamGrabber(d.h, C.size_t(channel), &h)); err != nil {
		return nil, err
	}
	return &cGrabber{
		h:    h,
		toC:  map[BufferHandle]C.PYLON_STREAMBUFFER_HANDLE{},
		toGo: map[C.PYLON_STREAMBUFFER_HANDLE]BufferHandle{},
	}, nil
}

type cGrabber struct {
	h    C.PYLON_STREAMGRABBER_HANDLE
	wait C.PYLON_WAITOBJECT_HANDLE

	mu   sync.Mutex
	next BufferHandle
	toC  map[BufferHandle]C.PYLON_STREAMBUFFER_HANDLE
	toGo map[C.PYLON_STREAMBUFFER_HANDLE]BufferHandle
}

func (g *cGrabber) Open() error {
	if err := result(C.PylonStreamGrabberOpen(g.h)); err != nil {
		return err
	}
	return result(C.PylonStreamGrabberGetWaitObject(g.h, &g.wait))
}

func (g *cGrabber) Close() error {
	return result(C.PylonStreamGrabberClose(g.h))
}

func (g *cGrabber) SetMaxNumBuffer(n int) error {
	return result(C.PylonStreamGrabberSetMaxNumBuffer(g.h, C.size_t(n)))
}

func (g *cGrabber) SetMaxBufferSize(size int) error {
	return result(C.PylonStreamGrabberSetMaxBufferSize(g.h, C.size_t(size)))
}

func (g *cGrabber) PrepareGrab() error {
	return result(C.PylonStreamGrabberPrepareGrab(g.h))
}

func (g *cGrabber) FinishGrab() error {
	return result(C.PylonStreamGrabberFinishGrab(g.h))
}

// AllocBuffer returns C memory, the SDK writes into it outside of any Go call
func (g *cGrabber) AllocBuffer(size int) ([]byte, error) {
	p := C.malloc(C.size_t(size))
	if p == nil {
		return nil, errInvalidArg
	}
	return unsafe.Slice((*byte)(p), size), nil
}

func (g *cGrabber) FreeBuffer(buf []byte) {
	if len(buf) == 0 {
		return
	}
	C.free(unsafe.Pointer(&buf[0]))
}

func (g *cGrabber) RegisterBuffer(buf []byte) (BufferHandle, error) {
	var h C.PYLON_STREAMBUFFER_HANDLE
	err := result(C.PylonStreamGrabberRegisterBuffer(g.h, unsafe.Pointer(&buf[0]), C.size_t(len(buf)), &h))
	if err != nil {
		return 0, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	g.toC[g.next] = h
	g.toGo[h] = g.next
	return g.next, nil
}

func (g *cGrabber) DeregisterBuffer(h BufferHandle) error {
	g.mu.Lock()
	ch, ok := g.toC[h]
	g.mu.Unlock()
	if !ok {
		return errInvalidHandle
	}
	if err := result(C.PylonStreamGrabberDeregisterBuffer(g.h, ch)); err != nil {
		return err
	}
	g.mu.Lock()
	delete(g.toC, h)
	delete(g.toGo, ch)
	g.mu.Unlock()
	return nil
}

func (g *cGrabber) QueueBuffer(h BufferHandle, context int) error {
	g.mu.Lock()
	ch, ok := g.toC[h]
	g.mu.Unlock()
	if !ok {
		return errInvalidHandle
	}
	return result(C.PylonStreamGrabberQueueBuffer(g.h, ch, C.ctxptr(C.size_t(context))))
}

func (g *cGrabber) Wait(timeout time.Duration) (bool, error) {
	var ready C._Bool
	err := result(C.PylonWaitObjectWait(g.wait, C.uint32_t(timeout/time.Millisecond), &ready))
	return bool(ready), err
}

func (g *cGrabber) RetrieveResult() (GrabResult, bool, error) {
	var (
		res   C.PylonGrabResult_t
		ready C._Bool
	)
	if err := result(C.PylonStreamGrabberRetrieveResult(g.h, &res, &ready)); err != nil {
		return GrabResult{}, false, err
	}
	if !bool(ready) {
		return GrabResult{}, false, nil
	}
	g.mu.Lock()
	h := g.toGo[res.hBuffer]
	g.mu.Unlock()
	return GrabResult{
		Handle:      h,
		Context:     int(C.ctxidx(res.pContext)),
		Status:      GrabStatus(res.Status),
		PayloadSize: int(res.PayloadSize),
		SizeX:       int(res.SizeX),
		SizeY:       int(res.SizeY),
		BlockID:     uint64(res.BlockID),
		TimeStamp:   uint64(res.TimeStamp),
		ErrorCode:   uint32(res.ErrorCode),
	}, true, nil
}

func (g *cGrabber) CancelGrab() error {
	return result(C.PylonStreamGrabberCancelGrab(g.h))
}
