// Package imgrec contains an image recorder used to automatically save frames to disk.
package imgrec

import (
	"encoding/json"
	"fmt"
	"go/types"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.jpl.nasa.gov/bdube/pylonsrc/generichttp"
)

// Ext is the extension of recorded files
const Ext = ".fits"

// Recorder records image sequences with incrementing filenames in yyyy-mm-dd
// subfolders.  Each Write appends to the current file; Incr moves to the next.
type Recorder struct {
	mu sync.Mutex

	// counter is the number of the file being written
	counter int
	scanned bool

	// Root is the root path
	Root string

	// Prefix is the prefix for the filenames
	Prefix string

	// Enabled allows consumers to switch recording off without dropping the recorder
	Enabled bool

	// Now is the clock used to pick the day folder, time.Now if nil
	Now func() time.Time

	// day is the subfolder with yyyy-mm-dd format
	day string
}

// Active returns true if frames should be written to the recorder
func (r *Recorder) Active() bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Enabled && r.Root != ""
}

// folder returns today's folder, making it if needed.  r.mu must be held.
func (r *Recorder) folder() (string, error) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	t := now()
	day := fmt.Sprintf("%04d-%02d-%02d", t.Year(), t.Month(), t.Day())
	if day != r.day {
		r.day, r.scanned = day, false
	}
	fldr := filepath.Join(r.Root, r.day)
	return fldr, os.MkdirAll(fldr, 0777)
}

// Path returns the file the next Write goes to
func (r *Recorder) Path() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path()
}

func (r *Recorder) path() (string, error) {
	fldr, err := r.folder()
	if err != nil {
		return "", err
	}
	if !r.scanned {
		r.counter = r.scan(fldr) + 1
		r.scanned = true
	}
	return filepath.Join(fldr, fmt.Sprintf("%s%06d%s", r.Prefix, r.counter, Ext)), nil
}

// Write implements io.Writer and appends p to the current file
func (r *Recorder) Write(p []byte) (n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn, err := r.path()
	if err != nil {
		return 0, err
	}
	fid, err := os.OpenFile(fn, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return 0, err
	}
	defer fid.Close()
	return fid.Write(p)
}

// Incr moves on to the next file
func (r *Recorder) Incr() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.path(); err != nil {
		return
	}
	r.counter++
}

// scan returns the highest file number with this prefix in fldr, 0 if none
func (r *Recorder) scan(fldr string) int {
	files, err := os.ReadDir(fldr)
	if err != nil {
		return 0
	}
	count := 0
	for _, file := range files {
		// skip directories, non-fits, and wrong prefix
		fn := file.Name()
		if file.IsDir() || !strings.HasSuffix(fn, Ext) || !strings.HasPrefix(fn, r.Prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(fn, r.Prefix), Ext))
		if err != nil {
			continue
		}
		if count < n {
			count = n
		}
	}
	return count
}

// HTTPWrapper is an HTTP wrapper around an image recorder that allows the folder and prefix to be changed on the fly
//
// it does not implement generichttp.HTTPer, offering an Inject method allowing it to be injected
// into another HTTPer
type HTTPWrapper struct {
	*Recorder
}

// NewHTTPWrapper returns an HTTP wrapper around a recorder
func NewHTTPWrapper(r *Recorder) HTTPWrapper {
	return HTTPWrapper{r}
}

func decodeStr(w http.ResponseWriter, r *http.Request) (string, bool) {
	str := generichttp.StrT{}
	err := json.NewDecoder(r.Body).Decode(&str)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return str.Str, true
}

// SetRoot updates the root folder of the recorder
func (h HTTPWrapper) SetRoot(w http.ResponseWriter, r *http.Request) {
	root, ok := decodeStr(w, r)
	if !ok {
		return
	}
	rec := h.Recorder
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.Root, rec.scanned = root, false
	if _, err := rec.folder(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetRoot gets the recorder's root folder and sends it back as JSON
func (h HTTPWrapper) GetRoot(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	hp := generichttp.HumanPayload{T: types.String, String: h.Recorder.Root}
	h.mu.Unlock()
	hp.EncodeAndRespond(w, r)
}

// SetPrefix updates the filename prefix of the recorder
func (h HTTPWrapper) SetPrefix(w http.ResponseWriter, r *http.Request) {
	prefix, ok := decodeStr(w, r)
	if !ok {
		return
	}
	h.mu.Lock()
	h.Recorder.Prefix, h.Recorder.scanned = prefix, false
	h.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

// GetPrefix gets the recorder's prefix and sends it back as JSON
func (h HTTPWrapper) GetPrefix(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	hp := generichttp.HumanPayload{T: types.String, String: h.Recorder.Prefix}
	h.mu.Unlock()
	hp.EncodeAndRespond(w, r)
}

// GetEnabled returns the Recorder's Enabled field
func (h HTTPWrapper) GetEnabled(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	hp := generichttp.HumanPayload{T: types.Bool, Bool: h.Recorder.Enabled}
	h.mu.Unlock()
	hp.EncodeAndRespond(w, r)
}

// SetEnabled sets the recorder's Enabled field
func (h HTTPWrapper) SetEnabled(w http.ResponseWriter, r *http.Request) {
	bT := generichttp.BoolT{}
	err := json.NewDecoder(r.Body).Decode(&bT)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.mu.Lock()
	h.Recorder.Enabled = bT.Bool
	h.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

// Inject adds GET and POST routes for /autowrite/root, /autowrite/prefix and
// /autowrite/enabled to the HTTPer which manipulate this wrapper's recorder
func (h HTTPWrapper) Inject(other generichttp.HTTPer) {
	rt := other.RT()
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/root"}] = h.SetRoot
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/root"}] = h.GetRoot
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/prefix"}] = h.SetPrefix
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/prefix"}] = h.GetPrefix
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/enabled"}] = h.SetEnabled
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/enabled"}] = h.GetEnabled
}
