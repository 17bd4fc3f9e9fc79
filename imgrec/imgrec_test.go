package imgrec_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.jpl.nasa.gov/bdube/pylonsrc/generichttp"
	"github.jpl.nasa.gov/bdube/pylonsrc/imgrec"
)

func fixedDay() time.Time {
	return time.Date(2024, time.March, 7, 12, 0, 0, 0, time.UTC)
}

func TestRecorderSequence(t *testing.T) {
	root := t.TempDir()
	r := &imgrec.Recorder{Root: root, Prefix: "cam", Enabled: true, Now: fixedDay}
	require.True(t, r.Active())

	_, err := r.Write([]byte("ab"))
	require.NoError(t, err)
	_, err = r.Write([]byte("cd"))
	require.NoError(t, err)
	r.Incr()
	_, err = r.Write([]byte("ef"))
	require.NoError(t, err)

	day := filepath.Join(root, "2024-03-07")
	b, err := os.ReadFile(filepath.Join(day, "cam000001.fits"))
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(b))
	b, err = os.ReadFile(filepath.Join(day, "cam000002.fits"))
	require.NoError(t, err)
	assert.Equal(t, "ef", string(b))
}

func TestRecorderResumesNumbering(t *testing.T) {
	root := t.TempDir()
	day := filepath.Join(root, "2024-03-07")
	require.NoError(t, os.MkdirAll(day, 0777))
	for _, fn := range []string{"cam000004.fits", "cam000009.fits", "other000020.fits", "cam.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(day, fn), nil, 0666))
	}
	r := &imgrec.Recorder{Root: root, Prefix: "cam", Now: fixedDay}
	p, err := r.Path()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(day, "cam000010.fits"), p)
}

func TestRecorderInactive(t *testing.T) {
	var r *imgrec.Recorder
	assert.False(t, r.Active())
	assert.False(t, (&imgrec.Recorder{Enabled: true}).Active())
}

type table generichttp.RouteTable

func (t table) RT() generichttp.RouteTable { return generichttp.RouteTable(t) }

func TestHTTPWrapper(t *testing.T) {
	rec := &imgrec.Recorder{Now: fixedDay}
	rt := table{}
	imgrec.NewHTTPWrapper(rec).Inject(rt)
	mux := chi.NewRouter()
	rt.RT().Bind(mux)
	do := func(method, path, body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
		return w
	}

	root := t.TempDir()
	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/autowrite/root", `{"str": "`+filepath.ToSlash(root)+`"}`).Code)
	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/autowrite/prefix", `{"str": "left"}`).Code)
	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/autowrite/enabled", `{"bool": true}`).Code)
	assert.JSONEq(t, `{"str": "left"}`, do(http.MethodGet, "/autowrite/prefix", "").Body.String())
	assert.JSONEq(t, `{"bool": true}`, do(http.MethodGet, "/autowrite/enabled", "").Body.String())
	assert.True(t, rec.Active())
	assert.DirExists(t, filepath.Join(root, "2024-03-07"))
}
