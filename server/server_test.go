package server

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/high-horse/fingerprint-server/config"
	"github.com/high-horse/fingerprint-server/matcher"
)

var (
	templateA = []float64{10, 10, 1, 0, 50, 50, 0, 1.57}
	templateB = []float64{400, 400, 0, 3.14, 600, 20, 1, 4.71}
)

func newTestServer(t *testing.T, mutate ...func(*config.Configuration)) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Workers = 2
	for _, m := range mutate {
		m(&cfg)
	}
	log := logrus.New()
	log.SetOutput(io.Discard)

	s, err := New(cfg, log)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := jsoniter.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, jsoniter.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func ridgeImage(t *testing.T) string {
	t.Helper()
	g := image.NewGray(image.Rect(0, 0, 60, 60))
	for x := 25; x <= 35; x++ {
		g.SetGray(x, 30, color.Gray{Y: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, g))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	code, body := do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["templates"])
}

func TestEnrollIdentifyVerify(t *testing.T) {
	s := newTestServer(t)

	code, body := do(t, s, http.MethodPost, "/enroll", map[string]interface{}{"identity": "alice", "features": templateA})
	require.Equal(t, http.StatusCreated, code, body)
	assert.EqualValues(t, 1, body["templates"])
	assert.EqualValues(t, 2, body["minutiae"])
	assert.NotEmpty(t, body["template_id"])

	code, _ = do(t, s, http.MethodPost, "/enroll", map[string]interface{}{"identity": "bob", "features": templateB})
	require.Equal(t, http.StatusCreated, code)

	code, body = do(t, s, http.MethodPost, "/identify", map[string]interface{}{"features": templateA})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "alice", body["identity"])
	assert.InDelta(t, -1.0, body["score"], 1e-9)
	assert.Equal(t, true, body["matched"])

	code, body = do(t, s, http.MethodPost, "/verify", map[string]interface{}{"identity": "alice", "features": templateA})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["accepted"])

	code, body = do(t, s, http.MethodPost, "/verify", map[string]interface{}{"identity": "bob", "features": templateA})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, false, body["accepted"])

	code, body = do(t, s, http.MethodPost, "/verify", map[string]interface{}{"identity": "carol", "features": templateA})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, false, body["accepted"])
	assert.Nil(t, body["score"])
	assert.Contains(t, body, "score")
}

func TestIdentifyEmptyStore(t *testing.T) {
	s := newTestServer(t)
	code, body := do(t, s, http.MethodPost, "/identify", map[string]interface{}{"features": templateA})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "", body["identity"])
	assert.Nil(t, body["score"])
	assert.Equal(t, false, body["matched"])
}

func TestMatchImages(t *testing.T) {
	s := newTestServer(t)
	img := ridgeImage(t)

	code, body := do(t, s, http.MethodPost, "/match", CompareFingerprintRequest{ProbeImage: img, CandidateImage: img})
	require.Equal(t, http.StatusOK, code, body)
	assert.InDelta(t, -1.0, body["score"], 1e-9)
	assert.Equal(t, true, body["is_match"])
	assert.Equal(t, "high", body["confidence"])

	details := body["details"].(map[string]interface{})
	assert.EqualValues(t, 2, details["probe_minutiae"])
	assert.EqualValues(t, 2, details["candidate_minutiae"])
}

func TestEnrollFromImage(t *testing.T) {
	s := newTestServer(t)
	code, body := do(t, s, http.MethodPost, "/enroll", map[string]interface{}{"identity": "alice", "image": ridgeImage(t)})
	require.Equal(t, http.StatusCreated, code, body)
	assert.EqualValues(t, 2, body["minutiae"])
	assert.Len(t, body["features"], 8)
}

func TestBadRequests(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		path string
		body interface{}
		want int
	}{
		{"missing identity", "/enroll", map[string]interface{}{"features": templateA}, http.StatusBadRequest},
		{"missing probe", "/enroll", map[string]interface{}{"identity": "alice"}, http.StatusBadRequest},
		{"bad stride", "/identify", map[string]interface{}{"features": []float64{1, 2, 3}}, http.StatusBadRequest},
		{"bad base64", "/identify", map[string]interface{}{"image": "%%%"}, http.StatusBadRequest},
		{"unknown format", "/identify", map[string]interface{}{"image": base64.StdEncoding.EncodeToString([]byte("not an image"))}, http.StatusUnsupportedMediaType},
		{"missing candidate", "/match", map[string]interface{}{"probe_image": "AAAA"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, s, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, code, body)
			assert.NotEmpty(t, body["error"])
			assert.NotEmpty(t, body["request_id"])
		})
	}
	assert.Equal(t, 0, s.Matcher().Store().Len())
}

func TestStorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.cbor")
	withStore := func(c *config.Configuration) { c.Store.Path = path }

	s := newTestServer(t, withStore)
	for _, id := range []string{"bob", "alice", "bob"} {
		code, _ := do(t, s, http.MethodPost, "/enroll", map[string]interface{}{"identity": id, "features": templateA})
		require.Equal(t, http.StatusCreated, code)
	}

	reloaded := newTestServer(t, withStore)
	assert.Equal(t, 3, reloaded.Matcher().Store().Len())

	req := httptest.NewRequest(http.MethodGet, "/identities", nil)
	resp, err := reloaded.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var ids []map[string]interface{}
	require.NoError(t, jsoniter.NewDecoder(resp.Body).Decode(&ids))
	require.Len(t, ids, 2)
	assert.Equal(t, "bob", ids[0]["identity"])
	assert.EqualValues(t, 2, ids[0]["templates"])
	assert.Equal(t, "alice", ids[1]["identity"])
}

func TestEnrollUnwritableStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "templates.cbor")
	s := newTestServer(t, func(c *config.Configuration) { c.Store.Path = path })

	for i := 0; i < 2; i++ {
		code, body := do(t, s, http.MethodPost, "/enroll", map[string]interface{}{"identity": "alice", "features": templateA})
		assert.Equal(t, http.StatusInternalServerError, code, body)
		assert.NotEmpty(t, body["error"])
	}
	assert.Equal(t, 0, s.Matcher().Store().Len(), "failed enrollments are not kept in memory")

	code, body := do(t, s, http.MethodPost, "/identify", map[string]interface{}{"features": templateA})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "", body["identity"])
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		d    float64
		want string
	}{
		{-1, "high"},
		{-0.6, "medium"},
		{-0.3, "low"},
		{-0.1, "none"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, confidence(matcher.Distance(tt.d)))
	}
	assert.Equal(t, "none", confidence(matcher.NoScore))
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(c *config.Configuration) {
		c.Server.RateLimit = 0.001
		c.Server.Burst = 1
	})
	code, _ := do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)

	code, body := do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "too many requests", body["error"])
}
