package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sfu-cl-lab/our-papers/internal/metrics"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const defineBody = `{
	"template": {
		"g(A)": [["g",["A"]],[]],
		"F(A,B)": [["F",["A","B"]],[]],
		"g(B)": [["g",["B"]],["g(A)","F(A,B)"]]
	},
	"populations": [],
	"functor_ranges": [["g",["M","W"]],["F",["T","F"]]]
}`

func newTestServer(opts rbn.SessionOptions) (*Server, *metrics.Metrics) {
	m := metrics.New()
	opts.Observer = m
	return New(rbn.NewSession(opts), Options{Metrics: m}), m
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestDefineThenGround(t *testing.T) {
	s, m := newTestServer(rbn.SessionOptions{})

	w := do(t, s, http.MethodPost, "/define", defineBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var defined struct {
		Answer  string `json:"answer"`
		Session string `json:"session"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &defined))
	assert.Equal(t, "Done", defined.Answer)
	assert.Len(t, defined.Session, 26)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = do(t, s, http.MethodPost, "/ground", `{"populations": ["aa"], "pop_vars": ["A", "B"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{
		"F(aa,aa)": [["F",["aa","aa"]],[]],
		"g(aa)": [["g",["aa"]],["F(aa,aa)","g(aa)"]]
	}`, w.Body.String())
	assert.Equal(t, defined.Session, w.Header().Get("X-Session-ID"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DefinesTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GroundingsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/ground", "200")))
}

func TestGroundNamedPopVars(t *testing.T) {
	s, _ := newTestServer(rbn.SessionOptions{})
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/define", defineBody).Code)

	w := do(t, s, http.MethodPost, "/ground", `{
		"populations": {"fans": ["ann"], "bands": ["queen", "abba"]},
		"pop_vars": [["A", "fans"], ["B", "bands"]]
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var graph map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &graph))
	assert.Len(t, graph, 5)
	assert.Contains(t, graph, "F(ann,abba)")
}

func TestGroundVariablePopulations(t *testing.T) {
	s, _ := newTestServer(rbn.SessionOptions{})
	body := strings.Replace(defineBody, `"populations": [],`,
		`"populations": [], "variable_populations": {"A": "fans", "B": "bands"},`, 1)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/define", body).Code)

	// no pop_vars: each variable draws from its assigned population
	w := do(t, s, http.MethodPost, "/ground", `{
		"populations": {"fans": ["ann"], "bands": ["queen", "abba"]}
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var graph map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &graph))
	assert.Len(t, graph, 5)
	assert.Contains(t, graph, "F(ann,queen)")
	assert.NotContains(t, graph, "F(queen,ann)")
}

func TestGroundStatus(t *testing.T) {
	tests := []struct {
		name   string
		define bool
		body   string
		code   int
	}{
		{"before define", false, `{"populations": ["aa"]}`, http.StatusConflict},
		{"malformed json", true, `{"populations": [`, http.StatusBadRequest},
		{"bad pop_vars", true, `{"populations": ["aa"], "pop_vars": [["A"]]}`, http.StatusBadRequest},
		{"unknown population", true, `{"populations": {"p": ["aa"], "q": ["bb"]}, "pop_vars": [["A", "r"], ["B", "p"]]}`, http.StatusBadRequest},
		{"ambiguous population", true, `{"populations": {"p": ["aa"], "q": ["bb"]}}`, http.StatusBadRequest},
		{"too many groundings", true, `{"populations": ["a", "b", "c"]}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(rbn.SessionOptions{MaxGroundings: 8})
			if tt.define {
				require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/define", defineBody).Code)
			}
			w := do(t, s, http.MethodPost, "/ground", tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestDefineFailureKeepsTemplate(t *testing.T) {
	s, m := newTestServer(rbn.SessionOptions{})
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/define", defineBody).Code)
	first, _, _ := s.session.Current()

	bodies := []string{
		`{"functor_ranges": [["g",["M","W"]]]}`,
		`{"template": {"g(A)": [["g",["A"]],[]], "g(B)": [["g",["B"]],[]]}, "functor_ranges": [["g",["M","W"]]]}`,
		`{"template": {"g(A)": [["g",["A"]],["h(A)"]]}, "functor_ranges": [["g",["M","W"]]]}`,
		`{"template": {"g(A)": [["g",["A"]],[]]}, "functor_ranges": [["g",["M","W"]],["g",["M"]]]}`,
	}
	for _, body := range bodies {
		w := do(t, s, http.MethodPost, "/define", body)
		assert.Equal(t, http.StatusInternalServerError, w.Code, body)
	}

	id, _, ok := s.session.Current()
	require.True(t, ok)
	assert.Equal(t, first, id)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.DefinesTotal.WithLabelValues("rejected")))
}

func TestContentNegotiation(t *testing.T) {
	s, _ := newTestServer(rbn.SessionOptions{})

	req := httptest.NewRequest(http.MethodPost, "/define", strings.NewReader(defineBody))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/define", strings.NewReader(defineBody))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "text/html")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotAcceptable, w.Code)

	_, _, ok := s.session.Current()
	assert.False(t, ok)
}

func TestPreflight(t *testing.T) {
	s, _ := newTestServer(rbn.SessionOptions{})
	for _, path := range []string{"/define", "/ground"} {
		w := do(t, s, http.MethodOptions, path, "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, allowMethods, w.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, allowHeaders, w.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(rbn.SessionOptions{})

	w := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","defined":false,"session":""}`, w.Body.String())
	assert.Len(t, w.Header().Get(requestIDHeader), 26)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "caller-id")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, "caller-id", w.Header().Get(requestIDHeader))

	w = do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `rbn_http_requests_total{code="200",endpoint="/health"} 2`)
}

func TestServeShutsDown(t *testing.T) {
	s, _ := newTestServer(rbn.SessionOptions{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, ln, s.Handler(), 2) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
