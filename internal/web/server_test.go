package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/material-finder/internal/config"
	"github.com/JonMunkholm/material-finder/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogCSV = `Titulo,Descripcion,Tipo,Nivel,Tipo Ejercicio,Tema
Leyes de Newton,Dinámica básica,"Teoría, Ejercicio",1° Medio,,Fuerza
Óptica geométrica,Espejos y lentes,Ejercicio,2° Medio,Desarrollo,Luz
Ondas,Sonido y luz,Guía,1° Medio | 2° Medio,Alternativas,Ondas
Energía,Trabajo y potencia,Teoría,3° Medio,,Energía
`

var testFilters = []core.FilterField{
	{Label: "Tipo", Field: "tipo", Enabled: true},
	{Label: "Nivel", Field: "nivel", Enabled: true},
	{Label: "Tipo Ejercicio", Field: "tipoejercicio", Enabled: true},
	{Label: "Tema", Field: "tema", Enabled: false},
}

// stubSource serves CSV or an error and implements both core.Source and
// CSVProxy.
type stubSource struct {
	mu   sync.Mutex
	body string
	err  error
}

func (s *stubSource) FetchCSV(context.Context, core.Attempt) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body, s.err
}

func (s *stubSource) FetchForProxy(ctx context.Context) (string, error) {
	return s.FetchCSV(ctx, core.AttemptPrimary)
}

func (s *stubSource) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(func(string) (string, bool) { return "", false })
	require.NoError(t, err)
	cfg.Rate.Enabled = false
	return cfg
}

type testEnv struct {
	server *Server
	source *stubSource
	store  *core.Store
}

func newTestEnv(t *testing.T, cfg *config.Config, fields []core.FilterField) *testEnv {
	t.Helper()
	if cfg == nil {
		cfg = testConfig(t)
	}
	src := &stubSource{body: catalogCSV}
	store := core.NewStore(src, core.StoreConfig{
		PrimaryTimeout: 100 * time.Millisecond,
		RetryTimeout:   100 * time.Millisecond,
	})
	engine := core.NewEngine(store, fields)
	return &testEnv{server: NewServer(engine, store, src, cfg), source: src, store: store}
}

func (e *testEnv) do(t *testing.T, method, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func itemTitles(items []core.Record) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Get("titulo")
	}
	return out
}

func TestMaterials_Search(t *testing.T) {
	env := newTestEnv(t, nil, testFilters)

	tests := []struct {
		name  string
		query url.Values
		want  []string
	}{
		{
			name:  "everything",
			query: url.Values{},
			want:  []string{"Leyes de Newton", "Óptica geométrica", "Ondas", "Energía"},
		},
		{
			name:  "keywords ignore accents",
			query: url.Values{"keywords": {"optica"}},
			want:  []string{"Óptica geométrica"},
		},
		{
			name:  "filter by label matches one of several values",
			query: url.Values{"Tipo": {"Ejercicio"}},
			want:  []string{"Leyes de Newton", "Óptica geométrica"},
		},
		{
			name:  "multi word label",
			query: url.Values{"Tipo Ejercicio": {"desarrollo"}},
			want:  []string{"Óptica geométrica"},
		},
		{
			name:  "pipe separated level",
			query: url.Values{"Nivel": {"2° Medio"}},
			want:  []string{"Óptica geométrica", "Ondas"},
		},
		{
			name:  "disabled label still resolves",
			query: url.Values{"Tema": {"Luz"}},
			want:  []string{"Óptica geométrica"},
		},
		{
			name:  "filters combine with AND",
			query: url.Values{"Tipo": {"Teoría"}, "Nivel": {"3° Medio"}},
			want:  []string{"Energía"},
		},
		{
			name:  "empty filter value is ignored",
			query: url.Values{"Tipo": {"  "}},
			want:  []string{"Leyes de Newton", "Óptica geométrica", "Ondas", "Energía"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/materials?"+tt.query.Encode(), nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			resp := decode[MaterialsResponse](t, rec)
			assert.Equal(t, tt.want, itemTitles(resp.Items))
			assert.Equal(t, len(tt.want), resp.Total)
		})
	}
}

func TestMaterials_Pagination(t *testing.T) {
	env := newTestEnv(t, nil, testFilters)

	rec := env.do(t, http.MethodGet, "/api/materials?page=2&pageSize=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[MaterialsResponse](t, rec)

	assert.Equal(t, []string{"Energía"}, itemTitles(resp.Items))
	assert.Equal(t, 4, resp.Total)
	assert.Equal(t, 2, resp.Page)
	assert.Equal(t, 3, resp.PageSize)
	assert.Equal(t, 2, resp.TotalPages)

	rec = env.do(t, http.MethodGet, "/api/materials?page=9", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[MaterialsResponse](t, rec)
	assert.Empty(t, resp.Items)
	assert.NotNil(t, resp.Items)
	assert.Equal(t, 12, resp.PageSize)
}

func TestMaterials_PageSizeCapped(t *testing.T) {
	env := newTestEnv(t, nil, testFilters)

	rec := env.do(t, http.MethodGet, "/api/materials?pageSize=5000", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, decode[MaterialsResponse](t, rec).PageSize)
}

func TestMaterials_InvalidPage(t *testing.T) {
	env := newTestEnv(t, nil, testFilters)

	for _, target := range []string{"/api/materials?page=abc", "/api/materials?pageSize=0"} {
		rec := env.do(t, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Equal(t, "REQ002", decode[ErrorResponse](t, rec).Code, target)
	}
}

func TestMaterials_ETag(t *testing.T) {
	env := newTestEnv(t, nil, testFilters)

	rec := env.do(t, http.MethodGet, "/api/materials", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.Equal(t, "fresh", rec.Header().Get("X-Data-Status"))

	rec = env.do(t, http.MethodGet, "/api/materials", http.Header{"If-None-Match": {etag}})
	assert.Equal(t, http.StatusNotModified, rec.Code)

	// A refresh replaces the generation.
	_, err := env.store.Refresh(context.Background())
	require.NoError(t, err)
	rec = env.do(t, http.MethodGet, "/api/materials", http.Header{"If-None-Match": {etag}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, etag, rec.Header().Get("ETag"))
}

func TestMaterials_HTMXEmptyState(t *testing.T) {
	env := newTestEnv(t, nil, testFilters)

	rec := env.do(t, http.MethodGet, "/api/materials?keywords=relatividad", http.Header{"Hx-Request": {"true"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "empty-state")
}

func TestMaterials_StaleAfterFailure(t *testing.T) {
	env := newTestEnv(t, nil, testFilters)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/materials", nil).Code)

	env.source.fail(&core.FetchError{Err: errors.New("connection refused")})
	rec := env.do(t, http.MethodPost, "/api/cache/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.StatusStale, decode[RefreshResponse](t, rec).Status)

	rec = env.do(t, http.MethodGet, "/api/materials?keywords=ondas", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[MaterialsResponse](t, rec)
	assert.Equal(t, []string{"Ondas"}, itemTitles(resp.Items))

	info := decode[core.CacheInfo](t, env.do(t, http.MethodGet, "/api/cache", nil))
	assert.Equal(t, core.StatusStale, info.LastStatus)
	assert.Contains(t, info.LastError, "connection refused")
}

func TestMaterials_ErrorStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not configured", core.ErrSourceNotConfigured, http.StatusInternalServerError, "CFG001"},
		{"upstream status", &core.FetchError{StatusCode: 404, Err: errors.New("not found")}, http.StatusBadGateway, "SRC002"},
		{"network", &core.FetchError{Err: errors.New("connection refused")}, http.StatusBadGateway, "SRC003"},
		{"timeout", &core.FetchError{Err: context.DeadlineExceeded}, http.StatusGatewayTimeout, "SRC001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil, testFilters)
			env.source.fail(tt.err)

			rec := env.do(t, http.MethodGet, "/api/materials", nil)
			assert.Equal(t, tt.wantStatus, rec.Code)

			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.NotEmpty(t, resp.Timestamp)
			assert.Empty(t, resp.Details)
		})
	}
}

func TestErrors_DetailsOnlyInDebug(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging.Level = "debug"
	env := newTestEnv(t, cfg, testFilters)
	env.source.fail(core.ErrSourceNotConfigured)

	rec := env.do(t, http.MethodGet, "/api/materials", nil)
	assert.Contains(t, decode[ErrorResponse](t, rec).Details, "SHEET_URL")
}

func TestErrors_HTMXFragment(t *testing.T) {
	env := newTestEnv(t, nil, testFilters)
	env.source.fail(core.ErrSourceNotConfigured)

	rec := env.do(t, http.MethodGet, "/api/materials", http.Header{"Hx-Request": {"true"}})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "alert-error")
	assert.Contains(t, rec.Body.String(), "CFG001")
}

func TestFilters(t *testing.T) {
	env := newTestEnv(t, nil, testFilters)

	rec := env.do(t, http.MethodGet, "/api/filters", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	filters := decode[[]FilterResponse](t, rec)

	require.Len(t, filters, 3)
	assert.Equal(t, "Tipo", filters[0].Label)
	assert.Equal(t, []string{"Ejercicio", "Guía", "Teoría"}, filters[0].Options)
	assert.Equal(t, "Nivel", filters[1].Label)
	assert.Equal(t, []string{"1° Medio", "2° Medio", "3° Medio"}, filters[1].Options)
	assert.Equal(t, core.FieldKey("tipoejercicio"), filters[2].Field)
	assert.Equal(t, []string{"Alternativas", "Desarrollo"}, filters[2].Options)
}

func TestFilters_AutoDetected(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(t, http.MethodGet, "/api/filters", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	filters := decode[[]FilterResponse](t, rec)

	labels := make([]string, len(filters))
	for i, f := range filters {
		labels[i] = f.Label
	}
	assert.Contains(t, labels, "tipo")
	assert.Contains(t, labels, "nivel")
	assert.IsIncreasing(t, labels)
}

func TestOptions(t *testing.T) {
	env := newTestEnv(t, nil, testFilters)

	rec := env.do(t, http.MethodGet, "/api/options", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	options := decode[map[string][]string](t, rec)

	assert.Equal(t, []string{"Ejercicio", "Guía", "Teoría"}, options["tipo"])
	assert.NotContains(t, options, "tema")
}

func TestCacheEndpoints(t *testing.T) {
	env := newTestEnv(t, nil, testFilters)

	info := decode[core.CacheInfo](t, env.do(t, http.MethodGet, "/api/cache", nil))
	assert.False(t, info.HasCache)

	rec := env.do(t, http.MethodPost, "/api/cache/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	refreshed := decode[RefreshResponse](t, rec)
	assert.Equal(t, core.StatusFresh, refreshed.Status)
	assert.Equal(t, 4, refreshed.Records)

	info = decode[core.CacheInfo](t, env.do(t, http.MethodGet, "/api/cache", nil))
	assert.True(t, info.HasCache)
	assert.Equal(t, 4, info.RecordCount)
	assert.Equal(t, refreshed.Generation, info.Generation)

	rec = env.do(t, http.MethodPost, "/api/cache/clear", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[core.CacheInfo](t, rec).HasCache)
}

func TestCacheEndpoints_RequireAPIKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"secret"}
	env := newTestEnv(t, cfg, testFilters)

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/api/cache/clear", nil).Code)
	assert.Equal(t, http.StatusOK,
		env.do(t, http.MethodPost, "/api/cache/clear", http.Header{"X-Api-Key": {"secret"}}).Code)

	// Read endpoints stay open.
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/cache", nil).Code)
}

func TestSheetCSV(t *testing.T) {
	env := newTestEnv(t, nil, testFilters)

	rec := env.do(t, http.MethodGet, "/api/sheet.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, catalogCSV, rec.Body.String())

	h := rec.Header()
	assert.Equal(t, "text/csv; charset=utf-8", h.Get("Content-Type"))
	assert.Equal(t, "public, max-age=300, s-maxage=300", h.Get("Cache-Control"))
	assert.Equal(t, "noindex, nofollow", h.Get("X-Robots-Tag"))
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Equal(t, "*", h.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET", h.Get("Access-Control-Allow-Methods"))
}

func TestSheetCSV_Methods(t *testing.T) {
	env := newTestEnv(t, nil, testFilters)

	rec := env.do(t, http.MethodPost, "/api/sheet.csv", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Body.String(), "Method not allowed")

	rec = env.do(t, http.MethodOptions, "/api/sheet.csv", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSheetCSV_Errors(t *testing.T) {
	env := newTestEnv(t, nil, testFilters)
	env.source.fail(&core.FetchError{Err: context.DeadlineExceeded})

	rec := env.do(t, http.MethodGet, "/api/sheet.csv", nil)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSheetCSV_Busy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Source.ProxyConcurrency = 1
	cfg.Source.ProxyMaxWait = 10 * time.Millisecond
	env := newTestEnv(t, cfg, testFilters)

	require.NoError(t, env.server.slots.Acquire(context.Background()))
	defer env.server.slots.Release()

	rec := env.do(t, http.MethodGet, "/api/sheet.csv", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE002", decode[ErrorResponse](t, rec).Code)
	assert.Equal(t, 1, env.server.ProxyStatus().Active)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil, testFilters)

	rec := env.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, HealthResponse{Status: "ok"}, decode[HealthResponse](t, rec))
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t, nil, testFilters)

	rec := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.True(t, strings.Contains(rec.Header().Get("Content-Security-Policy"), "default-src 'none'"))
	assert.Empty(t, rec.Header().Get("X-Robots-Tag"))
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.Rate.Enabled = true
	cfg.Rate.RequestsPerMinute = 1
	cfg.Rate.Burst = 2
	env := newTestEnv(t, cfg, testFilters)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", nil).Code)
	}
	rec := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE001", decode[ErrorResponse](t, rec).Code)
}
