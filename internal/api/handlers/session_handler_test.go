package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/apk-analysis/droidcarve-go/internal/cert"
	"github.com/apk-analysis/droidcarve-go/internal/filter"
	"github.com/apk-analysis/droidcarve-go/internal/packer"
	"github.com/apk-analysis/droidcarve-go/internal/query"
	"github.com/apk-analysis/droidcarve-go/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockInspector Mock 会话
type MockInspector struct {
	mock.Mock
}

func (m *MockInspector) APKPath() string { return "app.apk" }

func (m *MockInspector) Rescan() error {
	return m.Called().Error(0)
}

func (m *MockInspector) Find(pattern string) (iter.Seq[string], error) {
	args := m.Called(pattern)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return slices.Values(args.Get(0).([]string)), args.Error(1)
}

func (m *MockInspector) Statistics() (query.Statistics, error) {
	args := m.Called()
	return args.Get(0).(query.Statistics), args.Error(1)
}

func (m *MockInspector) Permissions() ([]string, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockInspector) Manifest() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *MockInspector) Signatures(ctx context.Context) ([]session.SignatureResult, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]session.SignatureResult), args.Error(1)
}

func (m *MockInspector) DetectPacker() (*packer.PackerInfo, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*packer.PackerInfo), args.Error(1)
}

func (m *MockInspector) AddExclusion(pattern string) error {
	return m.Called(pattern).Error(0)
}

func (m *MockInspector) AddDefaultExclusions() { m.Called() }

func (m *MockInspector) ClearExclusions() { m.Called() }

func (m *MockInspector) Exclusions() []string {
	return m.Called().Get(0).([]string)
}

func setupRouter(inspector Inspector) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	h := NewSessionHandler(inspector, logger)
	r := gin.New()
	r.GET("/api/stats", h.GetStats)
	r.GET("/api/classes", h.FindClasses)
	r.GET("/api/permissions", h.GetPermissions)
	r.GET("/api/manifest", h.GetManifest)
	r.GET("/api/signatures", h.GetSignatures)
	r.GET("/api/packer", h.GetPacker)
	r.GET("/api/exclusions", h.ListExclusions)
	r.POST("/api/exclusions", h.AddExclusion)
	r.DELETE("/api/exclusions", h.ClearExclusions)
	r.POST("/api/rescan", h.Rescan)
	return r
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetStats(t *testing.T) {
	m := new(MockInspector)
	m.On("Statistics").Return(query.Statistics{ClassCount: 10, PermissionCount: 2, ManifestFound: true}, nil)

	w := doRequest(setupRouter(m), http.MethodGet, "/api/stats", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(10), resp["class_count"])
	assert.Equal(t, true, resp["manifest_found"])
	m.AssertExpectations(t)
}

func TestGetStats_NotAnalyzed(t *testing.T) {
	m := new(MockInspector)
	m.On("Statistics").Return(query.Statistics{}, session.ErrNotAnalyzed)

	w := doRequest(setupRouter(m), http.MethodGet, "/api/stats", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestFindClasses(t *testing.T) {
	m := new(MockInspector)
	m.On("Find", "Lcom/example").Return([]string{"Lcom/example/A;", "Lcom/example/B;", "Lcom/example/C;"}, nil)

	w := doRequest(setupRouter(m), http.MethodGet, "/api/classes?pattern=Lcom/example&limit=2", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Count   int      `json:"count"`
		Classes []string `json:"classes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, []string{"Lcom/example/A;", "Lcom/example/B;"}, resp.Classes)
}

func TestFindClasses_InvalidPattern(t *testing.T) {
	m := new(MockInspector)
	m.On("Find", "a)(b").Return(nil, filter.ErrInvalidPattern)

	w := doRequest(setupRouter(m), http.MethodGet, "/api/classes?pattern=a)(b", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(setupRouter(m), http.MethodGet, "/api/classes?pattern=L&limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetPermissions(t *testing.T) {
	m := new(MockInspector)
	m.On("Permissions").Return([]string{"android.permission.INTERNET", "com.example.CUSTOM"}, nil)

	w := doRequest(setupRouter(m), http.MethodGet, "/api/permissions", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Permissions []PermissionItem `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Permissions, 2)
	assert.Equal(t, "standard", string(resp.Permissions[0].Kind))
	assert.Equal(t, "custom", string(resp.Permissions[1].Kind))
}

func TestGetPermissions_ManifestMissing(t *testing.T) {
	m := new(MockInspector)
	m.On("Permissions").Return(nil, session.ErrManifestNotFound)
	m.On("Manifest").Return("", session.ErrManifestNotFound)

	r := setupRouter(m)
	assert.Equal(t, http.StatusNotFound, doRequest(r, http.MethodGet, "/api/permissions", "").Code)
	assert.Equal(t, http.StatusNotFound, doRequest(r, http.MethodGet, "/api/manifest", "").Code)
}

func TestGetManifest(t *testing.T) {
	m := new(MockInspector)
	m.On("Manifest").Return("<manifest/>", nil)

	w := doRequest(setupRouter(m), http.MethodGet, "/api/manifest", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<manifest/>", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "application/xml")
}

func TestGetSignatures(t *testing.T) {
	m := new(MockInspector)
	m.On("Signatures").Return([]session.SignatureResult{
		{File: "META-INF/CERT.RSA", Certificate: &cert.Certificate{Developer: "Jane", Company: "Example"}},
		{File: "META-INF/OTHER.RSA", Err: errors.New("keytool failed")},
	}, nil)

	w := doRequest(setupRouter(m), http.MethodGet, "/api/signatures", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Signatures []SignatureItem `json:"signatures"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Signatures, 2)
	assert.Equal(t, "Jane", resp.Signatures[0].Developer)
	assert.Equal(t, "keytool failed", resp.Signatures[1].Error)
}

func TestGetPacker(t *testing.T) {
	m := new(MockInspector)
	m.On("DetectPacker").Return(&packer.PackerInfo{IsPacked: true, PackerName: "DexGuard"}, nil)

	w := doRequest(setupRouter(m), http.MethodGet, "/api/packer", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "DexGuard")
}

func TestExclusions(t *testing.T) {
	m := new(MockInspector)
	m.On("AddExclusion", "Landroid/").Return(nil)
	m.On("AddExclusion", "[z-a]").Return(filter.ErrInvalidPattern)
	m.On("AddDefaultExclusions").Return()
	m.On("ClearExclusions").Return()
	m.On("Exclusions").Return([]string{"Landroid/"})

	r := setupRouter(m)

	w := doRequest(r, http.MethodPost, "/api/exclusions", `{"pattern":"Landroid/"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "Landroid/")

	w = doRequest(r, http.MethodPost, "/api/exclusions", `{"pattern":"[z-a]"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPost, "/api/exclusions", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPost, "/api/exclusions", `{"defaults":true}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(r, http.MethodGet, "/api/exclusions", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodDelete, "/api/exclusions", "")
	assert.Equal(t, http.StatusOK, w.Code)

	m.AssertCalled(t, "AddDefaultExclusions")
	m.AssertCalled(t, "ClearExclusions")
}

func TestRescan(t *testing.T) {
	m := new(MockInspector)
	m.On("Rescan").Return(nil)
	m.On("Statistics").Return(query.Statistics{ClassCount: 3}, nil)

	w := doRequest(setupRouter(m), http.MethodPost, "/api/rescan", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"class_count":3`)
}

func TestRescan_Failure(t *testing.T) {
	m := new(MockInspector)
	m.On("Rescan").Return(errors.New("disassembly root unreadable"))

	w := doRequest(setupRouter(m), http.MethodPost, "/api/rescan", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
