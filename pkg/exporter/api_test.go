package exporter

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laik/xnet/pkg/pipeline"
)

type fakeAttacher struct {
	attached map[string]bool
}

func (f *fakeAttacher) Attach(iface string, _ bool) error {
	f.attached[iface] = true
	return nil
}

func (f *fakeAttacher) Detach(iface string) error {
	if !f.attached[iface] {
		return assert.AnError
	}
	delete(f.attached, iface)
	return nil
}

func (f *fakeAttacher) Attached() []string {
	out := make([]string, 0, len(f.attached))
	for iface := range f.attached {
		out = append(out, iface)
	}
	return out
}

func newTestServer(apiKey string) (*APIServer, *pipeline.Tables, *fakeAttacher) {
	gin.SetMode(gin.TestMode)
	tables := pipeline.NewTables(pipeline.DefaultTableSizes())
	devices := pipeline.NewDeviceRegistry(tables)
	fa := &fakeAttacher{attached: make(map[string]bool)}
	return NewAPIServer(apiKey, tables, devices, fa), tables, fa
}

func doRequest(h http.Handler, method, path, apiKey, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAPIAuth(t *testing.T) {
	srv, _, _ := newTestServer("secret")
	h := srv.Handler()

	assert.Equal(t, http.StatusUnauthorized, doRequest(h, http.MethodGet, "/traffic", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(h, http.MethodGet, "/traffic", "wrong", "").Code)
	assert.Equal(t, http.StatusOK, doRequest(h, http.MethodGet, "/traffic", "secret", "").Code)
}

func TestAPIPorts(t *testing.T) {
	srv, tables, _ := newTestServer("")
	tables.Totals.Record(1600)
	tables.PortStats.Put(80, pipeline.TrafficCounters{Packets: 3, Bytes: 1600, LastSeen: 1})

	w := doRequest(srv.Handler(), http.MethodGet, "/traffic/ports", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		TotalPackets uint64 `json:"total_packets"`
		TotalBytes   uint64 `json:"total_bytes"`
		Ports        []struct {
			Port    uint16 `json:"port"`
			Packets uint64 `json:"packets"`
		} `json:"ports"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint64(1), resp.TotalPackets)
	assert.Equal(t, uint64(1600), resp.TotalBytes)
	require.Len(t, resp.Ports, 1)
	assert.Equal(t, uint16(80), resp.Ports[0].Port)
	assert.Equal(t, uint64(3), resp.Ports[0].Packets)
}

func TestAPIDeviceAddRemove(t *testing.T) {
	srv, tables, _ := newTestServer("")
	h := srv.Handler()

	w := doRequest(h, http.MethodPost, "/devices", "", `{"name":"veth0","action":"add"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		DeviceID uint32 `json:"device_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint32(1), resp.DeviceID)

	_, ok := tables.DeviceContext.Get(resp.DeviceID)
	assert.True(t, ok)

	w = doRequest(h, http.MethodPost, "/devices", "", `{"name":"veth0","action":"remove"}`)
	require.Equal(t, http.StatusOK, w.Code)

	_, ok = tables.DeviceContext.Get(resp.DeviceID)
	assert.False(t, ok)
}

func TestAPIDeviceBadAction(t *testing.T) {
	srv, _, _ := newTestServer("")
	w := doRequest(srv.Handler(), http.MethodPost, "/devices", "", `{"name":"eth0","action":"toggle"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPIAttachDetach(t *testing.T) {
	srv, _, fa := newTestServer("")
	h := srv.Handler()

	w := doRequest(h, http.MethodPost, "/attach", "", `{"iface":"eth1","action":"add"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, fa.attached["eth1"])

	w = doRequest(h, http.MethodPost, "/attach", "", `{"iface":"eth1","action":"remove"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, fa.attached["eth1"])

	w = doRequest(h, http.MethodPost, "/attach", "", `{"iface":"eth9","action":"remove"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
