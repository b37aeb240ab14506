package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/choisimo/proxy-rotator/internal/domain"
	"github.com/choisimo/proxy-rotator/pkg/logger"
)

// defaultSnapshotFile is used by save/load when neither the request body nor
// the pool config names a path.
const defaultSnapshotFile = "proxy_pool.json"

// AdminHandler provides the administrative proxy-pool API
type AdminHandler struct {
	pool   domain.ProxyPool
	logger *logger.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(pool domain.ProxyPool, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		pool:   pool,
		logger: log,
	}
}

// AddProxyRequest represents a request to register a proxy
type AddProxyRequest struct {
	ID       string `json:"id,omitempty"`
	Address  string `json:"address"`
	Protocol string `json:"protocol,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Country  string `json:"country,omitempty"`
	City     string `json:"city,omitempty"`
}

// RotateTestRequest controls how many selections a rotation test performs
type RotateTestRequest struct {
	Count int `json:"count,omitempty"`
}

// RotateTestResult is one selection in a rotation test sequence
type RotateTestResult struct {
	Attempt int    `json:"attempt"`
	ProxyID string `json:"proxyId,omitempty"`
	Address string `json:"address,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ResetStatsRequest optionally narrows a stats reset to one proxy
type ResetStatsRequest struct {
	ProxyID string `json:"proxyId,omitempty"`
}

// SnapshotRequest optionally overrides the snapshot path for save/load
type SnapshotRequest struct {
	Path string `json:"path,omitempty"`
}

// ListProxiesHandler handles GET /admin/proxy-pool
func (h *AdminHandler) ListProxiesHandler(w http.ResponseWriter, r *http.Request) {
	proxies := h.pool.ListProxies()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"proxies": proxies,
		"count":   len(proxies),
	})

	h.logger.WithFields(map[string]interface{}{
		"component": "admin_api",
		"action":    "list_proxies",
		"count":     len(proxies),
	}).Debug("Listed proxies")
}

// AddProxyHandler handles POST /admin/proxy-pool
func (h *AdminHandler) AddProxyHandler(w http.ResponseWriter, r *http.Request) {
	var req AddProxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	proxy := &domain.ProxyEndpoint{
		ID:       req.ID,
		Address:  req.Address,
		Protocol: req.Protocol,
		Username: req.Username,
		Password: req.Password,
		Country:  req.Country,
		City:     req.City,
	}
	if err := h.pool.AddProxy(proxy); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, proxy)

	h.logger.WithFields(map[string]interface{}{
		"component": "admin_api",
		"action":    "add_proxy",
		"proxy_id":  proxy.ID,
		"address":   proxy.Address,
	}).Info("Added proxy")
}

// GetProxyHandler handles GET /admin/proxy-pool/{id}
func (h *AdminHandler) GetProxyHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	proxy, err := h.pool.GetProxy(id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, proxy)
}

// DeleteProxyHandler handles DELETE /admin/proxy-pool/{id}
func (h *AdminHandler) DeleteProxyHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.pool.RemoveProxy(id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "removed",
		"proxyId": id,
	})

	h.logger.WithFields(map[string]interface{}{
		"component": "admin_api",
		"action":    "delete_proxy",
		"proxy_id":  id,
	}).Info("Removed proxy")
}

// PatchProxyHandler handles PATCH /admin/proxy-pool/{id}
func (h *AdminHandler) PatchProxyHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var patch domain.ProxyPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	proxy, err := h.pool.UpdateProxy(id, patch)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, proxy)

	h.logger.WithFields(map[string]interface{}{
		"component": "admin_api",
		"action":    "patch_proxy",
		"proxy_id":  id,
	}).Info("Updated proxy")
}

// GetConfigHandler handles GET /admin/proxy-pool-config
func (h *AdminHandler) GetConfigHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pool.Config())
}

// PatchConfigHandler handles PATCH /admin/proxy-pool-config
func (h *AdminHandler) PatchConfigHandler(w http.ResponseWriter, r *http.Request) {
	cfg := h.pool.Config()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.pool.UpdateConfig(cfg); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.pool.Config())

	h.logger.WithFields(map[string]interface{}{
		"component": "admin_api",
		"action":    "update_config",
		"strategy":  string(cfg.Strategy),
	}).Info("Updated pool config")
}

// RotateTestHandler handles POST /admin/proxy-rotate-test. It performs a
// burst of real selections so operators can observe strategy behavior; the
// selections count against usage stats like any other.
func (h *AdminHandler) RotateTestHandler(w http.ResponseWriter, r *http.Request) {
	req := RotateTestRequest{Count: 5}
	if r.Body != nil {
		// An empty or malformed body keeps the default count
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Count < 1 || req.Count > 100 {
		writeErrorMessage(w, http.StatusBadRequest, "count must be between 1 and 100")
		return
	}

	results := make([]RotateTestResult, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		result := RotateTestResult{Attempt: i + 1}
		proxy, err := h.pool.GetNextProxy()
		if err != nil {
			result.Error = err.Error()
		} else {
			result.ProxyID = proxy.ID
			result.Address = proxy.Address
		}
		results = append(results, result)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"strategy": h.pool.Config().Strategy,
		"count":    req.Count,
		"results":  results,
	})
}

// TriggerHealthCheckHandler handles POST /admin/proxy-health-check. The
// sweep runs asynchronously; 202 means started, not finished.
func (h *AdminHandler) TriggerHealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	h.pool.RunHealthCheckNow()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "health check started",
	})
}

// ResetStatsHandler handles POST /admin/proxy-reset-stats
func (h *AdminHandler) ResetStatsHandler(w http.ResponseWriter, r *http.Request) {
	var req ResetStatsRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	if req.ProxyID != "" {
		if err := h.pool.ResetProxyStats(req.ProxyID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "reset",
			"proxyId": req.ProxyID,
		})
		return
	}

	h.pool.ResetStats()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// SavePoolHandler handles POST /admin/proxy-save
func (h *AdminHandler) SavePoolHandler(w http.ResponseWriter, r *http.Request) {
	path := h.snapshotPath(r)

	if err := h.pool.SaveToFile(path); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "saved",
		"path":   path,
	})
}

// LoadPoolHandler handles POST /admin/proxy-load
func (h *AdminHandler) LoadPoolHandler(w http.ResponseWriter, r *http.Request) {
	path := h.snapshotPath(r)

	if err := h.pool.LoadFromFile(path); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "loaded",
		"path":    path,
		"proxies": len(h.pool.ListProxies()),
	})
}

// snapshotPath resolves the snapshot path with precedence: request body,
// configured persistence path, fixed default.
func (h *AdminHandler) snapshotPath(r *http.Request) string {
	var req SnapshotRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Path != "" {
		return req.Path
	}
	if p := h.pool.Config().PersistencePath; p != "" {
		return p
	}
	return defaultSnapshotFile
}

// StatsHandler handles GET /admin/proxy-stats
func (h *AdminHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pool.Stats())
}
