package handler

import (
	"encoding/json"
	"net/http"

	"github.com/choisimo/proxy-rotator/internal/domain"
	"github.com/choisimo/proxy-rotator/pkg/logger"
)

// ProxyHandler provides the caller-facing rotation API: pick a proxy, then
// report how using it went.
type ProxyHandler struct {
	pool   domain.ProxyPool
	logger *logger.Logger
}

// NewProxyHandler creates a new proxy handler
func NewProxyHandler(pool domain.ProxyPool, log *logger.Logger) *ProxyHandler {
	return &ProxyHandler{
		pool:   pool,
		logger: log,
	}
}

// NextProxyResponse is the selection payload handed to callers. It carries
// credentials because the caller needs them to connect, and omits the
// internal counters.
type NextProxyResponse struct {
	ID       string `json:"id"`
	Address  string `json:"address"`
	Protocol string `json:"protocol"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Country  string `json:"country,omitempty"`
	City     string `json:"city,omitempty"`
	ProxyURL string `json:"proxyUrl,omitempty"`
}

// RecordResultRequest reports the outcome of using a proxy
type RecordResultRequest struct {
	ProxyID   string `json:"proxyId"`
	Success   bool   `json:"success"`
	LatencyMs int64  `json:"latencyMs,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// RecordCaptchaRequest reports that a proxy was served a captcha
type RecordCaptchaRequest struct {
	ProxyID string `json:"proxyId"`
	Type    string `json:"type,omitempty"`
}

// NextProxyHandler handles GET|POST /proxy/next
func (h *ProxyHandler) NextProxyHandler(w http.ResponseWriter, r *http.Request) {
	proxy, err := h.pool.GetNextProxy()
	if err != nil {
		writeError(w, err)
		return
	}

	resp := NextProxyResponse{
		ID:       proxy.ID,
		Address:  proxy.Address,
		Protocol: proxy.Protocol,
		Username: proxy.Username,
		Password: proxy.Password,
		Country:  proxy.Country,
		City:     proxy.City,
	}
	if u, err := proxy.ProxyURL(); err == nil {
		resp.ProxyURL = u.String()
	}

	writeJSON(w, http.StatusOK, resp)

	h.logger.WithFields(map[string]interface{}{
		"component": "proxy_api",
		"action":    "next",
		"proxy_id":  proxy.ID,
	}).Debug("Handed out proxy")
}

// RecordResultHandler handles POST /proxy/record
func (h *ProxyHandler) RecordResultHandler(w http.ResponseWriter, r *http.Request) {
	var req RecordResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ProxyID == "" {
		writeErrorMessage(w, http.StatusBadRequest, "proxyId is required")
		return
	}

	if req.Success {
		h.pool.RecordSuccess(req.ProxyID, req.LatencyMs)
	} else {
		h.pool.RecordFailure(req.ProxyID, req.Reason)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// RecordCaptchaHandler handles POST /proxy/captcha
func (h *ProxyHandler) RecordCaptchaHandler(w http.ResponseWriter, r *http.Request) {
	var req RecordCaptchaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ProxyID == "" {
		writeErrorMessage(w, http.StatusBadRequest, "proxyId is required")
		return
	}

	h.pool.RecordCaptcha(req.ProxyID, req.Type)

	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}
