package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bernd/novpn/blocklist"
	"github.com/bernd/novpn/config"
	"github.com/bernd/novpn/version"
	"golang.org/x/time/rate"
)

// Info summarizes the running service for `novpn info`.
type Info struct {
	Version     version.Info              `json:"version"`
	IPs         int                       `json:"ips"`
	Ranges      int                       `json:"ranges"`
	Sources     int                       `json:"sources"`
	Interval    time.Duration             `json:"interval"`
	Scheduled   bool                      `json:"scheduled"`
	LastRefresh *blocklist.RefreshOutcome `json:"last_refresh,omitempty"`
}

// CheckResult is the /check response.
type CheckResult struct {
	IP      string `json:"ip"`
	Blocked bool   `json:"blocked"`
}

// Controller is the service surface behind the admin API; *Server
// implements it.
type Controller interface {
	Info() Info
	IsBlocked(addr string) bool
	Reload(ctx context.Context) (blocklist.RefreshOutcome, error)
	Permissions() *Permissions
}

// ControlAPI serves the admin endpoints. Only peers holding the admin
// permission may call it.
type ControlAPI struct {
	mux     *http.ServeMux
	ctl     Controller
	log     *LogBuffer
	limiter *rate.Limiter
}

func NewControlAPI(ctl Controller, log *LogBuffer) *ControlAPI {
	api := &ControlAPI{
		mux:     http.NewServeMux(),
		ctl:     ctl,
		log:     log,
		limiter: rate.NewLimiter(100, 20), // 100 req/s, burst 20
	}
	api.mux.HandleFunc("GET /info", api.handleInfo)
	api.mux.HandleFunc("GET /check", api.handleCheck)
	api.mux.HandleFunc("POST /reload", api.handleReload)
	api.mux.HandleFunc("GET /logs", api.handleLogs)
	api.mux.HandleFunc("GET /stats", api.handleStats)
	return api
}

func (a *ControlAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !a.limiter.Allow() {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}
	addr, ok := remoteAddr(r.RemoteAddr)
	if !ok || !a.ctl.Permissions().HasPermission(addr, config.AdminPermission) {
		http.Error(w, "permission denied", http.StatusForbidden)
		return
	}
	a.mux.ServeHTTP(w, r)
}

func (a *ControlAPI) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.ctl.Info())
}

func (a *ControlAPI) handleCheck(w http.ResponseWriter, r *http.Request) {
	ip := strings.TrimSpace(r.URL.Query().Get("ip"))
	if ip == "" {
		http.Error(w, `{"error":"ip required"}`, http.StatusBadRequest)
		return
	}
	writeJSON(w, CheckResult{IP: ip, Blocked: a.ctl.IsBlocked(ip)})
}

func (a *ControlAPI) handleReload(w http.ResponseWriter, r *http.Request) {
	outcome, err := a.ctl.Reload(r.Context())
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{"error": err.Error(), "outcome": outcome})
		return
	}
	writeJSON(w, outcome)
}

func (a *ControlAPI) handleLogs(w http.ResponseWriter, r *http.Request) {
	var afterID uint64
	if s := r.URL.Query().Get("after"); s != "" {
		afterID, _ = strconv.ParseUint(s, 10, 64)
	}
	writeJSON(w, a.log.EntriesAfter(afterID))
}

func (a *ControlAPI) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.log.Stats())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
