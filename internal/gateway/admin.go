package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wudi/portway/internal/config"
	"github.com/wudi/portway/internal/errors"
	"github.com/wudi/portway/internal/plugin"
)

// Version is stamped at build time.
var Version = "dev"

// adminHandler serves the management API and the Prometheus endpoint.
func (s *Server) adminHandler() http.Handler {
	r := httprouter.New()

	r.GET("/admin/", s.adminInfo)
	r.GET("/admin/status", s.adminStatus)

	r.GET("/admin/upstreams", s.adminListUpstreams)
	r.POST("/admin/upstreams", s.adminCreateUpstream)
	r.GET("/admin/upstreams/:name", s.adminGetUpstream)
	r.DELETE("/admin/upstreams/:name", s.adminDeleteUpstream)
	r.GET("/admin/upstreams/:name/targets", s.adminListTargets)
	r.POST("/admin/upstreams/:name/targets", s.adminAddTarget)
	r.DELETE("/admin/upstreams/:name/targets", s.adminRemoveTarget)
	r.GET("/admin/upstreams/:name/health", s.adminUpstreamHealth)

	r.GET("/admin/services", s.adminListServices)
	r.GET("/admin/routes", s.adminListRoutes)
	r.GET("/admin/plugins", s.adminListPlugins)

	r.Handler(http.MethodGet, "/metrics",
		promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))

	r.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		errors.ErrRouteNotFound.WriteJSON(w)
	})
	r.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		errors.New(http.StatusMethodNotAllowed, "method not allowed").WriteJSON(w)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) adminInfo(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    "portway",
		"version": Version,
		"status":  "running",
	})
}

func (s *Server) adminStatus(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	cfg := s.gateway.Config()

	routes := 0
	for _, svc := range s.gateway.Router().Services() {
		routes += len(svc.Routes)
	}

	upstreams := make(map[string]any)
	for _, snap := range s.gateway.Upstreams().SnapshotAll() {
		healthy := 0
		for _, t := range snap.Targets {
			if t.Healthy {
				healthy++
			}
		}
		upstreams[snap.Name] = map[string]any{
			"targets":   len(snap.Targets),
			"healthy":   healthy,
			"algorithm": snap.Algorithm,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"version":        Version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"services":       len(cfg.Services),
		"routes":         routes,
		"plugins":        plugin.Names(),
		"upstreams":      upstreams,
	})
}

func (s *Server) adminListUpstreams(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, s.gateway.Upstreams().SnapshotAll())
}

func (s *Server) adminCreateUpstream(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var cfg config.UpstreamConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		errors.ErrBadRequest.WithDetail("invalid upstream body").WriteJSON(w)
		return
	}
	if cfg.Name == "" {
		errors.ErrBadRequest.WithDetail("upstream name is required").WriteJSON(w)
		return
	}

	if _, exists := s.gateway.Upstreams().Get(cfg.Name); exists {
		errors.New(http.StatusConflict, "upstream already exists").WriteJSON(w)
		return
	}
	if err := s.gateway.Upstreams().AddUpstream(cfg); err != nil {
		errors.ErrBadRequest.WithDetail(err.Error()).WriteJSON(w)
		return
	}

	snap, _ := s.gateway.Upstreams().Snapshot(cfg.Name)
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) adminGetUpstream(w http.ResponseWriter, _ *http.Request, p httprouter.Params) {
	snap, ok := s.gateway.Upstreams().Snapshot(p.ByName("name"))
	if !ok {
		errors.New(http.StatusNotFound, "upstream not found").WriteJSON(w)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) adminDeleteUpstream(w http.ResponseWriter, _ *http.Request, p httprouter.Params) {
	if !s.gateway.Upstreams().RemoveUpstream(p.ByName("name")) {
		errors.New(http.StatusNotFound, "upstream not found").WriteJSON(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) adminListTargets(w http.ResponseWriter, _ *http.Request, p httprouter.Params) {
	snap, ok := s.gateway.Upstreams().Snapshot(p.ByName("name"))
	if !ok {
		errors.New(http.StatusNotFound, "upstream not found").WriteJSON(w)
		return
	}
	writeJSON(w, http.StatusOK, snap.Targets)
}

func (s *Server) adminAddTarget(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	var tc config.TargetConfig
	if err := json.NewDecoder(r.Body).Decode(&tc); err != nil {
		errors.ErrBadRequest.WithDetail("invalid target body").WriteJSON(w)
		return
	}

	if err := s.gateway.Upstreams().AddTarget(p.ByName("name"), tc); err != nil {
		if _, exists := s.gateway.Upstreams().Get(p.ByName("name")); !exists {
			errors.New(http.StatusNotFound, "upstream not found").WriteJSON(w)
			return
		}
		errors.ErrBadRequest.WithDetail(err.Error()).WriteJSON(w)
		return
	}

	snap, _ := s.gateway.Upstreams().Snapshot(p.ByName("name"))
	writeJSON(w, http.StatusCreated, snap.Targets)
}

func (s *Server) adminRemoveTarget(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	targetName := r.URL.Query().Get("target")
	if targetName == "" {
		errors.ErrBadRequest.WithDetail("target query parameter is required").WriteJSON(w)
		return
	}

	if err := s.gateway.Upstreams().RemoveTarget(p.ByName("name"), targetName); err != nil {
		errors.New(http.StatusNotFound, err.Error()).WriteJSON(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) adminUpstreamHealth(w http.ResponseWriter, _ *http.Request, p httprouter.Params) {
	snap, ok := s.gateway.Upstreams().Snapshot(p.ByName("name"))
	if !ok {
		errors.New(http.StatusNotFound, "upstream not found").WriteJSON(w)
		return
	}

	health := make([]map[string]any, 0, len(snap.Targets))
	for _, t := range snap.Targets {
		health = append(health, map[string]any{
			"target":             t.Host,
			"port":               t.Port,
			"healthy":            t.Healthy,
			"active_connections": t.Active,
			"circuit_breaker":    t.Breaker,
		})
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) adminListServices(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, s.gateway.Config().Services)
}

type routeListing struct {
	Service   string   `json:"service"`
	Upstream  string   `json:"upstream"`
	Paths     []string `json:"paths"`
	Methods   []string `json:"methods"`
	StripPath bool     `json:"strip_path"`
	Plugins   []string `json:"plugins"`
}

func (s *Server) adminListRoutes(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	listings := make([]routeListing, 0)
	for _, svc := range s.gateway.Router().Services() {
		for _, route := range svc.Routes {
			listing := routeListing{
				Service:   svc.Name,
				Upstream:  svc.Upstream,
				Paths:     route.Paths,
				StripPath: route.StripPath,
			}
			for method := range route.Methods {
				listing.Methods = append(listing.Methods, method)
			}
			for _, p := range route.Plugins {
				if p.IsEnabled() {
					listing.Plugins = append(listing.Plugins, p.Name)
				}
			}
			listings = append(listings, listing)
		}
	}
	writeJSON(w, http.StatusOK, listings)
}

func (s *Server) adminListPlugins(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]any{
		"available":  plugin.Names(),
		"configured": s.gateway.Config().Plugins,
	})
}
