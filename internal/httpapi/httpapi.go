// Package httpapi exposes the two thin HTTP surfaces described by the
// toolkit: editor routes over a cache of parsed regions, and a scanner
// dashboard surface over a coordinator.Registry/Manager pair. Rendering is
// explicitly out of scope; the render/detail routes still exist so a future
// rendering layer has somewhere to attach, but answer 501 here.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/la2geo/geoharvest/internal/apperrors"
	"github.com/la2geo/geoharvest/internal/coordinator"
	"github.com/la2geo/geoharvest/internal/editor"
	"github.com/la2geo/geoharvest/internal/geodata"
)

// Server wires the editor's region cache and the scanner's coordinator onto
// one *http.ServeMux. Either half may be nil — NewServer wires only the
// routes whose dependency is present, so a process running only the editor
// (or only the scanner) doesn't need to fake up the other.
type Server struct {
	cache     *RegionCache
	scanner   *ScanController
	bootstrap *BootstrapRunner
}

// NewServer builds a Server. cache, scanner, and bootstrap may each be nil.
func NewServer(cache *RegionCache, scanner *ScanController, bootstrap *BootstrapRunner) *Server {
	return &Server{cache: cache, scanner: scanner, bootstrap: bootstrap}
}

// Handler builds the routed http.Handler for this server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.cache != nil {
		mux.HandleFunc("GET /api/regions", s.handleListRegions)
		mux.HandleFunc("GET /api/region/{name}/info", s.handleRegionInfo)
		mux.HandleFunc("GET /api/region/{name}/render", s.handleNotImplemented)
		mux.HandleFunc("GET /api/region/{name}/cell", s.handleRegionCell)
		mux.HandleFunc("GET /api/region/{name}/detail", s.handleNotImplemented)
		mux.HandleFunc("POST /api/region/{name}/edit", s.handleRegionEdit)
		mux.HandleFunc("POST /api/region/{name}/unblock", s.handleRegionUnblock)
		mux.HandleFunc("POST /api/region/{name}/save", s.handleRegionSave)
		mux.HandleFunc("GET /api/world2geo", s.handleWorldToGeo)
	}

	if s.scanner != nil {
		mux.HandleFunc("GET /api/status", s.handleStatus)
		mux.HandleFunc("GET /api/events", s.handleEvents)
		mux.HandleFunc("POST /api/scan/start", s.handleScanStart)
		mux.HandleFunc("POST /api/scan/stop", s.handleScanStop)
		mux.HandleFunc("POST /api/scan/reset", s.handleScanReset)
		mux.HandleFunc("POST /api/worker/add", s.handleWorkerAdd)
		mux.HandleFunc("POST /api/worker/remove", s.handleWorkerRemove)
	}

	if s.bootstrap != nil {
		mux.HandleFunc("POST /api/bootstrap", s.handleBootstrap)
	}

	return mux
}

func (s *Server) handleNotImplemented(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "rendering is not implemented by this core", http.StatusNotImplemented)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode json response", "error", err)
	}
}

// writeError maps an apperrors.Kind to the HTTP status a client should see;
// anything not already an *apperrors.Error is a 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperrors.IsKind(err, apperrors.KindFormat):
		status = http.StatusBadRequest
	case apperrors.IsKind(err, apperrors.KindConflict):
		status = http.StatusConflict
	case apperrors.IsKind(err, apperrors.KindTimeout):
		status = http.StatusGatewayTimeout
	case apperrors.IsKind(err, apperrors.KindIO), apperrors.IsKind(err, apperrors.KindProtocol), apperrors.IsKind(err, apperrors.KindCrypto):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// ---- editor routes ----

func (s *Server) handleListRegions(w http.ResponseWriter, r *http.Request) {
	names, err := s.cache.List()
	if err != nil {
		writeError(w, err)
		return
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleRegionInfo(w http.ResponseWriter, r *http.Request) {
	region, err := s.cache.Get(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, editor.Statistics(region))
}

func (s *Server) handleRegionCell(w http.ResponseWriter, r *http.Request) {
	region, err := s.cache.Get(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	cx, cy := queryInt(r, "cx", -1), queryInt(r, "cy", -1)
	inspection, err := editor.InspectCell(region, cx, cy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inspection)
}

type editRequest struct {
	CX     int    `json:"cx"`
	CY     int    `json:"cy"`
	Layer  int    `json:"layer"`
	Height *int16 `json:"height"`
	NSWE   *byte  `json:"nswe"`
}

func (s *Server) handleRegionEdit(w http.ResponseWriter, r *http.Request) {
	region, err := s.cache.Get(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Wrap(apperrors.KindFormat, "httpapi.edit.decode", err))
		return
	}
	if err := editor.EditCell(region, req.CX, req.CY, req.Layer, req.Height, req.NSWE); err != nil {
		writeError(w, err)
		return
	}
	s.cache.MarkDirty(r.PathValue("name"))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type unblockRequest struct {
	CX     int `json:"cx"`
	CY     int `json:"cy"`
	Radius int `json:"radius"`
}

func (s *Server) handleRegionUnblock(w http.ResponseWriter, r *http.Request) {
	region, err := s.cache.Get(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req unblockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Wrap(apperrors.KindFormat, "httpapi.unblock.decode", err))
		return
	}
	modified, err := editor.UnblockArea(region, req.CX, req.CY, req.Radius)
	if err != nil {
		writeError(w, err)
		return
	}
	s.cache.MarkDirty(r.PathValue("name"))
	writeJSON(w, http.StatusOK, map[string]int{"modified": modified})
}

func (s *Server) handleRegionSave(w http.ResponseWriter, r *http.Request) {
	if err := s.cache.Save(r.PathValue("name")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleWorldToGeo(w http.ResponseWriter, r *http.Request) {
	x, y := queryInt(r, "x", 0), queryInt(r, "y", 0)
	rx, ry, cx, cy := geodata.WorldToRegion(x, y)
	writeJSON(w, http.StatusOK, map[string]any{
		"region_x": rx,
		"region_y": ry,
		"cell_x":   cx,
		"cell_y":   cy,
		"file":     strconv.Itoa(rx) + "_" + strconv.Itoa(ry) + ".l2d",
	})
}

// ---- scanner dashboard routes ----

// statusResponse is the aggregate snapshot the dashboard polls or streams.
type statusResponse struct {
	Running     bool                        `json:"running"`
	WorkerCount int                         `json:"worker_count"`
	Regions     []coordinator.RegionState   `json:"regions"`
	Progress    coordinator.ProgressSummary `json:"progress"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scanner.Status())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.scanner.Subscribe()
	defer s.scanner.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

type scanStartRequest struct {
	Workers int    `json:"workers"`
	Mode    string `json:"mode"`
}

func (s *Server) handleScanStart(w http.ResponseWriter, r *http.Request) {
	var req scanStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Wrap(apperrors.KindFormat, "httpapi.scan_start.decode", err))
		return
	}
	if err := s.scanner.Start(r.Context(), req.Workers, req.Mode); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.scanner.Status())
}

func (s *Server) handleScanStop(w http.ResponseWriter, r *http.Request) {
	s.scanner.Stop()
	writeJSON(w, http.StatusOK, s.scanner.Status())
}

func (s *Server) handleScanReset(w http.ResponseWriter, r *http.Request) {
	if err := s.scanner.Reset(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleWorkerAdd(w http.ResponseWriter, r *http.Request) {
	s.scanner.AddWorker()
	writeJSON(w, http.StatusOK, s.scanner.Status())
}

func (s *Server) handleWorkerRemove(w http.ResponseWriter, r *http.Request) {
	s.scanner.RemoveWorker()
	writeJSON(w, http.StatusOK, s.scanner.Status())
}

type bootstrapRequest struct {
	Count int `json:"count"`
}

func (s *Server) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	var req bootstrapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Wrap(apperrors.KindFormat, "httpapi.bootstrap.decode", err))
		return
	}
	s.bootstrap.Start(req.Count)
	writeJSON(w, http.StatusAccepted, map[string]bool{"started": true})
}
