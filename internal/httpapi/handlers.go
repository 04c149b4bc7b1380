// Package httpapi exposes the control/admin REST surface: configuration
// management, client administration, look capture and output diagnostics.
package httpapi

import (
	"encoding/json"
	"io"
	"net"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/jshea2/NMS-DMX-App/internal/config"
	"github.com/jshea2/NMS-DMX-App/internal/live"
	"github.com/jshea2/NMS-DMX-App/internal/output"
	"github.com/jshea2/NMS-DMX-App/internal/session"
)

// API wires the HTTP routes to the core components.
type API struct {
	cfg       *config.Store
	live      *live.Store
	hub       *session.Hub
	registry  *session.Registry
	scheduler *output.Scheduler
}

// New builds the API handler set.
func New(cfg *config.Store, liveStore *live.Store, hub *session.Hub, registry *session.Registry, scheduler *output.Scheduler) *API {
	return &API{cfg: cfg, live: liveStore, hub: hub, registry: registry, scheduler: scheduler}
}

// Register mounts all routes on the mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/state", a.getState)
	mux.HandleFunc("POST /api/state", a.postState)
	mux.HandleFunc("GET /api/dmx-output", a.getDMXOutput)

	mux.HandleFunc("GET /api/config", a.getConfig)
	mux.HandleFunc("POST /api/config", a.postConfig)
	mux.HandleFunc("POST /api/config/reset", a.resetConfig)
	mux.HandleFunc("GET /api/config/export", a.exportConfig)
	mux.HandleFunc("POST /api/config/import", a.importConfig)

	mux.HandleFunc("GET /api/clients", a.listClients)
	mux.HandleFunc("POST /api/clients/{id}/approve", a.approveClient)
	mux.HandleFunc("POST /api/clients/{id}/deny", a.denyClient)
	mux.HandleFunc("POST /api/clients/{id}/role", a.setClientRole)
	mux.HandleFunc("POST /api/clients/{id}/nickname", a.setClientNickname)
	mux.HandleFunc("DELETE /api/clients/{id}", a.removeClient)

	mux.HandleFunc("POST /api/looks/{id}/capture", a.captureLook)
	mux.HandleFunc("POST /api/layout", a.setActiveLayout)
	mux.HandleFunc("GET /api/network-interfaces", a.networkInterfaces)
}

// callerRole resolves the requester's role from the X-Client-Id header, with
// the loopback override. Absent or unknown ids fail closed to viewer.
func (a *API) callerRole(r *http.Request) session.Role {
	ip := requestIP(r)
	loopback := false
	if parsed := net.ParseIP(ip); parsed != nil && parsed.IsLoopback() {
		loopback = true
	}
	return a.registry.ResolveRole(r.Header.Get("X-Client-Id"), loopback)
}

func (a *API) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.live.Get())
}

func (a *API) postState(w http.ResponseWriter, r *http.Request) {
	if !a.callerRole(r).CanEdit() {
		writeError(w, http.StatusForbidden, "controller access required to change levels")
		return
	}

	var update live.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid update payload")
		return
	}

	state := a.hub.ApplyUpdate(update)
	writeJSON(w, map[string]any{"success": true, "state": state})
}

func (a *API) getDMXOutput(w http.ResponseWriter, r *http.Request) {
	universes := a.scheduler.Snapshot()
	out := make(map[int][]int, len(universes))
	for n, u := range universes {
		values := make([]int, len(u))
		for i, b := range u {
			values[i] = int(b)
		}
		out[n] = values
	}
	writeJSON(w, out)
}

func (a *API) getConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.cfg.Get())
}

func (a *API) postConfig(w http.ResponseWriter, r *http.Request) {
	if !a.callerRole(r).CanAccessSettings() {
		writeError(w, http.StatusForbidden, "editor access required for settings")
		return
	}

	var doc config.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid config format")
		return
	}

	if err := a.cfg.Replace(doc); err != nil {
		log.Error().Err(err).Msg("Config save failed")
		writeError(w, http.StatusInternalServerError, "failed to save config")
		return
	}

	a.applyConfigChange()
	writeJSON(w, map[string]any{"success": true, "config": a.cfg.Get()})
}

func (a *API) resetConfig(w http.ResponseWriter, r *http.Request) {
	if !a.callerRole(r).CanAccessSettings() {
		writeError(w, http.StatusForbidden, "editor access required for settings")
		return
	}

	if err := a.cfg.Reset(); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reset config")
		return
	}

	a.applyConfigChange()
	writeJSON(w, map[string]any{"success": true, "config": a.cfg.Get()})
}

func (a *API) exportConfig(w http.ResponseWriter, r *http.Request) {
	data, err := a.cfg.Export()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to export config")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="dmx-config.json"`)
	w.Write(data)
}

func (a *API) importConfig(w http.ResponseWriter, r *http.Request) {
	if !a.callerRole(r).CanAccessSettings() {
		writeError(w, http.StatusForbidden, "editor access required for settings")
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	if err := a.cfg.Import(data); err != nil {
		writeError(w, http.StatusBadRequest, "invalid config format")
		return
	}

	a.applyConfigChange()
	writeJSON(w, map[string]any{"success": true, "config": a.cfg.Get()})
}

// applyConfigChange reinitializes the live state against the new document,
// rebroadcasts it and restarts the output engine.
func (a *API) applyConfigChange() {
	a.live.Reinitialize(a.cfg.Get())
	a.hub.BroadcastState()
	go a.scheduler.Restart()
}

func (a *API) listClients(w http.ResponseWriter, r *http.Request) {
	if !a.callerRole(r).CanManageClients() {
		writeError(w, http.StatusForbidden, "moderator access required to manage clients")
		return
	}
	writeJSON(w, a.registry.AllWithStatus(a.hub.ActiveIDs()))
}

// targetRole looks up the stored role of the client being administered, so
// the moderator carve-out can be enforced.
func (a *API) targetRole(id string) session.Role {
	doc := a.cfg.Get()
	c := doc.ClientByID(id)
	if c == nil {
		return session.RoleViewer
	}
	return session.ParseRole(c.Role)
}

func (a *API) adminCheck(w http.ResponseWriter, r *http.Request, targetID string) bool {
	caller := a.callerRole(r)
	if !caller.CanManageClients() {
		writeError(w, http.StatusForbidden, "moderator access required to manage clients")
		return false
	}
	if !caller.CanManage(a.targetRole(targetID)) {
		writeError(w, http.StatusForbidden, "editor access required to manage this client")
		return false
	}
	return true
}

func (a *API) approveClient(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !a.adminCheck(w, r, id) {
		return
	}
	if err := a.registry.Approve(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	a.hub.NotifyRole(id, session.RoleController)
	a.hub.BroadcastRoster()
	writeJSON(w, map[string]any{"success": true})
}

func (a *API) denyClient(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !a.adminCheck(w, r, id) {
		return
	}
	if err := a.registry.Deny(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	a.hub.BroadcastRoster()
	writeJSON(w, map[string]any{"success": true})
}

func (a *API) setClientRole(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !a.adminCheck(w, r, id) {
		return
	}

	var body struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	role := session.Role(body.Role)
	if !role.Valid() {
		writeError(w, http.StatusBadRequest, "unknown role")
		return
	}
	// Assigning moderator/editor is editor-only, regardless of the target's
	// current role.
	if !a.callerRole(r).CanManage(role) {
		writeError(w, http.StatusForbidden, "editor access required to assign this role")
		return
	}

	if err := a.registry.SetRole(id, role); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	a.hub.NotifyRole(id, role)
	a.hub.BroadcastRoster()
	writeJSON(w, map[string]any{"success": true})
}

func (a *API) setClientNickname(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !a.adminCheck(w, r, id) {
		return
	}

	var body struct {
		Nickname string `json:"nickname"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := a.registry.SetNickname(id, body.Nickname); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	a.hub.BroadcastRoster()
	writeJSON(w, map[string]any{"success": true})
}

func (a *API) removeClient(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !a.adminCheck(w, r, id) {
		return
	}
	if err := a.registry.Remove(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.hub.CloseClient(id)
	a.hub.BroadcastRoster()
	writeJSON(w, map[string]any{"success": true})
}

// captureLook replaces a look's target map with a snapshot of the current
// live fixture values.
func (a *API) captureLook(w http.ResponseWriter, r *http.Request) {
	if !a.callerRole(r).CanEdit() {
		writeError(w, http.StatusForbidden, "controller access required to capture looks")
		return
	}

	id := r.PathValue("id")
	state := a.live.Get()

	var captured *config.Look
	err := a.cfg.Mutate(func(doc *config.Document) {
		look := doc.LookByID(id)
		if look == nil {
			return
		}
		targets := make(map[string]map[string]float64)
		for _, fixture := range doc.Fixtures {
			channels, ok := state.Fixtures[fixture.ID]
			if !ok {
				continue
			}
			snapshot := make(map[string]float64, len(channels))
			for name, v := range channels {
				snapshot[name] = v
			}
			targets[fixture.ID] = snapshot
		}
		look.Targets = targets
		copied := *look
		captured = &copied
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save look")
		return
	}
	if captured == nil {
		writeError(w, http.StatusNotFound, "look not found")
		return
	}

	writeJSON(w, map[string]any{"success": true, "look": captured})
}

func (a *API) setActiveLayout(w http.ResponseWriter, r *http.Request) {
	if !a.callerRole(r).CanAccessSettings() {
		writeError(w, http.StatusForbidden, "editor access required for settings")
		return
	}

	var body struct {
		LayoutID string `json:"layoutId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := a.cfg.Mutate(func(doc *config.Document) {
		doc.ActiveLayoutID = body.LayoutID
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save layout selection")
		return
	}
	writeJSON(w, map[string]any{"success": true})
}

// networkInterface is one row of the interface picker in the settings UI.
type networkInterface struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Label   string `json:"label"`
}

func (a *API) networkInterfaces(w http.ResponseWriter, r *http.Request) {
	ifaces, err := net.Interfaces()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to enumerate interfaces")
		return
	}

	out := make([]networkInterface, 0)
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || ipNet.IP.To4() == nil {
				continue
			}
			out = append(out, networkInterface{
				Name:    iface.Name,
				Address: ipNet.IP.String(),
				Label:   iface.Name + " (" + ipNet.IP.String() + ")",
			})
		}
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Response encode failed")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "error": message})
}

func requestIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
