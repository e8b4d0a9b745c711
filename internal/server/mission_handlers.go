package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"aerialplan/internal/geo"
	"aerialplan/internal/optics"
	"aerialplan/internal/pattern"
	"aerialplan/internal/planner"
	"aerialplan/internal/storage"
)

// setupMissionRoutes adds origin, frame conversion and camera endpoints.
func (s *Server) setupMissionRoutes(r *mux.Router) {
	r.HandleFunc("/origin", s.handleGetOrigin).Methods("GET")
	r.HandleFunc("/origin", s.handleSetOrigin).Methods("PUT")
	r.HandleFunc("/origin/reorigin", s.handleReorigin).Methods("POST")

	r.HandleFunc("/frame/enu", s.handleToENU).Methods("POST")
	r.HandleFunc("/frame/geodetic", s.handleToGeodetic).Methods("POST")

	r.HandleFunc("/presets", s.handlePresets).Methods("GET")
	r.HandleFunc("/optics", s.handleOptics).Methods("POST")
}

// JobDetail is a stored job with its plan, when one exists.
type JobDetail struct {
	Job       storage.JobRecord  `json:"job"`
	Current   bool               `json:"current"`
	Waypoints []pattern.Waypoint `json:"waypoints,omitempty"`
	Stats     json.RawMessage    `json:"stats,omitempty"`
	Warnings  json.RawMessage    `json:"warnings,omitempty"`
	Optics    json.RawMessage    `json:"optics,omitempty"`
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := s.store.Job(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	detail := JobDetail{Job: rec}
	if rec.Status == "completed" {
		res, err := s.store.JobResult(id)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		detail.Current = !rec.Stale && s.planner.Frame().IsCurrent(rec.Generation)
		detail.Waypoints = res.Waypoints
		detail.Stats = res.Stats
		detail.Warnings = res.Warnings
		detail.Optics = res.Optics
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleGetOrigin(w http.ResponseWriter, r *http.Request) {
	ref, err := s.pipeline.Origin()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

func (s *Server) handleSetOrigin(w http.ResponseWriter, r *http.Request) {
	var o geo.Origin
	if err := decodeJSON(w, r, &o); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ref, err := s.pipeline.SetOrigin(o)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}

func (s *Server) handleReorigin(w http.ResponseWriter, r *http.Request) {
	var o geo.Origin
	if err := decodeJSON(w, r, &o); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ref, err := s.pipeline.Reorigin(o)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

func (s *Server) handleToENU(w http.ResponseWriter, r *http.Request) {
	var g geo.Geodetic
	if err := decodeJSON(w, r, &g); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := s.planner.Frame().ToENU(g.Latitude, g.Longitude, g.Altitude)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleToGeodetic(w http.ResponseWriter, r *http.Request) {
	var p geo.ENUPoint
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	g, err := s.planner.Frame().ToGeodetic(p)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]optics.CameraSpec)
	for _, name := range optics.PresetNames() {
		cam, err := optics.Preset(name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		out[name] = cam
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleOptics(w http.ResponseWriter, r *http.Request) {
	var req planner.OpticsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := planner.ComputeOptics(req, s.planner.Settings())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
