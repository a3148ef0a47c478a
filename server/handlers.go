package server

import (
	"net/http"
	"time"

	"github.com/vitrina/pulso/metric"
	"github.com/vitrina/pulso/scheduler"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"running": s.sched.IsRunning(),
		"paused":  s.sched.IsPaused(),
	})
}

// handleEnqueueAll schedules a full re-scoring pass over the active catalog
func (s *Server) handleEnqueueAll(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	count, err := s.sched.EnqueueAll()
	if err != nil {
		s.logger.Errorw("Failed to enqueue full pass", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scheduled_count": count,
	})
}

// handleEnqueueOne schedules the three work items for a single item
func (s *Server) handleEnqueueOne(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	itemID := r.PathValue("itemID")
	if itemID == "" {
		writeError(w, http.StatusBadRequest, "missing item ID")
		return
	}

	ids, err := s.sched.EnqueueOne(itemID)
	if err != nil {
		// Unknown or inactive items are rejected without touching queue state
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"item_id":       itemID,
		"work_item_ids": ids,
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	ok, message := s.sched.Start()
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": ok, "message": message})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	ok, message := s.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": ok, "message": message})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": s.sched.Pause()})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": s.sched.Resume()})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	removed, retained := s.sched.Clear()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"removed":  removed,
		"retained": retained,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.sched.Stats())
}

func (s *Server) handleJobsOfType(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	workType := r.URL.Query().Get("type")
	jobs, err := s.sched.JobsOfType(scheduler.WorkType(workType))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"type": workType,
		"jobs": jobs,
	})
}

// handleRunPipeline runs the daily pipeline immediately
func (s *Server) handleRunPipeline(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	if err := s.pipeline.Run(time.Now()); err != nil {
		s.logger.Errorw("On-demand pipeline run failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// handleClick records one click against an item's aggregates
func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	itemID := r.PathValue("itemID")
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = string(metric.ClickView)
	}
	if !metric.IsValidClickKind(kind) {
		writeError(w, http.StatusBadRequest, "unknown click kind: "+kind)
		return
	}

	if err := s.store.RecordClick(itemID, metric.ClickKind(kind)); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
