package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"tycoon/internal/worldevent"
)

func (s *Server) handleClock(w http.ResponseWriter, r *http.Request) {
	c, err := s.clock.Snapshot(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleClockStart(w http.ResponseWriter, r *http.Request) {
	if err := s.clock.Start(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	s.handleClock(w, r)
}

func (s *Server) handleClockStop(w http.ResponseWriter, r *http.Request) {
	if err := s.clock.Stop(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	s.handleClock(w, r)
}

func (s *Server) handleClockSpeed(w http.ResponseWriter, r *http.Request) {
	var in struct {
		SpeedDays decimal.Decimal `json:"speed_days"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.clock.SetSpeed(r.Context(), in.SpeedDays); err != nil {
		writeDomainError(w, err)
		return
	}
	s.handleClock(w, r)
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	res, err := s.ticker.AdvanceOneTick(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	counts := map[string]int{}
	for _, t := range res.Tasks {
		counts[t.Name]++
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"advanced": res.Tick.Advanced,
		"from":     res.Tick.Prev,
		"to":       res.Tick.Next,
		"tasks":    len(res.Tasks),
		"by_task":  counts,
	})
}

func (s *Server) handleEventsList(w http.ResponseWriter, r *http.Request) {
	out, err := s.events.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (s *Server) handleEventApply(w http.ResponseWriter, r *http.Request) {
	var in worldevent.Spec
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ev, err := s.events.Apply(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleEventReverse(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	ev, err := s.events.Reverse(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleCompanyReset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	deleteUser := r.URL.Query().Get("delete_user") == "1" || r.URL.Query().Get("delete_user") == "true"
	counts, err := s.reset.ResetCompany(r.Context(), id, deleteUser)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": counts})
}

func (s *Server) handleGameReset(w http.ResponseWriter, r *http.Request) {
	counts, err := s.reset.ResetGame(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": counts})
}
