package api

import (
	"errors"
	"net/http"
	"time"

	"storefront/internal/middleware"
	"storefront/internal/notify"
	"storefront/internal/predictions"
)

type picksView struct {
	Predictions []predictions.Prediction `json:"predictions"`
	Loading     bool                     `json:"loading"`
	LoadedAt    *time.Time               `json:"loadedAt,omitempty"`
}

func (s *Server) writePicks(w http.ResponseWriter, r *http.Request, filter func([]predictions.Prediction) []predictions.Prediction) {
	if s.picks == nil {
		middleware.WriteAPISuccess(w, r, picksView{Predictions: []predictions.Prediction{}})
		return
	}

	snap := s.picks.Snapshot()
	view := picksView{
		Predictions: filter(snap.Predictions),
		Loading:     snap.Loading,
	}
	if !snap.LoadedAt.IsZero() {
		view.LoadedAt = &snap.LoadedAt
	}
	if view.Predictions == nil {
		view.Predictions = []predictions.Prediction{}
	}

	var notices []notify.Notice
	if snap.Notice != nil {
		notices = append(notices, *snap.Notice)
	}
	middleware.WriteAPIResponse(w, r, http.StatusOK, view, notices)
}

func (s *Server) handleFreePicks(w http.ResponseWriter, r *http.Request) {
	s.writePicks(w, r, predictions.Free)
}

func (s *Server) handlePremiumPicks(w http.ResponseWriter, r *http.Request) {
	s.writePicks(w, r, predictions.Premium)
}

// handleReloadPicks re-reads the sheet and returns the whole list.
func (s *Server) handleReloadPicks(w http.ResponseWriter, r *http.Request) {
	if s.picks == nil {
		middleware.WriteAPIError(w, r, http.StatusServiceUnavailable, "picks_disabled",
			"Predictions source is not configured", "")
		return
	}

	_, err := s.picks.Load(r.Context())
	switch {
	case err == nil:
		s.writePicks(w, r, func(ps []predictions.Prediction) []predictions.Prediction { return ps })
	case r.Context().Err() != nil:
		// the client went away; nothing to answer
	case errors.Is(err, predictions.ErrDiscarded), errors.Is(err, predictions.ErrClosed):
		middleware.WriteAPIError(w, r, http.StatusServiceUnavailable, "picks_unavailable",
			"Predictions source is shutting down", "")
	default:
		middleware.WriteAPIError(w, r, http.StatusBadGateway, "picks_load_failed",
			"Error al cargar pronósticos", err.Error())
	}
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	middleware.WriteAPISuccess(w, r, map[string]string{
		"url": predictions.UnlockLink(s.messaging.Number, s.messaging.PremiumMessage),
	})
}
