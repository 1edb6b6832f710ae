package handlers

import "net/http"

// SweepNow is the operator/maintenance trigger for one poll sweep.
func (a *App) SweepNow(w http.ResponseWriter, r *http.Request) {
	batch := queryInt(r, "batch", a.Config.SweepBatch, 500)
	stats, err := a.Sweeper.Sweep(r.Context(), batch)
	if err != nil {
		a.Logger.Error().Err(err).Msg("handlers: sweep failed")
		a.error(w, http.StatusInternalServerError, "internal", "sweep failed")
		return
	}
	a.json(w, http.StatusOK, stats)
}
