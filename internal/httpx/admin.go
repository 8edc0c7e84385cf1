package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/authkit/internal/apperr"
	"github.com/dropDatabas3/authkit/internal/config"
	"github.com/dropDatabas3/authkit/internal/observability/logger"
)

// AdminHandlers serves the operator surface: service credentials and runtime
// snapshot swaps. The caller is expected to protect these routes at the
// network layer; they are mounted under /internal and never through the
// dynamic strategy set.
type AdminHandlers struct {
	Handlers *Handlers
	Notifier config.Notifier
}

func (a *AdminHandlers) createService(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name string `json:"name"`
	}
	if err := readJSON(r, &in); err != nil {
		apperr.WriteError(w, err)
		return
	}
	cred, err := a.Handlers.Machine.Create(r.Context(), in.Name)
	if err != nil {
		apperr.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cred)
}

func (a *AdminHandlers) rotateService(w http.ResponseWriter, r *http.Request) {
	cred, err := a.Handlers.Machine.Rotate(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		apperr.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cred)
}

func (a *AdminHandlers) setServiceActive(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Active bool `json:"active"`
	}
	if err := readJSON(r, &in); err != nil {
		apperr.WriteError(w, err)
		return
	}
	if err := a.Handlers.Machine.SetActive(r.Context(), chi.URLParam(r, "name"), in.Active); err != nil {
		apperr.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": in.Active})
}

func (a *AdminHandlers) listServices(w http.ResponseWriter, r *http.Request) {
	services, err := a.Handlers.Machine.List(r.Context())
	if err != nil {
		apperr.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, services)
}

// updateRuntime swaps the runtime snapshot and publishes a config event so the
// registry rebuilds. The whole snapshot is replaced; partial updates would
// reintroduce the mixed-state problem the snapshot design exists to avoid.
func (a *AdminHandlers) updateRuntime(w http.ResponseWriter, r *http.Request) {
	var snap config.Snapshot
	if err := readJSON(r, &snap); err != nil {
		apperr.WriteError(w, err)
		return
	}
	a.Handlers.Holder.Swap(snap)
	if err := a.Notifier.Notify(r.Context()); err != nil {
		logger.From(r.Context()).Warn("config event publish failed", logger.Err(err))
	}
	writeJSON(w, http.StatusOK, map[string]any{"applied": true})
}

func (a *AdminHandlers) getRuntime(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Handlers.Holder.Load())
}
