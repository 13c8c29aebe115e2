package handler

import (
	"net/http"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/model"
)

// SyncEvent handles PUT /events/{id}
// Creates or updates the event's name, capacity and schedule.
func (h *Handler) SyncEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var req model.SyncEventRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	event, err := h.admission.SyncEvent(r.Context(), id, req)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// Register handles POST /events/{id}/register
// Admits the authenticated member or places them on the waitlist.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	actor, _ := ActorFromContext(r.Context())

	reg, err := h.admission.Register(r.Context(), id, actor.ID)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

// CancelRegistration handles POST /registrations/{id}/cancel
// Only the registrant or an admin may cancel.
func (h *Handler) CancelRegistration(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	actor, _ := ActorFromContext(r.Context())

	current, err := h.admission.GetRegistration(r.Context(), id)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if current.RegistrantID != actor.ID && !actor.IsAdmin() {
		writeError(w, http.StatusForbidden, "you may only cancel your own registration")
		return
	}

	reg, err := h.admission.Cancel(r.Context(), id)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// GetRegistration handles GET /registrations/{id}
func (h *Handler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	reg, err := h.admission.GetRegistration(r.Context(), id)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// ListRegistrations handles GET /events/{id}/registrations
// Returns all registrations for a given event.
func (h *Handler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	regs, err := h.admission.ListRegistrations(r.Context(), id)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if regs == nil {
		regs = []model.Registration{}
	}
	writeJSON(w, http.StatusOK, regs)
}

// ListWaitlist handles GET /events/{id}/waitlist
func (h *Handler) ListWaitlist(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	regs, err := h.admission.ListWaitlist(r.Context(), id)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if regs == nil {
		regs = []model.Registration{}
	}
	writeJSON(w, http.StatusOK, regs)
}

// Occupancy handles GET /events/{id}/occupancy
func (h *Handler) Occupancy(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	occ, err := h.admission.Occupancy(r.Context(), id)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, occ)
}
