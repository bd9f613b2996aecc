package main

import (
	"encoding/json"
	"net/http"
	"time"
)

// HandleCreateEvent creates an event.
// POST /api/v1/events
func (a *App) HandleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name        string    `json:"name"`
		Description string    `json:"description"`
		Address     string    `json:"address"`
		StartsAt    time.Time `json:"startsAt"`
		EndsAt      time.Time `json:"endsAt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if in.Name == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Name is required")
		return
	}
	e := &Event{
		Name:        in.Name,
		Description: in.Description,
		Address:     in.Address,
		StartsAt:    in.StartsAt,
		EndsAt:      in.EndsAt,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := a.DB.CreateEvent(e); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// HandleListEvents lists events, most recent first.
// GET /api/v1/events
func (a *App) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := a.DB.ListEvents()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if events == nil {
		events = []*Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// HandleGetEvent returns a single event.
// GET /api/v1/events/{id}
func (a *App) HandleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid event id")
		return
	}
	e, err := a.DB.GetEvent(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if e == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Event not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// HandleUpdateEvent updates an event.
// PUT /api/v1/events/{id}
func (a *App) HandleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid event id")
		return
	}
	var in struct {
		Name        string    `json:"name"`
		Description string    `json:"description"`
		Address     string    `json:"address"`
		StartsAt    time.Time `json:"startsAt"`
		EndsAt      time.Time `json:"endsAt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	e, err := a.DB.GetEvent(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if e == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Event not found")
		return
	}
	if in.Name != "" {
		e.Name = in.Name
	}
	e.Description = in.Description
	e.Address = in.Address
	if !in.StartsAt.IsZero() {
		e.StartsAt = in.StartsAt
	}
	if !in.EndsAt.IsZero() {
		e.EndsAt = in.EndsAt
	}
	if err := a.DB.UpdateEvent(e); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// HandleDeleteEvent removes an event.
// DELETE /api/v1/events/{id}
func (a *App) HandleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid event id")
		return
	}
	if err := a.DB.DeleteEvent(id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]bool{"deleted": true})
}

// HandleCreateService creates a service offering.
// POST /api/v1/services
func (a *App) HandleCreateService(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if in.Name == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Name is required")
		return
	}
	sv := &Service{Name: in.Name, Description: in.Description, CreatedAt: time.Now().UTC()}
	if _, err := a.DB.CreateService(sv); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sv)
}

// HandleListServices lists services.
// GET /api/v1/services
func (a *App) HandleListServices(w http.ResponseWriter, r *http.Request) {
	services, err := a.DB.ListServices()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if services == nil {
		services = []*Service{}
	}
	writeJSON(w, http.StatusOK, services)
}

// HandleGetService returns a single service.
// GET /api/v1/services/{id}
func (a *App) HandleGetService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid service id")
		return
	}
	sv, err := a.DB.GetService(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if sv == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Service not found")
		return
	}
	writeJSON(w, http.StatusOK, sv)
}

// HandleUpdateService updates a service.
// PUT /api/v1/services/{id}
func (a *App) HandleUpdateService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid service id")
		return
	}
	var in struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	sv, err := a.DB.GetService(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if sv == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Service not found")
		return
	}
	if in.Name != "" {
		sv.Name = in.Name
	}
	sv.Description = in.Description
	if err := a.DB.UpdateService(sv); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sv)
}

// HandleDeleteService removes a service.
// DELETE /api/v1/services/{id}
func (a *App) HandleDeleteService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid service id")
		return
	}
	if err := a.DB.DeleteService(id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]bool{"deleted": true})
}
