package main

import (
	"net/http"
)

// HandleEventAttendanceReport returns scan totals for one event.
// GET /api/v1/reports/events/{id}
func (a *App) HandleEventAttendanceReport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid event id")
		return
	}
	event, err := a.DB.GetEvent(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if event == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Event not found")
		return
	}
	att, err := a.DB.EventAttendance(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, att)
}

// HandlePatronVisitsReport returns a patron's lifetime visit count.
// GET /api/v1/reports/patrons/{id}
func (a *App) HandlePatronVisitsReport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid patron id")
		return
	}
	patron, err := a.DB.GetPatron(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if patron == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Patron not found")
		return
	}
	visits, err := a.DB.PatronVisitCount(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"patronId": id, "visits": visits})
}
