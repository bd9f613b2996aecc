package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// HandleCreateScan records a check-in. The patron may be referenced by id or
// by card number (the front-desk scanner path).
// POST /api/v1/scans
func (a *App) HandleCreateScan(w http.ResponseWriter, r *http.Request) {
	var in struct {
		PatronID   int64  `json:"patronId"`
		CardNumber string `json:"cardNumber"`
		EventID    int64  `json:"eventId"`
		ServiceID  *int64 `json:"serviceId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if in.EventID == 0 || (in.PatronID == 0 && in.CardNumber == "") {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Event and patron (id or card number) are required")
		return
	}

	var patron *Patron
	var err error
	if in.PatronID != 0 {
		patron, err = a.DB.GetPatron(in.PatronID)
	} else {
		patron, err = a.DB.GetPatronByCard(in.CardNumber)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if patron == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Patron not found")
		return
	}

	event, err := a.DB.GetEvent(in.EventID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if event == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Event not found")
		return
	}

	if in.ServiceID != nil {
		sv, err := a.DB.GetService(*in.ServiceID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if sv == nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Service not found")
			return
		}
	}

	recordedBy := ""
	if claims := claimsFrom(r); claims != nil {
		recordedBy = claims.Name
	}
	scan := &Scan{
		PatronID:   patron.ID,
		EventID:    event.ID,
		ServiceID:  in.ServiceID,
		RecordedBy: recordedBy,
		ScannedAt:  time.Now().UTC(),
	}
	if _, err := a.DB.CreateScan(scan); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, scan)
}

// HandleListScans lists scans filtered by ?event= or ?patron=.
// GET /api/v1/scans
func (a *App) HandleListScans(w http.ResponseWriter, r *http.Request) {
	var scans []*Scan
	var err error
	switch {
	case r.URL.Query().Get("event") != "":
		var eventID int64
		if eventID, err = strconv.ParseInt(r.URL.Query().Get("event"), 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid event id")
			return
		}
		scans, err = a.DB.ListScansByEvent(eventID)
	case r.URL.Query().Get("patron") != "":
		var patronID int64
		if patronID, err = strconv.ParseInt(r.URL.Query().Get("patron"), 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid patron id")
			return
		}
		scans, err = a.DB.ListScansByPatron(patronID)
	default:
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Filter by event or patron is required")
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if scans == nil {
		scans = []*Scan{}
	}
	writeJSON(w, http.StatusOK, scans)
}
