package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

type patronRequest struct {
	CardNumber string `json:"cardNumber"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"email"`
	Veteran    bool   `json:"veteran"`
	Branch     string `json:"branch"`
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil
}

// HandleCreatePatron registers a patron.
// POST /api/v1/patrons
func (a *App) HandleCreatePatron(w http.ResponseWriter, r *http.Request) {
	var in patronRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if in.FirstName == "" || in.LastName == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "First and last name are required")
		return
	}
	now := time.Now().UTC()
	p := &Patron{
		CardNumber: in.CardNumber,
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		Email:      in.Email,
		Veteran:    in.Veteran,
		Branch:     in.Branch,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := a.DB.CreatePatron(p); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// HandleListPatrons lists patrons; ?card= looks one up by card number.
// GET /api/v1/patrons
func (a *App) HandleListPatrons(w http.ResponseWriter, r *http.Request) {
	if card := r.URL.Query().Get("card"); card != "" {
		p, err := a.DB.GetPatronByCard(card)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if p == nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Patron not found")
			return
		}
		writeJSON(w, http.StatusOK, []*Patron{p})
		return
	}
	patrons, err := a.DB.ListPatrons()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if patrons == nil {
		patrons = []*Patron{}
	}
	writeJSON(w, http.StatusOK, patrons)
}

// HandleGetPatron returns a single patron.
// GET /api/v1/patrons/{id}
func (a *App) HandleGetPatron(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid patron id")
		return
	}
	p, err := a.DB.GetPatron(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Patron not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleUpdatePatron updates a patron record.
// PUT /api/v1/patrons/{id}
func (a *App) HandleUpdatePatron(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid patron id")
		return
	}
	var in patronRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	p, err := a.DB.GetPatron(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Patron not found")
		return
	}
	p.CardNumber = in.CardNumber
	p.FirstName = in.FirstName
	p.LastName = in.LastName
	p.Email = in.Email
	p.Veteran = in.Veteran
	p.Branch = in.Branch
	p.UpdatedAt = time.Now().UTC()
	if err := a.DB.UpdatePatron(p); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleDeletePatron removes a patron.
// DELETE /api/v1/patrons/{id}
func (a *App) HandleDeletePatron(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid patron id")
		return
	}
	if err := a.DB.DeletePatron(id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]bool{"deleted": true})
}
