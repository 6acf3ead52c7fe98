package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"

	"github.com/propbook-app/propbook/internal/imaging"
	"github.com/propbook-app/propbook/internal/qr"
	"github.com/propbook-app/propbook/internal/store"
)

// MaxPhotoUpload caps photo uploads at 10 MiB.
const MaxPhotoUpload = 10 << 20

// PropertiesHandler handles property book endpoints.
type PropertiesHandler struct {
	DB *sql.DB
	// QRSecret signs hand-off codes minted for properties.
	QRSecret string
}

type registerPropertyRequest struct {
	Name         string `json:"name"`
	SerialNumber string `json:"serial_number"`
	NSN          string `json:"nsn"`
	Description  string `json:"description"`
	AssignedTo   *int64 `json:"assigned_to"`
}

type updatePropertyRequest struct {
	Name        string `json:"name"`
	NSN         string `json:"nsn"`
	Description string `json:"description"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// Register handles POST /api/properties.
func (h *PropertiesHandler) Register(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req registerPropertyRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	property, err := store.RegisterProperty(r.Context(), h.DB,
		req.Name, req.SerialNumber, req.NSN, req.Description, req.AssignedTo, claims.UserID)
	if err != nil {
		domainError(w, err)
		return
	}

	slog.Info("property registered",
		"serial_number", property.SerialNumber, "by", claims.Username)
	jsonResponse(w, http.StatusCreated, property)
}

// List handles GET /api/properties.
func (h *PropertiesHandler) List(w http.ResponseWriter, r *http.Request) {
	var holderID int64
	if v := r.URL.Query().Get("holder"); v != "" {
		id, err := parseID(v)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid holder id")
			return
		}
		holderID = id
	}

	properties, err := store.ListProperties(r.Context(), h.DB,
		r.URL.Query().Get("status"), holderID, r.URL.Query().Get("q"))
	if err != nil {
		domainError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, properties)
}

// Get handles GET /api/properties/{id}.
func (h *PropertiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid property id")
		return
	}

	property, err := store.GetProperty(r.Context(), h.DB, id)
	if err != nil {
		domainError(w, err)
		return
	}
	if property == nil || property.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "property not found")
		return
	}
	jsonResponse(w, http.StatusOK, property)
}

// Update handles PUT /api/properties/{id}.
func (h *PropertiesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid property id")
		return
	}

	var req updatePropertyRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}

	property, err := store.GetProperty(r.Context(), h.DB, id)
	if err != nil {
		domainError(w, err)
		return
	}
	if property == nil || property.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "property not found")
		return
	}

	if err := store.UpdateProperty(r.Context(), h.DB, id, req.Name, req.NSN, req.Description); err != nil {
		domainError(w, err)
		return
	}

	updated, err := store.GetProperty(r.Context(), h.DB, id)
	if err != nil || updated == nil {
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	jsonResponse(w, http.StatusOK, updated)
}

// UpdateStatus handles PUT /api/properties/{id}/status. The status
// change is recorded to the ledger.
func (h *PropertiesHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid property id")
		return
	}

	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := GetClaims(r.Context())
	property, err := store.UpdatePropertyStatus(r.Context(), h.DB, id, req.Status, claims.UserID)
	if err != nil {
		domainError(w, err)
		return
	}

	slog.Info("property status changed",
		"serial_number", property.SerialNumber, "status", property.Status, "by", claims.Username)
	jsonResponse(w, http.StatusOK, property)
}

// Delete handles DELETE /api/properties/{id}.
func (h *PropertiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid property id")
		return
	}

	property, err := store.GetProperty(r.Context(), h.DB, id)
	if err != nil {
		domainError(w, err)
		return
	}
	if property == nil || property.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "property not found")
		return
	}

	if err := store.DeleteProperty(r.Context(), h.DB, id); err != nil {
		domainError(w, err)
		return
	}

	slog.Info("property deleted", "serial_number", property.SerialNumber)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "property deleted"})
}

// UploadPhoto handles PUT /api/properties/{id}/photo.
func (h *PropertiesHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid property id")
		return
	}

	property, err := store.GetProperty(r.Context(), h.DB, id)
	if err != nil {
		domainError(w, err)
		return
	}
	if property == nil || property.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "property not found")
		return
	}

	photo, err := imaging.Normalize(http.MaxBytesReader(w, r.Body, MaxPhotoUpload))
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := store.SetPropertyPhoto(r.Context(), h.DB, id, photo.Data, photo.MIME); err != nil {
		domainError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "photo updated"})
}

// GetPhoto handles GET /api/properties/{id}/photo.
func (h *PropertiesHandler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid property id")
		return
	}

	photo, mime, err := store.GetPropertyPhoto(r.Context(), h.DB, id)
	if err != nil {
		domainError(w, err)
		return
	}
	if len(photo) == 0 {
		jsonError(w, http.StatusNotFound, "property has no photo")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Write(photo)
}

type handoffResponse struct {
	Code string `json:"code"`
	// PNG is the rendered QR image, base64-encoded in JSON.
	PNG []byte `json:"png"`
}

// MintHandoff handles POST /api/properties/{id}/handoff. Only the
// current holder may mint a hand-off code for a property.
func (h *PropertiesHandler) MintHandoff(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid property id")
		return
	}

	property, err := store.GetProperty(r.Context(), h.DB, id)
	if err != nil {
		domainError(w, err)
		return
	}
	if property == nil || property.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "property not found")
		return
	}

	claims := GetClaims(r.Context())
	if property.AssignedTo == nil || *property.AssignedTo != claims.UserID {
		jsonError(w, http.StatusForbidden, "only the current holder may mint a hand-off code")
		return
	}

	code, png, err := qr.Generate(h.QRSecret, qr.Payload{
		PropertyID:   property.ID,
		SerialNumber: property.SerialNumber,
		HolderID:     claims.UserID,
	})
	if err != nil {
		domainError(w, err)
		return
	}

	slog.Info("hand-off code minted",
		"serial_number", property.SerialNumber, "holder", claims.Username)
	jsonResponse(w, http.StatusOK, handoffResponse{Code: code, PNG: png})
}
