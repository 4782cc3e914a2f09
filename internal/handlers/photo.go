package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"virtual-tourist-backend/internal/middleware"
	"virtual-tourist-backend/internal/models"
	"virtual-tourist-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// PhotoHandler handles album and photo HTTP requests
type PhotoHandler struct {
	pinService   *services.PinService
	albumService *services.AlbumService
}

// NewPhotoHandler creates a new photo handler
func NewPhotoHandler(pinService *services.PinService, albumService *services.AlbumService) *PhotoHandler {
	return &PhotoHandler{
		pinService:   pinService,
		albumService: albumService,
	}
}

// AlbumResponse is the album of a pin. Error is set when the search failed;
// the album is then populated and empty.
type AlbumResponse struct {
	Pin    PinResponse         `json:"pin"`
	State  services.AlbumState `json:"state"`
	Photos []*models.Photo     `json:"photos"`
	Error  string              `json:"error,omitempty"`
}

// GetAlbum handles GET /api/v1/pins/{pin_id}/album
func (h *PhotoHandler) GetAlbum(w http.ResponseWriter, r *http.Request) {
	h.album(w, r, false)
}

// RefreshAlbum handles POST /api/v1/pins/{pin_id}/album/refresh
func (h *PhotoHandler) RefreshAlbum(w http.ResponseWriter, r *http.Request) {
	h.album(w, r, true)
}

func (h *PhotoHandler) album(w http.ResponseWriter, r *http.Request, refresh bool) {
	ctx := r.Context()
	travelerID := middleware.GetTravelerID(ctx)
	pinID := chi.URLParam(r, "pin_id")

	if _, err := h.pinService.Get(ctx, travelerID, pinID); err != nil {
		status, msg := statusFor(err)
		respondError(w, msg, status)
		return
	}

	var (
		album *services.Album
		err   error
	)
	if refresh {
		album, err = h.albumService.Refresh(ctx, pinID)
	} else {
		album, err = h.albumService.EnsureLoaded(ctx, pinID)
	}

	// a failed search still yields an (empty) album
	if err != nil && album == nil {
		log.Error().
			Err(err).
			Str("traveler_id", travelerID).
			Str("pin_id", pinID).
			Bool("refresh", refresh).
			Msg("Failed to load album")
		status, msg := statusFor(err)
		respondError(w, msg, status)
		return
	}

	resp := AlbumResponse{
		Pin:    newPinResponse(album.Location),
		State:  album.State,
		Photos: album.Photos,
	}
	status := http.StatusOK
	if err != nil {
		status, resp.Error = statusFor(err)
	}
	respondJSON(w, status, resp)
}

// GetImage handles GET /api/v1/photos/{photo_id}/image
func (h *PhotoHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	travelerID := middleware.GetTravelerID(ctx)
	photoID := chi.URLParam(r, "photo_id")

	if _, err := h.pinService.GetPhoto(ctx, travelerID, photoID); err != nil {
		status, msg := statusFor(err)
		respondError(w, msg, status)
		return
	}

	res, err := h.albumService.MaterializeNow(ctx, photoID)
	if errors.Is(err, services.ErrCanceled) {
		if ctx.Err() != nil {
			// client went away
			return
		}
		respondError(w, "Photo was removed", http.StatusNotFound)
		return
	}
	if err != nil && !res.Placeholder {
		status, msg := statusFor(err)
		respondError(w, msg, status)
		return
	}

	w.Header().Set("X-Image-Source", string(res.Source))
	if res.Placeholder {
		w.Header().Set("X-Placeholder", "true")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(res.Data)
}

// DeletePhoto handles DELETE /api/v1/photos/{photo_id}
func (h *PhotoHandler) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	travelerID := middleware.GetTravelerID(ctx)
	photoID := chi.URLParam(r, "photo_id")

	if _, err := h.pinService.GetPhoto(ctx, travelerID, photoID); err != nil {
		status, msg := statusFor(err)
		respondError(w, msg, status)
		return
	}

	if err := h.albumService.RemoveOne(ctx, photoID); err != nil {
		log.Error().
			Err(err).
			Str("traveler_id", travelerID).
			Str("photo_id", photoID).
			Msg("Failed to delete photo")
		status, msg := statusFor(err)
		respondError(w, msg, status)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
