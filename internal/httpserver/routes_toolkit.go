// internal/httpserver/routes_toolkit.go
//
// Asset toolkit endpoints. Images come back inline as PNG data URLs next to
// the generated data.

package httpserver

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/robalobadob/escaperoom/internal/toolkit"
)

func (s *Server) mountToolkit(r chi.Router) {
	r.Route("/toolkit", func(r chi.Router) {
		r.Get("/styles", s.handleStyles)
		r.Post("/npc", s.handleNPC)
		r.Post("/item", s.handleItem)
	})
}

func (s *Server) handleStyles(w http.ResponseWriter, r *http.Request) {
	providers := map[string]bool{}
	if s.d.Toolkit != nil {
		providers = s.d.Toolkit.Providers()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"styles":    s.d.Catalog.Styles,
		"providers": providers, // name -> needs password
	})
}

type npcReq struct {
	toolkit.Options
	Theme string `json:"theme"`
}

type itemReq struct {
	toolkit.Options
	Name string `json:"name"`
}

type assetRes[T any] struct {
	Data  T      `json:"data"`
	Style string `json:"style"`
	Image string `json:"image"` // data:image/png;base64,...
}

func toAssetRes[T any](a *toolkit.Asset[T]) assetRes[T] {
	return assetRes[T]{
		Data:  a.Data,
		Style: a.Style,
		Image: "data:image/png;base64," + base64.StdEncoding.EncodeToString(a.PNG),
	}
}

func (s *Server) handleNPC(w http.ResponseWriter, r *http.Request) {
	var req npcReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	if s.d.Toolkit == nil {
		writeError(w, http.StatusServiceUnavailable, "toolkit_disabled")
		return
	}
	a, err := s.d.Toolkit.NPC(r.Context(), req.Theme, req.Options)
	if err != nil {
		s.writeToolkitErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssetRes(a))
}

func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	var req itemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	if s.d.Toolkit == nil {
		writeError(w, http.StatusServiceUnavailable, "toolkit_disabled")
		return
	}
	a, err := s.d.Toolkit.Item(r.Context(), req.Name, req.Options)
	if err != nil {
		s.writeToolkitErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssetRes(a))
}

func (s *Server) writeToolkitErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, toolkit.ErrInvalidRequest), errors.Is(err, toolkit.ErrUnknownProvider):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request", Message: err.Error()})
	case errors.Is(err, toolkit.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "wrong_password")
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("toolkit generation failed")
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "generation_failed", Message: err.Error()})
	}
}
