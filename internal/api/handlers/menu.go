package handlers

import (
	"delivery-dispatch-service/internal/api/dto"
	"delivery-dispatch-service/internal/services"
	"net/http"
)

type MenuHandler struct {
	Index *services.MenuSearchIndex
}

func (h *MenuHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")

	items := h.Index.Search(q)
	res := dto.MenuSearchResponse{Query: q, Suggestions: make([]dto.MenuItemResponse, 0, len(items))}
	for _, it := range items {
		res.Suggestions = append(res.Suggestions, dto.MenuItemResponse{ID: it.ID, Name: it.Name, Frequency: it.Frequency})
	}

	writeJSON(w, r, http.StatusOK, res)
}
