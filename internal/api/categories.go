package api

import (
	"net/http"
	"strings"

	"casebeam/internal/hub"
	"casebeam/internal/models"
)

// defaultCategory is created for every new account.
const defaultCategory = "General"

type categoryReq struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.store.GetCategories(userID(r))
	if err != nil {
		storeError(w, err, "categories")
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

// nameTaken reports whether another category of the user has the name.
func (h *Handlers) nameTaken(uid int, name string, except int) (bool, error) {
	categories, err := h.store.GetCategories(uid)
	if err != nil {
		return false, err
	}
	for _, c := range categories {
		if c.ID != except && strings.EqualFold(c.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (h *Handlers) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var in categoryReq
	if err := decodeJSON(r, &in); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid json")
		return
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		errorJSON(w, http.StatusBadRequest, "name is required")
		return
	}

	uid := userID(r)
	taken, err := h.nameTaken(uid, name, 0)
	if err != nil {
		storeError(w, err, "categories")
		return
	}
	if taken {
		errorJSON(w, http.StatusConflict, "category already exists")
		return
	}

	c := models.Category{UserID: uid, Name: name, Color: in.Color}
	if err := h.store.CreateCategory(&c); err != nil {
		storeError(w, err, "category")
		return
	}
	h.hub.Broadcast(uid, hub.ResourceCategories)
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handlers) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in categoryReq
	if err := decodeJSON(r, &in); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid json")
		return
	}

	uid := userID(r)
	c, err := h.store.GetCategory(id, uid)
	if err != nil {
		storeError(w, err, "category")
		return
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		taken, err := h.nameTaken(uid, name, id)
		if err != nil {
			storeError(w, err, "categories")
			return
		}
		if taken {
			errorJSON(w, http.StatusConflict, "category already exists")
			return
		}
		c.Name = name
	}
	if in.Color != "" {
		c.Color = in.Color
	}
	if err := h.store.UpdateCategory(&c); err != nil {
		storeError(w, err, "category")
		return
	}
	h.hub.Broadcast(uid, hub.ResourceCategories)
	writeJSON(w, http.StatusOK, c)
}

func (h *Handlers) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	uid := userID(r)
	if err := h.store.DeleteCategory(id, uid); err != nil {
		storeError(w, err, "category")
		return
	}
	h.hub.Broadcast(uid, hub.ResourceCategories)
	w.WriteHeader(http.StatusNoContent)
}
