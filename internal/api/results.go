package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"casebeam/internal/hub"
	"casebeam/internal/models"
	"casebeam/internal/rag"
)

type resultUpdateReq struct {
	Saved         *bool `json:"saved"`
	ProjectID     *int  `json:"project_id"`
	CategoryID    *int  `json:"category_id"`
	ClearProject  bool  `json:"clear_project"`
	ClearCategory bool  `json:"clear_category"`
}

func (h *Handlers) GetResult(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.store.GetSearchResult(id, userID(r))
	if err != nil {
		storeError(w, err, "result")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// UpdateResult saves, unsaves or files a result under a project or
// category. Linking to a project or category the user does not own is a
// not found.
func (h *Handlers) UpdateResult(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in resultUpdateReq
	if err := decodeJSON(r, &in); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid json")
		return
	}
	uid := userID(r)
	res, err := h.store.UpdateSearchResult(id, uid, models.ResultUpdate{
		Saved:         in.Saved,
		ProjectID:     in.ProjectID,
		CategoryID:    in.CategoryID,
		ClearProject:  in.ClearProject,
		ClearCategory: in.ClearCategory,
	})
	if err != nil {
		storeError(w, err, "result")
		return
	}
	h.hub.Broadcast(uid, hub.ResourceResults)
	writeJSON(w, http.StatusOK, res)
}

// ResultDetail returns the long-form analysis of a result, generating and
// storing it on first request.
func (h *Handlers) ResultDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in struct {
		Question string `json:"question"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &in); err != nil {
			errorJSON(w, http.StatusBadRequest, "invalid json")
			return
		}
	}

	uid := userID(r)
	res, err := h.store.GetSearchResult(id, uid)
	if err != nil {
		storeError(w, err, "result")
		return
	}
	if res.Detail != "" {
		writeJSON(w, http.StatusOK, res)
		return
	}

	detail, err := h.pipeline.Detail(r.Context(), in.Question, res)
	if errors.Is(err, rag.ErrDocumentNotFound) {
		errorJSON(w, http.StatusNotFound, err.Error())
		return
	} else if err != nil {
		upstreamError(w, fmt.Errorf("detail: %w", err))
		return
	}
	if err := h.store.SetSearchResultDetail(id, uid, detail); err != nil {
		storeError(w, err, "result")
		return
	}
	res.Detail = detail
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) DeleteResult(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	uid := userID(r)
	if err := h.store.DeleteSearchResult(id, uid); err != nil {
		storeError(w, err, "result")
		return
	}
	h.hub.Broadcast(uid, hub.ResourceResults)
	w.WriteHeader(http.StatusNoContent)
}

type dashboardResp struct {
	Results []models.SearchResult `json:"results"`
	Counts  struct {
		ByProject  map[int]int `json:"by_project"`
		ByCategory map[int]int `json:"by_category"`
	} `json:"counts"`
}

// Dashboard lists saved results (unsaved ones with saved=false) plus saved
// counts per project and category.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	projectID, ok := queryID(w, r, "project_id")
	if !ok {
		return
	}
	categoryID, ok := queryID(w, r, "category_id")
	if !ok {
		return
	}
	saved := true
	if raw := r.URL.Query().Get("saved"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			errorJSON(w, http.StatusBadRequest, "invalid saved")
			return
		}
		saved = v
	}

	uid := userID(r)
	results, err := h.store.ListSearchResults(uid, models.ResultFilter{
		ProjectID:  projectID,
		CategoryID: categoryID,
		Saved:      &saved,
		Query:      r.URL.Query().Get("q"),
	})
	if err != nil {
		storeError(w, err, "results")
		return
	}

	var resp dashboardResp
	resp.Results = results
	resp.Counts.ByProject, resp.Counts.ByCategory, err = h.store.CountSavedResults(uid)
	if err != nil {
		storeError(w, err, "results")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
