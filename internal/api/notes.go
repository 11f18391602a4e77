package api

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"casebeam/internal/hub"
	"casebeam/internal/models"

	"github.com/go-chi/chi/v5"
	_ "golang.org/x/image/webp"
)

const maxImageBytes = 10 << 20

var imageExt = map[string]string{
	"png":  ".png",
	"jpeg": ".jpg",
	"gif":  ".gif",
	"webp": ".webp",
}

type noteReq struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	ProjectID *int   `json:"project_id"`
}

// attachImages fills in the images of each note with one query.
func (h *Handlers) attachImages(notes []models.Note) {
	if len(notes) == 0 {
		return
	}
	ids := make([]int, len(notes))
	for i, n := range notes {
		ids[i] = n.ID
	}
	imageMap, err := h.store.GetNoteImagesByNoteIDs(ids)
	if err != nil {
		log.Printf("[db] note images: %v", err)
		return
	}
	for i := range notes {
		notes[i].Images = imageMap[notes[i].ID]
	}
}

func (h *Handlers) ListNotes(w http.ResponseWriter, r *http.Request) {
	projectID, ok := queryID(w, r, "project_id")
	if !ok {
		return
	}
	notes, err := h.store.GetNotes(userID(r), projectID)
	if err != nil {
		storeError(w, err, "notes")
		return
	}
	h.attachImages(notes)
	writeJSON(w, http.StatusOK, notes)
}

func (h *Handlers) CreateNote(w http.ResponseWriter, r *http.Request) {
	var in noteReq
	if err := decodeJSON(r, &in); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid json")
		return
	}
	if in.Title == "" && in.Content == "" {
		errorJSON(w, http.StatusBadRequest, "title or content is required")
		return
	}
	n := models.Note{UserID: userID(r), ProjectID: in.ProjectID, Title: in.Title, Content: in.Content}
	if err := h.store.CreateNote(&n); err != nil {
		storeError(w, err, "project")
		return
	}
	h.hub.Broadcast(n.UserID, hub.ResourceNotes)
	writeJSON(w, http.StatusCreated, n)
}

func (h *Handlers) GetNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	n, err := h.store.GetNote(id, userID(r))
	if err != nil {
		storeError(w, err, "note")
		return
	}
	notes := []models.Note{n}
	h.attachImages(notes)
	writeJSON(w, http.StatusOK, notes[0])
}

func (h *Handlers) UpdateNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in noteReq
	if err := decodeJSON(r, &in); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid json")
		return
	}

	uid := userID(r)
	n, err := h.store.GetNote(id, uid)
	if err != nil {
		storeError(w, err, "note")
		return
	}
	n.Title = in.Title
	n.Content = in.Content
	n.ProjectID = in.ProjectID
	if err := h.store.UpdateNote(&n); err != nil {
		storeError(w, err, "note")
		return
	}
	h.hub.Broadcast(uid, hub.ResourceNotes)
	writeJSON(w, http.StatusOK, n)
}

func (h *Handlers) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	uid := userID(r)
	if _, err := h.store.GetNote(id, uid); err != nil {
		storeError(w, err, "note")
		return
	}
	images, _ := h.store.GetNoteImages(id)
	if err := h.store.DeleteNote(id, uid); err != nil {
		storeError(w, err, "note")
		return
	}
	// Delete associated images from filesystem
	for _, img := range images {
		os.Remove(filepath.Join(h.uploadDir, img.Filename))
	}
	h.hub.Broadcast(uid, hub.ResourceNotes)
	w.WriteHeader(http.StatusNoContent)
}

// UploadImage stores an image attached to a note. The format is taken from
// the decoded header, not the file name.
func (h *Handlers) UploadImage(w http.ResponseWriter, r *http.Request) {
	noteID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	uid := userID(r)
	if _, err := h.store.GetNote(noteID, uid); err != nil {
		storeError(w, err, "note")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+1<<20)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		errorJSON(w, http.StatusBadRequest, "file too large or malformed form")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "no image provided")
		return
	}
	defer file.Close()
	if header.Size > maxImageBytes {
		errorJSON(w, http.StatusBadRequest, "file too large")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil || len(data) > maxImageBytes {
		errorJSON(w, http.StatusBadRequest, "file too large")
		return
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	ext, known := imageExt[format]
	if err != nil || !known {
		errorJSON(w, http.StatusBadRequest, "image must be png, jpeg, gif or webp")
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0755); err != nil {
		errorJSON(w, http.StatusInternalServerError, "server error")
		return
	}
	filename := fmt.Sprintf("%d_%d_%d%s", uid, noteID, time.Now().UnixNano(), ext)
	path := filepath.Join(h.uploadDir, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		errorJSON(w, http.StatusInternalServerError, "server error")
		return
	}

	imageID, err := h.store.CreateNoteImage(noteID, filename)
	if err != nil {
		os.Remove(path)
		storeError(w, err, "note image")
		return
	}
	h.hub.Broadcast(uid, hub.ResourceNotes)
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       imageID,
		"note_id":  noteID,
		"filename": filename,
		"url":      "/uploads/" + filename,
	})
}

func (h *Handlers) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	uid := userID(r)
	filename, err := h.store.DeleteNoteImage(id, uid)
	if err != nil {
		storeError(w, err, "image")
		return
	}
	os.Remove(filepath.Join(h.uploadDir, filename))
	h.hub.Broadcast(uid, hub.ResourceNotes)
	w.WriteHeader(http.StatusNoContent)
}

// ServeUpload serves an uploaded image to its owner only.
func (h *Handlers) ServeUpload(w http.ResponseWriter, r *http.Request) {
	filename := filepath.Base(chi.URLParam(r, "filename"))
	owned, err := h.store.NoteImageOwnedBy(filename, userID(r))
	if err != nil {
		storeError(w, err, "image")
		return
	}
	if !owned {
		errorJSON(w, http.StatusNotFound, "image not found")
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeFile(w, r, filepath.Join(h.uploadDir, filename))
}
