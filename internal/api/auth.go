package api

import (
	"context"
	"fmt"
	"html"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"casebeam/internal/auth"
	"casebeam/internal/mailer"
	"casebeam/internal/models"
)

const minPasswordLen = 8

type authReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type authResp struct {
	User  models.User `json:"user"`
	Token string      `json:"token"`
}

func (h *Handlers) startSession(w http.ResponseWriter, u models.User, status int) {
	token, _, err := h.issuer.IssueToken(u.ID)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "token error")
		return
	}
	h.issuer.SetAuthCookie(w, token)
	writeJSON(w, status, authResp{User: u, Token: token})
}

func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var in authReq
	if err := decodeJSON(r, &in); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid json")
		return
	}
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		errorJSON(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if len(in.Password) < minPasswordLen {
		errorJSON(w, http.StatusBadRequest, fmt.Sprintf("password must be at least %d characters", minPasswordLen))
		return
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}
	id, err := h.store.CreateUser(in.Email, in.Name, hash)
	if err != nil {
		storeError(w, err, "user")
		return
	}
	u, err := h.store.GetUser(id)
	if err != nil {
		storeError(w, err, "user")
		return
	}

	if err := h.store.CreateCategory(&models.Category{UserID: id, Name: defaultCategory}); err != nil {
		log.Printf("[db] default category for user %d: %v", id, err)
	}
	h.sendWelcome(r.Context(), u)

	h.startSession(w, u, http.StatusCreated)
}

func (h *Handlers) sendWelcome(ctx context.Context, u models.User) {
	name := u.Name
	if name == "" {
		name = u.Email
	}
	err := h.mailer.Send(ctx, mailer.Message{
		To:      []string{u.Email},
		Subject: "Welcome to CaseBeam",
		HTML:    fmt.Sprintf("<p>Hi %s,</p><p>Your CaseBeam account is ready. Start a research chat to find relevant case law.</p>", html.EscapeString(name)),
		Text:    fmt.Sprintf("Hi %s,\n\nYour CaseBeam account is ready. Start a research chat to find relevant case law.\n", name),
	})
	if err != nil {
		log.Printf("[mail] welcome to %s: %v", u.Email, err)
	}
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in authReq
	if err := decodeJSON(r, &in); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid json")
		return
	}
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))

	u, err := h.store.GetUserByEmail(in.Email)
	if err != nil || !auth.CheckPassword(u.PasswordHash, in.Password) {
		errorJSON(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	h.startSession(w, u, http.StatusOK)
}

// Logout revokes the current token until it would have expired.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if claims, err := h.issuer.ParseToken(auth.TokenFromRequest(r)); err == nil {
		expires := time.Now()
		if claims.ExpiresAt != nil {
			expires = claims.ExpiresAt.Time
		}
		h.revoked.Revoke(claims.ID, expires)
	}
	h.issuer.ClearAuthCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.store.GetUser(userID(r))
	if err != nil {
		storeError(w, err, "user")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// DeleteAccount removes the user and everything they own, including
// uploaded images.
func (h *Handlers) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)

	var files []string
	if notes, err := h.store.GetNotes(uid, nil); err == nil && len(notes) > 0 {
		ids := make([]int, len(notes))
		for i, n := range notes {
			ids[i] = n.ID
		}
		if images, err := h.store.GetNoteImagesByNoteIDs(ids); err == nil {
			for _, imgs := range images {
				for _, img := range imgs {
					files = append(files, img.Filename)
				}
			}
		}
	}

	if err := h.store.DeleteUser(uid); err != nil {
		storeError(w, err, "user")
		return
	}
	for _, f := range files {
		os.Remove(filepath.Join(h.uploadDir, f))
	}

	h.Logout(w, r)
}
