package api

import (
	"html/template"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"casebeam/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

var version = strconv.FormatInt(time.Now().Unix(), 10)

type RouterOptions struct {
	CORSOrigins []string
	// StaticDir holds index.html and the /static assets. Empty disables them.
	StaticDir string
	// MCP is mounted at /mcp when set.
	MCP http.Handler
}

// NewRouter wires every endpoint behind logging, CORS and auth.
func NewRouter(h *Handlers, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", "Mcp-Session-Id"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.Auth(h.issuer, h.revoked))

	r.Get("/healthz", h.Health)
	mountStatic(r, opts.StaticDir)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", h.Signup)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Get("/me", h.Me)
		r.Delete("/me", h.DeleteAccount)
	})

	r.Route("/api/projects", func(r chi.Router) {
		r.Get("/", h.ListProjects)
		r.Post("/", h.CreateProject)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetProject)
			r.Put("/", h.UpdateProject)
			r.Delete("/", h.DeleteProject)
			r.Get("/dates", h.ListProjectDates)
			r.Post("/dates", h.CreateProjectDate)
			r.Delete("/dates/{dateID}", h.DeleteProjectDate)
			r.Get("/comments", h.ListComments)
			r.Post("/comments", h.CreateComment)
			r.Delete("/comments/{commentID}", h.DeleteComment)
			r.Post("/share", h.ShareProject)
		})
	})

	r.Route("/api/notes", func(r chi.Router) {
		r.Get("/", h.ListNotes)
		r.Post("/", h.CreateNote)
		r.Get("/{id}", h.GetNote)
		r.Put("/{id}", h.UpdateNote)
		r.Delete("/{id}", h.DeleteNote)
		r.Post("/{id}/images", h.UploadImage)
	})
	r.Delete("/api/images/{id}", h.DeleteImage)
	r.Get("/uploads/{filename}", h.ServeUpload)

	r.Route("/api/categories", func(r chi.Router) {
		r.Get("/", h.ListCategories)
		r.Post("/", h.CreateCategory)
		r.Put("/{id}", h.UpdateCategory)
		r.Delete("/{id}", h.DeleteCategory)
	})

	r.Route("/api/chats", func(r chi.Router) {
		r.Get("/", h.ListChats)
		r.Post("/", h.CreateChat)
		r.Get("/{id}", h.GetChat)
		r.Patch("/{id}", h.RenameChat)
		r.Delete("/{id}", h.DeleteChat)
		r.Post("/{id}/messages", h.PostMessage)
		r.Post("/{id}/more", h.MoreResults)
	})

	r.Route("/api/results/{id}", func(r chi.Router) {
		r.Get("/", h.GetResult)
		r.Patch("/", h.UpdateResult)
		r.Delete("/", h.DeleteResult)
		r.Post("/detail", h.ResultDetail)
	})

	r.Get("/api/dashboard", h.Dashboard)
	r.Get("/api/ws", h.Realtime)

	if opts.MCP != nil {
		r.Handle("/mcp", opts.MCP)
	}

	return r
}

// mountStatic serves index.html with a cache-busting version and the
// assets under /static/.
func mountStatic(r chi.Router, dir string) {
	if dir == "" {
		return
	}
	index := filepath.Join(dir, "index.html")
	if _, err := os.Stat(index); err != nil {
		log.Printf("[http] no %s, serving API only", index)
		return
	}
	tmpl := template.Must(template.ParseFiles(index))
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		tmpl.Execute(w, map[string]string{"Version": version})
	})
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(dir))))
}
