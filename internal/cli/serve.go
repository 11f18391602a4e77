package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"casebeam/internal/api"
	"casebeam/internal/auth"
	"casebeam/internal/embedding"
	"casebeam/internal/hub"
	"casebeam/internal/ingest"
	"casebeam/internal/mcp"
	"casebeam/internal/rag"
	"casebeam/internal/store/sqlstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the research web application, its JSON API, the realtime
websocket and the MCP endpoint.

When ingest.paths is set the matching documents are loaded in the
background before the collection is queried.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlstore.New(cfg.Database.Driver, cfg.Database.Conn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	model, err := newModel(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create model: %w", err)
	}
	embedder, err := newEmbedder(ctx, cfg, model)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	vectors, err := newVectorStore(cfg)
	if err != nil {
		return err
	}
	defer vectors.Close()
	if err := vectors.EnsureCollection(ctx, embedder.Dimension()); err != nil {
		log.Printf("[vectordb] ensure collection: %v", err)
	}

	retriever := newRetriever(cfg, embedder, vectors)
	pipeline := rag.NewPipeline(retriever, model, cfg.Retrieval.TopK)

	mail, err := newMailer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create mailer: %w", err)
	}

	handlers := api.NewHandlers(api.Deps{
		Store:       store,
		Pipeline:    pipeline,
		Mailer:      mail,
		Hub:         hub.New(cfg.Server.CORSOrigins),
		Issuer:      auth.NewIssuer(cfg.Auth.CookieSecret, cfg.Auth.TokenTTL, cfg.Auth.CookieSecure),
		Revocations: auth.NewRevocations(),
		UploadDir:   cfg.Server.UploadDir,
		BaseURL:     cfg.Server.BaseURL,
	})
	router := api.NewRouter(handlers, api.RouterOptions{
		CORSOrigins: cfg.Server.CORSOrigins,
		StaticDir:   cfg.Server.StaticDir,
		MCP:         mcp.NewMCPServer(store).NewServer(),
	})

	if len(cfg.Ingest.Paths) > 0 {
		go ingestOnStart(ctx, embedder, vectors, retriever)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[http] listening on %s, CORS origins %v", srv.Addr, cfg.Server.CORSOrigins)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ingestOnStart loads the configured paths and drops cached searches so
// new documents show up at once.
func ingestOnStart(ctx context.Context, e embedding.Embedder, vectors vectorStore, retriever *rag.Retriever) {
	cfg := GetConfig()
	manifest, err := ingest.OpenManifest(cfg.Ingest.Manifest)
	if err != nil {
		log.Printf("[ingest] open manifest: %v", err)
		return
	}
	defer manifest.Close()

	chunker := ingest.NewSentenceChunker(cfg.Ingest.SentencesPerChunk, cfg.Ingest.OverlapSentences)
	ing := ingest.New(e, vectors, chunker, manifest, cfg.Ingest.BatchSize)
	res, err := ing.Run(ctx, ".", cfg.Ingest.Paths, ingest.Options{})
	if err != nil {
		log.Printf("[ingest] %v", err)
		return
	}
	if res.FilesIndexed > 0 {
		retriever.Invalidate()
	}
	log.Printf("[ingest] %d files indexed, %d unchanged, %d chunks in %s",
		res.FilesIndexed, res.FilesSkipped, res.Chunks, res.Duration.Round(time.Millisecond))
}
