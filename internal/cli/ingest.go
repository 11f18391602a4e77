package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"casebeam/internal/ingest"
)

var (
	ingestRoot  string
	ingestForce bool
	ingestPrune bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [pattern...]",
	Short: "Load documents into the vector collection",
	Long: `Chunk, embed and upsert every .txt and .md file matched by the given
doublestar patterns, relative to --root. A file.yaml sidecar next to a
document supplies its title, citation, jurisdiction, doc_type, year and url.
Unchanged files are skipped unless --force is given.

With no patterns the ingest.paths from the config are used.

Examples:
  casebeam ingest "**/*.txt"                 # Everything under the current directory
  casebeam ingest --root corpus "cases/**"   # One subtree of a corpus
  casebeam ingest --prune "**/*.md"          # Also drop documents that were removed`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestRoot, "root", ".", "directory the patterns are relative to")
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "re-ingest unchanged files")
	ingestCmd.Flags().BoolVar(&ingestPrune, "prune", false, "delete documents whose files are no longer matched")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx := cmd.Context()

	patterns := args
	if len(patterns) == 0 {
		patterns = cfg.Ingest.Paths
	}
	if len(patterns) == 0 {
		return fmt.Errorf("no patterns given and ingest.paths is empty")
	}

	root, err := filepath.Abs(ingestRoot)
	if err != nil {
		return fmt.Errorf("invalid root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("root does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root is not a directory: %s", root)
	}

	embedder, err := newEmbedder(ctx, cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	vectors, err := newVectorStore(cfg)
	if err != nil {
		return err
	}
	defer vectors.Close()

	manifest, err := ingest.OpenManifest(cfg.Ingest.Manifest)
	if err != nil {
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	defer manifest.Close()

	chunker := ingest.NewSentenceChunker(cfg.Ingest.SentencesPerChunk, cfg.Ingest.OverlapSentences)
	ing := ingest.New(embedder, vectors, chunker, manifest, cfg.Ingest.BatchSize)

	fmt.Printf("Scanning %s...\n", root)

	var bar *progressbar.ProgressBar
	var barMu sync.Mutex
	var startTime time.Time

	progress := func(done, total int, file string) {
		barMu.Lock()
		defer barMu.Unlock()

		if bar == nil {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Ingesting[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}

		bar.Set(done)

		elapsed := time.Since(startTime)
		if rate := float64(done) / elapsed.Seconds(); rate > 0 {
			eta := time.Duration(float64(total-done)/rate) * time.Second
			bar.Describe(fmt.Sprintf("[cyan]Ingesting[reset] ETA: %s", formatDuration(eta)))
		}
	}

	res, err := ing.Run(ctx, root, patterns, ingest.Options{
		Force:    ingestForce,
		Prune:    ingestPrune,
		Progress: progress,
	})
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	fmt.Printf("\nIngest complete in %s:\n", formatDuration(res.Duration))
	fmt.Printf("  Files scanned:  %d\n", res.FilesScanned)
	fmt.Printf("  Files indexed:  %d\n", res.FilesIndexed)
	fmt.Printf("  Files skipped:  %d (unchanged)\n", res.FilesSkipped)
	if ingestPrune {
		fmt.Printf("  Files pruned:   %d (removed)\n", res.FilesPruned)
	}
	fmt.Printf("  Chunks created: %d\n", res.Chunks)

	if len(res.Errors) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, e := range res.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
