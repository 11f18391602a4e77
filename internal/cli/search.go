package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"casebeam/internal/rag"
	"casebeam/internal/vectordb"
)

var (
	searchLimit         int
	searchJurisdictions []string
	searchDocTypes      []string
	searchYearFrom      int
	searchYearTo        int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the document collection",
	Long: `Run a retrieval query against the collection and print the best
matching document per hit, without calling the language model.

Examples:
  casebeam search "duty of care to unforeseeable plaintiffs"
  casebeam search --jurisdiction "New York" --year-from 1900 "proximate cause"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "number of documents")
	searchCmd.Flags().StringSliceVar(&searchJurisdictions, "jurisdiction", nil, "only these jurisdictions")
	searchCmd.Flags().StringSliceVar(&searchDocTypes, "doc-type", nil, "only these document types")
	searchCmd.Flags().IntVar(&searchYearFrom, "year-from", 0, "earliest year")
	searchCmd.Flags().IntVar(&searchYearTo, "year-to", 0, "latest year")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx := cmd.Context()

	embedder, err := newEmbedder(ctx, cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	vectors, err := newVectorStore(cfg)
	if err != nil {
		return err
	}
	defer vectors.Close()

	query := strings.Join(args, " ")
	docs, err := newRetriever(cfg, embedder, vectors).Search(ctx, rag.Query{
		Text:  query,
		Limit: searchLimit,
		Filter: vectordb.Filter{
			Jurisdictions: searchJurisdictions,
			DocTypes:      searchDocTypes,
			YearFrom:      searchYearFrom,
			YearTo:        searchYearTo,
		},
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	fmt.Print(renderDocuments(query, docs))
	return nil
}

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	metaStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	scoreStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Width(88)
)

const maxExcerptRunes = 400

func renderDocuments(query string, docs []rag.Document) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%d results for %q", len(docs), query)))
	b.WriteString("\n")
	if len(docs) == 0 {
		b.WriteString(metaStyle.Render("No matching documents."))
		b.WriteString("\n")
		return b.String()
	}
	for i, d := range docs {
		title := fmt.Sprintf("%d. %s", i+1, d.Title)
		if d.Citation != "" {
			title += ", " + d.Citation
		}
		var meta []string
		for _, s := range []string{d.Jurisdiction, d.DocType} {
			if s != "" {
				meta = append(meta, s)
			}
		}
		if d.Year > 0 {
			meta = append(meta, fmt.Sprint(d.Year))
		}

		excerpt := d.Excerpt
		if r := []rune(excerpt); len(r) > maxExcerptRunes {
			excerpt = string(r[:maxExcerptRunes]) + "..."
		}
		body := headerStyle.Render(title) + "  " + scoreStyle.Render(fmt.Sprintf("score=%.3f", d.Score))
		if len(meta) > 0 {
			body += "\n" + metaStyle.Render(strings.Join(meta, " | "))
		}
		body += "\n\n" + excerpt
		b.WriteString(resultBoxStyle.Render(body))
		b.WriteString("\n")
	}
	return b.String()
}
