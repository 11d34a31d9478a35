package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/NullVoxPopuli/cardstack/internal/card"
	"github.com/NullVoxPopuli/cardstack/internal/cli/ui"
	"github.com/NullVoxPopuli/cardstack/internal/realm"
)

// NewValidateCommand creates the validate command
func NewValidateCommand(opts *globalOptions) *cobra.Command {
	var internal bool

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a card document",
		Long: `Validate a card document file (card.json or card.yaml).

External documents are checked and converted to their internal form, which is
checked as well. With --internal the file is checked as an internal document.
Cards the document adopts from are resolved from the configured realms and
the index.

Examples:
  cardhub validate cards/article-card/card.json
  cardhub validate --internal stored.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := realm.ReadCard(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if a.ephemeral() {
					if _, err := a.loadRealms(ctx); err != nil {
						return err
					}
				}
				if err := validateDocument(ctx, a, doc, internal); err != nil {
					return err
				}
				ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("card '%s' is valid", doc.ID()), color.NoColor)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&internal, "internal", false, "Validate the document as an internal card")

	return cmd
}

func validateDocument(ctx context.Context, a *app, doc *card.Document, internal bool) error {
	sch := a.index.Schema()
	fetch := card.IgnoreNotFound(a.index)
	if internal {
		return card.ValidateInternal(ctx, sch, doc, fetch)
	}
	converted, err := card.GenerateInternal(ctx, sch, doc, fetch)
	if err != nil {
		return err
	}
	return card.ValidateInternal(ctx, sch, converted, fetch)
}

// NewIngestCommand creates the ingest command
func NewIngestCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file|dir>...",
		Short: "Ingest card documents into the index",
		Long: `Ingest card documents into the index.

Each argument is a card file, a card directory or a directory of card
directories. Cards that adopt from other cards in the batch are ingested after
them.

Examples:
  cardhub ingest cards/article-card/card.json
  cardhub ingest cards/`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := cardFiles(args)
			if err != nil {
				return err
			}
			docs := make([]*card.Document, 0, len(files))
			for _, f := range files {
				doc, err := realm.ReadCard(f)
				if err != nil {
					return err
				}
				docs = append(docs, doc)
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if a.ephemeral() {
					if _, err := a.loadRealms(ctx); err != nil {
						return err
					}
				}
				out := cmd.OutOrStdout()
				progress := ui.NewProgress(out, len(docs), color.NoColor)
				ingestBatch(ctx, a, docs, progress)
				fmt.Fprintln(out, progress.Summary())
				if n := progress.Failed(); n > 0 {
					return fmt.Errorf("%d card(s) failed to ingest", n)
				}
				return nil
			})
		},
	}
}

// ingestBatch ingests docs in passes. A card whose parent is missing is
// retried after the rest of the batch, until a pass makes no progress.
func ingestBatch(ctx context.Context, a *app, docs []*card.Document, progress *ui.Progress) {
	pending := docs
	for len(pending) > 0 {
		var retry []*card.Document
		var missing []error
		for _, doc := range pending {
			_, err := a.index.Ingest(ctx, doc)
			if err != nil && card.IsNotFound(err) {
				retry = append(retry, doc)
				missing = append(missing, err)
				continue
			}
			progress.Step(doc.ID(), err)
		}
		if len(retry) == len(pending) {
			for i, doc := range retry {
				progress.Step(doc.ID(), missing[i])
			}
			return
		}
		pending = retry
	}
}

// cardFiles expands paths into card document files.
func cardFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		if f, ok := cardFileIn(p); ok {
			files = append(files, f)
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		var found []string
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			if f, ok := cardFileIn(filepath.Join(p, entry.Name())); ok {
				found = append(found, f)
			}
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("no card documents found in %s", p)
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}

func cardFileIn(dir string) (string, bool) {
	for _, name := range []string{realm.JSONFile, realm.YAMLFile} {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// NewGetCommand creates the get command
func NewGetCommand(opts *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a card in a format",
		Long: `Print the external document of a card.

Examples:
  cardhub get local-hub::article-card
  cardhub get local-hub::article-card --format embedded`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := card.ParseFormat(format)
			if err != nil {
				return err
			}
			id := args[0]
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if a.ephemeral() {
					if _, err := a.loadRealms(ctx); err != nil {
						return err
					}
				}
				doc, err := a.index.Get(ctx, id, f)
				if err != nil {
					return withSuggestions(ctx, a.index, id, err)
				}
				return writeJSON(cmd.OutOrStdout(), doc)
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(card.FormatIsolated), "Format (isolated, embedded)")

	return cmd
}

// NewListCommand creates the list command
func NewListCommand(opts *globalOptions) *cobra.Command {
	var (
		format string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List indexed cards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := card.ParseFormat(format)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if a.ephemeral() {
					if _, err := a.loadRealms(ctx); err != nil {
						return err
					}
				}
				coll, err := a.index.List(ctx, f)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), coll)
				}
				renderCards(cmd.OutOrStdout(), coll)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(card.FormatEmbedded), "Format (isolated, embedded)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the collection document")

	return cmd
}

func renderCards(w io.Writer, coll *card.Collection) {
	if len(coll.Data) == 0 {
		fmt.Fprintln(w, "No cards indexed")
		return
	}
	table := ui.NewTable(w, []string{"ID", "ADOPTED FROM", "FIELDS"}, color.NoColor)
	for _, r := range coll.Data {
		adopted := r.AdoptedFromID()
		if adopted == "" {
			adopted = "-"
		}
		table.AddRow(r.ID, adopted, strconv.Itoa(len(r.FieldRefs())))
	}
	table.Render()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
