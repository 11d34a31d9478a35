package commands

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/NullVoxPopuli/cardstack/internal/card"
	"github.com/NullVoxPopuli/cardstack/internal/schema"
)

var fieldNamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// newOptions holds the values of a scaffolded card.
type newOptions struct {
	id          string
	adopts      string
	fields      []string
	interactive bool
}

// validateCardID checks that id names a card, repository::package.
func validateCardID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("card id is required")
	}
	c := card.Decompose(id)
	if c.Repository == "" || c.PackageName == "" || c.ModelID != "" {
		return fmt.Errorf("card id must have the form repository%spackage, got '%s'", card.Delim, id)
	}
	if !fieldNamePattern.MatchString(c.PackageName) {
		return fmt.Errorf("package name can only contain lowercase letters, numbers and dashes")
	}
	return nil
}

func validateFieldName(name string) error {
	if !fieldNamePattern.MatchString(name) {
		return fmt.Errorf("field name '%s' can only contain lowercase letters, numbers and dashes", name)
	}
	return nil
}

// NewNewCommand creates the new command
func NewNewCommand(opts *globalOptions) *cobra.Command {
	no := &newOptions{}

	cmd := &cobra.Command{
		Use:   "new [card-id]",
		Short: "Scaffold a new card in its realm",
		Long: `Create a card directory with a card.json in the realm owning the id.

If no card id is provided, you will be prompted to enter one. With
--interactive the fields and parent card are prompted for as well.

Examples:
  cardhub new local-hub::article-card --field title --field body
  cardhub new local-hub::blog-post --adopts local-hub::article-card
  cardhub new --interactive`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				no.id = args[0]
			}
			if err := no.prompt(); err != nil {
				return err
			}
			return runNew(cmd, opts, no)
		},
	}

	cmd.Flags().StringVar(&no.adopts, "adopts", "", "Card to adopt from")
	cmd.Flags().StringSliceVar(&no.fields, "field", nil, "Field to define (repeatable)")
	cmd.Flags().BoolVarP(&no.interactive, "interactive", "i", false, "Prompt for fields and parent card")

	return cmd
}

// prompt asks for the values that were not given as arguments.
func (o *newOptions) prompt() error {
	if o.id == "" {
		prompt := &survey.Input{
			Message: "Card id (repository::package):",
		}
		validator := func(ans interface{}) error {
			s, _ := ans.(string)
			return validateCardID(s)
		}
		if err := survey.AskOne(prompt, &o.id, survey.WithValidator(validator)); err != nil {
			return err
		}
	}
	if !o.interactive {
		return nil
	}

	var fields string
	if err := survey.AskOne(&survey.Input{
		Message: "Fields (comma separated):",
		Default: strings.Join(o.fields, ","),
	}, &fields); err != nil {
		return err
	}
	o.fields = splitList(fields)

	return survey.AskOne(&survey.Input{
		Message: "Adopt from (leave empty for none):",
		Default: o.adopts,
	}, &o.adopts)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func runNew(cmd *cobra.Command, opts *globalOptions, no *newOptions) error {
	id := strings.TrimSpace(no.id)
	if err := validateCardID(id); err != nil {
		return err
	}
	doc, err := scaffoldCard(id, strings.TrimSpace(no.adopts), no.fields)
	if err != nil {
		return err
	}

	cfg, _, err := opts.load()
	if err != nil {
		return err
	}
	r, err := findRealm(cfg, id)
	if err != nil {
		return err
	}
	if _, err := r.Locate(id); err == nil {
		return fmt.Errorf("card '%s' already exists in realm '%s'", id, r.Repository)
	}
	dir, err := r.Write(doc)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	successColor := color.New(color.FgGreen, color.Bold)
	infoColor := color.New(color.FgCyan)
	successColor.Fprintf(out, "✓ Created card %s\n", id)
	infoColor.Fprintf(out, "  %s\n", dir)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	infoColor.Fprintf(out, "  cardhub validate %s/card.json\n", dir)
	infoColor.Fprintf(out, "  cardhub ingest %s\n", dir)
	return nil
}

// scaffoldCard builds the external document of a new card with string
// fields.
func scaffoldCard(id, adopts string, fields []string) (*card.Document, error) {
	refs := make([]card.Identifier, 0, len(fields))
	model := &card.Resource{Type: id, ID: id, Attributes: map[string]any{}}
	included := make([]*card.Resource, 0, len(fields)+1)

	seen := make(map[string]bool, len(fields))
	for _, name := range fields {
		if err := validateFieldName(name); err != nil {
			return nil, err
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		refs = append(refs, card.Identifier{Type: card.TypeFields, ID: name})
		included = append(included, &card.Resource{
			Type: card.TypeFields,
			ID:   name,
			Attributes: map[string]any{
				"field-type":                schema.FieldTypeString,
				"is-metadata":               true,
				card.AttrNeededWhenEmbedded: true,
			},
		})
		model.SetAttribute(name, "")
	}
	included = append(included, model)

	shell := &card.Resource{
		Type: card.TypeCards,
		ID:   id,
		Relationships: map[string]card.Relationship{
			card.RelFields: {Data: card.ToMany(refs...)},
			card.RelModel:  {Data: card.ToOne(id, id)},
		},
		Meta: map[string]any{"version": "0.0.1"},
	}
	if adopts != "" {
		if err := validateCardID(adopts); err != nil {
			return nil, fmt.Errorf("adopts: %w", err)
		}
		shell.SetLinkage(card.RelAdoptedFrom, card.ToOne(card.TypeCards, adopts))
	}

	doc := &card.Document{Data: shell, Included: included}
	if err := card.ValidateExternal(doc); err != nil {
		return nil, err
	}
	return doc, nil
}
