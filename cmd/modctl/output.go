package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/Clark-Hu/rating-disputes/internal/domain"
	"github.com/Clark-Hu/rating-disputes/internal/moderation"
)

func printDisputes(w io.Writer, format string, disputes []domain.Dispute) error {
	if disputes == nil {
		disputes = []domain.Dispute{}
	}
	switch format {
	case "json":
		return printJSON(w, disputes)
	case "yaml":
		return printYAML(w, disputes)
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATUS\tRATING\tDISPUTED BY\tRATED BY\tREASON TYPE\tCREATED")
		for _, d := range disputes {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				d.ID, d.Status, d.RatingRef, d.DisputedByRef, d.RatedByRef, d.ReasonType,
				d.CreatedAt.Format("2006-01-02 15:04"))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func printResult(w io.Writer, format string, res moderation.Result) error {
	switch format {
	case "json":
		return printJSON(w, res)
	case "yaml":
		return printYAML(w, res)
	case "table", "":
		fmt.Fprintln(w, res.Message)
		if res.Dispute == nil {
			return nil
		}
		d := res.Dispute
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Rating:\t%s (%s)\n", d.RatingRef, d.RatingType)
		fmt.Fprintf(tw, "Disputed by:\t%s\n", d.DisputedByRef)
		fmt.Fprintf(tw, "Rated by:\t%s\n", d.RatedByRef)
		fmt.Fprintf(tw, "Categories:\t%s\n", formatCategories(d.Categories))
		fmt.Fprintf(tw, "Reason:\t[%s] %s\n", d.ReasonType, d.Reason)
		if d.ResolvedBy != nil {
			fmt.Fprintf(tw, "Resolved by:\t%s\n", *d.ResolvedBy)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func formatCategories(cats []domain.Category) string {
	parts := make([]string, 0, len(cats))
	for _, c := range cats {
		parts = append(parts, fmt.Sprintf("%s=%d", c.Category, c.Value))
	}
	return strings.Join(parts, ", ")
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printYAML goes through JSON first so field names match the API.
func printYAML(w io.Writer, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic interface{}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}
