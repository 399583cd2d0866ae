package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lacquerai/cortex/internal/profile"
	"github.com/lacquerai/cortex/internal/schema"
	"github.com/lacquerai/cortex/internal/style"
)

// profileCmd represents the profile command
var profileCmd = &cobra.Command{
	Use:   "profile [dataset]",
	Short: "Print descriptive statistics for every column",
	Long: `Classify every column of a CSV dataset and print its descriptive
statistics: quartiles and skewness for numeric columns, the most frequent
values for categorical columns and the range of datetime columns.

Examples:
  cortex profile loans.csv
  cortex profile loans.csv --target approved --output json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProfile(cmd.Context(), cmd.OutOrStdout(), args[0], profileTarget)
	},
}

var profileTarget string

func init() {
	rootCmd.AddCommand(profileCmd)

	profileCmd.Flags().StringVarP(&profileTarget, "target", "t", "", "target column (default: last column)")
}

// profileOutput pairs the schema with the profile for structured output.
type profileOutput struct {
	Schema  *schema.Schema   `json:"schema" yaml:"schema"`
	Profile *profile.Profile `json:"profile" yaml:"profile"`
}

func runProfile(ctx context.Context, stdout io.Writer, location, target string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	opener, err := newOpener()
	if err != nil {
		return err
	}
	d, err := opener.Load(ctx, location)
	if err != nil {
		return err
	}
	if target == "" {
		columns := d.Columns()
		target = columns[len(columns)-1]
	}

	s, err := schema.Infer(d, target)
	if err != nil {
		return err
	}
	p := profile.Build(d, s)

	switch viper.GetString("output") {
	case "json":
		style.PrintJSON(stdout, profileOutput{Schema: s, Profile: p})
	case "yaml":
		style.PrintYAML(stdout, profileOutput{Schema: s, Profile: p})
	default:
		printProfile(stdout, location, d.Len(), p)
	}
	return nil
}

func printProfile(w io.Writer, location string, rows int, p *profile.Profile) {
	fmt.Fprintf(w, "%s %s\n", style.TitleStyle.Render(location), style.MutedStyle.Render(fmt.Sprintf("(%d rows)", rows)))

	if len(p.Numeric) > 0 {
		fmt.Fprintln(w, style.SectionStyle.Render("Numeric"))
		table := make([][]string, 0, len(p.Numeric))
		for _, n := range p.Numeric {
			table = append(table, []string{
				n.Column, strconv.Itoa(n.Count), num(n.Mean), num(n.Std), num(n.Min),
				num(n.P25), num(n.P50), num(n.P75), num(n.Max), num(n.Skewness),
			})
		}
		printTable(w, []string{"COLUMN", "COUNT", "MEAN", "STD", "MIN", "25%", "50%", "75%", "MAX", "SKEW"}, table)
	}

	if len(p.Categorical) > 0 {
		fmt.Fprintln(w, style.SectionStyle.Render("Categorical"))
		table := make([][]string, 0, len(p.Categorical))
		for _, c := range p.Categorical {
			top := make([]string, 0, 3)
			for i, cat := range c.Top {
				if i == 3 {
					break
				}
				top = append(top, fmt.Sprintf("%s (%s%%)", cat.Value, num(cat.Percent)))
			}
			unique := strconv.Itoa(c.Unique)
			if c.HighCardinality {
				unique += " " + style.WarningStyle.Render("high")
			}
			table = append(table, []string{c.Column, unique, strings.Join(top, ", ")})
		}
		printTable(w, []string{"COLUMN", "UNIQUE", "MOST FREQUENT"}, table)
	}

	if len(p.Datetime) > 0 {
		fmt.Fprintln(w, style.SectionStyle.Render("Datetime"))
		table := make([][]string, 0, len(p.Datetime))
		for _, dt := range p.Datetime {
			table = append(table, []string{
				dt.Column, strconv.Itoa(dt.Count),
				dt.Min.Format("2006-01-02 15:04:05"), dt.Max.Format("2006-01-02 15:04:05"),
			})
		}
		printTable(w, []string{"COLUMN", "COUNT", "MIN", "MAX"}, table)
	}
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
