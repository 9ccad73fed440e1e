package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn/blanket"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/cpt"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/database"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/joint"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/literal"
)

var (
	jsonOutput     bool
	uniformDefault bool
	popVars        []string
	focusTerm      string
	blanketTerms   []string
)

var thetasCmd = &cobra.Command{
	Use:   "thetas",
	Short: "Estimate the conditional probabilities of every node family",
	Args:  cobra.NoArgs,
	RunE:  runThetas,
}

var jointCmd = &cobra.Command{
	Use:   "joint",
	Short: "Print the joint probability table and its pseudo log-likelihood",
	Long: `Evaluates the template under every grounding of its variables. Rules
from the dataset are used when present, estimates otherwise.`,
	Args: cobra.NoArgs,
	RunE: runJoint,
}

var groundCmd = &cobra.Command{
	Use:   "ground",
	Short: "Instantiate the template over the dataset's populations",
	Long: `Prints the ground graph as JSON. Each --pop-var is VAR or VAR:POPULATION;
without any, every template variable ranges over the default population.`,
	Args: cobra.NoArgs,
	RunE: runGround,
}

var gibbsCmd = &cobra.Command{
	Use:   "gibbs",
	Short: "Evaluate the Gibbs conditional of a Markov blanket",
	Long: `Each --term is a family with values, child first:

    rbn gibbs --focus "g(anna)" \
      --term "g(anna)=W | g(bob)=W, F(anna,bob)=T" \
      --term "g(bob)=W | g(anna)=W, F(bob,anna)=T"`,
	Args: cobra.NoArgs,
	RunE: runGibbs,
}

func init() {
	thetasCmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON instead of text")
	jointCmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON instead of text")
	jointCmd.Flags().BoolVar(&uniformDefault, "uniform-default", false, "use 1/|range| for nodes no rule covers")
	groundCmd.Flags().StringSliceVar(&popVars, "pop-var", nil, "variable to ground, as VAR or VAR:POPULATION (repeatable)")
	gibbsCmd.Flags().StringVar(&focusTerm, "focus", "", "focus node term (required)")
	gibbsCmd.Flags().StringArrayVar(&blanketTerms, "term", nil, "blanket family (repeatable)")
	_ = gibbsCmd.MarkFlagRequired("focus")
}

func runThetas(cmd *cobra.Command, args []string) error {
	m, err := loadModel(cmd.Context(), false)
	if err != nil {
		return err
	}
	table, err := m.Thetas()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		rows := make([]thetaRow, 0, table.Len())
		for _, f := range table.Formulas() {
			p, _ := table.Get(f)
			row := thetaRow{Child: f.Child().String(), Parents: []string{}, Prob: p}
			for _, pl := range f.Parents() {
				row.Parents = append(row.Parents, pl.String())
			}
			rows = append(rows, row)
		}
		return writeJSON(out, rows)
	}
	for _, f := range table.Formulas() {
		p, _ := table.Get(f)
		fmt.Fprintf(out, "P(%s) = %.6g\n", f, p)
	}
	return nil
}

func runJoint(cmd *cobra.Command, args []string) error {
	m, err := loadModel(cmd.Context(), uniformDefault)
	if err != nil {
		return err
	}
	report, err := m.Joint()
	if err != nil {
		return err
	}
	pll, err := report.PseudoLogLikelihood()
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), jointJSON(report, pll))
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	header := append(append([]string{}, report.Variables...), report.Atoms...)
	fmt.Fprintln(tw, strings.Join(append(header, "joint"), "\t"))
	for _, row := range report.Rows {
		cells := make([]string, 0, len(header)+1)
		for _, v := range report.Variables {
			c, err := row.Grounding.Value(v)
			if err != nil {
				return err
			}
			cells = append(cells, c)
		}
		for _, np := range row.Nodes {
			cells = append(cells, fmt.Sprintf("%s:%.4g", np.Literal.Value, np.Prob))
		}
		cells = append(cells, fmt.Sprintf("%.6g", row.Joint))
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pseudo log-likelihood: %.6g\n", pll)
	return nil
}

func runGround(cmd *cobra.Command, args []string) error {
	specs, err := parsePopVars(popVars)
	if err != nil {
		return err
	}
	m, err := loadModel(cmd.Context(), false)
	if err != nil {
		return err
	}
	if specs == nil {
		specs = database.Specs(m.Net().VariableList()...)
	}

	sg, err := m.Ground(specs)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), sg)
}

func runGibbs(cmd *cobra.Command, args []string) error {
	focus, err := literal.Parse(focusTerm)
	if err != nil {
		return fmt.Errorf("--focus: %w", err)
	}
	terms := make([]cpt.Formula, 0, len(blanketTerms))
	for _, s := range blanketTerms {
		f, err := parseFamily(s)
		if err != nil {
			return fmt.Errorf("--term %q: %w", s, err)
		}
		terms = append(terms, f)
	}

	m, err := loadModel(cmd.Context(), false)
	if err != nil {
		return err
	}
	b := blanket.New(focus, terms...)
	p, err := m.Gibbs(b)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s = %.6g\n", b, p)
	return nil
}

type thetaRow struct {
	Child   string   `json:"child"`
	Parents []string `json:"parents"`
	Prob    float64  `json:"prob"`
}

type jointRow struct {
	Grounding map[string]string `json:"grounding"`
	Values    []string          `json:"values"`
	Probs     []float64         `json:"probs"`
	Joint     float64           `json:"joint"`
	Log       *float64          `json:"log"` // null for a zero joint
}

type jointTable struct {
	Variables           []string   `json:"variables"`
	Atoms               []string   `json:"atoms"`
	Rows                []jointRow `json:"rows"`
	PseudoLogLikelihood *float64   `json:"pseudo_log_likelihood"`
}

func jointJSON(r *joint.Report, pll float64) jointTable {
	t := jointTable{Variables: r.Variables, Atoms: r.Atoms, PseudoLogLikelihood: finite(pll)}
	for _, row := range r.Rows {
		jr := jointRow{Grounding: map[string]string{}, Joint: row.Joint, Log: finite(row.Log)}
		for _, b := range row.Grounding.SortedEntries() {
			jr.Grounding[b.Var] = b.Const
		}
		for _, np := range row.Nodes {
			jr.Values = append(jr.Values, np.Literal.Value.String())
			jr.Probs = append(jr.Probs, np.Prob)
		}
		t.Rows = append(t.Rows, jr)
	}
	return t
}

// finite drops the infinite logs JSON cannot carry.
func finite(x float64) *float64 {
	if math.IsInf(x, 0) || math.IsNaN(x) {
		return nil
	}
	return &x
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parsePopVars(raw []string) ([]database.VarSpec, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	specs := make([]database.VarSpec, 0, len(raw))
	for _, s := range raw {
		v, pop, _ := strings.Cut(s, ":")
		v, pop = strings.TrimSpace(v), strings.TrimSpace(pop)
		if v == "" {
			return nil, fmt.Errorf("--pop-var %q: empty variable", s)
		}
		specs = append(specs, database.VarSpec{Var: v, Pop: pop})
	}
	return specs, nil
}

// parseFamily reads "child=v | parent=v, ...".
func parseFamily(s string) (cpt.Formula, error) {
	childText, parentText, _ := strings.Cut(s, "|")
	child, err := literal.Parse(childText)
	if err != nil {
		return cpt.Formula{}, err
	}
	parents, err := literal.ParseList(parentText)
	if err != nil {
		return cpt.Formula{}, err
	}
	return cpt.NewFormula(child, parents...), nil
}
