package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/bioc/pathwayPCA/lib/aespca"
	"github.com/bioc/pathwayPCA/lib/datatypes"
	"github.com/bioc/pathwayPCA/lib/pathway"
	"github.com/bioc/pathwayPCA/lib/settings"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

type decomposeOptions struct {
	input        string
	pathwayName  string
	pathwaysFile string
	components   int
	maxIter      int
	epsConv      float64
	adaptive     bool
	standardize  bool
}

func addSettingsFlags(cmd *cobra.Command, opts *decomposeOptions) {
	defaults := settings.NewAESSettings()
	cmd.Flags().IntVar(&opts.components, "components", defaults.Components, "Number of components to extract.")
	cmd.Flags().IntVar(&opts.maxIter, "max-iter", defaults.MaxIter, "Maximum number of sparse-solve rounds. 0 returns the SVD directions.")
	cmd.Flags().Float64Var(&opts.epsConv, "eps-conv", defaults.EpsConv, "Convergence threshold on the change of the loadings.")
	cmd.Flags().BoolVar(&opts.adaptive, "adaptive", defaults.Adaptive, "Whether to use adaptive penalty weights.")
	cmd.Flags().BoolVar(&opts.standardize, "standardize", defaults.Standardize, "Whether to center and scale every feature first.")
}

// applyFlags overrides cfg with the flags the user actually set.
func applyFlags(cmd *cobra.Command, opts *decomposeOptions, cfg settings.AESSettings) (settings.AESSettings, error) {
	flags := cmd.Flags()
	if flags.Changed("components") {
		cfg.Components = opts.components
	}
	if flags.Changed("max-iter") {
		cfg.MaxIter = opts.maxIter
	}
	if flags.Changed("eps-conv") {
		cfg.EpsConv = opts.epsConv
	}
	if flags.Changed("adaptive") {
		cfg.Adaptive = opts.adaptive
	}
	if flags.Changed("standardize") {
		cfg.Standardize = opts.standardize
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decomposeCmd(root *rootOptions) *cobra.Command {
	opts := &decomposeOptions{}
	cmd := &cobra.Command{
		Use:   "decompose",
		Short: "Decompose a matrix file and print the result as JSON",
		Long: `Reads a samples x features matrix with a header line of feature names.
Values are separated by whitespace or commas; NA and NaN mark missing values.
With --pathways, every pathway of the YAML file is cut out of the matrix and
decomposed; otherwise the whole matrix is one pathway.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadSettings()
			if err != nil {
				return err
			}
			cfg, err = applyFlags(cmd, opts, cfg)
			if err != nil {
				return err
			}
			features, x, err := readMatrixFile(opts.input)
			if err != nil {
				return err
			}
			runner := pathway.NewRunner(aespca.NewDecomposer(root.logger), root.logger)
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")

			if opts.pathwaysFile == "" {
				outcome := runner.DecomposeMatrix(opts.pathwayName, x, features, cfg)
				return encoder.Encode(datatypes.FromResult(opts.pathwayName, outcome.Result))
			}

			pathways, err := readPathwaysFile(opts.pathwaysFile)
			if err != nil {
				return err
			}
			collection, err := pathway.NewCollection(pathways)
			if err != nil {
				return err
			}
			assay, err := pathway.NewAssay(features, x)
			if err != nil {
				return err
			}
			collection, dropped := collection.Trim(assay, cfg.MinFeatures)
			if len(dropped) > 0 {
				root.logger.Info().Strs("pathways", dropped).Int("minFeatures", cfg.MinFeatures).
					Msg("dropping pathways with too few measured features")
			}
			outcomes, err := runner.DecomposeAll(cmd.Context(), assay, collection, cfg)
			if err != nil {
				return err
			}
			results := make([]*datatypes.ResultMessage, 0, len(outcomes))
			for _, o := range outcomes {
				if o.Err != nil {
					results = append(results, &datatypes.ResultMessage{Pathway: o.Pathway, Error: o.Err.Error()})
					continue
				}
				results = append(results, datatypes.FromResult(o.Pathway, o.Result))
			}
			return encoder.Encode(results)
		},
	}
	cmd.Flags().StringVar(&opts.input, "input", "", "Name of the matrix file to read.")
	cmd.Flags().StringVar(&opts.pathwayName, "pathway", "", "Name to report for the matrix.")
	cmd.Flags().StringVar(&opts.pathwaysFile, "pathways", "", "A YAML file listing pathways (name, features).")
	addSettingsFlags(cmd, opts)
	cmd.MarkFlagRequired("input")
	return cmd
}

func readPathwaysFile(filename string) ([]pathway.Pathway, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var pathways []pathway.Pathway
	if err := yaml.Unmarshal(data, &pathways); err != nil {
		return nil, fmt.Errorf("parsing pathways file %s: %w", filename, err)
	}
	return pathways, nil
}

func readMatrixFile(filename string) ([]string, *mat.Dense, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()
	features, x, err := readMatrix(file)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	return features, x, nil
}

func splitFields(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
}

func readMatrix(r io.Reader) ([]string, *mat.Dense, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	var features []string
	data := make([]float64, 0)
	lineCount := 0
	rowCount := 0
	for scanner.Scan() {
		lineCount++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := splitFields(line)
		if features == nil {
			features = parts
			continue
		}
		if len(parts) != len(features) {
			return nil, nil, fmt.Errorf("inconsistent number of values in line %d: expected %d but got %d",
				lineCount, len(features), len(parts))
		}
		for _, p := range parts {
			if p == "NA" {
				data = append(data, math.NaN())
				continue
			}
			v, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("on line %d, failed to parse %s into a float: %w", lineCount, p, err)
			}
			data = append(data, v)
		}
		rowCount++
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	if rowCount == 0 {
		return nil, nil, fmt.Errorf("no data rows")
	}
	return features, mat.NewDense(rowCount, len(features), data), nil
}
