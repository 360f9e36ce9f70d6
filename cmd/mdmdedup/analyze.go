package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kiranshivaraju/mdmdedup/internal/analysis"
	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

// pairFile is the JSON layout read by `analyze --file`.
type pairFile struct {
	Record1    models.Record `json:"record1"`
	Record2    models.Record `json:"record2"`
	FuzzyScore float64       `json:"fuzzyScore"`
}

func readPair(path string) (models.AnalysisRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.AnalysisRequest{}, eris.Wrapf(err, "read pair file %s", path)
	}
	var p pairFile
	if err := json.Unmarshal(data, &p); err != nil {
		return models.AnalysisRequest{}, eris.Wrapf(err, "parse pair file %s", path)
	}
	return models.AnalysisRequest{Record1: p.Record1, Record2: p.Record2, FuzzyScore: p.FuzzyScore}, nil
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		file      string
		rulesOnly bool
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyse one record pair from a JSON file",
		Example: `  mdmdedup analyze --file pair.json
  mdmdedup analyze --file pair.json --rules-only`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := readPair(file)
			if err != nil {
				return err
			}
			base, err := baseRules(a.cfg)
			if err != nil {
				return err
			}
			engine, err := newEngine(base)
			if err != nil {
				return err
			}
			if rulesOnly {
				return printJSON(cmd.OutOrStdout(), engine.AnalyzeRecords(req))
			}

			orch, err := newOrchestrator(cmd.Context(), a.cfg, engine)
			if err != nil {
				return err
			}
			svc := analysis.NewService(orch,
				analysis.WithMaxRetries(a.cfg.AI.MaxRetries),
				analysis.WithLogger(zap.L()))
			res, err := svc.Analyze(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with record1, record2 and fuzzyScore")
	cmd.Flags().BoolVar(&rulesOnly, "rules-only", false, "Apply business rules only, without calling a provider")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
