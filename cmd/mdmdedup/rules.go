package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/mdmdedup/internal/rules"
	"github.com/kiranshivaraju/mdmdedup/internal/ruletest"
	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

func newRulesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Test, validate and benchmark business rules from a YAML file",
	}
	cmd.AddCommand(
		newRulesTestCmd(a),
		newRulesValidateCmd(a),
		newRulesBenchmarkCmd(a),
		newRulesGenerateCmd(a),
	)
	return cmd
}

// loadHarness reads the rule file and prepares a harness over an empty engine.
func loadHarness(a *app, file string) ([]models.BusinessRule, *ruletest.Harness, error) {
	set, err := rules.LoadFile(file)
	if err != nil {
		return nil, nil, err
	}
	engine, err := newEngine(nil)
	if err != nil {
		return nil, nil, err
	}
	return set, newHarness(a.cfg, engine), nil
}

func fileFlag(cmd *cobra.Command, file *string) {
	cmd.Flags().StringVarP(file, "file", "f", "", "YAML rule file with a top-level rules list")
	_ = cmd.MarkFlagRequired("file")
}

func newRulesTestCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run each rule's test cases; fails if any case fails",
		RunE: func(cmd *cobra.Command, _ []string) error {
			set, h, err := loadHarness(a, file)
			if err != nil {
				return err
			}
			results := make([]models.TestResult, 0, len(set))
			failing := 0
			for _, r := range set {
				res := h.TestRule(cmd.Context(), r)
				if res.Failed > 0 {
					failing++
				}
				results = append(results, res)
			}
			if err := printJSON(cmd.OutOrStdout(), results); err != nil {
				return err
			}
			if failing > 0 {
				return fmt.Errorf("%d of %d rules have failing test cases", failing, len(set))
			}
			return nil
		},
	}
	fileFlag(cmd, &file)
	return cmd
}

func newRulesValidateCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate each rule; fails if any rule does not compile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			set, h, err := loadHarness(a, file)
			if err != nil {
				return err
			}
			out := make(map[string]models.RuleValidationResult, len(set))
			invalid := 0
			for _, r := range set {
				res := h.ValidateRule(cmd.Context(), r)
				if !res.IsValid {
					invalid++
				}
				out[r.Name] = res
			}
			if err := printJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d rules are invalid", invalid, len(set))
			}
			return nil
		},
	}
	fileFlag(cmd, &file)
	return cmd
}

func newRulesBenchmarkCmd(a *app) *cobra.Command {
	var (
		file       string
		iterations int
	)
	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Measure evaluation latency for each rule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			set, h, err := loadHarness(a, file)
			if err != nil {
				return err
			}
			if iterations <= 0 {
				iterations = a.cfg.Rules.BenchmarkIterations
			}
			out := make(map[string]models.BenchmarkResult, len(set))
			for _, r := range set {
				res, err := h.RunBenchmark(cmd.Context(), r, iterations)
				if err != nil {
					return err
				}
				out[r.Name] = res
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	fileFlag(cmd, &file)
	cmd.Flags().IntVarP(&iterations, "iterations", "n", 0, "Evaluations per rule (default from rules.benchmark_iterations)")
	return cmd
}

func newRulesGenerateCmd(a *app) *cobra.Command {
	var (
		file   string
		reason string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Draft additional edge-case tests for each rule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			set, h, err := loadHarness(a, file)
			if err != nil {
				return err
			}
			out := make(map[string][]models.TestCase, len(set))
			for _, r := range set {
				out[r.Name] = h.GenerateAdditionalTestCases(r, reason)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	fileFlag(cmd, &file)
	cmd.Flags().StringVar(&reason, "reason", "requested from cli", "Why the tests are being generated")
	return cmd
}
