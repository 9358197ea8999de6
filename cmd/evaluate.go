package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spigell/hh-researcher/internal/export"
	"github.com/spigell/hh-researcher/internal/logger"
	"github.com/spigell/hh-researcher/internal/research"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PromptShowJudgement = "Show final judgement"
	PromptShowHistory   = "Show cycle history"
	PromptExportXLSX    = "Export to XLSX"
	PromptExit          = "Exit"
)

var errExit = errors.New("exit requested")

var prompt = promptui.Select{
	Label: "What next?",
	Items: []string{PromptShowJudgement, PromptShowHistory, PromptExportXLSX, PromptExit},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <request.json>",
	Short: "Evaluate a candidate against a job and print the recommendation",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		evaluate(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().Int("max-cycles", 0, "research cycles when the request does not set max_cycles (1-5)")
	evaluateCmd.Flags().Bool("use-enhanced-evaluator", true, "run career and tenure analysis before scoring")
	evaluateCmd.Flags().Bool("use-hybrid-evaluator", false, "blend a keyword rule score into the model score")
	evaluateCmd.Flags().Bool("semantic-skill-matching", true, "ask the model whether past positions match the required skills")
	evaluateCmd.Flags().StringP("output", "o", "", "write the result to this XLSX file")
	evaluateCmd.Flags().BoolP("auto-aprove", "y", false, "do not show the interactive menu after the evaluation")

	viper.BindPFlag("max-cycles", evaluateCmd.Flags().Lookup("max-cycles"))
	viper.BindPFlag("use-enhanced-evaluator", evaluateCmd.Flags().Lookup("use-enhanced-evaluator"))
	viper.BindPFlag("use-hybrid-evaluator", evaluateCmd.Flags().Lookup("use-hybrid-evaluator"))
	viper.BindPFlag("semantic-skill-matching", evaluateCmd.Flags().Lookup("semantic-skill-matching"))
}

func evaluate(cmd *cobra.Command, requestFile string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the hh-researcher", zap.String("version", version))

	req, err := readRequest(requestFile)
	if err != nil {
		logger.Fatal("reading the request", zap.Error(err), zap.String("file", requestFile))
	}
	if req.MaxCycles == 0 {
		req.MaxCycles = config.MaxCycles
	}

	orchestrator, err := newOrchestrator(ctx, config, logger)
	if err != nil {
		logger.Fatal("preparing the evaluation", zap.Error(err))
	}

	result, err := orchestrator.Run(ctx, req)
	if result == nil {
		logger.Fatal("evaluation failed", zap.Error(err))
	}
	if err != nil {
		logger.Error("evaluation finished with an error", zap.Error(err))
	}

	logger.Info("evaluation finished",
		zap.String("request_id", result.RequestID),
		zap.String("recommendation", string(result.FinalJudgment.Recommendation)),
		zap.Int("cycles", result.TotalCycles),
		zap.Int("searches", result.TotalSearches),
	)

	pretty, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(pretty))

	if output := cmd.Flag("output").Value.String(); output != "" {
		if err := exportResult(result, output, logger); err != nil {
			logger.Fatal("exporting the result", zap.Error(err))
		}
	}

	if cmd.Flag("auto-aprove").Value.String() == "true" {
		return
	}

	for {
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if err := handleAction(action, result, os.Stdout, logger); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

func newOrchestrator(ctx context.Context, config *Config, logger *zap.Logger) (*research.Orchestrator, error) {
	generator, err := newGenerator(ctx, config.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("building llm client: %w", err)
	}

	deps := research.Deps{
		LLM:    generator,
		Web:    newWebSearch(config.Search, generator, logger),
		Logger: logger,
	}

	store, err := newCaseStore(config.VectorStore, logger)
	if err != nil {
		logger.Warn("skipping similar cases", zap.Error(err))
	}
	if store != nil {
		embedder, err := newEmbedder(ctx, config.LLM, logger)
		if err != nil {
			return nil, fmt.Errorf("building embedder: %w", err)
		}
		deps.Embedder = embedder
		deps.Index = store
	}

	opts := research.DefaultOptions()
	opts.ModelVersion = generator.Model()
	opts.Enhanced = config.UseEnhancedEvaluator
	opts.Hybrid = config.UseHybridEvaluator
	opts.SemanticMatching = config.SemanticMatching
	if config.ReliabilityThreshold > 0 {
		opts.ReliabilityThreshold = config.ReliabilityThreshold
	}
	if config.LLM.MaxLogLength > 0 {
		opts.MaxLogLength = config.LLM.MaxLogLength
	}

	return research.New(deps, opts), nil
}

func readRequest(path string) (research.Request, error) {
	var req research.Request

	data, err := os.ReadFile(path)
	if err != nil {
		return req, err
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("decode %s: %w", path, err)
	}
	return req, nil
}

func handleAction(action string, result *research.Result, out io.Writer, logger *zap.Logger) error {
	switch action {
	case PromptShowJudgement:
		fmt.Fprintln(out, formatJudgement(result))
		return nil
	case PromptShowHistory:
		fmt.Fprintln(out, formatHistory(result.EvaluationHistory))
		return nil
	case PromptExportXLSX:
		name := fmt.Sprintf("%s-%s.xlsx", app, result.RequestID)
		return exportResult(result, name, logger)
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func exportResult(result *research.Result, path string, logger *zap.Logger) error {
	written, err := export.ToXLSX(result, path, time.Now())
	if err != nil {
		return err
	}
	logger.Info("dumping result to file", zap.String("filename", written))
	return nil
}

func formatJudgement(result *research.Result) string {
	j := result.FinalJudgment

	var b strings.Builder
	fmt.Fprintf(&b, "Recommendation: %s\n", j.Recommendation)
	fmt.Fprintf(&b, "Reason: %s\n", j.Reason)
	if result.FinalScore != nil {
		fmt.Fprintf(&b, "Score: %d (%s confidence)\n", *result.FinalScore, result.FinalConfidence)
	}
	writeList(&b, "Strengths", j.Strengths)
	writeList(&b, "Concerns", j.Concerns)
	fmt.Fprintf(&b, "\n%s", j.OverallAssessment)
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

func formatHistory(history []research.CycleSummary) string {
	if len(history) == 0 {
		return "No cycle was completed."
	}
	lines := make([]string, 0, len(history))
	for _, c := range history {
		lines = append(lines, fmt.Sprintf("Cycle %d: score %d, %s confidence, %d gaps, %d searches, %.2fs",
			c.Cycle, c.Score, c.Confidence, c.GapsFound, c.SearchesPerformed, c.Duration))
	}
	return strings.Join(lines, "\n")
}
