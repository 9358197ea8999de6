package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spigell/hh-researcher/internal/embedding"
	"github.com/spigell/hh-researcher/internal/logger"
	"github.com/spigell/hh-researcher/internal/research"
	"github.com/spigell/hh-researcher/internal/vectorstore"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "Manage historical cases used to find similar evaluations",
}

var casesImportCmd = &cobra.Command{
	Use:   "import <cases.json>",
	Short: "Embed historical cases and store them in the vector store",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		importCases(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(casesCmd)
	casesCmd.AddCommand(casesImportCmd)

	casesImportCmd.Flags().Bool("truncate", false, "drop every stored case before importing")
}

// caseEmbedder is satisfied by *embedding.Client.
type caseEmbedder interface {
	Embed(ctx context.Context, text string, intent embedding.Intent) ([]float32, error)
}

func importCases(cmd *cobra.Command, file string) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	cases, err := readCases(file)
	if err != nil {
		logger.Fatal("reading cases", zap.Error(err), zap.String("file", file))
	}

	store, err := newCaseStore(config.VectorStore, logger)
	if err != nil {
		logger.Fatal("opening the vector store", zap.Error(err))
	}
	if store == nil {
		logger.Fatal("vector store path is required",
			zap.String("hint", "set VECTOR_STORE_PATH or vector-store.path in the configuration file"))
	}

	if cmd.Flag("truncate").Value.String() == "true" {
		if err := store.Truncate(ctx); err != nil {
			logger.Fatal("truncating the vector store", zap.Error(err))
		}
	}

	embedder, err := newEmbedder(ctx, config.LLM, logger)
	if err != nil {
		logger.Fatal("building embedder", zap.Error(err))
	}

	imported, err := storeCases(ctx, cases, embedder, store, logger)
	if err != nil {
		logger.Fatal("importing cases", zap.Error(err), zap.Int("imported", imported))
	}

	logger.Info("cases imported", zap.Int("count", imported), zap.Int("total", store.Count()))
}

func readCases(path string) ([]research.Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cases []research.Case
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return cases, nil
}

// storeCases embeds the combined document of every case and upserts it.
// Cases without an id are skipped.
func storeCases(ctx context.Context, cases []research.Case, embedder caseEmbedder, store *vectorstore.Store, logger *zap.Logger) (int, error) {
	items := make([]vectorstore.Item, 0, len(cases))
	for _, c := range cases {
		if strings.TrimSpace(c.ID) == "" {
			logger.Warn("skipping case without id", zap.String("position", c.Position))
			continue
		}

		doc := c.Document()
		vector, err := embedder.Embed(ctx, doc, embedding.IntentDocument)
		if err != nil {
			return 0, fmt.Errorf("embed case %s: %w", c.ID, err)
		}

		items = append(items, vectorstore.Item{
			ID:       c.ID,
			Content:  doc,
			Vector:   vector,
			Metadata: c.Metadata(),
		})
	}

	if err := store.Upsert(ctx, items); err != nil {
		return 0, err
	}
	return len(items), nil
}
