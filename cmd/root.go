package cmd

import (
	"errors"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "hh-researcher"
)

type Config struct {
	MaxCycles            int                `mapstructure:"max-cycles"`
	UseEnhancedEvaluator bool               `mapstructure:"use-enhanced-evaluator"`
	UseHybridEvaluator   bool               `mapstructure:"use-hybrid-evaluator"`
	SemanticMatching     bool               `mapstructure:"semantic-skill-matching"`
	ReliabilityThreshold float64            `mapstructure:"reliability-threshold"`
	LLM                  *LLMConfig         `mapstructure:"llm"`
	Search               *SearchConfig      `mapstructure:"search"`
	VectorStore          *VectorStoreConfig `mapstructure:"vector-store"`
}

type LLMConfig struct {
	APIKey              string `mapstructure:"api-key"`
	APIKeyFile          string `mapstructure:"api-key-file"`
	Model               string `mapstructure:"model"`
	FastModel           string `mapstructure:"fast-model"`
	EmbeddingModel      string `mapstructure:"embedding-model"`
	DefaultEmbeddingDim int    `mapstructure:"default-embedding-dim"`
	MaxRetries          int    `mapstructure:"max-retries"`
	MaxLogLength        int    `mapstructure:"max-log-length"`
}

type SearchConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	BaseURL    string `mapstructure:"base-url"`
}

type VectorStoreConfig struct {
	Path       string `mapstructure:"path"`
	Collection string `mapstructure:"collection"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "hh-researcher evaluates a candidate résumé against a job with iterative web research",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	envs := map[string]string{
		"llm.api-key":             "LLM_API_KEY",
		"search.api-key":          "SEARCH_API_KEY",
		"vector-store.path":       "VECTOR_STORE_PATH",
		"vector-store.collection": "VECTOR_STORE_COLLECTION",
	}
	for key, env := range envs {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	viper.SetDefault("max-cycles", 3)
	viper.SetDefault("use-enhanced-evaluator", true)
	viper.SetDefault("semantic-skill-matching", true)
	viper.SetDefault("reliability-threshold", 0.6)
	viper.SetDefault("llm.default-embedding-dim", 768)
	viper.SetDefault("llm.max-retries", 3)
	viper.SetDefault("llm.max-log-length", 300)

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is hh-researcher.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Environment variables are enough to run, so only an explicitly given
	// or unparsable config file is fatal.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config.LLM == nil {
		config.LLM = &LLMConfig{}
	}
	if config.Search == nil {
		config.Search = &SearchConfig{}
	}
	if config.VectorStore == nil {
		config.VectorStore = &VectorStoreConfig{}
	}

	return config, nil
}
