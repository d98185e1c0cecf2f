package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DataDirName is the per-project directory holding the database, config
// file, lock file, and logs.
const DataDirName = ".talentgraph"

var v *viper.Viper

// Initialize sets up the viper configuration singleton.
// Should be called once at application startup.
func Initialize() error {
	v = viper.New()

	v.SetConfigType("yaml")

	// Explicitly locate config.yaml and use SetConfigFile so we never pick
	// up an unrelated config.json.
	// Precedence: project .talentgraph/config.yaml > ~/.config/tg/config.yaml > ~/.talentgraph/config.yaml
	configFileSet := false

	// 1. Walk up from CWD to find the project .talentgraph/config.yaml.
	//    This allows commands to work from subdirectories.
	cwd, err := os.Getwd()
	if err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, DataDirName, "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
				break
			}
		}
	}

	// 2. User config directory (~/.config/tg/config.yaml)
	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "tg", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// 3. Home directory (~/.talentgraph/config.yaml)
	if !configFileSet {
		if homeDir, err := os.UserHomeDir(); err == nil {
			configPath := filepath.Join(homeDir, DataDirName, "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// Automatic environment variable binding; env takes precedence over
	// the config file. E.g. TG_JSON, TG_DB, TG_EXTRACTION_MODEL.
	v.SetEnvPrefix("TG")

	// Replace hyphens and dots with underscores so TG_EXTRACTION_MODEL
	// maps to the "extraction.model" key.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// The Anthropic SDK convention is the bare ANTHROPIC_API_KEY; accept
	// it alongside the prefixed form.
	_ = v.BindEnv("anthropic.api-key", "TG_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")

	// Global defaults
	v.SetDefault("json", false)
	v.SetDefault("db", "")
	v.SetDefault("anthropic.api-key", "")

	// Classification defaults
	v.SetDefault("classify.high-signal-threshold", 0.5)
	v.SetDefault("classify.keywords-file", "")

	// Extraction defaults
	v.SetDefault("extraction.model", "claude-3-5-haiku-20241022")
	v.SetDefault("extraction.max-retries", 3)
	v.SetDefault("extraction.timeout", "60s")
	v.SetDefault("extraction.max-content-chars", 4000)
	v.SetDefault("extraction.min-confidence", 0.70)
	v.SetDefault("extraction.workers", 4)
	v.SetDefault("extraction.requests-per-second", 1.0)
	v.SetDefault("extraction.claim-ttl", "10m")

	// Pipeline defaults
	v.SetDefault("pipeline.max-articles", 500)

	// Resolution defaults
	v.SetDefault("resolve.similarity-threshold", 0.85)

	// Cross-reference defaults
	v.SetDefault("xref.name-threshold", 0.85)
	v.SetDefault("xref.date-window-days", 30)
	v.SetDefault("xref.amount-tolerance", 0.20)

	// Enrichment defaults
	v.SetDefault("enrich.model", "claude-3-5-haiku-20241022")
	v.SetDefault("enrich.max-entities", 10)

	// Digest defaults
	v.SetDefault("digest.min-confidence", 0.75)
	v.SetDefault("digest.since", "168h")

	// Log rotation defaults
	v.SetDefault("log.max-size-mb", 10)
	v.SetDefault("log.max-backups", 3)
	v.SetDefault("log.max-age-days", 28)

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// DataDir returns the project data directory. It walks up from the
// working directory looking for an existing .talentgraph directory so
// commands work from subdirectories; when none exists it falls back to
// .talentgraph under the working directory.
func DataDir() string {
	cwd, err := os.Getwd()
	if err != nil {
		return DataDirName
	}
	for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, DataDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
	}
	return filepath.Join(cwd, DataDirName)
}

// DBPath returns the database path: the db config key when set,
// otherwise talentgraph.db inside the data directory.
func DBPath() string {
	if p := GetString("db"); p != "" {
		return p
	}
	return filepath.Join(DataDir(), "talentgraph.db")
}

// LockPath returns the run-lock path inside the data directory.
func LockPath() string {
	return filepath.Join(DataDir(), "run.lock")
}

// LogPath returns the rotating pipeline log path.
func LogPath() string {
	return filepath.Join(DataDir(), "logs", "pipeline.log")
}

// GetString retrieves a string configuration value
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetFloat retrieves a float configuration value
func GetFloat(key string) float64 {
	if v == nil {
		return 0
	}
	return v.GetFloat64(key)
}

// GetDuration retrieves a duration configuration value
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set sets a configuration value
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}

// AllSettings returns all configuration settings as a map
func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}

// GetAPIKey resolves the Anthropic API key from TG_ANTHROPIC_API_KEY,
// ANTHROPIC_API_KEY, or the anthropic.api-key config key.
func GetAPIKey() string {
	return GetString("anthropic.api-key")
}

// GetExtractionModel returns the model used for relationship extraction.
func GetExtractionModel() string {
	return GetString("extraction.model")
}

// GetExtractionMaxRetries returns the transient-failure retry budget per article.
func GetExtractionMaxRetries() int {
	n := GetInt("extraction.max-retries")
	if n < 1 {
		return 1
	}
	return n
}

// GetExtractionTimeout returns the per-call extraction timeout.
func GetExtractionTimeout() time.Duration {
	d := GetDuration("extraction.timeout")
	if d <= 0 {
		return 60 * time.Second
	}
	return d
}

// GetMaxContentChars returns the article body truncation length used
// when building extraction prompts.
func GetMaxContentChars() int {
	n := GetInt("extraction.max-content-chars")
	if n <= 0 {
		return 4000
	}
	return n
}

// GetMinRelationshipConfidence returns the floor below which extracted
// relationships are dropped.
func GetMinRelationshipConfidence() float64 {
	return GetFloat("extraction.min-confidence")
}

// GetExtractionWorkers returns the bounded worker count for the
// extraction stage.
func GetExtractionWorkers() int {
	n := GetInt("extraction.workers")
	if n < 1 {
		return 1
	}
	return n
}

// GetRequestsPerSecond returns the LLM call pacing rate.
func GetRequestsPerSecond() float64 {
	r := GetFloat("extraction.requests-per-second")
	if r <= 0 {
		return 1.0
	}
	return r
}

// GetClaimTTL returns how long an in-flight claim is honored before a
// crashed worker's article becomes claimable again.
func GetClaimTTL() time.Duration {
	d := GetDuration("extraction.claim-ttl")
	if d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// GetMaxArticlesPerRun caps how many articles one pipeline run processes
// per stage.
func GetMaxArticlesPerRun() int {
	n := GetInt("pipeline.max-articles")
	if n <= 0 {
		return 500
	}
	return n
}

// GetHighSignalThreshold returns the classification confidence above
// which an article is queued for extraction.
func GetHighSignalThreshold() float64 {
	return GetFloat("classify.high-signal-threshold")
}

// GetSimilarityThreshold returns the fuzzy-match threshold for entity
// deduplication.
func GetSimilarityThreshold() float64 {
	return GetFloat("resolve.similarity-threshold")
}

// GetXrefNameThreshold returns the minimum name similarity for a
// news/filing match.
func GetXrefNameThreshold() float64 {
	return GetFloat("xref.name-threshold")
}

// GetXrefDateWindowDays returns the maximum day gap for a news/filing match.
func GetXrefDateWindowDays() int {
	n := GetInt("xref.date-window-days")
	if n <= 0 {
		return 30
	}
	return n
}

// GetXrefAmountTolerance returns the relative amount tolerance for a
// news/filing match.
func GetXrefAmountTolerance() float64 {
	t := GetFloat("xref.amount-tolerance")
	if t <= 0 {
		return 0.20
	}
	return t
}

// GetEnrichModel returns the model used for entity enrichment.
func GetEnrichModel() string {
	return GetString("enrich.model")
}

// GetEnrichMaxEntities returns the per-run cap on enrichment lookups.
func GetEnrichMaxEntities() int {
	n := GetInt("enrich.max-entities")
	if n <= 0 {
		return 10
	}
	return n
}
