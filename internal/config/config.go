package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Harshitk-cp/dissent/internal/domain"
)

// Keys shared by the environment, the .env files and CLI flags.
const (
	KeyServerPort         = "server_port"
	KeyDatabaseURL        = "database_url"
	KeyLLMProvider        = "llm_provider"
	KeyLLMModel           = "llm_model"
	KeyArtifactDir        = "artifact_dir"
	KeyExportDir          = "export_dir"
	KeyRolesFile          = "roles_file"
	KeyAgentRoles         = "agent_roles"
	KeyAgentTimeout       = "agent_timeout"
	KeyMaxRetries         = "max_retries"
	KeyBackoffBase        = "backoff_base"
	KeyBackoffMax         = "backoff_max"
	KeyLLMRateLimitRPS    = "llm_rate_limit_rps"
	KeyLLMRateLimitBurst  = "llm_rate_limit_burst"
	KeyTemperature        = "llm_temperature"
	KeyEnableCalibration  = "enable_calibration"
	KeyCalibrationFactor  = "calibration_factor"
	KeyRetentionDays      = "retention_days"
	KeyRateLimitRPS       = "rate_limit_rps"
	KeyRateLimitBurst     = "rate_limit_burst"
	KeyAPIKey             = "api_key"
	KeyLogLevel           = "log_level"
	KeyConsensusThreshold = "consensus_threshold"
	KeyJaccardThreshold   = "jaccard_threshold"
	KeyResidualThreshold  = "residual_disagreement_threshold"
	KeyEntropyWeight      = "entropy_weight"
	KeyOverlapWeight      = "overlap_weight"
	KeyConflictWeight     = "conflict_weight"
	KeyMinMajority        = "min_majority"
)

func init() {
	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyServerPort, 8080)
	v.SetDefault(KeyLLMProvider, "openai")
	v.SetDefault(KeyArtifactDir, "./artifacts")
	v.SetDefault(KeyExportDir, "./exports")
	v.SetDefault(KeyAgentRoles, "benign,malicious,skeptic")
	v.SetDefault(KeyAgentTimeout, "60s")
	v.SetDefault(KeyMaxRetries, 3)
	v.SetDefault(KeyBackoffBase, "1s")
	v.SetDefault(KeyBackoffMax, "10s")
	v.SetDefault(KeyLLMRateLimitRPS, 5.0)
	v.SetDefault(KeyLLMRateLimitBurst, 3)
	v.SetDefault(KeyTemperature, 0.1)
	v.SetDefault(KeyEnableCalibration, false)
	v.SetDefault(KeyCalibrationFactor, 0.3)
	v.SetDefault(KeyRetentionDays, 0)
	v.SetDefault(KeyRateLimitRPS, 100.0)
	v.SetDefault(KeyRateLimitBurst, 20)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyConsensusThreshold, 0.2)
	v.SetDefault(KeyJaccardThreshold, 0.2)
	v.SetDefault(KeyResidualThreshold, 0.35)
	v.SetDefault(KeyEntropyWeight, 0.55)
	v.SetDefault(KeyOverlapWeight, 0.30)
	v.SetDefault(KeyConflictWeight, 0.15)
	v.SetDefault(KeyMinMajority, 2)
}

// Load reads the .env file specified by DISSENT_ENV (or .env by default),
// then its .secret sidecar, and binds every key to the environment.
// Variables already set in the process environment win over both files.
func Load() error {
	envFile := os.Getenv("DISSENT_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Missing files are fine; configuration may come from the environment.
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	viper.AutomaticEnv()
	return nil
}

func ServerPort() int {
	port := viper.GetInt(KeyServerPort)
	if port <= 0 {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return viper.GetString(KeyDatabaseURL)
}

// LLMProvider returns the configured LLM provider.
// Valid values: openai, anthropic, gemini, cerebras, mock
func LLMProvider() string {
	return strings.ToLower(viper.GetString(KeyLLMProvider))
}

// LLMAPIKey returns the API key for the configured LLM provider.
func LLMAPIKey() string {
	switch LLMProvider() {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	case "cerebras":
		return os.Getenv("CEREBRAS_API_KEY")
	case "mock":
		return ""
	default:
		return os.Getenv("OPENAI_API_KEY")
	}
}

// LLMModel is empty when the provider's default model should be used.
func LLMModel() string {
	return viper.GetString(KeyLLMModel)
}

func ArtifactDir() string {
	return viper.GetString(KeyArtifactDir)
}

func ExportDir() string {
	return viper.GetString(KeyExportDir)
}

// RolesFile is an optional YAML role catalog replacing the built-in one.
func RolesFile() string {
	return viper.GetString(KeyRolesFile)
}

// AgentRoles returns the role names taking part in an analysis.
func AgentRoles() []string {
	var names []string
	for _, n := range strings.Split(viper.GetString(KeyAgentRoles), ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}

func ConvergenceThresholds() domain.Thresholds {
	return domain.Thresholds{
		ConsensusThreshold: viper.GetFloat64(KeyConsensusThreshold),
		JaccardThreshold:   viper.GetFloat64(KeyJaccardThreshold),
		ResidualThreshold:  viper.GetFloat64(KeyResidualThreshold),
		EntropyWeight:      viper.GetFloat64(KeyEntropyWeight),
		OverlapWeight:      viper.GetFloat64(KeyOverlapWeight),
		ConflictWeight:     viper.GetFloat64(KeyConflictWeight),
		MinMajority:        viper.GetInt(KeyMinMajority),
	}
}

func AgentTimeout() time.Duration {
	return positiveDuration(KeyAgentTimeout, 60*time.Second)
}

func MaxRetries() int {
	n := viper.GetInt(KeyMaxRetries)
	if n <= 0 {
		return 3
	}
	return n
}

func BackoffBase() time.Duration {
	return positiveDuration(KeyBackoffBase, time.Second)
}

func BackoffMax() time.Duration {
	return positiveDuration(KeyBackoffMax, 10*time.Second)
}

func positiveDuration(key string, def time.Duration) time.Duration {
	d := viper.GetDuration(key)
	if d <= 0 {
		return def
	}
	return d
}

// LLMRateLimit returns the shared requests per second and burst for all
// analyst calls.
func LLMRateLimit() (float64, int) {
	rps := viper.GetFloat64(KeyLLMRateLimitRPS)
	if rps <= 0 {
		rps = 5
	}
	burst := viper.GetInt(KeyLLMRateLimitBurst)
	if burst <= 0 {
		burst = 3
	}
	return rps, burst
}

func Temperature() float64 {
	return viper.GetFloat64(KeyTemperature)
}

func EnableCalibration() bool {
	return viper.GetBool(KeyEnableCalibration)
}

func CalibrationFactor() float64 {
	return viper.GetFloat64(KeyCalibrationFactor)
}

// RetentionDays is zero when event directories are kept forever.
func RetentionDays() int {
	return viper.GetInt(KeyRetentionDays)
}

// RateLimitRPS returns the per-IP HTTP request rate.
func RateLimitRPS() float64 {
	rps := viper.GetFloat64(KeyRateLimitRPS)
	if rps <= 0 {
		return 100
	}
	return rps
}

func RateLimitBurst() int {
	burst := viper.GetInt(KeyRateLimitBurst)
	if burst <= 0 {
		return 20
	}
	return burst
}

// APIKey is the bearer token required under /v1. Empty disables auth.
func APIKey() string {
	return viper.GetString(KeyAPIKey)
}

// LogLevel returns the log level (debug, info, warn, error).
func LogLevel() string {
	return strings.ToLower(viper.GetString(KeyLogLevel))
}
