package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port      int      `json:"port"`
	JWTSecret string   `json:"jwt_secret"`
	CORSAllow []string `json:"cors_allow"`
	// Minimum seconds between summarization calls per caller; 0 disables.
	QueryRateLimitSeconds int              `json:"query_rate_limit_seconds"`
	Database              DatabaseConfig   `json:"database"`
	Index                 IndexConfig      `json:"index"`
	AI                    AIConfig         `json:"ai"`
	Audit                 AuditConfig      `json:"audit"`
	Snapshot              SnapshotConfig   `json:"snapshot"`
	Jobs                  JobsConfig       `json:"jobs"`
	LogConfig             logger.LogConfig `json:"log_config"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

type IndexConfig struct {
	Path string `json:"path"`
	// Must match the vector(N) width of the embeddings column; checked
	// against the schema at startup.
	Dimension int `json:"dimension"`
	// Below this many candidates the retriever may fall back to a
	// brute-force cosine scan instead of the ANN index.
	BruteForceMax int `json:"brute_force_max"`
}

type AIConfig struct {
	Provider      string      `json:"provider"`
	Model         string      `json:"model"`
	GenModel      string      `json:"gen_model"`
	Compression   string      `json:"compression"` // template | llm
	CacheSize     int         `json:"cache_size"`
	CacheTTLHours int         `json:"cache_ttl_hours"`
	Data          interface{} `json:"data"`
}

type AuditConfig struct {
	Dir string `json:"dir"`
}

type SnapshotConfig struct {
	Enable bool        `json:"enable"`
	Type   string      `json:"type"` // local | s3
	Data   interface{} `json:"data"`
}

type JobsConfig struct {
	BackfillSpec      string `json:"backfill_spec"`
	BackfillBatchSize int    `json:"backfill_batch_size"`
	SyncSpec          string `json:"sync_spec"`
	SnapshotSpec      string `json:"snapshot_spec"`
	RebuildSpec       string `json:"rebuild_spec"`
	// Rebuild triggers once tombstones exceed this fraction of the index.
	RebuildTombstoneRatio float64 `json:"rebuild_tombstone_ratio"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.Index.Path == "" {
		return nil, fmt.Errorf("index.path is required")
	}
	if cfg.Index.Dimension == 0 {
		cfg.Index.Dimension = 768
	}
	if cfg.Index.BruteForceMax == 0 {
		cfg.Index.BruteForceMax = 2000
	}
	if cfg.AI.Provider == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	if cfg.AI.Model == "" {
		return nil, fmt.Errorf("ai.model is required")
	}
	switch cfg.AI.Compression {
	case "":
		cfg.AI.Compression = "template"
	case "template", "llm":
	default:
		return nil, fmt.Errorf("ai.compression must be template or llm")
	}
	if cfg.AI.Compression == "llm" && cfg.AI.GenModel == "" {
		return nil, fmt.Errorf("ai.gen_model is required for llm compression")
	}
	if cfg.AI.CacheSize == 0 {
		cfg.AI.CacheSize = 10000
	}
	if cfg.AI.CacheTTLHours == 0 {
		cfg.AI.CacheTTLHours = 2
	}
	if cfg.Audit.Dir == "" {
		cfg.Audit.Dir = "logs"
	}
	if cfg.Snapshot.Enable {
		switch cfg.Snapshot.Type {
		case "local", "s3":
		default:
			return nil, fmt.Errorf("snapshot.type must be local or s3")
		}
	}
	if cfg.Jobs.BackfillBatchSize == 0 {
		cfg.Jobs.BackfillBatchSize = 32
	}
	if cfg.Jobs.RebuildTombstoneRatio == 0 {
		cfg.Jobs.RebuildTombstoneRatio = 0.2
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	return &cfg, nil
}
