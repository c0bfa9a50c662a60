// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import "fmt"

// MemoryConfig configures the memory subsystem.
type MemoryConfig struct {
	// Provider is one of: sql, vector, remote.
	Provider string `yaml:"provider,omitempty"`

	// Driver selects the SQL driver: sqlite3, postgres, mysql.
	Driver string `yaml:"driver,omitempty"`

	// DSN is the SQL data source name (file path for sqlite3).
	DSN string `yaml:"dsn,omitempty"`

	// URL is the remote memory service base URL.
	URL string `yaml:"url,omitempty"`

	// Embedder names an entry in Config.Embedders (vector provider).
	Embedder string `yaml:"embedder,omitempty"`

	// VectorStore names an entry in Config.VectorStores (vector provider).
	VectorStore string `yaml:"vector_store,omitempty"`

	// JudgeLLM names the model used for quality scoring. Empty disables
	// LLM-judged quality.
	JudgeLLM string `yaml:"judge_llm,omitempty"`

	// RelevanceCutoff filters search hits: vector hits are kept when
	// distance <= 1 - cutoff.
	RelevanceCutoff float64 `yaml:"relevance_cutoff,omitempty"`

	// MinQuality filters long-term search results by stored quality.
	MinQuality float64 `yaml:"min_quality,omitempty"`

	// PromotionThreshold is the minimum quality for long-term promotion.
	PromotionThreshold float64 `yaml:"promotion_threshold,omitempty"`

	// CacheSize enables an LRU cache in front of the store when > 0.
	CacheSize int `yaml:"cache_size,omitempty"`

	// MaxRecords caps short-term records; zero means unbounded.
	MaxRecords int `yaml:"max_records,omitempty"`
}

// SetDefaults applies default values.
func (c *MemoryConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "sql"
	}
	if c.Driver == "" {
		c.Driver = "sqlite3"
	}
	if c.Provider == "sql" && c.DSN == "" {
		c.DSN = "memory.db"
	}
	if c.PromotionThreshold == 0 {
		c.PromotionThreshold = 0.7
	}
}

// Validate checks the memory configuration.
func (c *MemoryConfig) Validate() error {
	switch c.Provider {
	case "sql", "vector", "remote":
	default:
		return fmt.Errorf("invalid memory provider %q (valid: sql, vector, remote)", c.Provider)
	}
	switch c.Driver {
	case "sqlite3", "postgres", "mysql":
	default:
		return fmt.Errorf("invalid memory driver %q (valid: sqlite3, postgres, mysql)", c.Driver)
	}
	if c.Provider == "remote" && c.URL == "" {
		return fmt.Errorf("url is required for remote memory provider")
	}
	if c.Provider == "vector" && c.Embedder == "" {
		return fmt.Errorf("embedder is required for vector memory provider")
	}
	return nil
}

// VectorStoreConfig configures a vector database backend.
type VectorStoreConfig struct {
	// Type is one of: chromem, qdrant.
	Type string `yaml:"type,omitempty"`

	// Path persists the chromem store; empty keeps it in-memory.
	Path string `yaml:"path,omitempty"`

	// Host and Port locate a qdrant server.
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`

	// APIKey authenticates against qdrant cloud.
	APIKey string `yaml:"api_key,omitempty"`

	// UseTLS enables TLS for the qdrant connection.
	UseTLS bool `yaml:"use_tls,omitempty"`

	// Collection is the collection name to read/write.
	Collection string `yaml:"collection,omitempty"`

	// Dimension is the embedding vector size.
	Dimension int `yaml:"dimension,omitempty"`
}

// SetDefaults applies default values.
func (c *VectorStoreConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "chromem"
	}
	if c.Collection == "" {
		c.Collection = "maestro"
	}
	if c.Type == "qdrant" {
		if c.Host == "" {
			c.Host = "localhost"
		}
		if c.Port == 0 {
			c.Port = 6334
		}
	}
	if c.Dimension == 0 {
		c.Dimension = 1536
	}
}

// Validate checks the vector store configuration.
func (c *VectorStoreConfig) Validate() error {
	switch c.Type {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("invalid vector store type %q (valid: chromem, qdrant)", c.Type)
	}
	return nil
}
