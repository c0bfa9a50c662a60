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

package embedders

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/kadirpekel/maestro/pkg/config"
)

// Ollama's llama runner crashes when it receives concurrent embedding
// requests, so all requests through this process are serialized.
var ollamaEmbedMu sync.Mutex

// OllamaEmbedder implements EmbedderProvider against Ollama's
// OpenAI-compatible embeddings endpoint. No API key is required.
type OllamaEmbedder struct {
	inner *OpenAIEmbedder
}

func NewOllamaEmbedderFromConfig(cfg *config.EmbedderConfig) (*OllamaEmbedder, error) {
	return &OllamaEmbedder{
		inner: &OpenAIEmbedder{
			config:    cfg,
			client:    &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
			apiKey:    "ollama",
			baseURL:   cfg.Host,
			model:     cfg.Model,
			dimension: cfg.Dimension,
			batchSize: 1,
		},
	}, nil
}

func (e *OllamaEmbedder) Embed(text string) ([]float32, error) {
	return e.EmbedWithContext(context.Background(), text)
}

func (e *OllamaEmbedder) EmbedWithContext(ctx context.Context, text string) ([]float32, error) {
	ollamaEmbedMu.Lock()
	defer ollamaEmbedMu.Unlock()
	return e.inner.EmbedWithContext(ctx, text)
}

func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ollamaEmbedMu.Lock()
	defer ollamaEmbedMu.Unlock()
	return e.inner.EmbedBatch(ctx, texts)
}

func (e *OllamaEmbedder) GetDimension() int {
	return e.inner.GetDimension()
}

func (e *OllamaEmbedder) GetModelName() string {
	return e.inner.GetModelName()
}

func (e *OllamaEmbedder) Close() error {
	return e.inner.Close()
}
