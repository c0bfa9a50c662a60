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

package agent

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/kadirpekel/maestro/pkg/llms"
)

// historyTrimmer drops the oldest history records when the token
// budget is exceeded. Records are dropped in user+assistant pairs so
// the history never starts mid-exchange.
type historyTrimmer struct {
	maxTokens int

	once sync.Once
	enc  *tiktoken.Tiktoken
}

func newHistoryTrimmer(maxTokens int) *historyTrimmer {
	return &historyTrimmer{maxTokens: maxTokens}
}

func (t *historyTrimmer) encoder() *tiktoken.Tiktoken {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("Failed to load token encoding; history trimming disabled", "error", err)
			return
		}
		t.enc = enc
	})
	return t.enc
}

func (t *historyTrimmer) countTokens(messages []llms.Message) int {
	enc := t.encoder()
	if enc == nil {
		return 0
	}
	total := 0
	for i := range messages {
		total += len(enc.Encode(messages[i].Text(), nil, nil))
	}
	return total
}

func (t *historyTrimmer) trim(history []llms.Message) []llms.Message {
	if t.maxTokens <= 0 || len(history) <= 2 {
		return history
	}

	for len(history) > 2 && t.countTokens(history) > t.maxTokens {
		drop := 2
		if len(history) < 2 {
			drop = len(history)
		}
		history = history[drop:]
	}
	return history
}
