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

package memory

import (
	"context"

	"github.com/kadirpekel/maestro/pkg/tool"
	"github.com/kadirpekel/maestro/pkg/tool/functiontool"
)

type rememberArgs struct {
	Content string `json:"content" jsonschema:"description=The fact to remember about the user"`
}

type recallArgs struct {
	Query string `json:"query" jsonschema:"description=What to look up in the user's memory"`
	Limit int    `json:"limit,omitempty" jsonschema:"description=Maximum number of results (default 3)"`
}

// Tools returns remember/recall function tools bound to the user memory
// store, so an agent can persist and retrieve facts mid-conversation.
func Tools(m *Memory, userID string) ([]tool.CallableTool, error) {
	remember, err := functiontool.New(functiontool.Config{
		Name:        "remember",
		Description: "Store a fact about the current user for later runs.",
	}, func(ctx context.Context, args rememberArgs) (map[string]any, error) {
		id, err := m.StoreUserMemory(ctx, userID, args.Content, nil)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": id}, nil
	})
	if err != nil {
		return nil, err
	}

	recall, err := functiontool.New(functiontool.Config{
		Name:        "recall",
		Description: "Look up previously stored facts about the current user.",
	}, func(ctx context.Context, args recallArgs) (map[string]any, error) {
		limit := args.Limit
		if limit <= 0 {
			limit = 3
		}
		records, err := m.SearchUserMemory(ctx, userID, args.Query, limit)
		if err != nil {
			return nil, err
		}
		facts := make([]string, 0, len(records))
		for _, r := range records {
			facts = append(facts, r.Content)
		}
		return map[string]any{"facts": facts}, nil
	})
	if err != nil {
		return nil, err
	}

	return []tool.CallableTool{remember, recall}, nil
}
