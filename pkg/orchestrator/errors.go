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

package orchestrator

import (
	"errors"

	"github.com/kadirpekel/maestro/pkg/agent"
)

// Error kinds surfaced by the orchestrator. LLM, schema, and config
// kinds are shared with the agent runtime so errors.Is works across
// both packages.
var (
	ErrLLM    = agent.ErrLLM
	ErrSchema = agent.ErrSchema
	ErrConfig = agent.ErrConfig

	// ErrResource marks a missing or unreadable task input (image
	// file, unsupported media). The task fails without retries; the
	// run continues.
	ErrResource = errors.New("resource error")
)

// retryable reports whether another task attempt can help.
func retryable(err error) bool {
	return !errors.Is(err, ErrConfig) && !errors.Is(err, ErrResource)
}
