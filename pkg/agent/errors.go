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

import "errors"

// Error kinds surfaced by Chat. Callers branch with errors.Is; the
// orchestrator's retry loop treats ErrLLM as retryable and
// context.Canceled as final.
var (
	// ErrLLM wraps transport or model failures at the provider.
	ErrLLM = errors.New("llm error")

	// ErrSchema wraps structured-output parse or validation failures.
	ErrSchema = errors.New("schema error")

	// ErrConfig wraps construction-time misuse (conflicting options,
	// missing collaborators).
	ErrConfig = errors.New("config error")
)
