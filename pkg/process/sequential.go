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

package process

import (
	"context"

	"github.com/kadirpekel/maestro/pkg/task"
)

// Sequential runs tasks in registration order, skipping those already
// completed.
type Sequential struct{}

func NewSequential() *Sequential { return &Sequential{} }

func (s *Sequential) Name() string { return KindSequential }

func (s *Sequential) Run(ctx context.Context, exec Executor) error {
	for _, t := range exec.Tasks() {
		if t.Status == task.StatusCompleted {
			continue
		}
		if err := exec.ExecuteTask(ctx, t.ID, ""); err != nil {
			return err
		}
	}
	return nil
}
