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

package llms

// defaultTemperature applies when neither the provider config nor the
// call options set one.
const defaultTemperature = 0.2

func resolveTemperature(configured *float64, opts *GenerateOptions) float64 {
	if opts != nil && opts.Temperature != nil {
		return *opts.Temperature
	}
	if configured != nil {
		return *configured
	}
	return defaultTemperature
}
