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
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kadirpekel/maestro/pkg/llms"
)

// imageMIMETypes maps supported file extensions to their data-URL MIME
// type.
var imageMIMETypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// buildImageParts turns a task prompt plus image references into a
// multimodal message: the prompt text first, then one image_url part
// per image. HTTP(S) URLs pass through; local files are base64-encoded
// data URLs. Unsupported media (video) fails the task before dispatch.
func buildImageParts(prompt string, images []string) ([]llms.ContentPart, error) {
	parts := []llms.ContentPart{{Type: llms.ContentPartTypeText, Text: prompt}}

	for _, img := range images {
		if strings.HasPrefix(img, "http://") || strings.HasPrefix(img, "https://") {
			parts = append(parts, llms.ContentPart{Type: llms.ContentPartTypeImageURL, ImageURL: img})
			continue
		}

		ext := strings.ToLower(filepath.Ext(img))
		if ext == ".mp4" {
			return nil, fmt.Errorf("%w: video input %q requires frame extraction, which is not available", ErrResource, img)
		}
		mime, ok := imageMIMETypes[ext]
		if !ok {
			return nil, fmt.Errorf("%w: unsupported image type %q", ErrResource, img)
		}

		data, err := os.ReadFile(img)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read image %q: %v", ErrResource, img, err)
		}

		parts = append(parts, llms.ContentPart{
			Type:     llms.ContentPartTypeImageURL,
			ImageURL: fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data)),
		})
	}
	return parts, nil
}
