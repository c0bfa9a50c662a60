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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kadirpekel/maestro/pkg/httpclient"
)

// RemoteStore talks to an external memory service over HTTP JSON. The
// service exposes per-tier store/search/delete/reset endpoints and
// mirrors the Record/Query shapes.
type RemoteStore struct {
	baseURL string
	client  *httpclient.Client
}

// NewRemoteStore creates a remote memory store client.
func NewRemoteStore(baseURL string) (*RemoteStore, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("remote memory URL is required")
	}

	return &RemoteStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpclient.New(httpclient.WithMaxRetries(3)),
	}, nil
}

type remoteSearchRequest struct {
	Query           string         `json:"query"`
	Limit           int            `json:"limit,omitempty"`
	RelevanceCutoff float64        `json:"relevance_cutoff,omitempty"`
	MinQuality      float64        `json:"min_quality,omitempty"`
	Filters         map[string]any `json:"filters,omitempty"`
}

type remoteSearchResponse struct {
	Results []Record `json:"results"`
}

// Put stores a record remotely.
func (s *RemoteStore) Put(ctx context.Context, tier string, rec Record) error {
	if err := validTier(tier); err != nil {
		return err
	}
	return s.post(ctx, fmt.Sprintf("/memory/%s/store", tier), rec, nil)
}

// Search queries the remote service.
func (s *RemoteStore) Search(ctx context.Context, tier string, q Query) ([]Record, error) {
	if err := validTier(tier); err != nil {
		return nil, err
	}

	req := remoteSearchRequest{
		Query:           q.Text,
		Limit:           q.Limit,
		RelevanceCutoff: q.RelevanceCutoff,
		MinQuality:      q.MinQuality,
		Filters:         q.Filters,
	}

	var resp remoteSearchResponse
	if err := s.post(ctx, fmt.Sprintf("/memory/%s/search", tier), req, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Delete removes a record remotely.
func (s *RemoteStore) Delete(ctx context.Context, tier string, id string) error {
	if err := validTier(tier); err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/memory/%s/records/%s", s.baseURL, tier, id), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("remote memory delete failed: %w", err)
	}
	defer resp.Body.Close()

	return checkRemoteStatus(resp)
}

// Reset clears a tier remotely.
func (s *RemoteStore) Reset(ctx context.Context, tier string) error {
	if err := validTier(tier); err != nil {
		return err
	}
	return s.post(ctx, fmt.Sprintf("/memory/%s/reset", tier), struct{}{}, nil)
}

// Close is a no-op; the HTTP client holds no persistent resources.
func (s *RemoteStore) Close() error {
	return nil
}

func (s *RemoteStore) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("remote memory request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkRemoteStatus(resp); err != nil {
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func checkRemoteStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("remote memory service returned status %d: %s", resp.StatusCode, string(body))
}

// Ensure RemoteStore implements Store.
var _ Store = (*RemoteStore)(nil)
