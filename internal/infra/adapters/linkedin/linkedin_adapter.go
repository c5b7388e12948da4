package linkedin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"profile-enrichment/internal/config"
	"profile-enrichment/internal/domain"
	"profile-enrichment/internal/domain/model"
	"profile-enrichment/internal/domain/ports/adapter"
)

var _ adapter.SocialProfileAdapter = (*Adapter)(nil)

// Adapter talks to the profile-scraping service over its HTTP API.
type Adapter struct {
	base   string
	apiKey string
	client *http.Client
}

func NewAdapter(cfg config.LinkedInConfig) (*Adapter, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("linkedin base url empty")
	}
	return &Adapter{
		base:   strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: 45 * time.Second},
	}, nil
}

type profileRecord struct {
	ProfileURL      string `json:"profile_url"`
	Name            string `json:"name"`
	CurrentPosition string `json:"current_position"`
	Company         string `json:"company"`
	Location        string `json:"location"`
}

// FetchByURL retrieves the profile behind a known reference.
func (a *Adapter) FetchByURL(ctx context.Context, profileURL string) (*model.SocialProfile, error) {
	endpoint := fmt.Sprintf("%s/profile?url=%s", a.base, url.QueryEscape(profileURL))
	return a.fetch(ctx, endpoint)
}

// SearchByName looks up the best-matching profile for a display name.
func (a *Adapter) SearchByName(ctx context.Context, name string) (*model.SocialProfile, error) {
	endpoint := fmt.Sprintf("%s/search?name=%s", a.base, url.QueryEscape(name))
	return a.fetch(ctx, endpoint)
}

func (a *Adapter) fetch(ctx context.Context, endpoint string) (*model.SocialProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("linkedin: %w", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("linkedin api error: %d", resp.StatusCode)
	}

	var rec profileRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("linkedin: decode profile: %w", err)
	}
	if rec.Name == "" {
		return nil, domain.ErrNotFound
	}
	return &model.SocialProfile{
		ProfileURL:      rec.ProfileURL,
		Name:            rec.Name,
		CurrentPosition: rec.CurrentPosition,
		Company:         rec.Company,
		Location:        rec.Location,
	}, nil
}
