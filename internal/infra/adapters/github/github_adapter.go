package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"profile-enrichment/internal/config"
	"profile-enrichment/internal/domain/model"
	"profile-enrichment/internal/domain/ports/adapter"
)

var _ adapter.CodeHostAdapter = (*Adapter)(nil)

// Adapter talks to the GitHub REST API.
type Adapter struct {
	token  string
	base   string
	client *http.Client
}

func NewAdapter(cfg config.GitHubConfig) *Adapter {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.github.com"
	}
	return &Adapter{
		token:  cfg.Token,
		base:   strings.TrimSuffix(base, "/"),
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *Adapter) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if a.token != "" {
		req.Header.Set("Authorization", "token "+a.token)
	}
	return a.client.Do(req)
}

// ValidateRepository reports whether the repository exists and is accessible.
// 404 and 403 mean inaccessible, not broken transport.
func (a *Adapter) ValidateRepository(ctx context.Context, repo string) (bool, error) {
	resp, err := a.get(ctx, fmt.Sprintf("%s/repos/%s", a.base, repo))
	if err != nil {
		return false, fmt.Errorf("github: validate %s: %w", repo, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

type contributorRecord struct {
	Login         string `json:"login"`
	Contributions int    `json:"contributions"`
	URL           string `json:"url"`
	HTMLURL       string `json:"html_url"`
}

type userRecord struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Blog  string `json:"blog"`
}

// FetchContributors lists up to limit contributors in upstream order and
// hydrates each with the user's public details.
func (a *Adapter) FetchContributors(ctx context.Context, repo string, limit int) ([]model.Contributor, error) {
	resp, err := a.get(ctx, fmt.Sprintf("%s/repos/%s/contributors?per_page=%d", a.base, repo, limit))
	if err != nil {
		return nil, fmt.Errorf("github: contributors %s: %w", repo, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github api error: %d", resp.StatusCode)
	}

	var records []contributorRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("github: decode contributors: %w", err)
	}
	if len(records) > limit {
		records = records[:limit]
	}

	out := make([]model.Contributor, 0, len(records))
	for _, rec := range records {
		c := model.Contributor{
			Username:      rec.Login,
			Contributions: rec.Contributions,
			ProfileURL:    rec.HTMLURL,
		}
		if c.ProfileURL == "" {
			c.ProfileURL = "https://github.com/" + rec.Login
		}
		if user, err := a.fetchUser(ctx, rec.URL); err == nil {
			c.Name = user.Name
			c.Email = user.Email
			if isLinkedInURL(user.Blog) {
				c.SocialURLs = map[string]string{"linkedin": user.Blog}
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func (a *Adapter) fetchUser(ctx context.Context, url string) (*userRecord, error) {
	resp, err := a.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github api error: %d", resp.StatusCode)
	}
	var user userRecord
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

func isLinkedInURL(u string) bool {
	return u != "" && strings.Contains(strings.ToLower(u), "linkedin.com/")
}
