package model

// ResolutionResult is the output of the repository-resolution stage.
type ResolutionResult struct {
	Repository string `json:"repository"` // "owner/repo"
}

// Contributor is the primary entity being enriched.
type Contributor struct {
	Username      string            `json:"username"`
	Name          string            `json:"name,omitempty"`
	Email         string            `json:"email,omitempty"`
	Contributions int               `json:"contributions"`
	ProfileURL    string            `json:"profile_url"`
	SocialURLs    map[string]string `json:"social_urls,omitempty"`
}

// LinkedInURL returns the known secondary-profile reference, if any.
func (c *Contributor) LinkedInURL() (string, bool) {
	u, ok := c.SocialURLs["linkedin"]
	return u, ok && u != ""
}

// ContributorBatch is the output of the contributor-fetch stage. Order is the
// upstream fetch order and is the deterministic merge order.
type ContributorBatch struct {
	Repository   string        `json:"repository"`
	Total        int           `json:"total"`
	Contributors []Contributor `json:"contributors"`
}

// SocialProfile is the secondary record fetched for one contributor.
type SocialProfile struct {
	ProfileURL      string `json:"profile_url"`
	Name            string `json:"name,omitempty"`
	CurrentPosition string `json:"current_position,omitempty"`
	Company         string `json:"company,omitempty"`
	Location        string `json:"location,omitempty"`
}

// SocialLookup records one fan-out result. A failed lookup keeps its error
// string and a nil Profile; the batch as a whole still succeeds.
type SocialLookup struct {
	Username string         `json:"username"` // contributor the lookup was issued for
	URL      string         `json:"url,omitempty"`
	Fallback bool           `json:"fallback"` // name-based search, no known URL
	Profile  *SocialProfile `json:"profile,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// SocialBatch is the output of the social-enrichment stage. Skipped is set
// when no contributor carried a resolvable reference and the stage never ran.
type SocialBatch struct {
	Skipped    bool           `json:"skipped"`
	Total      int            `json:"total"`
	Successful int            `json:"successful"`
	Lookups    []SocialLookup `json:"lookups,omitempty"`
}

// PrimaryInfo is the code-host slice of a merged entity.
type PrimaryInfo struct {
	Username      string `json:"username"`
	URL           string `json:"url"`
	Contributions int    `json:"contributions"`
	Email         string `json:"email,omitempty"`
}

// SecondaryInfo is present only when a secondary lookup succeeded.
type SecondaryInfo struct {
	URL             string `json:"url"`
	CurrentPosition string `json:"current_position,omitempty"`
	Company         string `json:"company,omitempty"`
	Location        string `json:"location,omitempty"`
}

type MergedEntity struct {
	Primary    PrimaryInfo       `json:"primary_info"`
	Name       string            `json:"name,omitempty"`
	SocialURLs map[string]string `json:"social_urls,omitempty"`
	Secondary  *SecondaryInfo    `json:"secondary_info,omitempty"`
}

// MergedResult is the terminal payload of a completed session.
type MergedResult struct {
	TargetName         string         `json:"target_name"`
	TotalEntities      int            `json:"total_entities"`
	TotalWithSecondary int            `json:"total_with_secondary"`
	Entities           []MergedEntity `json:"entities"`
}
