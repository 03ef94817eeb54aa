package stubs

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/recruiting-assistant/internal/rpc"
	"github.com/jonathan/recruiting-assistant/internal/types"
)

type searchParams struct {
	Title  string   `json:"title"`
	Skills []string `json:"skills"`
	Token  string   `json:"token"`
}

// DefaultCatalog seeds the search service.
var DefaultCatalog = []types.Candidate{
	{ID: "cand-001", Name: "Maya Chen", Title: "Senior Software Engineer", Skills: []string{"Go", "Kubernetes", "PostgreSQL"}, Experience: "8 years"},
	{ID: "cand-002", Name: "Tomás Ruiz", Title: "Software Engineer", Skills: []string{"Python", "Django", "AWS"}, Experience: "4 years"},
	{ID: "cand-003", Name: "Priya Natarajan", Title: "Staff Software Engineer", Skills: []string{"Java", "Kafka", "Go"}, Experience: "12 years"},
	{ID: "cand-004", Name: "Jonas Weber", Title: "Data Engineer", Skills: []string{"Python", "Spark", "SQL"}, Experience: "6 years"},
	{ID: "cand-005", Name: "Amara Okafor", Title: "Frontend Engineer", Skills: []string{"TypeScript", "React", "CSS"}, Experience: "5 years"},
	{ID: "cand-006", Name: "Lena Kowalski", Title: "Site Reliability Engineer", Skills: []string{"Kubernetes", "Terraform", "Go"}, Experience: "7 years"},
	{ID: "cand-007", Name: "Samuel Park", Title: "Product Designer", Skills: []string{"Figma", "User Research"}, Experience: "9 years"},
	{ID: "cand-008", Name: "Fatima Haddad", Title: "Machine Learning Engineer", Skills: []string{"Python", "PyTorch", "SQL"}, Experience: "3 years"},
}

// searchCandidates returns catalog entries whose title contains the requested
// title and which share at least one skill with the request, case-insensitively.
func (p *Platform) searchCandidates(_ context.Context, params json.RawMessage) (any, error) {
	var in searchParams
	if err := rpc.DecodeParams(params, &in); err != nil {
		return nil, err
	}
	if err := p.checkToken(in.Token); err != nil {
		return nil, err
	}
	title := strings.ToLower(strings.TrimSpace(in.Title))
	if title == "" {
		return nil, rpc.NewInvalidParams("title is required")
	}

	wanted := make(map[string]bool, len(in.Skills))
	for _, s := range in.Skills {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			wanted[s] = true
		}
	}

	matches := []types.Candidate{}
	for _, c := range p.catalog {
		if !strings.Contains(strings.ToLower(c.Title), title) {
			continue
		}
		if len(wanted) > 0 && !sharesSkill(c.Skills, wanted) {
			continue
		}
		matches = append(matches, c)
	}

	p.log.Debug("search", zap.String("title", in.Title), zap.Strings("skills", in.Skills), zap.Int("matches", len(matches)))
	return matches, nil
}

func sharesSkill(skills []string, wanted map[string]bool) bool {
	for _, s := range skills {
		if wanted[strings.ToLower(s)] {
			return true
		}
	}
	return false
}
