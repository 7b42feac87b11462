// Package criteria supplies the scoring rubric used to prompt the evaluation
// model. Organizations may register their own criteria sets; those take
// precedence over the system defaults.
package criteria

import "sync"

type Criterion struct {
	Name        string  `json:"name"`
	MaxPoints   float64 `json:"max_points"`
	Description string  `json:"description"`
}

type Set struct {
	ID       string      `json:"id"`
	Criteria []Criterion `json:"criteria"`
}

// MaxTotal is the scoring scale the set defines.
func (s Set) MaxTotal() float64 {
	var total float64
	for _, c := range s.Criteria {
		total += c.MaxPoints
	}
	return total
}

// Defaults is the system rubric, summing to 100 points.
func Defaults() Set {
	return Set{
		ID: "default",
		Criteria: []Criterion{
			{Name: "greeting", MaxPoints: 15, Description: "Professional opening, agent identifies self and company"},
			{Name: "discovery", MaxPoints: 25, Description: "Understands the customer's issue with clarifying questions"},
			{Name: "solution_quality", MaxPoints: 30, Description: "Accurate, complete resolution or clear next steps"},
			{Name: "empathy", MaxPoints: 15, Description: "Acknowledges customer frustration, maintains rapport"},
			{Name: "closing", MaxPoints: 15, Description: "Confirms resolution, offers further help, courteous close"},
		},
	}
}

// Provider resolves the rubric for an organization, falling back to defaults.
type Provider struct {
	mu   sync.RWMutex
	orgs map[string]Set
}

func NewProvider() *Provider {
	return &Provider{orgs: make(map[string]Set)}
}

// Register installs an organization-specific criteria set.
func (p *Provider) Register(orgID string, set Set) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orgs[orgID] = set
}

// For returns the organization's set when registered, otherwise defaults.
func (p *Provider) For(orgID string) Set {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if set, ok := p.orgs[orgID]; ok && len(set.Criteria) > 0 {
		return set
	}
	return Defaults()
}
