// Package selector resolves the required capabilities of a classified
// request into a concrete, ordered list of agent identities. Resolution
// tries exact capability matches first, then semantic similarity, then any
// agent in the classified domain; agents with open circuit breakers are
// excluded at every stage and ties are broken round-robin.
package selector

import (
	"fmt"
	"sort"

	"github.com/hupe1980/agentrouter/core"
	"github.com/hupe1980/agentrouter/logging"
)

// Gate answers whether an agent is currently admissible, i.e. its circuit
// breaker is closed. Satisfied by *resilience.Board.
type Gate interface {
	Allow(agent string) bool
}

// allowAll is the Gate used when no breaker board is supplied.
type allowAll struct{}

func (allowAll) Allow(string) bool { return true }

// Selection is the result of resolving one classification.
type Selection struct {
	// Agents in capability-resolution order (first capability's agent
	// first), deduplicated.
	Agents []string
	// FallbackUsed is true when any capability was resolved semantically or
	// the domain fallback engaged.
	FallbackUsed bool
}

// Selector implements capability-based agent selection over a registry.
type Selector struct {
	registry  core.Registry
	gate      Gate
	balancer  *Balancer
	sim       SimilarityFunc
	threshold float64
	logger    logging.Logger
}

// Options configures a Selector.
type Options struct {
	// Gate excludes agents whose circuit breaker is open. Defaults to
	// allowing everyone.
	Gate Gate
	// Balancer breaks ties round-robin. Defaults to a fresh Balancer.
	Balancer *Balancer
	// Similarity scores capability tags for the semantic fallback stage.
	// Defaults to TokenOverlap.
	Similarity SimilarityFunc
	// Threshold is the minimum accepted semantic score. Defaults to 0.7.
	Threshold float64
	Logger    logging.Logger
}

// New constructs a Selector over the given registry.
func New(registry core.Registry, optFns ...func(o *Options)) *Selector {
	opts := Options{
		Gate:       allowAll{},
		Balancer:   NewBalancer(),
		Similarity: TokenOverlap,
		Threshold:  DefaultSimilarityThreshold,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Gate == nil {
		opts.Gate = allowAll{}
	}
	if opts.Balancer == nil {
		opts.Balancer = NewBalancer()
	}
	if opts.Similarity == nil {
		opts.Similarity = TokenOverlap
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultSimilarityThreshold
	}
	return &Selector{
		registry:  registry,
		gate:      opts.Gate,
		balancer:  opts.Balancer,
		sim:       opts.Similarity,
		threshold: opts.Threshold,
		logger:    logging.OrNoOp(opts.Logger),
	}
}

// Balancer exposes the tie-breaking balancer for stats.
func (s *Selector) Balancer() *Balancer { return s.balancer }

// Select resolves a classification into agent identities.
//
// For each required capability, in order: exact matches (scoped to the
// classified domain when one is known) are preferred; failing that, the
// agent whose capability set scores highest against the tag wins if the
// score clears the threshold. Equally qualified agents rotate round-robin.
// If no capability resolved at all, any admissible agent in the classified
// domain (or anywhere, when the domain is unknown) is chosen as a last
// resort; only an empty pool yields core.ErrNoAgentAvailable.
func (s *Selector) Select(c *core.IntentClassification) (*Selection, error) {
	sel := &Selection{}
	seen := map[string]bool{}

	for _, capability := range c.RequiredCapabilities {
		agent, semantic := s.resolveCapability(c.Domain, capability)
		if agent == "" {
			continue
		}
		if semantic {
			sel.FallbackUsed = true
		}
		if !seen[agent] {
			seen[agent] = true
			sel.Agents = append(sel.Agents, agent)
		}
	}

	if len(sel.Agents) == 0 {
		agent := s.domainFallback(c.Domain)
		if agent == "" {
			s.logger.Warn("no agent available", "domain", c.Domain, "capabilities", c.RequiredCapabilities)
			return sel, fmt.Errorf("%w: domain %q", core.ErrNoAgentAvailable, c.Domain)
		}
		s.logger.Warn("domain fallback engaged", "domain", c.Domain, "agent", agent)
		sel.FallbackUsed = true
		sel.Agents = append(sel.Agents, agent)
		s.balancer.Record(agent)
	}

	return sel, nil
}

// resolveCapability picks one agent for a capability, reporting whether the
// semantic stage was needed.
func (s *Selector) resolveCapability(domain, capability string) (agent string, semantic bool) {
	// Exact match, scoped to the classified domain when one is known.
	exact := s.admissible(s.registry.ListByCapability(capability), domain)
	if len(exact) > 0 {
		return s.balancer.Next(capability, exact), false
	}

	// Semantic fallback over every admissible agent's capability set.
	type scored struct {
		name  string
		score float64
	}
	var best []scored
	bestVal := 0.0
	for _, d := range s.admissibleDescriptors(s.registry.All(), "") {
		score := bestScore(s.sim, capability, d.Capabilities)
		if score < s.threshold {
			continue
		}
		switch {
		case score > bestVal:
			bestVal = score
			best = []scored{{d.Name, score}}
		case score == bestVal:
			best = append(best, scored{d.Name, score})
		}
	}
	if len(best) == 0 {
		return "", false
	}

	candidates := make([]string, len(best))
	for i, b := range best {
		candidates[i] = b.name
	}
	selected := s.balancer.Next(capability, candidates)
	s.logger.Info("semantic match", "capability", capability, "agent", selected, "score", bestVal)
	return selected, true
}

// domainFallback picks the first admissible agent in the domain, or "". An
// empty or unknown domain widens the pool to every agent so an unclassifiable
// request can still be served by someone.
func (s *Selector) domainFallback(domain string) string {
	pool := s.registry.ListByDomain(domain)
	if domain == "" || domain == "unknown" {
		pool = s.registry.All()
	}
	for _, d := range s.admissibleDescriptors(pool, "") {
		return d.Name
	}
	return ""
}

// admissible filters descriptors to routable, breaker-closed agents in the
// given domain (any domain when it is empty or unknown), returning names in
// a stable order.
func (s *Selector) admissible(descriptors []*core.AgentDescriptor, domain string) []string {
	eligible := s.admissibleDescriptors(descriptors, domain)
	names := make([]string, len(eligible))
	for i, d := range eligible {
		names[i] = d.Name
	}
	return names
}

func (s *Selector) admissibleDescriptors(descriptors []*core.AgentDescriptor, domain string) []*core.AgentDescriptor {
	scopeDomain := domain != "" && domain != "unknown"

	var out []*core.AgentDescriptor
	for _, d := range descriptors {
		if scopeDomain && d.Domain != domain {
			continue
		}
		if !d.Routable() {
			continue
		}
		if !s.gate.Allow(d.Name) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
