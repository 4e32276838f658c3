package response

import (
	"strings"

	"github.com/0tSystemsPublicRepos/mirage/internal/config"
)

// disruptive actions are stripped under the CONSERVATIVE posture.
var disruptive = map[Action]bool{
	ActionBlockIP:        true,
	ActionIsolateNetwork: true,
}

// PolicyTable maps a threat type to its action list with a two-level
// fallback: exact type match, then the type's category row, then a default
// of ALERT_ADMIN only. Adding an action is a table change plus one handler.
type PolicyTable struct {
	exact        map[string][]Action
	categories   map[string]string
	categoryRows map[string][]Action
}

func NewPolicyTable(cfg *config.ResponseConfig) *PolicyTable {
	p := &PolicyTable{
		exact:        make(map[string][]Action, len(cfg.Policies)),
		categories:   make(map[string]string, len(cfg.Categories)),
		categoryRows: make(map[string][]Action, len(cfg.CategoryPolicies)),
	}
	for threatType, row := range cfg.Policies {
		p.exact[strings.ToLower(threatType)] = toActions(row.Actions)
	}
	for threatType, category := range cfg.Categories {
		p.categories[strings.ToLower(threatType)] = strings.ToLower(category)
	}
	for category, row := range cfg.CategoryPolicies {
		p.categoryRows[strings.ToLower(category)] = toActions(row.Actions)
	}
	return p
}

func toActions(names []string) []Action {
	out := make([]Action, 0, len(names))
	for _, n := range names {
		out = append(out, Action(strings.ToUpper(n)))
	}
	return out
}

// Resolve returns the posture-filtered action list for a threat type.
// hasSource reports whether the triggering event carries a source address;
// AGGRESSIVE only forces BLOCK_IP when there is something to block.
func (p *PolicyTable) Resolve(threatType string, posture Posture, hasSource bool) []Action {
	key := strings.ToLower(threatType)

	row, ok := p.exact[key]
	if !ok {
		if category, found := p.categories[key]; found {
			row, ok = p.categoryRows[category]
		}
	}
	if !ok {
		row = []Action{ActionAlertAdmin}
	}

	actions := make([]Action, len(row))
	copy(actions, row)

	switch posture {
	case PostureConservative:
		kept := actions[:0]
		for _, a := range actions {
			if !disruptive[a] {
				kept = append(kept, a)
			}
		}
		actions = kept
	case PostureAggressive:
		if hasSource && !containsAction(actions, ActionBlockIP) {
			actions = append(actions, ActionBlockIP)
		}
	}

	return actions
}

func containsAction(actions []Action, target Action) bool {
	for _, a := range actions {
		if a == target {
			return true
		}
	}
	return false
}
