package config

import (
	"fmt"

	"github.com/gobwas/glob"

	"github.com/hazyhaar/domveil/keystore"
)

// Scope applies the pages section to a location.
type Scope struct {
	rules []scopeRule
}

type scopeRule struct {
	pattern  string
	g        glob.Glob
	keywords []string
	disable  bool
}

// CompileScope compiles every page pattern. '*' matches any run of
// characters, separators included.
func CompileScope(pages []PageConfig) (*Scope, error) {
	s := &Scope{}
	for i, p := range pages {
		if p.Match == "" {
			return nil, fmt.Errorf("config: pages[%d]: empty match", i)
		}
		g, err := glob.Compile(p.Match)
		if err != nil {
			return nil, fmt.Errorf("config: pages[%d] %q: %w", i, p.Match, err)
		}
		s.rules = append(s.rules, scopeRule{
			pattern:  p.Match,
			g:        g,
			keywords: p.Keywords,
			disable:  p.Disable,
		})
	}
	return s, nil
}

// Keywords returns the keywords that apply at location: base followed by
// the keywords of every matching page, normalised. A matching page with
// disable set yields nil.
func (s *Scope) Keywords(location string, base []string) []string {
	out := append([]string(nil), base...)
	if s != nil {
		for _, r := range s.rules {
			if !r.g.Match(location) {
				continue
			}
			if r.disable {
				return nil
			}
			out = append(out, r.keywords...)
		}
	}
	return keystore.Normalize(out)
}

// Len is the number of page rules.
func (s *Scope) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}
