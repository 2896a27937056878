package core

import (
	"strings"

	"wellness-chatbot/pkg"
)

// DefaultLinkBase is the telehealth site the default suggestion links point to.
const DefaultLinkBase = "https://your-telehealth-platform.com"

// Rule pairs a predicate over a turn with the link shown when it matches.
type Rule struct {
	Name  string
	Match func(input, reply string) bool
	Link  pkg.Link
}

// DefaultRules returns the suggestion rules in precedence order, with links
// rooted at base.  An empty base uses DefaultLinkBase.
func DefaultRules(base string) []Rule {
	if base == "" {
		base = DefaultLinkBase
	}
	base = strings.TrimRight(base, "/")
	return []Rule{
		{
			Name:  "labs",
			Match: inputContains("lab", "test"),
			Link: pkg.Link{
				Lead:  "You might benefit from a ",
				Label: "comprehensive lab panel",
				URL:   base + "/labs",
				Trail: ".",
			},
		},
		{
			Name:  "supplements",
			Match: inputContains("supplement", "vitamin"),
			Link: pkg.Link{
				Lead:  "Consider these ",
				Label: "evidence-based supplements",
				URL:   base + "/supplements",
				Trail: ".",
			},
		},
		{
			Name: "consult",
			Match: func(input, reply string) bool {
				return inputContains("pain", "chronic")(input, reply) || containsFold(reply, "serious")
			},
			Link: pkg.Link{
				Label: "Schedule a consult",
				URL:   base + "/consult",
				Trail: " with a licensed functional-medicine provider.",
			},
		},
	}
}

// Select returns the link of the first rule that matches, or false when none
// does.
func Select(rules []Rule, input, reply string) (pkg.Link, bool) {
	for _, r := range rules {
		if r.Match != nil && r.Match(input, reply) {
			return r.Link, true
		}
	}
	return pkg.Link{}, false
}

func inputContains(keywords ...string) func(input, reply string) bool {
	return func(input, _ string) bool {
		for _, k := range keywords {
			if containsFold(input, k) {
				return true
			}
		}
		return false
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
