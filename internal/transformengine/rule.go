// Package transformengine implements the declarative Transform Engine:
// a list of rules, each matching requests/responses by
// direction/method/host/path and acting on exactly one target (a JSON
// body field, a query parameter, a header, a URL path segment, or the
// whole body) with one of four actions: redact, mask, replace, drop.
package transformengine

import (
	"fmt"
	"regexp"
)

// Direction is which side of a call a rule applies to.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
	DirectionBoth     Direction = "both"
)

// ActionType is what a rule does to its matched target.
type ActionType string

const (
	ActionRedact  ActionType = "redact"  // replace with prefix + a hash of the value
	ActionMask    ActionType = "mask"    // partially obscure (e.g. keep last 4 chars)
	ActionReplace ActionType = "replace" // substitute a caller-supplied value
	ActionDrop    ActionType = "drop"    // remove the field, or block the whole request
)

// TargetKind says which single target field a rule's matcher names.
// Exactly one of the corresponding Target* fields on Matcher must be
// set; Compile rejects zero or more than one.
type TargetKind string

const (
	TargetJSONPath   TargetKind = "jsonPath"
	TargetQueryParam TargetKind = "queryParam"
	TargetHeaderName TargetKind = "headerName"
	TargetURLPath    TargetKind = "urlPath"
	TargetFullBody   TargetKind = "fullBody"
)

// Matcher selects which calls and which single target within them a
// rule applies to.
type Matcher struct {
	Direction   Direction
	Method      string // empty matches any method
	PathPattern string // regexp against the request path
	Host        string // regexp against the request host

	JSONPath   string
	QueryParam string
	HeaderName string
	URLPath    bool // true selects the whole path as a target, not body/query/header
	FullBody   bool
}

// Action is what to do to a matched target.
type Action struct {
	Type        ActionType
	Placeholder string // replace: literal substitute value. redact: hash prefix, default "REDACTED_"
	KeepSuffix  int    // used by mask: number of trailing characters kept visible
	Reason      string // recorded in TransformMetadata for audit
}

// Rule is one matcher+action pair.
type Rule struct {
	Name    string
	Matcher Matcher
	Action  Action
}

// compiledRule holds a Rule plus its compiled regexps.
type compiledRule struct {
	Rule
	pathRe *regexp.Regexp
	hostRe *regexp.Regexp
	target TargetKind
}

// Compile validates rules and pre-compiles their regexp fields. It
// fails closed: any rule that cannot be fully understood is an error,
// never silently ignored, since a mis-specified redaction rule is a
// data-leak risk.
func Compile(rules []Rule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		target, err := targetOf(r.Matcher)
		if err != nil {
			return nil, fmt.Errorf("transformengine: rule %q: %w", r.Name, err)
		}
		cr := compiledRule{Rule: r, target: target}
		if r.Matcher.PathPattern != "" {
			re, err := regexp.Compile(r.Matcher.PathPattern)
			if err != nil {
				return nil, fmt.Errorf("transformengine: rule %q: bad pathPattern: %w", r.Name, err)
			}
			cr.pathRe = re
		}
		if r.Matcher.Host != "" {
			re, err := regexp.Compile(r.Matcher.Host)
			if err != nil {
				return nil, fmt.Errorf("transformengine: rule %q: bad host pattern: %w", r.Name, err)
			}
			cr.hostRe = re
		}
		if r.Action.Type == ActionRedact && r.Action.Placeholder == "" {
			cr.Action.Placeholder = "REDACTED_"
		}
		out = append(out, cr)
	}
	return out, nil
}

// targetOf enforces the exactly-one-of constraint on Matcher's target
// fields and returns which one was set.
func targetOf(m Matcher) (TargetKind, error) {
	set := 0
	var kind TargetKind
	if m.JSONPath != "" {
		set++
		kind = TargetJSONPath
	}
	if m.QueryParam != "" {
		set++
		kind = TargetQueryParam
	}
	if m.HeaderName != "" {
		set++
		kind = TargetHeaderName
	}
	if m.URLPath {
		set++
		kind = TargetURLPath
	}
	if m.FullBody {
		set++
		kind = TargetFullBody
	}
	if set != 1 {
		return "", fmt.Errorf("matcher must set exactly one target, got %d", set)
	}
	return kind, nil
}
