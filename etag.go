package condcache

import "strings"

// EntityTag is a parsed HTTP entity-tag per RFC 9110 Section 8.8.3.
// The opaque value is stored without the surrounding quotes.
type EntityTag struct {
	value string
	weak  bool
}

// Weak reports whether the tag carries the W/ weakness marker.
func (t EntityTag) Weak() bool { return t.weak }

// Value returns the opaque tag value without quotes.
func (t EntityTag) Value() string { return t.value }

// String renders the tag in wire form.
func (t EntityTag) String() string {
	if t.weak {
		return `W/"` + t.value + `"`
	}
	return `"` + t.value + `"`
}

// StrongMatch implements the strong comparison function of RFC 9110
// Section 8.8.3.2: both tags must be strong and byte-equal.
func (t EntityTag) StrongMatch(o EntityTag) bool {
	return !t.weak && !o.weak && t.value == o.value
}

// WeakMatch implements the weak comparison function: the weakness markers are
// ignored and only the opaque values are compared.
func (t EntityTag) WeakMatch(o EntityTag) bool {
	return t.value == o.value
}

// parseEntityTag parses a single entity-tag. Unquoted tokens are tolerated and
// treated as strong tags so that non-conforming origins still validate.
// Returns ok=false only for an empty tag.
func parseEntityTag(s string) (EntityTag, bool) {
	s = strings.TrimSpace(s)
	var weak bool
	if len(s) >= 2 && (s[0] == 'W' || s[0] == 'w') && s[1] == '/' {
		weak = true
		s = s[2:]
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" {
		return EntityTag{}, false
	}
	return EntityTag{value: s, weak: weak}, true
}

// parseETagList parses a comma-separated entity-tag list such as the value of
// If-Match or If-None-Match. A single "*" member sets wildcard instead of
// contributing a tag. Commas inside quoted tag values do not split members.
func parseETagList(value string) (tags []EntityTag, wildcard bool) {
	for _, member := range splitETagMembers(value) {
		member = strings.TrimSpace(member)
		if member == "" {
			continue
		}
		if member == "*" {
			wildcard = true
			continue
		}
		if tag, ok := parseEntityTag(member); ok {
			tags = append(tags, tag)
		}
	}
	return tags, wildcard
}

// splitETagMembers splits a list on commas that are outside quoted strings.
func splitETagMembers(value string) []string {
	var members []string
	var quoted bool
	start := 0
	for i := 0; i < len(value); i++ {
		switch value[i] {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				members = append(members, value[start:i])
				start = i + 1
			}
		}
	}
	members = append(members, value[start:])
	return members
}

// responseEntityTag parses the ETag of a response header set.
func responseEntityTag(value string) (EntityTag, bool) {
	if value == "" {
		return EntityTag{}, false
	}
	return parseEntityTag(value)
}

// anyStrongMatch reports whether any tag in tags strongly matches target.
func anyStrongMatch(tags []EntityTag, target EntityTag) bool {
	for _, tag := range tags {
		if tag.StrongMatch(target) {
			return true
		}
	}
	return false
}

// anyWeakMatch reports whether any tag in tags weakly matches target.
func anyWeakMatch(tags []EntityTag, target EntityTag) bool {
	for _, tag := range tags {
		if tag.WeakMatch(target) {
			return true
		}
	}
	return false
}
