package gallerykit

import (
	"strings"
)

// FeatureMatcher handles feature matching with wildcard support.
//
// Supported patterns:
//   - "*" matches all features
//   - "resource.*" matches all actions on a resource (e.g., "artworks.*" matches "artworks.create")
//   - "*.action" matches an action on all resources (e.g., "*.view" matches "gallery.view")
//   - "exact.match" matches exactly
type FeatureMatcher struct{}

// NewFeatureMatcher creates a new FeatureMatcher.
func NewFeatureMatcher() *FeatureMatcher {
	return &FeatureMatcher{}
}

// Match checks if a feature pattern matches a feature name.
//
// Examples:
//
//	Match("*", "artworks.create")              // true
//	Match("artworks.*", "artworks.create")     // true
//	Match("*.review", "requests.review")       // true
//	Match("artworks.create", "artworks.update") // false
func (fm *FeatureMatcher) Match(pattern, feature string) bool {
	if pattern == feature || pattern == "*" {
		return true
	}

	patternParts := strings.Split(pattern, ".")
	featureParts := strings.Split(feature, ".")
	if len(patternParts) != len(featureParts) {
		return false
	}

	for i, pp := range patternParts {
		if pp == "*" {
			continue
		}
		if pp != featureParts[i] {
			return false
		}
	}

	return true
}

// MatchAny checks if any of the patterns match the feature.
func (fm *FeatureMatcher) MatchAny(patterns []string, feature string) bool {
	for _, pattern := range patterns {
		if fm.Match(pattern, feature) {
			return true
		}
	}
	return false
}

// Validate checks if a feature name or pattern is well formed.
// A valid feature is either "*" or a dot-separated string of identifiers.
func (fm *FeatureMatcher) Validate(feature string) error {
	if feature == "" {
		return NewError(ErrValidation, "feature cannot be empty")
	}

	if feature == "*" {
		return nil
	}

	parts := strings.Split(feature, ".")
	if len(parts) < 2 {
		return NewError(ErrValidation, "feature must have at least two parts (resource.action)")
	}

	for _, part := range parts {
		if part == "" {
			return NewError(ErrValidation, "feature parts cannot be empty")
		}
		if part == "*" {
			continue
		}
		for _, c := range part {
			if !isValidFeatureChar(c) {
				return NewError(ErrValidation, "feature contains invalid character")
			}
		}
	}

	return nil
}

func isValidFeatureChar(c rune) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == '_' || c == '-'
}

// DefaultMatcher is the default feature matcher instance.
var DefaultMatcher = NewFeatureMatcher()

// MatchFeature is a convenience function using the default matcher.
func MatchFeature(pattern, feature string) bool {
	return DefaultMatcher.Match(pattern, feature)
}
