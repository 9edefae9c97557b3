// Package secrets redacts credentials from text using the gitleaks rule set.
package secrets

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Finding is a detected secret.
type Finding struct {
	RuleID string
	Secret string
	Line   int
}

// Scrubber detects and redacts secrets.
type Scrubber struct {
	mu       sync.Mutex
	detector *detect.Detector
	marker   string
}

// New creates a scrubber backed by the default gitleaks configuration.
func New() (*Scrubber, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks rules: %w", err)
	}
	return &Scrubber{detector: d, marker: "[REDACTED:%s]"}, nil
}

// Detect returns the secrets found in content.
func (s *Scrubber) Detect(content string) []Finding {
	if s == nil || content == "" {
		return nil
	}
	s.mu.Lock()
	found := s.detector.DetectString(content)
	s.mu.Unlock()

	out := make([]Finding, 0, len(found))
	for _, f := range found {
		if f.Secret == "" {
			continue
		}
		out = append(out, Finding{RuleID: f.RuleID, Secret: f.Secret, Line: f.StartLine})
	}
	return out
}

// Scrub replaces every detected secret with a marker naming its rule.
func (s *Scrubber) Scrub(content string) string {
	findings := s.Detect(content)
	if len(findings) == 0 {
		return content
	}
	// Longest first so a secret that contains another is replaced whole.
	sort.Slice(findings, func(i, j int) bool {
		return len(findings[i].Secret) > len(findings[j].Secret)
	})
	for _, f := range findings {
		content = strings.ReplaceAll(content, f.Secret, fmt.Sprintf(s.marker, f.RuleID))
	}
	return content
}
