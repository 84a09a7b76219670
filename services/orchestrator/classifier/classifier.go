// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package classifier decides whether a chat message is in scope for EduBot.
//
// The decision is a heuristic: three ordered rule sets are evaluated against
// the lowercased message and the first match wins. There is no negative list
// and no scoring, so false positives and negatives are expected.
//
//  1. Conversation meta-references ("what did I say", "who are you")
//  2. Educational subject keywords, matched as substrings
//  3. Generic explanatory question forms ("what is ...?", "explain ...")
package classifier

import (
	"regexp"
	"strings"

	"github.com/AleutianAI/edubot/pkg/extensions"
)

// Rule names the rule set that produced a Decision.
type Rule string

const (
	// RuleMeta means a conversation meta-reference pattern matched.
	RuleMeta Rule = "meta"

	// RuleKeyword means an educational subject keyword was found.
	RuleKeyword Rule = "keyword"

	// RuleQuestion means a generic educational question pattern matched.
	RuleQuestion Rule = "question"

	// RuleNone means nothing matched; the message is out of scope.
	RuleNone Rule = "none"
)

// Decision is the outcome of classifying one message.
type Decision struct {
	// InScope is true when the message should be forwarded to the backend.
	InScope bool

	// Rule is the rule set that matched, or RuleNone.
	Rule Rule

	// Match is the keyword or regular expression source that matched.
	// Empty when Rule is RuleNone.
	Match string
}

// metaPatterns detect questions about prior turns or the assistant itself.
var metaPatterns = []string{
	`(previous|last|earlier) (message|prompt|question)`,
	`what (did|was) (i|you) (say|ask|told|tell)`,
	`(show|display|get|fetch) (my|the) (history|conversation)`,
	`what (is|was) my`,
	`can you (remember|recall)`,
	`who (am i|are you)`,
}

// EducationalDomains lists the subject terms that put a message in scope.
// Matching is by substring, so "biology" also matches "microbiology".
var EducationalDomains = []string{
	"mathematics", "algebra", "geometry", "calculus", "statistics", "probability",
	"physics", "chemistry", "biology", "anatomy", "astronomy", "earth science",
	"history", "geography", "civics", "economics", "political science",
	"literature", "grammar", "writing", "poetry", "language arts",
	"computer science", "programming", "data science", "artificial intelligence",
	"art history", "music theory", "philosophy", "psychology", "sociology",
	"foreign languages", "education", "study skills", "research methods",
}

// questionPatterns detect interrogative and explanatory request forms.
var questionPatterns = []string{
	`what (is|are|was|were) .+\?`,
	`how (do|does|can|could) .+\?`,
	`why (is|are|does|do) .+\?`,
	`explain .+`,
	`define .+`,
	`describe .+`,
	`teach me .+`,
	`learn about .+`,
	`understand .+`,
	`(help|assist) .+ (with|in) .+`,
}

// KeywordClassifier is the default extensions.ScopeClassifier.
//
// # Thread Safety
//
// Safe for concurrent use: all state is compiled once in the constructor and
// only read afterwards (regexp.Regexp is safe for concurrent matching).
type KeywordClassifier struct {
	meta     []*regexp.Regexp
	domains  []string
	question []*regexp.Regexp
}

// NewKeywordClassifier compiles the built-in rule sets.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		meta:     compileAll(metaPatterns),
		domains:  EducationalDomains,
		question: compileAll(questionPatterns),
	}
}

func compileAll(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return compiled
}

// IsInScope implements extensions.ScopeClassifier.
func (c *KeywordClassifier) IsInScope(text string) bool {
	return c.Classify(text).InScope
}

// Classify evaluates the rule sets in order and reports the first match.
//
// # Inputs
//
//   - text: Raw user message. Matching is case-insensitive on the whole string.
//
// # Outputs
//
//   - Decision: Never zero; RuleNone when nothing matched.
//
// # Examples
//
//	c.Classify("What did I say earlier?")  // {true, RuleMeta, "what (did|was) ..."}
//	c.Classify("I love BIOLOGY")           // {true, RuleKeyword, "biology"}
//	c.Classify("nice weather today")       // {false, RuleNone, ""}
func (c *KeywordClassifier) Classify(text string) Decision {
	lower := strings.ToLower(text)

	for _, re := range c.meta {
		if re.MatchString(lower) {
			return Decision{InScope: true, Rule: RuleMeta, Match: re.String()}
		}
	}

	for _, domain := range c.domains {
		if strings.Contains(lower, domain) {
			return Decision{InScope: true, Rule: RuleKeyword, Match: domain}
		}
	}

	for _, re := range c.question {
		if re.MatchString(lower) {
			return Decision{InScope: true, Rule: RuleQuestion, Match: re.String()}
		}
	}

	return Decision{InScope: false, Rule: RuleNone}
}

var _ extensions.ScopeClassifier = (*KeywordClassifier)(nil)
