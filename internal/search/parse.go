// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Candidate field paths, in priority order.
var (
	answerFields       = []string{"answer", "output", "summary", "text", "data.answer"}
	citationListFields = []string{"citations", "sources", "results", "data.citations"}
	citationTextFields = []string{"snippet", "text", "summary", "highlight", "highlights.0"}
	citationURLFields  = []string{"url", "link"}
	titleFields        = []string{"title"}
)

// firstPresent returns the first candidate that exists and is not null.
func firstPresent(doc gjson.Result, paths []string) gjson.Result {
	for _, p := range paths {
		if r := doc.Get(p); r.Exists() && r.Type != gjson.Null {
			return r
		}
	}
	return gjson.Result{}
}

// firstNonEmptyArray returns the first candidate that is an array with at
// least one element.
func firstNonEmptyArray(doc gjson.Result, paths []string) []gjson.Result {
	for _, p := range paths {
		if r := doc.Get(p); r.IsArray() {
			if items := r.Array(); len(items) > 0 {
				return items
			}
		}
	}
	return nil
}

// firstString returns the first candidate with non-blank text.
func firstString(doc gjson.Result, paths []string) string {
	for _, p := range paths {
		if s := strings.TrimSpace(doc.Get(p).String()); s != "" {
			return s
		}
	}
	return ""
}

// parseAnswer reads the answer text and citations from an /answer body.
func parseAnswer(doc gjson.Result) *Answer {
	ans := &Answer{Text: strings.TrimSpace(firstPresent(doc, answerFields).String())}
	for _, item := range firstNonEmptyArray(doc, citationListFields) {
		if c, ok := parseCitation(item); ok {
			ans.Citations = append(ans.Citations, c)
		}
	}
	return ans
}

// parseCitation requires both a title and a URL.
func parseCitation(item gjson.Result) (Citation, bool) {
	title := firstString(item, titleFields)
	url := firstString(item, citationURLFields)
	if title == "" || url == "" {
		return Citation{}, false
	}
	return Citation{
		Title: title,
		URL:   url,
		Text:  firstString(item, citationTextFields),
	}, true
}

// parseResults reads the result list from a /search body.
func parseResults(doc gjson.Result, limit int) []Result {
	results := make([]Result, 0, limit)
	doc.Get("results").ForEach(func(_, item gjson.Result) bool {
		c, ok := parseCitation(item)
		if !ok {
			return true
		}
		results = append(results, Result{Title: c.Title, URL: c.URL, Snippet: c.Text})
		return len(results) < limit
	})
	return results
}
