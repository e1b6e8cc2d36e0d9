// Package jsonx recovers JSON objects from free-form model output.
//
// Reasoning engines are asked for JSON but routinely wrap it in code fences,
// prose or both. Extract is the one place that leniency lives.
package jsonx

import (
	"encoding/json"
	"strings"

	"github.com/vidforensics/backend/pkg/apperr"
)

const fence = "```"

// Extract returns the first balanced JSON object found in raw.
func Extract(raw string) (map[string]interface{}, error) {
	span, ok := FindObject(raw)
	if !ok {
		return nil, apperr.Malformed("jsonx.extract", raw)
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(span), &out); err != nil {
		return nil, apperr.Malformed("jsonx.extract", raw)
	}
	return out, nil
}

// Decode extracts the first balanced JSON object in raw and unmarshals it
// into v.
func Decode(raw string, v interface{}) error {
	span, ok := FindObject(raw)
	if !ok {
		return apperr.Malformed("jsonx.decode", raw)
	}
	if err := json.Unmarshal([]byte(span), v); err != nil {
		return apperr.New(apperr.ErrMalformedModelOutput, "jsonx.decode", err)
	}
	return nil
}

// FindObject locates a syntactically valid `{...}` span. Fenced blocks are
// searched first, then the whole text with fence markers removed.
func FindObject(raw string) (string, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", false
	}

	candidates := make([]string, 0, 3)
	if strings.Contains(text, fence) {
		candidates = append(candidates, fencedBlocks(text)...)
		candidates = append(candidates, strings.ReplaceAll(text, fence, ""))
	}
	candidates = append(candidates, text)

	for _, c := range candidates {
		if span, ok := firstValidObject(c); ok {
			return span, true
		}
	}
	return "", false
}

func fencedBlocks(text string) []string {
	parts := strings.Split(text, fence)
	var blocks []string
	for i := 1; i < len(parts); i += 2 {
		block := parts[i]
		// drop a language tag such as "json" on the opening line
		if nl := strings.IndexByte(block, '\n'); nl >= 0 {
			tag := strings.TrimSpace(block[:nl])
			if tag != "" && !strings.ContainsAny(tag, "{[\"") {
				block = block[nl+1:]
			}
		} else {
			block = strings.TrimPrefix(strings.TrimSpace(block), "json")
		}
		blocks = append(blocks, strings.TrimSpace(block))
	}
	return blocks
}

func firstValidObject(text string) (string, bool) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end, ok := matchBrace(text, start); ok {
			span := text[start : end+1]
			if json.Valid([]byte(span)) {
				return span, true
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// matchBrace returns the index of the brace closing the one at start,
// ignoring braces inside JSON strings.
func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
