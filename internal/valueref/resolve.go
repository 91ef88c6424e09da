// Package valueref resolves the tagged-union Value references used in a
// source's request headers, body, and form fields.
package valueref

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/AleksandrNi/token-agent/internal/model"
	"github.com/AleksandrNi/token-agent/internal/tokencache"
)

// TemplatePlaceholder matches {{source_id.token_id}} placeholders inside a
// Template value. Exported so the config validator can walk the same
// placeholders this package resolves at fetch time.
var TemplatePlaceholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\.([A-Za-z0-9_.\-]+)\s*\}\}`)

// Resolve renders a Value to its final string form using the cache for
// Ref and Template lookups. Returns an error if a Ref or a required
// Template placeholder cannot be resolved.
func Resolve(v model.Value, cache *tokencache.Cache) (string, error) {
	switch v.Kind {
	case model.ValueLiteral:
		return v.Literal, nil

	case model.ValueFromEnv:
		val, ok := os.LookupEnv(v.FromEnv)
		if !ok {
			return "", fmt.Errorf("environment variable %q is not set", v.FromEnv)
		}
		return val, nil

	case model.ValueFromFile:
		data, err := os.ReadFile(v.FromFile)
		if err != nil {
			return "", fmt.Errorf("reading %q: %w", v.FromFile, err)
		}
		return strings.TrimRight(string(data), " \t\r\n"), nil

	case model.ValueRef:
		rec, ok := cache.Get(v.RefSource, v.RefToken)
		if !ok {
			return "", fmt.Errorf("ref %s.%s has no cache entry", v.RefSource, v.RefToken)
		}
		// Both branches emit prefix ++ token.value: a prefix-only
		// concatenation of the token_id here would silently send the
		// wrong credential on the wire.
		return v.RefPrefix + rec.Token.Value, nil

	case model.ValueTemplate:
		return resolveTemplate(v, cache)

	default:
		return "", fmt.Errorf("unknown value kind %q", v.Kind)
	}
}

func resolveTemplate(v model.Value, cache *tokencache.Cache) (string, error) {
	var resolveErr error

	result := TemplatePlaceholder.ReplaceAllStringFunc(v.Template, func(match string) string {
		if resolveErr != nil {
			return match
		}
		groups := TemplatePlaceholder.FindStringSubmatch(match)
		sourceID, tokenID := groups[1], groups[2]

		rec, ok := cache.Get(sourceID, tokenID)
		if !ok {
			if v.TemplateRequired {
				resolveErr = fmt.Errorf("template placeholder %s.%s has no cache entry", sourceID, tokenID)
			}
			return ""
		}
		return rec.Token.Value
	})

	if resolveErr != nil {
		return "", resolveErr
	}
	return result, nil
}

// ResolveMap resolves every value in a header/body/form map, in key order
// for determinism, returning a plain string map.
func ResolveMap(values map[string]model.Value, cache *tokencache.Cache) (map[string]string, error) {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make(map[string]string, len(values))
	for _, key := range keys {
		resolved, err := Resolve(values[key], cache)
		if err != nil {
			return nil, fmt.Errorf("resolving %q: %w", key, err)
		}
		out[key] = resolved
	}
	return out, nil
}
