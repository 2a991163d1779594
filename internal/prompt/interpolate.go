// Package prompt turns a template structure, a topic and optional parameters
// into the system prompt sent to a model provider.
package prompt

import (
	"sort"
	"strings"
)

// ResponseInstruction is appended to every interpolated prompt.
const ResponseInstruction = "\n\nRespond ONLY with the generated prompt, no explanations."

const styleLinePrefix = "\n\nVisual Style: "

// TopicPlaceholders are the keys that receive the raw topic.
var TopicPlaceholders = []string{"topic", "subject", "details", "input"}

// Placeholder returns the token for key, e.g. {{key}}.
func Placeholder(key string) string {
	return "{{" + key + "}}"
}

// Interpolate builds the final prompt. Passes run in a fixed order: parameters,
// topic placeholders, style, response instruction. Each pass substitutes
// literally and never re-expands substituted text.
func Interpolate(template, topic, style string, params map[string]string) string {
	out := template

	if len(params) > 0 {
		keys := make([]string, 0, len(params))
		for key := range params {
			if key == "" {
				continue
			}
			keys = append(keys, key)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys)*2)
		for _, key := range keys {
			pairs = append(pairs, Placeholder(key), params[key])
		}
		if len(pairs) > 0 {
			out = strings.NewReplacer(pairs...).Replace(out)
		}
	}

	topicPairs := make([]string, 0, len(TopicPlaceholders)*2)
	for _, key := range TopicPlaceholders {
		topicPairs = append(topicPairs, Placeholder(key), topic)
	}
	out = strings.NewReplacer(topicPairs...).Replace(out)

	if style != "" {
		styleToken := Placeholder("style")
		if strings.Contains(out, styleToken) {
			out = strings.ReplaceAll(out, styleToken, style)
		} else {
			out += styleLinePrefix + style
		}
	}

	return out + ResponseInstruction
}
