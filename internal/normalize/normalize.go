package normalize

import (
	"html"
	"net/url"
	"strings"
)

type Options struct {
	MaxDecodeDepth int
	HTMLEntity     bool
}

type Result struct {
	Raw        string
	Normalized string
}

// Changed reports whether decoding produced a different string.
func (r Result) Changed() bool {
	return r.Raw != r.Normalized
}

// Apply percent-decodes input up to MaxDecodeDepth times and optionally
// unescapes HTML entities. Malformed escapes stop decoding without error.
func Apply(input string, opts Options) Result {
	res := Result{Raw: input, Normalized: input}

	depth := opts.MaxDecodeDepth
	if depth <= 0 {
		depth = 2
	}

	decoded := res.Normalized
	for i := 0; i < depth; i++ {
		next, ok := decodeOnce(decoded)
		if !ok || next == decoded {
			break
		}
		decoded = next
	}

	res.Normalized = decoded

	if opts.HTMLEntity && strings.Contains(res.Normalized, "&") {
		res.Normalized = html.UnescapeString(res.Normalized)
	}

	return res
}

func decodeOnce(input string) (string, bool) {
	if !strings.Contains(input, "%") {
		return input, false
	}
	decoded, err := url.PathUnescape(input)
	if err != nil {
		return input, false
	}
	return decoded, true
}
