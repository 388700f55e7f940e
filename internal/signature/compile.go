package signature

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/klyr/lure/internal/config"
)

// BuildCatalog returns the built-in catalog extended with the signatures
// declared in cfg.
func BuildCatalog(cfg *config.Config) (*Catalog, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	extra := make([]Signature, 0, len(cfg.Signatures))
	for _, raw := range cfg.Signatures {
		compiled, err := compileSignature(raw, cfg)
		if err != nil {
			return nil, fmt.Errorf("signature %s: %w", raw.Name, err)
		}
		extra = append(extra, compiled)
	}

	return Builtin().Extend(extra)
}

func compileSignature(raw config.SignatureConfig, cfg *config.Config) (Signature, error) {
	category, err := ParseCategory(strings.ToUpper(strings.TrimSpace(raw.Category)))
	if err != nil {
		return Signature{}, err
	}

	var matcher Matcher
	switch Kind(raw.Type) {
	case KindRegex:
		if raw.Pattern == "" {
			return Signature{}, fmt.Errorf("regex pattern is required")
		}
		matcher, err = NewRegexMatcher(caseInsensitive(raw.Pattern))
	case KindKeywords:
		if raw.PatternsFile == "" {
			return Signature{}, fmt.Errorf("patternsFile is required")
		}
		keywords, readErr := readPatterns(cfg.ResolvePath(raw.PatternsFile))
		if readErr != nil {
			return Signature{}, readErr
		}
		matcher, err = NewAhoMatcher(keywords)
	default:
		return Signature{}, fmt.Errorf("unknown signature type %q", raw.Type)
	}
	if err != nil {
		return Signature{}, err
	}

	return Signature{Name: raw.Name, Category: category, Matcher: matcher}, nil
}

func caseInsensitive(pattern string) string {
	if strings.HasPrefix(pattern, "(?i)") {
		return pattern
	}
	return "(?i)" + pattern
}

func readPatterns(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var patterns []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return patterns, nil
}
