package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"regexp"
	"sort"
	"strings"
)

type ValidationError struct {
	Problems []string
}

func (v *ValidationError) Add(format string, args ...any) {
	v.Problems = append(v.Problems, fmt.Sprintf(format, args...))
}

func (v *ValidationError) Error() string {
	return fmt.Sprintf("%d validation error(s)", len(v.Problems))
}

func (c *Config) Validate() error {
	v := &ValidationError{}

	if c.ConfigVersion != 1 {
		v.Add("configVersion must be 1")
	}

	if err := validateListen(c.Server.Listen); err != nil {
		v.Add("server.listen invalid: %v", err)
	}
	if c.Server.MaxBodyBytes <= 0 {
		v.Add("server.maxBodyBytes must be > 0")
	}
	if c.Server.ReadHeaderTimeout < 0 {
		v.Add("server.readHeaderTimeout must be >= 0")
	}

	if c.Metrics.Enabled {
		if err := validateListen(c.Metrics.Listen); err != nil {
			v.Add("metrics.listen invalid: %v", err)
		}
	}

	seenPaths := map[string]struct{}{}
	for i, path := range c.Decoys.Paths {
		switch {
		case !strings.HasPrefix(path, "/"):
			v.Add("decoys.paths[%d] must start with /", i)
		case strings.ContainsAny(path, "{}*"):
			v.Add("decoys.paths[%d] %q must be a literal path", i, path)
		case strings.HasPrefix(path, "/api/events"), strings.HasPrefix(path, "/api/findings"), strings.HasPrefix(path, "/api/correlations"):
			v.Add("decoys.paths[%d] %q collides with the read API", i, path)
		}
		if _, dup := seenPaths[path]; dup {
			v.Add("decoys.paths[%d] %q is duplicated", i, path)
		}
		seenPaths[path] = struct{}{}
	}
	if strings.TrimSpace(c.Decoys.TokenField) == "" {
		v.Add("decoys.tokenField is required")
	}

	if c.Scanner.PatternTimeout < 0 {
		v.Add("scanner.patternTimeout must be >= 0")
	}
	if c.Scanner.MaxValueBytes <= 0 {
		v.Add("scanner.maxValueBytes must be > 0")
	}
	if c.Scanner.DecodeDepth < 0 {
		v.Add("scanner.decodeDepth must be >= 0")
	}

	names := map[string]struct{}{}
	for i, sig := range c.Signatures {
		if sig.Name == "" {
			v.Add("signatures[%d].name is required", i)
		} else if _, exists := names[sig.Name]; exists {
			v.Add("signatures[%d].name %q is duplicated", i, sig.Name)
		} else {
			names[sig.Name] = struct{}{}
		}

		if sig.Category == "" {
			v.Add("signatures[%d].category is required", i)
		}

		switch sig.Type {
		case SignatureKeywords:
			if sig.PatternsFile == "" {
				v.Add("signatures[%d].patternsFile is required for keywords", i)
			} else if err := requireFile(c.resolvePath(sig.PatternsFile)); err != nil {
				v.Add("signatures[%d].patternsFile invalid: %v", i, err)
			}
		case SignatureRegex:
			if sig.Pattern == "" {
				v.Add("signatures[%d].pattern is required for regex", i)
			} else if _, err := regexp.Compile(sig.Pattern); err != nil {
				v.Add("signatures[%d].pattern invalid: %v", i, err)
			}
		default:
			v.Add("signatures[%d].type must be regex|keywords", i)
		}
	}

	if c.Storage.Driver != DriverSQLite {
		v.Add("storage.driver must be %s", DriverSQLite)
	}
	if c.Storage.DSN == "" {
		v.Add("storage.dsn is required")
	}
	if c.Storage.MaxOpenConns < 0 {
		v.Add("storage.maxOpenConns must be >= 0")
	}

	if c.API.RateLimit.Enabled {
		if c.API.RateLimit.RPS <= 0 {
			v.Add("api.rateLimit.rps must be > 0")
		}
		if c.API.RateLimit.Burst <= 0 {
			v.Add("api.rateLimit.burst must be > 0")
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		v.Add("logging.level must be debug|info|warn|error")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		v.Add("logging.format must be json|text")
	}

	if len(v.Problems) > 0 {
		sort.Strings(v.Problems)
		return v
	}
	return nil
}

func validateListen(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("address is required")
	}
	if _, err := net.ResolveTCPAddr("tcp", addr); err != nil {
		return err
	}
	return nil
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}
