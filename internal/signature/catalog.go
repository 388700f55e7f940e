package signature

import (
	"errors"
	"fmt"
)

// Catalog is an ordered, read-only set of signatures. It is safe for
// concurrent use because nothing mutates it after construction.
type Catalog struct {
	sigs   []Signature
	byName map[string]int
}

func NewCatalog(sigs []Signature) (*Catalog, error) {
	if len(sigs) == 0 {
		return nil, errors.New("catalog needs at least one signature")
	}

	c := &Catalog{
		sigs:   make([]Signature, 0, len(sigs)),
		byName: make(map[string]int, len(sigs)),
	}
	for i, sig := range sigs {
		if sig.Name == "" {
			return nil, fmt.Errorf("signature %d: name is required", i)
		}
		if _, err := ParseCategory(string(sig.Category)); err != nil {
			return nil, fmt.Errorf("signature %s: %w", sig.Name, err)
		}
		if sig.Matcher == nil {
			return nil, fmt.Errorf("signature %s: matcher is required", sig.Name)
		}
		if _, dup := c.byName[sig.Name]; dup {
			return nil, fmt.Errorf("signature %s: duplicate name", sig.Name)
		}
		c.byName[sig.Name] = len(c.sigs)
		c.sigs = append(c.sigs, sig)
	}
	return c, nil
}

func (c *Catalog) Len() int {
	return len(c.sigs)
}

func (c *Catalog) At(i int) Signature {
	return c.sigs[i]
}

// All returns a copy of the signatures in evaluation order.
func (c *Catalog) All() []Signature {
	return append([]Signature(nil), c.sigs...)
}

func (c *Catalog) Lookup(name string) (Signature, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Signature{}, false
	}
	return c.sigs[i], true
}

// Extend returns a new catalog with extra appended after the receiver's
// signatures. The receiver is left untouched.
func (c *Catalog) Extend(extra []Signature) (*Catalog, error) {
	if len(extra) == 0 {
		return c, nil
	}
	combined := make([]Signature, 0, len(c.sigs)+len(extra))
	combined = append(combined, c.sigs...)
	combined = append(combined, extra...)
	return NewCatalog(combined)
}

var builtin = func() *Catalog {
	c, err := NewCatalog(builtinSignatures())
	if err != nil {
		panic(err)
	}
	return c
}()

// Builtin returns the compiled default catalog.
func Builtin() *Catalog {
	return builtin
}

func sig(name string, category Category, pattern string) Signature {
	return Signature{Name: name, Category: category, Matcher: mustRegex(pattern)}
}

// Tag patterns that can span lines compile with (?s); everything is
// case-insensitive.
func builtinSignatures() []Signature {
	return []Signature{
		sig("script_tag", CategoryXSS, `(?is)<\s*script\b[^>]*>.*?</script>`),
		sig("iframe_tag", CategoryXSS, `(?is)<\s*iframe\b[^>]*>.*?</iframe>`),
		sig("img_onerror", CategoryXSS, `(?i)<\s*img\b[^>]*\bonerror\s*=[^>]*>`),
		sig("event_handler", CategoryXSS, `(?i)<[^>]*\bon[a-z\-]+\s*=[^>]*>`),
		sig("js_scheme", CategoryXSS, `(?i)javascript\s*:`),
		sig("data_html", CategoryXSS, `(?i)data:\s*text/html`),
		sig("css_expression", CategoryXSS, `(?i)expression\s*\(`),
		sig("meta_refresh", CategoryXSS, `(?i)<\s*meta\b[^>]*http-equiv=['"]?refresh`),
		sig("object_embed", CategoryXSS, `(?i)<\s*(object|embed|applet)\b[^>]*>`),
		sig("svg_tag", CategoryXSS, `(?i)<\s*svg\b[^>]*>`),

		sig("union_select", CategorySQLI, `(?i)\bunion\s+select\b`),
		sig("or_1_equals_1", CategorySQLI, `(?i)\bor\s+['"]?1['"]?\s*=\s*['"]?1['"]?`),
		sig("sql_comment", CategorySQLI, `(?is)--\s*$|/\*.*?\*/`),
		sig("drop_table", CategorySQLI, `(?i)\bdrop\s+table\b`),
		sig("exec_sp", CategorySQLI, `(?i)\bexec\s*\(|\bexecute\s*\(|xp_cmdshell`),
		sig("information_schema", CategorySQLI, `(?i)information_schema|sys\.|mysql\.`),

		sig("etc_passwd", CategoryLFI, `(?i)\.\./.*?etc/passwd|\.\.\\\.\.\\etc\\passwd`),
		sig("proc_self", CategoryLFI, `(?i)\.\./.*?proc/self|\.\.\\\.\.\\proc\\self`),
		sig("windows_path", CategoryLFI, `(?i)\.\.\\\.\.\\|\.\./\.\./`),
		sig("php_wrapper", CategoryLFI, `(?i)php://(filter|input|expect|data)`),
		sig("file_wrapper", CategoryLFI, `(?i)file://|file:///`),

		sig("pipe_command", CategoryCMD, "(?i)[;&|`]\\s*(ls|cat|whoami|id|uname|pwd|dir)"),
		sig("command_chaining", CategoryCMD, "(?i)[;&|`]\\s*$|&&|\\|\\|"),
		sig("subshell", CategoryCMD, "(?i)\\$\\([^)]+\\)|`[^`]+`"),
		sig("nc_listener", CategoryCMD, `(?i)nc\s+-l|netcat\s+-l|ncat\s+-l`),
		sig("reverse_shell", CategoryCMD, `(?i)bash\s+-i|sh\s+-i|/bin/(sh|bash)\s+-i`),

		sig("dot_dot_slash", CategoryTraversal, `(?i)\.\./\.\./|\.\.\\\.\.\\`),
		sig("absolute_path", CategoryTraversal, `(?i)^/(etc|usr|var|home|root|windows|system32)`),
		sig("encoded_traversal", CategoryTraversal, `(?i)\.\.%2f|\.\.%5c|%2e%2e%2f|%2e%2e%5c`),

		sig("jinja2_template", CategorySSTI, `(?i)\{\{.*?\}\}|\{%\s*.*?\s*%\}`),
		sig("smarty_template", CategorySSTI, `(?i)\{.*?\}|\{if\s+.*?\}`),
		sig("freemarker_template", CategorySSTI, `(?i)\$\{.*?\}|<#.*?>`),
		sig("velocity_template", CategorySSTI, `(?i)\$!?\{.*?\}`),
		sig("twig_template", CategorySSTI, `(?i)\{\{.*?\}\}|\{%\s*.*?\s*%\}`),
	}
}
