package signature

import "fmt"

// Category is the attack class a signature belongs to.
type Category string

const (
	CategoryXSS       Category = "XSS"
	CategorySQLI      Category = "SQLI"
	CategoryLFI       Category = "LFI"
	CategoryCMD       Category = "CMD"
	CategoryTraversal Category = "TRAVERSAL"
	CategorySSTI      Category = "SSTI"
	CategoryOther     Category = "OTHER"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryXSS,
	CategorySQLI,
	CategoryLFI,
	CategoryCMD,
	CategoryTraversal,
	CategorySSTI,
	CategoryOther,
}

func ParseCategory(raw string) (Category, error) {
	switch c := Category(raw); c {
	case CategoryXSS, CategorySQLI, CategoryLFI, CategoryCMD, CategoryTraversal, CategorySSTI, CategoryOther:
		return c, nil
	default:
		return "", fmt.Errorf("unknown category %q", raw)
	}
}

// Label returns the human readable name of the category.
func (c Category) Label() string {
	switch c {
	case CategoryXSS:
		return "Cross-Site Scripting"
	case CategorySQLI:
		return "SQL Injection"
	case CategoryLFI:
		return "Local File Inclusion"
	case CategoryCMD:
		return "Command Injection"
	case CategoryTraversal:
		return "Directory Traversal"
	case CategorySSTI:
		return "Template Injection"
	case CategoryOther:
		return "Other"
	default:
		return string(c)
	}
}

type Kind string

const (
	KindRegex    Kind = "regex"
	KindKeywords Kind = "keywords"
)

// Signature is one named detection technique. Values are never mutated after
// the catalog is built.
type Signature struct {
	Name     string
	Category Category
	Matcher  Matcher
}

// Matcher locates the leftmost match in input and returns its byte span.
type Matcher interface {
	Find(input string) (start, end int, ok bool)
}
