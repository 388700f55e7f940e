package event

import "github.com/klyr/lure/internal/payload"

// Summary is the payload-derived part of an event.
type Summary struct {
	TargetFields []string
	FieldCount   int
	DataPresent  bool
}

// Summarize lists the distinct field names in encounter order, leaving out
// the correlation token field.
func Summarize(fields payload.Fields, tokenField string) Summary {
	seen := make(map[string]struct{}, len(fields))
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Name == tokenField {
			continue
		}
		if _, dup := seen[f.Name]; dup {
			continue
		}
		seen[f.Name] = struct{}{}
		names = append(names, f.Name)
	}
	return Summary{
		TargetFields: names,
		FieldCount:   len(names),
		DataPresent:  len(names) > 0,
	}
}

// Classify applies the fixed priority attack > spam > scan.
func Classify(attackAttempted, dataPresent bool) Category {
	switch {
	case attackAttempted:
		return CategoryAttack
	case dataPresent:
		return CategorySpam
	default:
		return CategoryScan
	}
}
