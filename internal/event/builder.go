package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/klyr/lure/internal/meta"
	"github.com/klyr/lure/internal/payload"
	"github.com/klyr/lure/internal/scanner"
)

// Request is everything observed about one inbound request before
// classification.
type Request struct {
	Method string
	Path   string
	Fields payload.Fields
	Client meta.ClientContext
	Email  string
	Token  string
}

// Builder turns a request and its scan hits into a complete Record. Nothing
// is persisted here; the caller writes the record in one transaction.
type Builder struct {
	TokenField string
	Now        func() time.Time
	NewID      func() string
}

func NewBuilder(tokenField string) Builder {
	return Builder{TokenField: tokenField}
}

func (b Builder) Build(req Request, hits []scanner.Hit) Record {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	newID := uuid.NewString
	if b.NewID != nil {
		newID = b.NewID
	}

	created := now().UTC()
	summary := Summarize(req.Fields, b.TokenField)

	ev := Event{
		ID:               newID(),
		Method:           req.Method,
		Path:             req.Path,
		CorrelationToken: Text(req.Token),
		CreatedAt:        created,
		IP:               Text(req.Client.IP),
		ForwardedFor:     Text(req.Client.ForwardedFor),
		Geo:              Text(req.Client.Geo),
		UserAgent:        Text(req.Client.UserAgent),
		Referer:          Text(req.Client.Referer),
		Origin:           Text(req.Client.Origin),
		Language:         Text(req.Client.Language),
		Email:            Text(req.Email),
		Data:             Data(req.Fields.Flatten()),
		DataPresent:      summary.DataPresent,
		FieldCount:       summary.FieldCount,
		TargetFields:     StringList(summary.TargetFields),
	}

	findings := make([]Finding, 0, len(hits))
	for _, h := range hits {
		findings = append(findings, Finding{
			ID:          newID(),
			EventID:     ev.ID,
			TargetField: h.Field,
			Pattern:     h.Signature,
			Category:    h.Category,
			RawValue:    h.Match,
			Decoded:     h.Decoded,
			CreatedAt:   created,
		})
	}

	ev.AttackAttempted = len(findings) > 0
	ev.Category = Classify(ev.AttackAttempted, ev.DataPresent)

	return Record{Event: ev, Findings: findings}
}

// AttackCategories returns the distinct finding categories in first-seen
// order.
func (r Record) AttackCategories() []string {
	seen := map[string]bool{}
	var out []string
	for _, f := range r.Findings {
		c := string(f.Category)
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
