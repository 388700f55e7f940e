package report

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/klyr/lure/internal/event"
	"github.com/klyr/lure/internal/logging"
	"github.com/klyr/lure/internal/signature"
)

const (
	defaultTop         = 3
	defaultTopPatterns = 5
)

// Options shapes a snapshot. Zero limits fall back to the defaults; an empty
// Category keeps every event.
type Options struct {
	Top         int
	TopPatterns int
	Category    event.Category
}

func (o Options) withDefaults() Options {
	if o.Top <= 0 {
		o.Top = defaultTop
	}
	if o.TopPatterns <= 0 {
		o.TopPatterns = defaultTopPatterns
	}
	return o
}

type Summary struct {
	Total       int               `json:"total_events"`
	Findings    int               `json:"total_injection_attempts"`
	DistinctIPs int               `json:"total_ips"`
	Scan        int               `json:"scan"`
	Spam        int               `json:"spam"`
	Attack      int               `json:"attack"`
	Start       time.Time         `json:"start"`
	End         time.Time         `json:"end"`
	ThreatIPs   []ThreatIP        `json:"highest_threat_ips"`
	Categories  []CategorySummary `json:"attack_categories"`
	TopPaths    []CountItem       `json:"popular_paths"`
	TopPatterns []CountItem       `json:"top_patterns"`
	Latency     LatencySummary    `json:"latency"`
}

type CountItem struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type ThreatIP struct {
	IP       string `json:"ip_address"`
	Geo      string `json:"geo_location,omitempty"`
	Findings int    `json:"count"`
}

type CategorySummary struct {
	Category signature.Category `json:"category"`
	Label    string             `json:"label"`
	Total    int                `json:"total_count"`
	GET      int                `json:"get_method_count"`
	POST     int                `json:"post_method_count"`
	TopPaths []CountItem        `json:"most_popular_paths"`
}

type LatencySummary struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type Reader struct {
	Since time.Time
}

func (r *Reader) Read(path string) ([]logging.Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return r.Decode(file)
}

func (r *Reader) Decode(in io.Reader) ([]logging.Entry, error) {
	var entries []logging.Entry
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var e logging.Entry
		if err := json.Unmarshal([]byte(text), &e); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if !r.Since.IsZero() && e.Timestamp.Before(r.Since) {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

type categoryCounts struct {
	total, get, post int
	paths            map[string]int
}

// Summarize aggregates event log entries. Entries without a client IP count
// toward every total except the IP ones.
func Summarize(entries []logging.Entry, opts Options) Summary {
	opts = opts.withDefaults()
	if opts.Category != "" {
		kept := make([]logging.Entry, 0, len(entries))
		for _, e := range entries {
			if e.Category == opts.Category {
				kept = append(kept, e)
			}
		}
		entries = kept
	}

	var summary Summary
	if len(entries) == 0 {
		return summary
	}

	summary.Start = entries[0].Timestamp
	summary.End = entries[0].Timestamp

	ips := map[string]struct{}{}
	threat := map[string]int{}
	geo := map[string]string{}
	pathCounts := map[string]int{}
	patternCounts := map[string]int{}
	categories := map[signature.Category]*categoryCounts{}
	latencies := make([]int64, 0, len(entries))

	for _, e := range entries {
		summary.Total++
		if e.Timestamp.Before(summary.Start) {
			summary.Start = e.Timestamp
		}
		if e.Timestamp.After(summary.End) {
			summary.End = e.Timestamp
		}

		switch e.Category {
		case event.CategoryScan:
			summary.Scan++
		case event.CategorySpam:
			summary.Spam++
		case event.CategoryAttack:
			summary.Attack++
		}

		if e.ClientIP != "" {
			ips[e.ClientIP] = struct{}{}
			if e.Geo != "" {
				geo[e.ClientIP] = e.Geo
			}
		}
		pathCounts[e.Path]++
		latencies = append(latencies, e.DurationMS)

		seenCategory := map[signature.Category]bool{}
		for _, f := range e.Findings {
			summary.Findings++
			if e.ClientIP != "" {
				threat[e.ClientIP]++
			}
			patternCounts[f.Pattern]++

			cat := signature.Category(f.Category)
			c, ok := categories[cat]
			if !ok {
				c = &categoryCounts{paths: map[string]int{}}
				categories[cat] = c
			}
			c.total++
			switch e.Method {
			case "GET":
				c.get++
			case "POST":
				c.post++
			}
			if !seenCategory[cat] {
				seenCategory[cat] = true
				c.paths[e.Path]++
			}
		}
	}

	summary.DistinctIPs = len(ips)
	for _, item := range topCounts(threat, opts.Top) {
		summary.ThreatIPs = append(summary.ThreatIPs, ThreatIP{IP: item.Key, Geo: geo[item.Key], Findings: item.Count})
	}
	summary.Categories = categorySummaries(categories, opts.Top)
	summary.TopPaths = topCounts(pathCounts, opts.Top)
	summary.TopPatterns = topCounts(patternCounts, opts.TopPatterns)
	summary.Latency = latencySummary(latencies)

	return summary
}

func categorySummaries(counts map[signature.Category]*categoryCounts, top int) []CategorySummary {
	out := make([]CategorySummary, 0, len(counts))
	for cat, c := range counts {
		out = append(out, CategorySummary{
			Category: cat,
			Label:    cat.Label(),
			Total:    c.total,
			GET:      c.get,
			POST:     c.post,
			TopPaths: topCounts(c.paths, top),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total == out[j].Total {
			return out[i].Category < out[j].Category
		}
		return out[i].Total > out[j].Total
	})
	return out
}

func topCounts(counts map[string]int, n int) []CountItem {
	items := make([]CountItem, 0, len(counts))
	for key, count := range counts {
		items = append(items, CountItem{Key: key, Count: count})
	}
	if len(items) == 0 {
		return nil
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Count == items[j].Count {
			return items[i].Key < items[j].Key
		}
		return items[i].Count > items[j].Count
	})

	if len(items) > n {
		items = items[:n]
	}
	return items
}

func latencySummary(values []int64) LatencySummary {
	if len(values) == 0 {
		return LatencySummary{}
	}
	sorted := make([]int64, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return LatencySummary{
		P50: percentile(sorted, 0.50),
		P95: percentile(sorted, 0.95),
		P99: percentile(sorted, 0.99),
	}
}

func percentile(values []int64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	idx := int(float64(len(values)-1) * p)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return float64(values[idx])
}

func RenderText(summary Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Events: %d (scan %d, spam %d, attack %d)\n", summary.Total, summary.Scan, summary.Spam, summary.Attack)
	fmt.Fprintf(&b, "Injection attempts: %d\n", summary.Findings)
	fmt.Fprintf(&b, "Distinct IPs: %d\n", summary.DistinctIPs)
	fmt.Fprintf(&b, "Latency p50/p95/p99 (ms): %.0f/%.0f/%.0f\n", summary.Latency.P50, summary.Latency.P95, summary.Latency.P99)

	if len(summary.ThreatIPs) == 0 {
		b.WriteString("Highest threat IPs: none\n")
	} else {
		b.WriteString("Highest threat IPs:\n")
		for _, ip := range summary.ThreatIPs {
			fmt.Fprintf(&b, "- %s%s: %d\n", ip.IP, geoSuffix(ip.Geo), ip.Findings)
		}
	}

	if len(summary.Categories) == 0 {
		b.WriteString("Attack categories: none\n")
	} else {
		b.WriteString("Attack categories:\n")
		for _, c := range summary.Categories {
			fmt.Fprintf(&b, "- %s: %d (GET %d, POST %d)\n", c.Label, c.Total, c.GET, c.POST)
		}
	}

	writeCounts(&b, "Popular paths", summary.TopPaths)
	writeCounts(&b, "Top patterns", summary.TopPatterns)

	return b.String()
}

func RenderMarkdown(summary Summary) string {
	var b strings.Builder
	b.WriteString("# Lure Snapshot\n\n")
	b.WriteString("## Totals\n\n")
	fmt.Fprintf(&b, "- Events: %d\n", summary.Total)
	fmt.Fprintf(&b, "- Scan / spam / attack: %d / %d / %d\n", summary.Scan, summary.Spam, summary.Attack)
	fmt.Fprintf(&b, "- Injection attempts: %d\n", summary.Findings)
	fmt.Fprintf(&b, "- Distinct IPs: %d\n", summary.DistinctIPs)
	fmt.Fprintf(&b, "- Latency p50/p95/p99 (ms): %.0f/%.0f/%.0f\n\n", summary.Latency.P50, summary.Latency.P95, summary.Latency.P99)

	b.WriteString("## Highest threat IPs\n\n")
	if len(summary.ThreatIPs) == 0 {
		b.WriteString("- none\n\n")
	} else {
		for _, ip := range summary.ThreatIPs {
			fmt.Fprintf(&b, "- %s%s: %d\n", ip.IP, geoSuffix(ip.Geo), ip.Findings)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Attack categories\n\n")
	if len(summary.Categories) == 0 {
		b.WriteString("- none\n\n")
	} else {
		b.WriteString("| Category | Total | GET | POST | Popular paths |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, c := range summary.Categories {
			fmt.Fprintf(&b, "| %s | %d | %d | %d | %s |\n", c.Label, c.Total, c.GET, c.POST, joinKeys(c.TopPaths))
		}
		b.WriteString("\n")
	}

	writeCountsMarkdown(&b, "Popular paths", summary.TopPaths)
	writeCountsMarkdown(&b, "Top patterns", summary.TopPatterns)

	return b.String()
}

func RenderJSON(summary Summary) ([]byte, error) {
	return json.MarshalIndent(summary, "", "  ")
}

func geoSuffix(geo string) string {
	if geo == "" {
		return ""
	}
	return " (" + geo + ")"
}

func joinKeys(items []CountItem) string {
	keys := make([]string, len(items))
	for i, item := range items {
		keys[i] = item.Key
	}
	return strings.Join(keys, ", ")
}

func writeCounts(b *strings.Builder, title string, items []CountItem) {
	if len(items) == 0 {
		fmt.Fprintf(b, "%s: none\n", title)
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s: %d\n", item.Key, item.Count)
	}
}

func writeCountsMarkdown(b *strings.Builder, title string, items []CountItem) {
	b.WriteString("## ")
	b.WriteString(title)
	b.WriteString("\n\n")
	if len(items) == 0 {
		b.WriteString("- none\n\n")
		return
	}
	for _, item := range items {
		fmt.Fprintf(b, "- %s: %d\n", item.Key, item.Count)
	}
	b.WriteString("\n")
}

func WriteOutput(path string, content []byte) error {
	if path == "" {
		_, err := io.Copy(os.Stdout, bytes.NewReader(content))
		return err
	}
	return os.WriteFile(path, content, 0o600)
}
