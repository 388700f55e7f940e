package report

import (
	"strings"
	"testing"
	"time"

	"github.com/klyr/lure/internal/event"
	"github.com/klyr/lure/internal/logging"
	"github.com/klyr/lure/internal/signature"
)

func sampleEntries() []logging.Entry {
	return []logging.Entry{
		{Timestamp: time.Unix(0, 0), ClientIP: "1.1.1.1", Method: "GET", Path: "/hp/", Category: event.CategoryScan, DurationMS: 10},
		{Timestamp: time.Unix(1, 0), ClientIP: "2.2.2.2", Geo: "US", Method: "POST", Path: "/contact/", Category: event.CategoryAttack, DurationMS: 30,
			Findings: []logging.FindingEntry{
				{Pattern: "etc_passwd", Category: "LFI"},
				{Pattern: "dot_dot_slash", Category: "TRAVERSAL"},
				{Pattern: "windows_path", Category: "LFI"},
			}},
		{Timestamp: time.Unix(2, 0), ClientIP: "2.2.2.2", Method: "GET", Path: "/hp/", Category: event.CategoryAttack, DurationMS: 20,
			Findings: []logging.FindingEntry{{Pattern: "etc_passwd", Category: "LFI"}}},
		{Timestamp: time.Unix(3, 0), ClientIP: "1.1.1.1", Method: "POST", Path: "/hp/", Category: event.CategorySpam, DurationMS: 5},
	}
}

func TestSummarize(t *testing.T) {
	summary := Summarize(sampleEntries(), Options{})
	if summary.Total != 4 || summary.Scan != 1 || summary.Spam != 1 || summary.Attack != 2 {
		t.Fatalf("unexpected category counts %+v", summary)
	}
	if summary.Findings != 4 || summary.DistinctIPs != 2 {
		t.Fatalf("expected 4 findings over 2 ips, got %d/%d", summary.Findings, summary.DistinctIPs)
	}
	if len(summary.ThreatIPs) != 1 || summary.ThreatIPs[0].IP != "2.2.2.2" || summary.ThreatIPs[0].Findings != 4 || summary.ThreatIPs[0].Geo != "US" {
		t.Fatalf("unexpected threat ips %+v", summary.ThreatIPs)
	}

	if len(summary.Categories) != 2 || summary.Categories[0].Category != signature.CategoryLFI {
		t.Fatalf("expected LFI first, got %+v", summary.Categories)
	}
	lfi := summary.Categories[0]
	if lfi.Total != 3 || lfi.GET != 1 || lfi.POST != 2 {
		t.Fatalf("unexpected LFI split %+v", lfi)
	}
	if len(lfi.TopPaths) != 2 || lfi.TopPaths[0].Count != 1 {
		t.Fatalf("expected each event counted once per path, got %+v", lfi.TopPaths)
	}

	if len(summary.TopPaths) != 2 || summary.TopPaths[0].Key != "/hp/" || summary.TopPaths[0].Count != 3 {
		t.Fatalf("unexpected popular paths %+v", summary.TopPaths)
	}
	if summary.TopPatterns[0].Key != "etc_passwd" || summary.TopPatterns[0].Count != 2 {
		t.Fatalf("unexpected top patterns %+v", summary.TopPatterns)
	}
	if !summary.Start.Equal(time.Unix(0, 0)) || !summary.End.Equal(time.Unix(3, 0)) {
		t.Fatalf("unexpected window %v - %v", summary.Start, summary.End)
	}
}

func TestSummarizeSkipsMissingClientIP(t *testing.T) {
	entries := append(sampleEntries(), logging.Entry{
		Timestamp: time.Unix(4, 0),
		Method:    "POST",
		Path:      "/contact/",
		Category:  event.CategoryAttack,
		Findings: []logging.FindingEntry{
			{Pattern: "script_tag", Category: "XSS"},
			{Pattern: "iframe_tag", Category: "XSS"},
			{Pattern: "svg_tag", Category: "XSS"},
			{Pattern: "js_scheme", Category: "XSS"},
			{Pattern: "img_onerror", Category: "XSS"},
		},
	})

	summary := Summarize(entries, Options{})
	if summary.Total != 5 || summary.Findings != 9 {
		t.Fatalf("expected the entry to count toward totals, got %+v", summary)
	}
	if summary.DistinctIPs != 2 {
		t.Fatalf("expected empty client ip to be ignored, got %d ips", summary.DistinctIPs)
	}
	for _, ip := range summary.ThreatIPs {
		if ip.IP == "" {
			t.Fatalf("empty client ip reported as a threat: %+v", summary.ThreatIPs)
		}
	}
	if len(summary.ThreatIPs) != 1 || summary.ThreatIPs[0].IP != "2.2.2.2" {
		t.Fatalf("unexpected threat ips %+v", summary.ThreatIPs)
	}
}

func TestSummarizeOptions(t *testing.T) {
	tests := []struct {
		name         string
		opts         Options
		total        int
		paths        int
		patterns     int
		categoryPath int
	}{
		{name: "defaults", opts: Options{}, total: 4, paths: 2, patterns: 3, categoryPath: 2},
		{name: "top one", opts: Options{Top: 1, TopPatterns: 1}, total: 4, paths: 1, patterns: 1, categoryPath: 1},
		{name: "attack only", opts: Options{Category: event.CategoryAttack}, total: 2, paths: 2, patterns: 3, categoryPath: 2},
		{name: "scan only", opts: Options{Category: event.CategoryScan}, total: 1, paths: 1, patterns: 0, categoryPath: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary := Summarize(sampleEntries(), tt.opts)
			if summary.Total != tt.total {
				t.Fatalf("expected %d events, got %d", tt.total, summary.Total)
			}
			if len(summary.TopPaths) != tt.paths || len(summary.TopPatterns) != tt.patterns {
				t.Fatalf("expected %d paths and %d patterns, got %+v / %+v", tt.paths, tt.patterns, summary.TopPaths, summary.TopPatterns)
			}
			got := 0
			for _, c := range summary.Categories {
				if c.Category == signature.CategoryLFI {
					got = len(c.TopPaths)
				}
			}
			if got != tt.categoryPath {
				t.Fatalf("expected %d LFI paths, got %d", tt.categoryPath, got)
			}
		})
	}
}

func TestReaderSince(t *testing.T) {
	in := strings.NewReader(`{"ts":"2026-02-03T10:00:00Z","event_id":"a","category":"scan"}

{"ts":"2026-02-03T11:00:00Z","event_id":"b","category":"spam"}
`)
	r := Reader{Since: time.Date(2026, 2, 3, 10, 30, 0, 0, time.UTC)}
	entries, err := r.Decode(in)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if len(entries) != 1 || entries[0].EventID != "b" {
		t.Fatalf("unexpected entries %+v", entries)
	}

	if _, err := r.Decode(strings.NewReader("not json\n")); err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Fatalf("expected line-numbered error, got %v", err)
	}
}

func TestRender(t *testing.T) {
	summary := Summarize(sampleEntries(), Options{})

	text := RenderText(summary)
	if !strings.Contains(text, "Local File Inclusion: 3 (GET 1, POST 2)") || !strings.Contains(text, "2.2.2.2 (US): 4") {
		t.Fatalf("unexpected text render:\n%s", text)
	}
	md := RenderMarkdown(summary)
	if !strings.Contains(md, "| Local File Inclusion | 3 | 1 | 2 |") {
		t.Fatalf("unexpected markdown render:\n%s", md)
	}
	if _, err := RenderJSON(summary); err != nil {
		t.Fatalf("expected json render ok: %v", err)
	}
	if empty := RenderText(Summary{}); !strings.Contains(empty, "Attack categories: none") {
		t.Fatalf("unexpected empty render:\n%s", empty)
	}
}
