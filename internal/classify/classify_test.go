package classify

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/untoldecay/TalentGraph/internal/types"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := New(0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestClassify(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		name       string
		title      string
		content    string
		wantType   types.EventType
		wantSignal bool
	}{
		{
			name:       "funding round",
			title:      "Acme raises $50 million Series B",
			content:    "The startup raised $50 million from investors at a $500 million valuation.",
			wantType:   types.EventFunding,
			wantSignal: true,
		},
		{
			name:       "acquisition",
			title:      "Microsoft acquires Activision",
			content:    "The acquisition closes next quarter after the merger review.",
			wantType:   types.EventAcquisition,
			wantSignal: true,
		},
		{
			name:       "executive move",
			title:      "Jane Doe joins Stripe as CFO",
			content:    "Stripe named a new chief financial officer after the previous CFO departed.",
			wantType:   types.EventExecutiveMove,
			wantSignal: true,
		},
		{
			name:       "layoff",
			title:      "Meta announces layoffs",
			content:    "The company lays off 10,000 in a workforce reduction amid restructuring.",
			wantType:   types.EventLayoff,
			wantSignal: true,
		},
		{
			name:       "ipo",
			title:      "Reddit goes public in long-awaited IPO",
			content:    "Shares begin trading Thursday after the initial public offering priced.",
			wantType:   types.EventIPO,
			wantSignal: true,
		},
		{
			name:       "no signal",
			title:      "Weather remains mild across the region",
			content:    "Forecasters expect sunshine through the weekend.",
			wantType:   types.EventNone,
			wantSignal: false,
		},
		{
			name:       "weak signal only is not high signal",
			title:      "Industry outlook",
			content:    "Analysts expect strategic moves this year.",
			wantType:   types.EventAcquisition,
			wantSignal: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.title, tt.content)
			if got.EventType != tt.wantType {
				t.Errorf("EventType = %q, want %q (keywords %v)", got.EventType, tt.wantType, got.MatchedKeywords)
			}
			if got.IsHighSignal != tt.wantSignal {
				t.Errorf("IsHighSignal = %v, want %v (confidence %.2f)", got.IsHighSignal, tt.wantSignal, got.Confidence)
			}
		})
	}
}

func TestClassifyTieBreakPriority(t *testing.T) {
	c := newTestClassifier(t)

	// One strong funding hit and one strong acquisition hit score equally;
	// funding wins by priority order.
	got := c.Classify("", "the series b merger")
	if got.EventType != types.EventFunding {
		t.Fatalf("EventType = %q, want funding (all types %v)", got.EventType, got.AllTypes)
	}
	if len(got.AllTypes) != 2 {
		t.Fatalf("AllTypes = %v, want two scored types", got.AllTypes)
	}
	if got.AllTypes[1] != types.EventAcquisition {
		t.Errorf("AllTypes[1] = %q, want acquisition", got.AllTypes[1])
	}
}

func TestClassifyTitleDoubleWeight(t *testing.T) {
	c := newTestClassifier(t)

	inTitle := c.Classify("Company announces layoffs", "")
	inBody := c.Classify("", "Company announces layoffs")

	if inTitle.Confidence <= inBody.Confidence {
		t.Errorf("title confidence %.2f should exceed body confidence %.2f", inTitle.Confidence, inBody.Confidence)
	}
	// A single strong match in the body scores 2.0 (confidence 0.4), below
	// the default high-signal threshold; the doubled title hits 4.0 (0.8).
	if !inTitle.IsHighSignal {
		t.Errorf("title-only match should be high signal (confidence %.2f)", inTitle.Confidence)
	}
	if inBody.IsHighSignal {
		t.Errorf("body-only match should not be high signal (confidence %.2f)", inBody.Confidence)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	c := newTestClassifier(t)

	title := "Acme raises $20 million as CEO departs"
	content := "Acme Inc. raised a funding round. The CEO steps down after the deal. Investors applauded."

	first := c.Classify(title, content)
	for i := 0; i < 50; i++ {
		got := c.Classify(title, content)
		if !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs:\n got %+v\nwant %+v", i, got, first)
		}
	}
}

func TestClassifyConfidenceSaturates(t *testing.T) {
	c := newTestClassifier(t)

	got := c.Classify("layoffs layoffs layoffs layoffs", "layoffs layoffs layoffs layoffs layoffs")
	if got.Confidence != 1 {
		t.Errorf("Confidence = %v, want saturation at 1", got.Confidence)
	}
}

func TestClassifyCustomThreshold(t *testing.T) {
	c, err := New(0.9)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := c.Classify("Company announces layoffs", "")
	if got.Confidence != 0.8 {
		t.Fatalf("Confidence = %v, want 0.8", got.Confidence)
	}
	if got.IsHighSignal {
		t.Error("0.8 confidence should fall below a 0.9 threshold")
	}
}

func TestNewFromFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid override", func(t *testing.T) {
		path := filepath.Join(dir, "keywords.toml")
		table := `
[funding]
strong = ['\bmegaround\b']
weak = []
`
		if err := os.WriteFile(path, []byte(table), 0o644); err != nil {
			t.Fatal(err)
		}
		c, err := NewFromFile(path, 0)
		if err != nil {
			t.Fatalf("NewFromFile: %v", err)
		}
		if got := c.Classify("Acme megaround", ""); got.EventType != types.EventFunding {
			t.Errorf("EventType = %q, want funding", got.EventType)
		}
		// The override replaces the embedded tables entirely.
		if got := c.Classify("Microsoft acquires Activision", ""); got.EventType != types.EventNone {
			t.Errorf("EventType = %q, want none after override", got.EventType)
		}
	})

	t.Run("unknown event type", func(t *testing.T) {
		path := filepath.Join(dir, "bad_type.toml")
		if err := os.WriteFile(path, []byte("[meteorology]\nstrong = ['rain']\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := NewFromFile(path, 0); err == nil {
			t.Fatal("expected error for unknown event type")
		}
	})

	t.Run("invalid pattern", func(t *testing.T) {
		path := filepath.Join(dir, "bad_pattern.toml")
		if err := os.WriteFile(path, []byte("[funding]\nstrong = ['[unclosed']\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := NewFromFile(path, 0); err == nil {
			t.Fatal("expected error for invalid pattern")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := NewFromFile(filepath.Join(dir, "absent.toml"), 0); err == nil {
			t.Fatal("expected error for missing file")
		}
	})
}

func TestEvaluateQuality(t *testing.T) {
	tests := []struct {
		name          string
		title         string
		content       string
		wantPotential string
	}{
		{
			name:          "all four signals",
			title:         "Acme Inc. raises $50 million",
			content:       "CEO Jane Doe announced the round on January 5, 2024.",
			wantPotential: PotentialHigh,
		},
		{
			name:          "two signals",
			title:         "Acme Inc. expands",
			content:       "The 2024 plan covers three new offices.",
			wantPotential: PotentialMedium,
		},
		{
			name:          "no signals",
			title:         "A quiet day",
			content:       "Nothing notable happened.",
			wantPotential: PotentialLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateQuality(tt.title, tt.content)
			if got.Potential != tt.wantPotential {
				t.Errorf("Potential = %q, want %q (%+v)", got.Potential, tt.wantPotential, got)
			}
		})
	}
}
