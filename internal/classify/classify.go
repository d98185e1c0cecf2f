// Package classify labels articles with a tracked event type using
// lexical keyword tables, and scores how much extractable signal an
// article carries. Classification is deterministic, side-effect-free,
// and never errors on malformed text.
package classify

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/untoldecay/TalentGraph/internal/types"
)

const (
	strongWeight = 2.0
	weakWeight   = 0.5

	// scoreCeiling is the raw score at which confidence saturates at 1.0.
	scoreCeiling = 5.0

	// DefaultHighSignalThreshold is the confidence at or above which a
	// classified article is queued for extraction.
	DefaultHighSignalThreshold = 0.5
)

//go:embed keywords.toml
var defaultKeywords []byte

// Result is a single classification outcome.
type Result struct {
	EventType       types.EventType
	AllTypes        []types.EventType
	Confidence      float64
	MatchedKeywords []string
	IsHighSignal    bool
}

type patternSpec struct {
	Strong []string `toml:"strong"`
	Weak   []string `toml:"weak"`
}

type compiledSet struct {
	strong []*regexp.Regexp
	weak   []*regexp.Regexp
}

// Classifier scores article text against per-event keyword tables.
type Classifier struct {
	patterns  map[types.EventType]compiledSet
	threshold float64
}

// New builds a classifier from the embedded keyword tables. A threshold
// of zero or below selects DefaultHighSignalThreshold.
func New(highSignalThreshold float64) (*Classifier, error) {
	c, err := fromTOML(defaultKeywords, highSignalThreshold)
	if err != nil {
		return nil, fmt.Errorf("embedded keyword tables: %w", err)
	}
	return c, nil
}

// NewFromFile builds a classifier from a TOML keyword file, replacing
// the embedded tables entirely.
func NewFromFile(path string, highSignalThreshold float64) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading keyword tables: %w", err)
	}
	c, err := fromTOML(data, highSignalThreshold)
	if err != nil {
		return nil, fmt.Errorf("keyword tables %s: %w", path, err)
	}
	return c, nil
}

func fromTOML(data []byte, threshold float64) (*Classifier, error) {
	var raw map[string]patternSpec
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing keyword tables: %w", err)
	}
	if threshold <= 0 {
		threshold = DefaultHighSignalThreshold
	}

	c := &Classifier{
		patterns:  make(map[types.EventType]compiledSet, len(raw)),
		threshold: threshold,
	}
	for key, spec := range raw {
		et := types.EventType(key)
		if !knownEventType(et) {
			return nil, fmt.Errorf("unknown event type %q", key)
		}
		var set compiledSet
		for _, p := range spec.Strong {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("pattern %q: %w", p, err)
			}
			set.strong = append(set.strong, re)
		}
		for _, p := range spec.Weak {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("pattern %q: %w", p, err)
			}
			set.weak = append(set.weak, re)
		}
		c.patterns[et] = set
	}
	return c, nil
}

func knownEventType(et types.EventType) bool {
	for _, known := range types.EventTypes {
		if et == known {
			return true
		}
	}
	return false
}

// Classify scores title and content against every event type. The title
// is counted twice so headline hits dominate. Equal scores resolve in
// types.EventTypes priority order; matched keywords are lowercased and
// deduplicated in first-seen order so output is stable.
func (c *Classifier) Classify(title, content string) Result {
	text := title + " " + title + " " + content

	scores := make(map[types.EventType]float64)
	var keywords []string
	seen := make(map[string]bool)

	for _, et := range types.EventTypes {
		set, ok := c.patterns[et]
		if !ok {
			continue
		}
		score := 0.0
		var local []string
		for _, re := range set.strong {
			found := re.FindAllString(text, -1)
			score += float64(len(found)) * strongWeight
			local = append(local, found...)
		}
		for _, re := range set.weak {
			found := re.FindAllString(text, -1)
			score += float64(len(found)) * weakWeight
			local = append(local, found...)
		}
		if score <= 0 {
			continue
		}
		scores[et] = score
		for _, m := range local {
			kw := strings.ToLower(m)
			if !seen[kw] {
				seen[kw] = true
				keywords = append(keywords, kw)
			}
		}
	}

	if len(scores) == 0 {
		// No tracked signal at all. 0.5 reads as "probably not an event"
		// rather than certainty either way.
		return Result{EventType: types.EventNone, Confidence: 0.5}
	}

	all := make([]types.EventType, 0, len(scores))
	for _, et := range types.EventTypes {
		if _, ok := scores[et]; ok {
			all = append(all, et)
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return scores[all[i]] > scores[all[j]]
	})

	primary := all[0]
	confidence := scores[primary] / scoreCeiling
	if confidence > 1 {
		confidence = 1
	}

	return Result{
		EventType:       primary,
		AllTypes:        all,
		Confidence:      confidence,
		MatchedKeywords: keywords,
		IsHighSignal:    primary != types.EventNone && confidence >= c.threshold,
	}
}
