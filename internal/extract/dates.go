package extract

import (
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var fuzzyDates = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ParseEventDate resolves the model's event_date string to a concrete
// date. ISO dates parse directly; anything else goes through natural-
// language rules anchored at the article's publication date, so "last
// Tuesday" means last Tuesday relative to publication, not to whenever
// the pipeline happens to run. Unparseable input yields nil, never an
// error.
func ParseEventDate(raw string, anchor time.Time) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "null") {
		return nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return &t
	}
	if anchor.IsZero() {
		anchor = time.Now()
	}
	r, err := fuzzyDates.Parse(raw, anchor)
	if err != nil || r == nil {
		return nil
	}
	t := r.Time
	return &t
}
