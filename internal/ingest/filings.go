package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/untoldecay/TalentGraph/internal/names"
	"github.com/untoldecay/TalentGraph/internal/storage"
	"github.com/untoldecay/TalentGraph/internal/types"
)

// filingConfidence is assigned to every fact taken from a regulatory
// filing. Legal documents rank above any news source.
const filingConfidence = 0.95

// filingDoc is the on-disk Form D document shape. Older exports use
// file_number, filing_date and state instead of the current field names;
// both spellings are accepted.
type filingDoc struct {
	CompanyName    string          `json:"company_name"`
	CIK            string          `json:"cik"`
	AccessionNo    string          `json:"accession_no"`
	FileNumber     string          `json:"file_number"`
	FiledAt        string          `json:"filed_at"`
	FilingDate     string          `json:"filing_date"`
	TotalAmount    *flexAmount     `json:"total_amount"`
	AmountSold     *flexAmount     `json:"amount_sold"`
	State          string          `json:"state_of_incorporation"`
	StateAlt       string          `json:"state"`
	EntityType     string          `json:"entity_type"`
	YearFounded    int             `json:"year_founded"`
	IndustryGroup  string          `json:"industry_group"`
	TotalInvestors int             `json:"total_investors"`
	Officers       []types.Officer `json:"officers"`
	SourceURL      string          `json:"source_url"`
}

// flexAmount accepts a dollar amount as a JSON number or a formatted
// string such as "$5,000,000".
type flexAmount float64

func (a *flexAmount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		return nil
	}
	if s[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(raw)
		if s == "" {
			return nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("bad amount %s", data)
	}
	*a = flexAmount(v)
	return nil
}

// FilingReport summarizes one filings ingest pass, including the graph
// writes the filings produced.
type FilingReport struct {
	Files         int `json:"files"`
	Ingested      int `json:"ingested"`
	Duplicates    int `json:"duplicates"`
	Invalid       int `json:"invalid"`
	Entities      int `json:"entities"`
	Relationships int `json:"relationships"`
	Events        int `json:"events"`
}

// Filings reads Form D documents from path, a file or a directory
// scanned for .json/.ndjson/.jsonl entries, records each filing, and
// converts it into graph facts. Filings are deduplicated on accession
// number; a duplicate skips the graph conversion so re-ingesting a
// spool directory never double-writes.
func (ing *Ingestor) Filings(ctx context.Context, path string) (*FilingReport, error) {
	files, fromDir, err := documentFiles(path)
	if err != nil {
		return nil, err
	}

	report := &FilingReport{}
	for _, file := range files {
		docs, err := readDocuments(file)
		if err != nil {
			if fromDir {
				ing.log.Warn("skipping unreadable document file", "file", file, "error", err)
				continue
			}
			return nil, err
		}
		report.Files++
		for _, raw := range docs {
			if err := ing.ingestFilingDoc(ctx, file, raw, report); err != nil {
				return nil, err
			}
		}
	}

	ing.log.Info("filings ingested",
		"path", path,
		"files", report.Files,
		"ingested", report.Ingested,
		"duplicates", report.Duplicates,
		"invalid", report.Invalid,
		"relationships", report.Relationships)
	return report, nil
}

func (ing *Ingestor) ingestFilingDoc(ctx context.Context, file string, raw json.RawMessage, report *FilingReport) error {
	var doc filingDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		report.Invalid++
		ing.log.Warn("skipping malformed filing document", "file", file, "error", err)
		return nil
	}
	filing, err := doc.toFiling()
	if err != nil {
		report.Invalid++
		ing.log.Warn("skipping invalid filing document", "file", file, "company", doc.CompanyName, "error", err)
		return nil
	}

	// The filing row is the idempotency gate: only the first ingest of an
	// accession number reaches the graph conversion.
	if _, err := ing.store.InsertFiling(ctx, filing); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			report.Duplicates++
			return nil
		}
		return fmt.Errorf("failed to record filing %s: %w", filing.AccessionNo, err)
	}

	entities, relationships, events, err := ing.filingGraph(ctx, filing)
	if err != nil {
		return fmt.Errorf("failed to apply filing %s to the graph: %w", filing.AccessionNo, err)
	}
	report.Ingested++
	report.Entities += entities
	report.Relationships += relationships
	report.Events += events

	ing.log.Debug("filing converted",
		"accession", filing.AccessionNo,
		"company", filing.CompanyName,
		"entities", entities,
		"relationships", relationships)
	return nil
}

func (doc *filingDoc) toFiling() (*types.Filing, error) {
	accession := strings.TrimSpace(doc.AccessionNo)
	if accession == "" {
		accession = strings.TrimSpace(doc.FileNumber)
	}
	if accession == "" {
		return nil, fmt.Errorf("document has no accession number")
	}
	if strings.TrimSpace(doc.CompanyName) == "" {
		return nil, fmt.Errorf("document has no company name")
	}

	rawDate := doc.FiledAt
	if strings.TrimSpace(rawDate) == "" {
		rawDate = doc.FilingDate
	}
	filedAt, err := parseDocTime(rawDate)
	if err != nil {
		return nil, fmt.Errorf("bad filed_at: %w", err)
	}
	if filedAt.IsZero() {
		return nil, fmt.Errorf("document has no filing date")
	}

	state := doc.State
	if state == "" {
		state = doc.StateAlt
	}

	return &types.Filing{
		AccessionNo:    accession,
		CompanyName:    strings.TrimSpace(doc.CompanyName),
		CIK:            doc.CIK,
		FiledAt:        filedAt,
		TotalAmount:    (*float64)(doc.TotalAmount),
		AmountSold:     (*float64)(doc.AmountSold),
		State:          state,
		EntityType:     doc.EntityType,
		YearFounded:    doc.YearFounded,
		IndustryGroup:  doc.IndustryGroup,
		TotalInvestors: doc.TotalInvestors,
		Officers:       doc.Officers,
		SourceURL:      doc.SourceURL,
	}, nil
}

// filingGraph writes one filing's facts in a single transaction: the
// filer entity, officers whose titles map into the predicate vocabulary,
// and the funding event. Counts are only meaningful when err is nil.
func (ing *Ingestor) filingGraph(ctx context.Context, f *types.Filing) (entities, relationships, events int, err error) {
	company := names.CleanDisplayName(f.CompanyName)
	provenance := fmt.Sprintf("SEC Form D filing %s", f.AccessionNo)

	err = ing.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		companyID, err := tx.UpsertEntity(ctx, company, types.KindCompany, filingAttrs(f))
		if err != nil {
			return err
		}
		entities++

		// A special-purpose vehicle files under its own name; the money
		// belongs to the company it wraps.
		fundingID := companyID
		if underlying, ok := names.SPVUnderlying(company); ok {
			id, err := tx.UpsertEntity(ctx, underlying, types.KindCompany,
				map[string]string{"source": "extracted_from_spv"})
			if err != nil {
				return err
			}
			entities++
			fundingID = id
		}

		for _, officer := range f.Officers {
			name := names.CleanDisplayName(officer.Name)
			if name == "" {
				continue
			}
			predicate, ok := predicateForTitle(officer.Title)
			if !ok {
				continue
			}
			if names.Normalize(name) == names.Normalize(company) {
				continue
			}

			kind := types.KindPerson
			if names.IsOrganization(name) {
				kind = types.KindCompany
			}
			officerID, err := tx.UpsertEntity(ctx, name, kind,
				map[string]string{"title": officer.Title})
			if err != nil {
				return err
			}
			entities++

			rel := &types.Relationship{
				SubjectID:  officerID,
				Predicate:  predicate,
				ObjectID:   companyID,
				Confidence: filingConfidence,
				Context:    provenance,
				SourceURL:  f.SourceURL,
				SourceKind: types.SourceFiling,
				EventDate:  &f.FiledAt,
				IsCurrent:  true,
			}
			if _, err := tx.InsertRelationship(ctx, rel); err != nil {
				if errors.Is(err, storage.ErrDuplicate) {
					continue
				}
				return err
			}
			relationships++
		}

		// Form D never names the investors, so the raise is an event
		// rather than a FUNDED_BY edge. Cross-referencing matches it
		// against news-derived funding facts later.
		amount := f.TotalAmount
		if amount == nil {
			amount = f.AmountSold
		}
		event := &types.EventRecord{
			EventType:       types.EventFunding,
			CompanyEntityID: fundingID,
			EventDate:       &f.FiledAt,
			Amount:          amount,
		}
		if _, err := tx.UpsertEvent(ctx, event); err != nil {
			return err
		}
		events++
		return nil
	})
	if err != nil {
		return 0, 0, 0, err
	}
	return entities, relationships, events, nil
}

// filingAttrs maps a filing's descriptive fields onto entity attributes,
// dropping empties so they never overwrite a known value.
func filingAttrs(f *types.Filing) map[string]string {
	attrs := make(map[string]string)
	if f.State != "" {
		attrs["state"] = f.State
	}
	if f.EntityType != "" {
		attrs["entity_type"] = f.EntityType
	}
	if f.IndustryGroup != "" {
		attrs["industry"] = f.IndustryGroup
	}
	if f.YearFounded > 0 {
		attrs["year_founded"] = strconv.Itoa(f.YearFounded)
	}
	return attrs
}

// predicateForTitle maps an officer title onto the fixed predicate
// vocabulary. Titles outside the mapped executive roles produce no edge;
// Form D officer lists mix directors, promoters and counsel whose roles
// the graph does not model.
func predicateForTitle(title string) (types.Predicate, bool) {
	upper := strings.ToUpper(title)
	switch {
	case titleHasWord(upper, "CEO") || strings.Contains(upper, "CHIEF EXECUTIVE"):
		return types.PredicateCEOOf, true
	case titleHasWord(upper, "CFO") || strings.Contains(upper, "CHIEF FINANCIAL"):
		return types.PredicateCFOOf, true
	case titleHasWord(upper, "CTO") ||
		strings.Contains(upper, "CHIEF TECHNOLOGY") ||
		strings.Contains(upper, "CHIEF TECHNICAL"):
		return types.PredicateCTOOf, true
	}
	return "", false
}

// titleHasWord reports whether word appears as a whole token in the
// title, so "CEO/Founder" matches CEO but "OCEOX" does not.
func titleHasWord(title, word string) bool {
	tokens := strings.FieldsFunc(title, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		if tok == word {
			return true
		}
	}
	return false
}
