package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dshills/quorum/internal/review"
)

const sarifSchema = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json"

// SARIFWriter writes SARIF 2.1.0 with one rule per category.
type SARIFWriter struct{}

func (s *SARIFWriter) Write(w io.Writer, report *review.Report) error {
	data, err := json.MarshalIndent(buildSARIF(report), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling SARIF: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing SARIF: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version,omitempty"`
	InformationURI string      `json:"informationUri"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	ShortDescription sarifMessage `json:"shortDescription"`
}

type sarifResult struct {
	RuleID     string          `json:"ruleId"`
	RuleIndex  int             `json:"ruleIndex"`
	Level      string          `json:"level"`
	Message    sarifMessage    `json:"message"`
	Locations  []sarifLocation `json:"locations,omitempty"`
	Properties sarifProperties `json:"properties"`
}

type sarifProperties struct {
	Confidence float64 `json:"confidence"`
	Agent      string  `json:"agent,omitempty"`
	Side       string  `json:"side,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
}

var ruleDescriptions = map[review.Category]string{
	review.CategoryLogic:       "Logic errors and incorrect behavior",
	review.CategoryStyle:       "Readability and code style",
	review.CategorySecurity:    "Security vulnerabilities",
	review.CategoryPerformance: "Performance problems",
}

func buildSARIF(report *review.Report) sarifLog {
	cats := review.Categories()
	rules := make([]sarifRule, len(cats))
	index := make(map[review.Category]int, len(cats))
	for i, c := range cats {
		rules[i] = sarifRule{
			ID:               ruleID(c),
			Name:             string(c),
			ShortDescription: sarifMessage{Text: ruleDescriptions[c]},
		}
		index[c] = i
	}

	results := make([]sarifResult, 0, len(report.Comments))
	for _, c := range report.Comments {
		loc := sarifLocation{PhysicalLocation: sarifPhysicalLocation{
			ArtifactLocation: sarifArtifactLocation{URI: c.Path},
		}}
		if c.Line > 0 {
			loc.PhysicalLocation.Region = &sarifRegion{StartLine: c.Line}
		}
		results = append(results, sarifResult{
			RuleID:    ruleID(c.Category),
			RuleIndex: index[c.Category],
			Level:     confidenceLevel(c.Confidence),
			Message:   sarifMessage{Text: c.Body},
			Locations: []sarifLocation{loc},
			Properties: sarifProperties{
				Confidence: c.Confidence,
				Agent:      c.Agent,
				Side:       string(c.Side),
			},
		})
	}

	return sarifLog{
		Version: "2.1.0",
		Schema:  sarifSchema,
		Runs: []sarifRun{{
			Tool: sarifTool{Driver: sarifDriver{
				Name:           "quorum",
				Version:        report.Version,
				InformationURI: "https://github.com/dshills/quorum",
				Rules:          rules,
			}},
			Results: results,
		}},
	}
}

func ruleID(c review.Category) string { return "quorum/" + string(c) }

// confidenceLevel maps confidence to a SARIF level.
func confidenceLevel(conf float64) string {
	switch {
	case conf >= 0.8:
		return "error"
	case conf >= 0.5:
		return "warning"
	default:
		return "note"
	}
}
