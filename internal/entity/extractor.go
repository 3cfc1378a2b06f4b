package entity

import (
	"regexp"
	"sort"
	"strings"
)

// Entity is a term recognized in chunk text, optionally normalized to a
// controlled vocabulary id.
type Entity struct {
	Type           string  `json:"entity_type"`
	Name           string  `json:"entity_name"`
	NormalizedID   string  `json:"normalized_id,omitempty"`
	NormalizedName string  `json:"normalized_name,omitempty"`
	Confidence     float64 `json:"confidence_score"`
}

type organismPattern struct {
	re   *regexp.Regexp
	name string
}

// Extractor does rule-based recognition of organisms and phenotype terms
// common in space biology text. Organism names normalize to NCBI taxonomy
// ids, phenotype terms to GO ids.
type Extractor struct {
	organisms  []organismPattern
	phenotypes *regexp.Regexp
	taxonIDs   map[string]string
	goIDs      map[string]string
}

func NewExtractor() *Extractor {
	mk := func(expr string) *regexp.Regexp {
		return regexp.MustCompile(`(?i)\b(?:` + expr + `)\b`)
	}
	return &Extractor{
		organisms: []organismPattern{
			{mk(`arabidopsis(?:\s+thaliana)?|thale\s+cress`), "Arabidopsis thaliana"},
			{mk(`humans?|homo\s+sapiens`), "Homo sapiens"},
			{mk(`mouse|mice|mus\s+musculus`), "Mus musculus"},
			{mk(`fruit\s+fly|drosophila(?:\s+melanogaster)?`), "Drosophila melanogaster"},
			{mk(`yeast|saccharomyces(?:\s+cerevisiae)?`), "Saccharomyces cerevisiae"},
			{mk(`e\.?\s*coli|escherichia\s+coli`), "Escherichia coli"},
			{mk(`c\.?\s*elegans|caenorhabditis\s+elegans`), "Caenorhabditis elegans"},
		},
		phenotypes: mk(`growth|development|expression|regulation|response|adaptation|morphology|physiology|metabolism|gene\s+expression|protein\s+levels`),
		taxonIDs: map[string]string{
			"arabidopsis thaliana":     "NCBITaxon:3702",
			"homo sapiens":             "NCBITaxon:9606",
			"mus musculus":             "NCBITaxon:10090",
			"drosophila melanogaster":  "NCBITaxon:7227",
			"saccharomyces cerevisiae": "NCBITaxon:4932",
			"escherichia coli":         "NCBITaxon:562",
			"caenorhabditis elegans":   "NCBITaxon:6239",
		},
		goIDs: map[string]string{
			"growth":      "GO:0040007",
			"development": "GO:0032502",
			"expression":  "GO:0010467",
			"regulation":  "GO:0050789",
			"response":    "GO:0050896",
			"adaptation":  "GO:0032502",
		},
	}
}

// Extract returns the deduplicated entities found in text, organisms first,
// each with at most one occurrence per canonical name.
func (e *Extractor) Extract(text string) []Entity {
	seen := make(map[string]struct{})
	var out []Entity
	for _, p := range e.organisms {
		if !p.re.MatchString(text) {
			continue
		}
		if _, ok := seen[p.name]; ok {
			continue
		}
		seen[p.name] = struct{}{}
		ent := Entity{Type: "organism", Name: p.name, Confidence: 0.9}
		if id, ok := e.taxonIDs[strings.ToLower(p.name)]; ok {
			ent.NormalizedID = id
			ent.NormalizedName = p.name
		}
		out = append(out, ent)
	}
	matches := e.phenotypes.FindAllString(text, -1)
	var terms []string
	for _, m := range matches {
		term := strings.ToLower(strings.Join(strings.Fields(m), " "))
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}
	sort.Strings(terms)
	for _, term := range terms {
		ent := Entity{Type: "phenotype", Name: term, Confidence: 0.7}
		if id, ok := e.goIDs[term]; ok {
			ent.NormalizedID = id
			ent.NormalizedName = titleCase(term)
		}
		out = append(out, ent)
	}
	return out
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Names returns up to limit distinct entity names in extraction order.
func Names(entities []Entity, limit int) []string {
	out := make([]string, 0, limit)
	for _, ent := range entities {
		if len(out) >= limit {
			break
		}
		out = append(out, ent.Name)
	}
	return out
}
