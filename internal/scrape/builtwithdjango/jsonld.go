package builtwithdjango

import (
	"encoding/json"
	"strings"

	"djangojobs/internal/scrape/util"
)

// jobPosting is the subset of schema.org/JobPosting the board embeds.
type jobPosting struct {
	Type               string          `json:"@type"`
	Title              string          `json:"title"`
	Description        string          `json:"description"`
	DatePosted         string          `json:"datePosted"`
	EmploymentType     json.RawMessage `json:"employmentType"`
	URL                string          `json:"url"`
	HiringOrganization json.RawMessage `json:"hiringOrganization"`
	JobLocation        json.RawMessage `json:"jobLocation"`
}

func decodePosting(b []byte) (jobPosting, bool) {
	var p jobPosting
	if err := json.Unmarshal(b, &p); err != nil {
		return jobPosting{}, false
	}
	if p.Type != "" && !strings.EqualFold(p.Type, "JobPosting") {
		return jobPosting{}, false
	}
	return p, true
}

func (p jobPosting) organization() string {
	var org struct {
		Name string `json:"name"`
	}
	if json.Unmarshal(p.HiringOrganization, &org) == nil && org.Name != "" {
		return util.CleanText(org.Name)
	}
	var s string
	if json.Unmarshal(p.HiringOrganization, &s) == nil {
		return util.CleanText(s)
	}
	return ""
}

// employment accepts a string or a list of strings.
func (p jobPosting) employment() string {
	var s string
	if json.Unmarshal(p.EmploymentType, &s) == nil {
		return util.CleanText(s)
	}
	var list []string
	if json.Unmarshal(p.EmploymentType, &list) == nil {
		return util.CleanText(strings.Join(list, ", "))
	}
	return ""
}

type place struct {
	Address json.RawMessage `json:"address"`
}

type postalAddress struct {
	Locality string `json:"addressLocality"`
	Region   string `json:"addressRegion"`
	Country  string `json:"addressCountry"`
}

// location flattens jobLocation, which may be a Place, a list of them, or a
// bare string.
func (p jobPosting) location() string {
	if len(p.JobLocation) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(p.JobLocation, &s) == nil {
		return util.NormalizeLocation(s)
	}
	var places []place
	if json.Unmarshal(p.JobLocation, &places) != nil {
		var one place
		if json.Unmarshal(p.JobLocation, &one) != nil {
			return ""
		}
		places = []place{one}
	}
	var parts []string
	for _, pl := range places {
		if a := addressText(pl.Address); a != "" {
			parts = append(parts, a)
		}
	}
	return util.NormalizeLocation(strings.Join(parts, ", "))
}

func addressText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var a postalAddress
	if json.Unmarshal(raw, &a) != nil {
		return ""
	}
	var parts []string
	for _, v := range []string{a.Locality, a.Region, a.Country} {
		if v = util.CleanText(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}
