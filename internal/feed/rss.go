package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"djangojobs/internal/domain"
)

// Channel carries the static channel metadata.
type Channel struct {
	Title       string
	Link        string
	Description string
}

type rss struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	LastBuildDate string    `xml:"lastBuildDate,omitempty"`
	Items         []rssItem `xml:"item"`
}

type rssGUID struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	GUID        rssGUID  `xml:"guid"`
	PubDate     string   `xml:"pubDate,omitempty"`
	Description string   `xml:"description"`
	Categories  []string `xml:"category"`
	Company     string   `xml:"company,omitempty"`
	Location    string   `xml:"location,omitempty"`
	Salary      string   `xml:"salary,omitempty"`
	CompanyURL  string   `xml:"company_url,omitempty"`
	ApplyURL    string   `xml:"apply_url,omitempty"`
	ImageURL    string   `xml:"image_url,omitempty"`
}

// MarshalRSS renders state as RSS 2.0 with one item per job, in state order.
func MarshalRSS(state domain.FeedState, ch Channel) ([]byte, error) {
	doc := rss{
		Version: "2.0",
		Channel: rssChannel{
			Title:         ch.Title,
			Link:          ch.Link,
			Description:   ch.Description,
			LastBuildDate: rfc822(state.GeneratedAt),
		},
	}
	for _, j := range state.Jobs {
		doc.Channel.Items = append(doc.Channel.Items, rssItem{
			Title:       j.Title,
			Link:        j.URL,
			GUID:        rssGUID{IsPermaLink: "false", Value: j.ID},
			PubDate:     rfc822(j.PublishedAt),
			Description: description(j),
			Categories:  j.Categories,
			Company:     j.Company,
			Location:    j.Location,
			Salary:      j.Salary,
			CompanyURL:  j.CompanyURL,
			ApplyURL:    j.ApplyURL,
			ImageURL:    j.ImageURL,
		})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode rss: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode rss: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func description(j domain.JobRecord) string {
	if j.Summary != "" {
		return j.Summary
	}
	var parts []string
	for _, s := range []string{j.Company, j.Location} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " · ")
}

func rfc822(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC1123Z)
}
