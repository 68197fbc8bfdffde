// Package pythonorg reads the python.org job board RSS feed and hydrates each
// Django posting from its detail page.
package pythonorg

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"time"

	"djangojobs/internal/domain"
	"djangojobs/internal/fetch"
	"djangojobs/internal/scrape/types"
	"djangojobs/internal/scrape/util"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"
)

const (
	Name            = "python.org"
	DefaultEndpoint = "https://www.python.org/jobs/feed/rss/"
	summaryRunes    = 500
)

type Config struct {
	Endpoint string
	// Keyword must appear in title or description; default "django".
	Keyword string
	// Workers bounds concurrent detail page fetches.
	Workers int
}

type Scraper struct {
	cfg Config
	log *slog.Logger
}

func New(cfg Config, lg *slog.Logger) *Scraper {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Keyword == "" {
		cfg.Keyword = "django"
	}
	cfg.Keyword = strings.ToLower(cfg.Keyword)
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if lg == nil {
		lg = slog.Default()
	}
	return &Scraper{cfg: cfg, log: lg.With("component", "source", "source", Name)}
}

func (s *Scraper) Name() string     { return Name }
func (s *Scraper) Endpoint() string { return s.cfg.Endpoint }

type listing struct {
	title     string
	desc      string
	link      string
	published time.Time
}

func (s *Scraper) Parse(ctx context.Context, page fetch.Page, get types.Getter) (types.Batch, error) {
	batch := types.Batch{Source: Name}

	if types.Mode(page.ContentType) == types.ModeJSON {
		return batch, &types.ParseError{Source: Name, Reason: "expected an RSS document, got " + page.MediaType()}
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(page.Body))
	if err != nil {
		return batch, &types.ParseError{Source: Name, Reason: "feed does not parse", Err: err}
	}
	if feed.FeedType != "rss" {
		return batch, &types.ParseError{Source: Name, Reason: "not an RSS channel: " + feed.FeedType}
	}

	var items []listing
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		l := listing{
			title: util.CleanText(it.Title),
			desc:  strings.TrimSpace(it.Description),
			link:  strings.TrimSpace(it.Link),
		}
		hay := strings.ToLower(l.title + " " + util.StripTags(l.desc))
		if !strings.Contains(hay, s.cfg.Keyword) {
			continue
		}
		batch.Total++
		if l.title == "" || l.link == "" {
			batch.Skip(l.link, "item without title or link")
			continue
		}
		if it.PublishedParsed != nil {
			l.published = it.PublishedParsed.UTC().Truncate(time.Second)
		} else if t, ok := util.ParseTime(it.Published); ok {
			l.published = t
		}
		items = append(items, l)
	}

	// hydrate details on a bounded pool; each slot is written by one goroutine
	details := make([]*goquery.Document, len(items))
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i, l := range items {
		g.Go(func() error {
			p, err := get.Get(ctx, l.link)
			if err != nil {
				s.log.Warn("detail page unavailable, using feed item", "url", l.link, "err", err)
				return nil
			}
			doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
			if err != nil {
				s.log.Warn("detail page does not parse, using feed item", "url", l.link, "err", err)
				return nil
			}
			details[i] = doc
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return batch, err
	}

	for i, l := range items {
		batch.Records = append(batch.Records, s.record(l, details[i]))
	}
	return batch, nil
}

func (s *Scraper) record(l listing, doc *goquery.Document) domain.JobRecord {
	var company string
	if _, after, ok := strings.Cut(l.title, ","); ok {
		company = util.CleanText(after)
	}

	var (
		location   string
		categories []string
		webLink    string
		applyLink  string
		fullText   string
		published  = l.published
	)
	if doc != nil {
		location = util.NormalizeLocation(doc.Find(".listing-location").First().Text())

		if dt, ok := doc.Find(".listing-posted time").First().Attr("datetime"); ok {
			if t, ok := util.ParseTime(dt); ok {
				published = t
			}
		}

		doc.Find(".listing-company-category").Each(func(_ int, c *goquery.Selection) {
			if v := util.CleanText(c.Text()); v != "" {
				categories = append(categories, v)
			}
		})

		doc.Find("li").EachWithBreak(func(_ int, li *goquery.Selection) bool {
			if !strings.EqualFold(util.CleanText(li.Find("strong").First().Text()), "Web") {
				return true
			}
			webLink, _ = li.Find("a[href]").First().Attr("href")
			return webLink == ""
		})

		doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			text := strings.ToLower(util.CleanText(a.Text()))
			if strings.HasPrefix(text, "apply") && isApplyHref(href) {
				applyLink = strings.TrimSpace(href)
				return false
			}
			return true
		})

		if body := doc.Find(".job-description").First(); body.Length() > 0 {
			body = body.Clone()
			body.Find(".job-meta").Remove()
			fullText = util.CleanText(body.Text())
		}
	}
	if fullText == "" {
		fullText = util.StripTags(l.desc)
	}

	companyURL := util.CanonicalSiteURL(util.FirstNonEmpty(webLink, applyLink))

	return domain.JobRecord{
		ID:             util.RecordID(util.DedupeKey(l.title, company)),
		Title:          l.title,
		Company:        company,
		Location:       location,
		URL:            util.CanonicalURL(l.link),
		Source:         Name,
		PublishedAt:    published,
		Salary:         util.ParseSalary(fullText),
		EmploymentType: util.ParseEmployment(fullText),
		Skills:         util.SkillsFromText(fullText),
		Categories:     categories,
		Summary:        util.Clip(fullText, summaryRunes),
		ApplyURL:       applyLink,
		CompanyURL:     companyURL,
		ImageURL:       util.FaviconURL(companyURL),
	}
}

func isApplyHref(href string) bool {
	h := strings.ToLower(strings.TrimSpace(href))
	return strings.HasPrefix(h, "mailto:") || strings.HasPrefix(h, "http://") || strings.HasPrefix(h, "https://")
}
