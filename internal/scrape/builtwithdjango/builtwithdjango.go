// Package builtwithdjango scrapes the builtwithdjango.com job board: an HTML
// listing page linking to one detail page per posting.
package builtwithdjango

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"djangojobs/internal/domain"
	"djangojobs/internal/fetch"
	"djangojobs/internal/scrape/types"
	"djangojobs/internal/scrape/util"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
)

const (
	Name            = "builtwithdjango.com"
	DefaultEndpoint = "https://builtwithdjango.com/jobs/"
	boardCategory   = "Django Job Board"
	summaryRunes    = 500
)

var reJobPath = regexp.MustCompile(`^/jobs/\d+/[^/]+/?$`)

type Config struct {
	Endpoint string
	Workers  int
	// AllowEmpty accepts a listing page without job links.
	AllowEmpty bool
}

type Scraper struct {
	cfg Config
	log *slog.Logger
}

func New(cfg Config, lg *slog.Logger) *Scraper {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
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

func (s *Scraper) Parse(ctx context.Context, page fetch.Page, get types.Getter) (types.Batch, error) {
	batch := types.Batch{Source: Name}

	if m := types.Mode(page.ContentType); m != types.ModeHTML {
		return batch, &types.ParseError{Source: Name, Reason: fmt.Sprintf("listing is %s, expected html", m)}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return batch, &types.ParseError{Source: Name, Reason: "listing does not parse", Err: err}
	}

	base := page.URL
	if base == "" {
		base = s.cfg.Endpoint
	}
	links := jobLinks(doc, base)
	if len(links) == 0 {
		if s.cfg.AllowEmpty {
			s.log.Warn("listing has no job links")
			return batch, nil
		}
		return batch, &types.ParseError{Source: Name, Reason: "listing page has no job links"}
	}
	batch.Total = len(links)

	type outcome struct {
		rec    domain.JobRecord
		reason string
	}
	outcomes := make([]outcome, len(links))

	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i, link := range links {
		g.Go(func() error {
			p, err := get.Get(ctx, link)
			if err != nil {
				outcomes[i].reason = fmt.Sprintf("detail fetch: %v", err)
				return nil
			}
			rec, err := parseDetail(link, p)
			if err != nil {
				outcomes[i].reason = err.Error()
				return nil
			}
			outcomes[i].rec = rec
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return batch, err
	}

	for i, o := range outcomes {
		if o.reason != "" {
			batch.Skip(links[i], "%s", o.reason)
			continue
		}
		batch.Records = append(batch.Records, o.rec)
	}
	return batch, nil
}

// jobLinks returns absolute, deduplicated, sorted detail URLs on the board's
// own host.
func jobLinks(doc *goquery.Document, base string) []string {
	bu, err := url.Parse(base)
	if err != nil {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		abs := util.Resolve(base, href)
		u, err := url.Parse(abs)
		if err != nil || !strings.EqualFold(u.Host, bu.Host) || !reJobPath.MatchString(u.Path) {
			return
		}
		u.RawQuery, u.Fragment = "", ""
		key := u.String()
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, key)
	})
	sort.Strings(out)
	return out
}

type detail struct {
	title, company, location, salaryText, posted string
	text, applyURL, employment                   string
	ld                                           *jobPosting
}

func parseDetail(link string, p fetch.Page) (domain.JobRecord, error) {
	var d detail
	switch types.Mode(p.ContentType) {
	case types.ModeJSON:
		jp, ok := decodePosting(p.Body)
		if !ok {
			return domain.JobRecord{}, fmt.Errorf("detail json is not a JobPosting")
		}
		d = fromPosting(jp)
	case types.ModeHTML:
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
		if err != nil {
			return domain.JobRecord{}, fmt.Errorf("detail html: %w", err)
		}
		d = fromHTML(doc)
	default:
		return domain.JobRecord{}, fmt.Errorf("unsupported detail content type %q", p.MediaType())
	}

	if d.title == "" {
		return domain.JobRecord{}, fmt.Errorf("detail page has no title")
	}
	return d.record(link), nil
}

func fromPosting(jp jobPosting) detail {
	d := detail{
		title:      util.CleanText(jp.Title),
		text:       util.StripTags(jp.Description),
		applyURL:   strings.TrimSpace(jp.URL),
		employment: jp.employment(),
		location:   jp.location(),
		posted:     jp.DatePosted,
		ld:         &jp,
	}
	d.company = jp.organization()
	return d
}

func fromHTML(doc *goquery.Document) detail {
	d := detail{
		title:      util.FirstText(doc, "h1.text-center", "h1"),
		location:   util.NormalizeLocation(util.LabeledValue(doc, "Location:")),
		salaryText: util.LabeledValue(doc, "Salary:"),
		posted:     postedLabel(doc),
	}
	if prose := doc.Find(".prose").First(); prose.Length() > 0 {
		d.text = util.CleanText(prose.Text())
	}

	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		h := strings.ToLower(strings.TrimSpace(href))
		if !strings.HasPrefix(h, "http://") && !strings.HasPrefix(h, "https://") {
			return true
		}
		if strings.Contains(strings.ToLower(util.CleanText(a.Text())), "apply for this position") {
			d.applyURL = strings.TrimSpace(href)
			return false
		}
		return true
	})

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sc *goquery.Selection) bool {
		jp, ok := decodePosting([]byte(sc.Text()))
		if !ok {
			return true
		}
		d.ld = &jp
		return false
	})
	if d.ld != nil {
		d.company = d.ld.organization()
		d.employment = d.ld.employment()
		if u := strings.TrimSpace(d.ld.URL); u != "" {
			d.applyURL = u
		}
		if d.ld.DatePosted != "" {
			d.posted = d.ld.DatePosted
		}
		if d.location == "" {
			d.location = d.ld.location()
		}
		if d.title == "" {
			d.title = util.CleanText(d.ld.Title)
		}
	}
	return d
}

// postedLabel reads "Job Posted: <b>June 3, 2024</b>".
func postedLabel(doc *goquery.Document) string {
	var out string
	doc.Find("b, strong").EachWithBreak(func(_ int, b *goquery.Selection) bool {
		v := util.CleanText(b.Text())
		if v == "" || strings.HasSuffix(v, ":") {
			return true
		}
		if strings.Contains(strings.ToLower(b.Parent().Text()), "job posted:") {
			out = v
			return false
		}
		return true
	})
	return out
}

func (d detail) record(link string) domain.JobRecord {
	company := d.company
	if company == "" {
		if _, after, ok := strings.Cut(d.title, "@"); ok {
			company = util.CleanText(after)
		}
	}

	employment := d.employment
	if employment == "" {
		employment = util.ParseEmployment(d.text)
	}

	var published time.Time
	if t, ok := util.ParseTimeAfter("Job Posted", d.posted); ok {
		published = t
	}

	var salary string
	if d.salaryText != "" {
		salary = util.FirstNonEmpty(util.ParseSalary(d.salaryText), util.CleanText(d.salaryText))
	}

	companyURL := util.CanonicalSiteURL(d.applyURL)

	return domain.JobRecord{
		ID:             util.RecordID(util.DedupeKey(d.title, company)),
		Title:          d.title,
		Company:        company,
		Location:       d.location,
		URL:            util.CanonicalURL(link),
		Source:         Name,
		PublishedAt:    published,
		Salary:         salary,
		EmploymentType: employment,
		Skills:         util.SkillsFromText(d.title + "\n" + d.text),
		Categories:     []string{boardCategory},
		Summary:        util.Clip(d.text, summaryRunes),
		ApplyURL:       d.applyURL,
		CompanyURL:     companyURL,
		ImageURL:       util.FaviconURL(companyURL),
	}
}
