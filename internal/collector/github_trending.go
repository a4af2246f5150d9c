package collector

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

const (
	GitHubLabel              = "GitHub"
	DefaultGitHubTrendingURL = "https://github.com/trending"

	githubRequestTimeout = 10 * time.Second
)

// GitHubTrendingFetcher 抓取 GitHub Trending 页面，标题为“仓库名: 简介”
type GitHubTrendingFetcher struct {
	URL string
	Now func() time.Time
}

func (g *GitHubTrendingFetcher) Name() string {
	return "github_trending"
}

func (g *GitHubTrendingFetcher) Label() string {
	return GitHubLabel
}

func (g *GitHubTrendingFetcher) Fetch() (Outcome, error) {
	log.Println("fetch GitHub Trending...")

	pageURL := g.URL
	if pageURL == "" {
		pageURL = DefaultGitHubTrendingURL
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return Outcome{}, fmt.Errorf("github trending: parse url: %w", err)
	}

	c := colly.NewCollector(
		colly.AllowedDomains(base.Hostname()),
		colly.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	c.SetRequestTimeout(githubRequestTimeout)

	now := time.Now()
	if g.Now != nil {
		now = g.Now()
	}
	records := make(ResultSet, 0, 25)

	c.OnHTML("article.Box-row", func(e *colly.HTMLElement) {
		link := e.DOM.Find("h2 a").First()
		if link.Length() == 0 {
			return
		}
		href, ok := link.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}

		title := trendingTitle(link, e.DOM.Find("p").First())
		if title == "" {
			return
		}
		records = append(records, Record{
			Title: title,
			Time:  now.Format(clockLayout),
			URL:   e.Request.AbsoluteURL(strings.TrimSpace(href)),
		})
	})

	if err := c.Visit(pageURL); err != nil {
		log.Printf("fetch GitHub Trending failed: %v", err)
		return Outcome{}, fmt.Errorf("github trending: visit: %w", err)
	}

	if len(records) == 0 {
		log.Printf("fetch GitHub Trending got 0 items")
	}
	return Outcome{
		Label:    GitHubLabel,
		Mode:     ModeLive,
		Records:  records,
		Attempts: 1,
	}, nil
}

// trendingTitle 仓库名中的换行与多余空白压缩为单个空格，简介非空时拼接在后
func trendingTitle(link, desc *goquery.Selection) string {
	name := collapseSpace(link.Text())
	if name == "" {
		return ""
	}
	title := name
	if d := collapseSpace(desc.Text()); d != "" {
		title += titleSeparator + d
	}
	return truncateRunes(title, titleMaxRunes, titleKeepRunes)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
