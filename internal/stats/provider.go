package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/goodsign/monday"
	"github.com/juju/clock"

	"github.com/quillpress/backend/internal/models"
	"github.com/quillpress/backend/internal/stream"
)

const (
	histogramDays = 7
	recentLimit   = 5
	dayLayout     = "2006-01-02"
)

// Store is the read side the dashboard is computed from.
type Store interface {
	Totals(ctx context.Context) (Totals, error)
	SignupsByDay(ctx context.Context, since time.Time, timeZone string) (map[string]int, error)
	RecentUsers(ctx context.Context, limit int) ([]models.RecentUser, error)
	RecentArticles(ctx context.Context, limit int) ([]models.RecentArticle, error)
}

// WeekdayLabel returns the short weekday name of day in locale.
func WeekdayLabel(locale monday.Locale, day time.Time) string {
	return monday.Format(day, "Mon", locale)
}

// Provider computes DashboardStats snapshots.
type Provider struct {
	store  Store
	clock  clock.Clock
	loc    *time.Location
	locale monday.Locale
}

// NewProvider creates a provider that buckets days in loc and labels them in
// locale. A nil clock means wall time and an empty locale means en_US.
func NewProvider(store Store, clk clock.Clock, loc *time.Location, locale monday.Locale) *Provider {
	if clk == nil {
		clk = clock.WallClock
	}
	if loc == nil {
		loc = time.UTC
	}
	if locale == "" {
		locale = monday.LocaleEnUS
	}
	return &Provider{store: store, clock: clk, loc: loc, locale: locale}
}

// Snapshot implements stream.Provider. Any failing query fails the whole
// snapshot; partial dashboards are never pushed.
func (p *Provider) Snapshot(ctx context.Context, _ stream.Subject) (models.DashboardStats, error) {
	var out models.DashboardStats

	totals, err := p.store.Totals(ctx)
	if err != nil {
		return out, fmt.Errorf("totals: %w", err)
	}
	growth, err := p.userGrowth(ctx)
	if err != nil {
		return out, fmt.Errorf("user growth: %w", err)
	}
	users, err := p.store.RecentUsers(ctx, recentLimit)
	if err != nil {
		return out, fmt.Errorf("recent users: %w", err)
	}
	articles, err := p.store.RecentArticles(ctx, recentLimit)
	if err != nil {
		return out, fmt.Errorf("recent articles: %w", err)
	}

	out.TotalUsers = totals.Users
	out.TotalArticles = totals.Articles
	out.PendingArticles = totals.PendingArticles
	out.TotalComments = totals.Comments
	out.UserGrowth = growth
	out.RecentUsers = nonNil(users)
	out.RecentArticles = nonNil(articles)
	return out, nil
}

// userGrowth returns one bucket per calendar day for the last seven days,
// today included, oldest first. Days without signups are zero.
func (p *Provider) userGrowth(ctx context.Context) ([]models.DailyCount, error) {
	now := p.clock.Now().In(p.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, p.loc)
	start := today.AddDate(0, 0, -(histogramDays - 1))

	counts, err := p.store.SignupsByDay(ctx, start, p.loc.String())
	if err != nil {
		return nil, err
	}

	growth := make([]models.DailyCount, 0, histogramDays)
	for i := 0; i < histogramDays; i++ {
		day := start.AddDate(0, 0, i)
		growth = append(growth, models.DailyCount{
			Name:  WeekdayLabel(p.locale, day),
			Users: counts[day.Format(dayLayout)],
		})
	}
	return growth, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
