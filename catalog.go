package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gobwas/glob"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const catalogCacheSize = 256

// catalogTTLs sets how long each kind of listing stays cached. A zero TTL
// keeps entries until they are purged or evicted by size.
type catalogTTLs struct {
	Projects time.Duration
	Datasets time.Duration
	Tables   time.Duration
	Columns  time.Duration
}

var defaultCatalogTTLs = catalogTTLs{
	Projects: 15 * time.Minute,
	Datasets: 5 * time.Minute,
	Tables:   5 * time.Minute,
	Columns:  30 * time.Minute,
}

type cachedResult struct {
	schema []Column
	rows   []Row
}

func (c cachedResult) resultSet() *ResultSet {
	return newResultSet(c.schema, c.rows)
}

// cachedCatalog keeps recent listings so repeated \d and \t calls and the
// completer do not go back to the API.
type cachedCatalog struct {
	next     Catalog
	projects *expirable.LRU[string, cachedResult]
	datasets *expirable.LRU[string, cachedResult]
	tables   *expirable.LRU[string, cachedResult]
	columns  *expirable.LRU[string, cachedResult]
}

// newCachedCatalog wraps next with one LRU per listing kind. Every cache
// with a positive TTL runs its own expiry goroutine for the life of the
// process.
func newCachedCatalog(next Catalog, ttls catalogTTLs) *cachedCatalog {
	return &cachedCatalog{
		next:     next,
		projects: expirable.NewLRU[string, cachedResult](1, nil, ttls.Projects),
		datasets: expirable.NewLRU[string, cachedResult](catalogCacheSize, nil, ttls.Datasets),
		tables:   expirable.NewLRU[string, cachedResult](catalogCacheSize, nil, ttls.Tables),
		columns:  expirable.NewLRU[string, cachedResult](catalogCacheSize, nil, ttls.Columns),
	}
}

func (c *cachedCatalog) load(cache *expirable.LRU[string, cachedResult], key string, fetch func() (*ResultSet, error)) (*ResultSet, error) {
	if hit, ok := cache.Get(key); ok {
		return hit.resultSet(), nil
	}
	rs, err := fetch()
	if err != nil {
		return nil, err
	}
	rows, err := collectRows(rs, -1)
	if err != nil {
		return nil, err
	}
	entry := cachedResult{schema: rs.Schema, rows: rows}
	cache.Add(key, entry)
	return entry.resultSet(), nil
}

func (c *cachedCatalog) ListProjects(ctx context.Context) (*ResultSet, error) {
	return c.load(c.projects, "", func() (*ResultSet, error) {
		return c.next.ListProjects(ctx)
	})
}

func (c *cachedCatalog) ListDatasets(ctx context.Context, project string) (*ResultSet, error) {
	return c.load(c.datasets, project, func() (*ResultSet, error) {
		return c.next.ListDatasets(ctx, project)
	})
}

func (c *cachedCatalog) ListTables(ctx context.Context, project, datasetRef string) (*ResultSet, error) {
	return c.load(c.tables, project+":"+datasetRef, func() (*ResultSet, error) {
		return c.next.ListTables(ctx, project, datasetRef)
	})
}

func (c *cachedCatalog) ListColumns(ctx context.Context, project, tableRef string) (*ResultSet, error) {
	return c.load(c.columns, project+":"+tableRef, func() (*ResultSet, error) {
		return c.next.ListColumns(ctx, project, tableRef)
	})
}

// Purge drops every cached listing.
func (c *cachedCatalog) Purge() {
	c.projects.Purge()
	c.datasets.Purge()
	c.tables.Purge()
	c.columns.Purge()
}

// knownNames returns the project, dataset, table and column names seen in
// cached listings, for completion.
func (c *cachedCatalog) knownNames() []string {
	seen := map[string]struct{}{}
	add := func(s string) {
		if s != "" {
			seen[s] = struct{}{}
		}
	}
	text := func(r Row, k string) string {
		v := r[k]
		if v.IsNull() {
			return ""
		}
		return v.String()
	}

	for _, e := range c.projects.Values() {
		for _, r := range e.rows {
			add(text(r, "project_id"))
		}
	}
	for _, e := range c.datasets.Values() {
		for _, r := range e.rows {
			add(text(r, "dataset_id"))
		}
	}
	for _, e := range c.tables.Values() {
		for _, r := range e.rows {
			if ds, t := text(r, "dataset_id"), text(r, "table_id"); ds != "" && t != "" {
				add(ds + "." + t)
			}
		}
	}
	for _, e := range c.columns.Values() {
		for _, r := range e.rows {
			add(text(r, "name"))
		}
	}

	names := make([]string, 0, len(seen))
	for s := range seen {
		names = append(names, s)
	}
	sort.Strings(names)
	return names
}

// projectIDs lists the accessible project ids.
func projectIDs(ctx context.Context, catalog Catalog) ([]string, error) {
	rs, err := catalog.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := collectRows(rs, -1)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r["project_id"].String())
	}
	return ids, nil
}

// filterResult keeps the rows whose column matches the glob pattern. An
// empty pattern keeps everything.
func filterResult(rs *ResultSet, column, pattern string) (*ResultSet, error) {
	if pattern == "" {
		return rs, nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, &UserInputError{Message: fmt.Sprintf("Bad pattern %s", pattern), Hint: err.Error()}
	}
	rows, err := collectRows(rs, -1)
	if err != nil {
		return nil, err
	}
	kept := rows[:0]
	for _, r := range rows {
		if g.Match(r[column].String()) {
			kept = append(kept, r)
		}
	}
	return newResultSet(rs.Schema, kept), nil
}
