package main

import (
	"context"
	"errors"
	"testing"

	"github.com/fortytw2/leaktest"
	"github.com/google/go-cmp/cmp"
)

// fakeCatalog serves canned listings and counts the calls it receives.
type fakeCatalog struct {
	calls    map[string]int
	projects []string
	err      error
}

func newFakeCatalog(projects ...string) *fakeCatalog {
	return &fakeCatalog{calls: map[string]int{}, projects: projects}
}

func (f *fakeCatalog) ListProjects(ctx context.Context) (*ResultSet, error) {
	f.calls["projects"]++
	if f.err != nil {
		return nil, f.err
	}
	rows := make([]Row, len(f.projects))
	for i, p := range f.projects {
		rows[i] = Row{"project_id": String(p), "friendly_name": Null()}
	}
	return newResultSet(projectsSchema, rows), nil
}

func (f *fakeCatalog) ListDatasets(ctx context.Context, project string) (*ResultSet, error) {
	f.calls["datasets:"+project]++
	if f.err != nil {
		return nil, f.err
	}
	return newResultSet(datasetsSchema, []Row{
		{"project": String(project), "dataset_id": String("sales")},
		{"project": String(project), "dataset_id": String("web_logs")},
		{"project": String(project), "dataset_id": String("web_events")},
	}), nil
}

func (f *fakeCatalog) ListTables(ctx context.Context, project, datasetRef string) (*ResultSet, error) {
	f.calls["tables:"+project+":"+datasetRef]++
	if f.err != nil {
		return nil, f.err
	}
	return newResultSet(tablesSchema, []Row{
		{"project": String(project), "dataset_id": String(datasetRef), "table_id": String("orders")},
		{"project": String(project), "dataset_id": String(datasetRef), "table_id": String("customers")},
	}), nil
}

func (f *fakeCatalog) ListColumns(ctx context.Context, project, tableRef string) (*ResultSet, error) {
	f.calls["columns:"+project+":"+tableRef]++
	if f.err != nil {
		return nil, f.err
	}
	return newResultSet(columnsSchema, []Row{
		{"name": String("order_id"), "field_type": String("INTEGER")},
		{"name": String("amount"), "field_type": String("FLOAT")},
	}), nil
}

func TestCachedCatalog(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCatalog("alpha", "beta")
	c := newCachedCatalog(fake, catalogTTLs{})

	for i := 0; i < 3; i++ {
		if _, err := c.ListProjects(ctx); err != nil {
			t.Fatal(err)
		}
		if _, err := c.ListDatasets(ctx, "alpha"); err != nil {
			t.Fatal(err)
		}
		if _, err := c.ListTables(ctx, "alpha", "sales"); err != nil {
			t.Fatal(err)
		}
		if _, err := c.ListColumns(ctx, "alpha", "sales.orders"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := c.ListDatasets(ctx, "beta"); err != nil {
		t.Fatal(err)
	}

	want := map[string]int{
		"projects":                   1,
		"datasets:alpha":             1,
		"datasets:beta":              1,
		"tables:alpha:sales":         1,
		"columns:alpha:sales.orders": 1,
	}
	if diff := cmp.Diff(want, fake.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}

	c.Purge()
	if _, err := c.ListProjects(ctx); err != nil {
		t.Fatal(err)
	}
	if fake.calls["projects"] != 2 {
		t.Errorf("ListProjects after Purge made %d calls, want 2", fake.calls["projects"])
	}
}

func TestCachedCatalogWithoutTTLStartsNoGoroutines(t *testing.T) {
	defer leaktest.Check(t)()

	c := newCachedCatalog(newFakeCatalog("alpha"), catalogTTLs{})
	if _, err := c.ListProjects(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.Purge()
}

func TestCachedCatalogReplaysRows(t *testing.T) {
	ctx := context.Background()
	c := newCachedCatalog(newFakeCatalog("alpha", "beta"), catalogTTLs{})

	for i := 0; i < 2; i++ {
		rs, err := c.ListProjects(ctx)
		if err != nil {
			t.Fatal(err)
		}
		rows, err := collectRows(rs, -1)
		if err != nil {
			t.Fatal(err)
		}
		if len(rows) != 2 || rs.TotalRows != 2 {
			t.Errorf("pass %d: got %d rows, total %d", i, len(rows), rs.TotalRows)
		}
	}
}

func TestCachedCatalogDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCatalog()
	fake.err = &CatalogError{Op: "datasets", Messages: []string{"boom"}}
	c := newCachedCatalog(fake, catalogTTLs{})

	for i := 0; i < 2; i++ {
		_, err := c.ListDatasets(ctx, "alpha")
		var ce *CatalogError
		if !errors.As(err, &ce) {
			t.Fatalf("ListDatasets() error = %v, want CatalogError", err)
		}
	}
	if fake.calls["datasets:alpha"] != 2 {
		t.Errorf("calls = %d, want 2", fake.calls["datasets:alpha"])
	}
}

func TestKnownNames(t *testing.T) {
	ctx := context.Background()
	c := newCachedCatalog(newFakeCatalog("alpha"), catalogTTLs{})
	if got := c.knownNames(); len(got) != 0 {
		t.Errorf("knownNames() on empty cache = %v", got)
	}

	_, _ = c.ListProjects(ctx)
	_, _ = c.ListDatasets(ctx, "alpha")
	_, _ = c.ListTables(ctx, "alpha", "sales")
	_, _ = c.ListColumns(ctx, "alpha", "sales.orders")

	want := []string{
		"alpha",
		"amount",
		"order_id",
		"sales",
		"sales.customers",
		"sales.orders",
		"web_events",
		"web_logs",
	}
	if diff := cmp.Diff(want, c.knownNames()); diff != "" {
		t.Errorf("knownNames() mismatch (-want +got):\n%s", diff)
	}
}

func TestProjectIDs(t *testing.T) {
	ids, err := projectIDs(context.Background(), newFakeCatalog("alpha", "beta"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"alpha", "beta"}, ids); diff != "" {
		t.Errorf("projectIDs() mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterResult(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCatalog()

	tests := []struct {
		pattern string
		want    []string
	}{
		{"", []string{"sales", "web_logs", "web_events"}},
		{"web_*", []string{"web_logs", "web_events"}},
		{"*s", []string{"sales", "web_logs", "web_events"}},
		{"sale?", []string{"sales"}},
		{"[sw]*_logs", []string{"web_logs"}},
		{"nothing", nil},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			rs, _ := fake.ListDatasets(ctx, "alpha")
			filtered, err := filterResult(rs, "dataset_id", tt.pattern)
			if err != nil {
				t.Fatalf("filterResult() error = %v", err)
			}
			rows, _ := collectRows(filtered, -1)
			var got []string
			for _, r := range rows {
				got = append(got, r["dataset_id"].String())
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("filterResult(%q) mismatch (-want +got):\n%s", tt.pattern, diff)
			}
			if filtered.TotalRows != int64(len(rows)) {
				t.Errorf("TotalRows = %d, want %d", filtered.TotalRows, len(rows))
			}
		})
	}
}

func TestFilterResultBadPattern(t *testing.T) {
	rs, _ := newFakeCatalog().ListDatasets(context.Background(), "alpha")
	_, err := filterResult(rs, "dataset_id", "[unclosed")
	var uie *UserInputError
	if !errors.As(err, &uie) {
		t.Fatalf("filterResult() error = %v, want UserInputError", err)
	}
	if uie.Message != "Bad pattern [unclosed" {
		t.Errorf("Message = %q", uie.Message)
	}
}
