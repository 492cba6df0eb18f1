package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	defaultEndpoint     = "https://bigquery.googleapis.com/bigquery/v2"
	defaultPageSize     = 500
	queryTimeoutMs      = 10000
	defaultPollInterval = 500 * time.Millisecond
)

// QueryExecutor runs SQL and returns a lazily paged result set.
type QueryExecutor interface {
	Query(ctx context.Context, project, sql string) (*ResultSet, error)
}

// Catalog lists the objects visible to the session.
type Catalog interface {
	ListProjects(ctx context.Context) (*ResultSet, error)
	ListDatasets(ctx context.Context, project string) (*ResultSet, error)
	ListTables(ctx context.Context, project, datasetRef string) (*ResultSet, error)
	ListColumns(ctx context.Context, project, tableRef string) (*ResultSet, error)
}

var (
	projectsSchema = []Column{
		{Name: "project_id", Type: TypeString},
		{Name: "friendly_name", Type: TypeString},
	}
	datasetsSchema = []Column{
		{Name: "project", Type: TypeString},
		{Name: "dataset_id", Type: TypeString},
		{Name: "location", Type: TypeString},
		{Name: "friendly_name", Type: TypeString},
	}
	tablesSchema = []Column{
		{Name: "project", Type: TypeString},
		{Name: "dataset_id", Type: TypeString},
		{Name: "table_id", Type: TypeString},
		{Name: "type", Type: TypeString},
		{Name: "created", Type: TypeDatetime},
		{Name: "expires", Type: TypeDatetime},
		{Name: "friendly_name", Type: TypeString},
		{Name: "labels", Type: TypeString},
	}
	columnsSchema = []Column{
		{Name: "project", Type: TypeString},
		{Name: "dataset_id", Type: TypeString},
		{Name: "table_id", Type: TypeString},
		{Name: "name", Type: TypeString},
		{Name: "field_type", Type: TypeString},
		{Name: "mode", Type: TypeString},
		{Name: "description", Type: TypeString},
		{Name: "fields", Type: TypeString},
	}
)

// BigQuery talks to the BigQuery REST API v2.
type BigQuery struct {
	httpClient    HTTPClient
	baseURL       string
	tokens        oauth2.TokenSource
	customHeaders map[string]string
	pageSize      int
	limiter       *rate.Limiter
	logger        *logrus.Logger
	now           func() time.Time
	newRequestID  func() string
}

type BigQueryOptions struct {
	Endpoint     string
	Headers      map[string]string
	PageSize     int
	PollInterval time.Duration
}

func NewBigQuery(httpClient HTTPClient, tokens oauth2.TokenSource, logger *logrus.Logger, opts BigQueryOptions) *BigQuery {
	if opts.Endpoint == "" {
		opts.Endpoint = defaultEndpoint
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	limit := rate.Inf
	if opts.PollInterval > 0 {
		limit = rate.Every(opts.PollInterval)
	}
	return &BigQuery{
		httpClient:    httpClient,
		baseURL:       strings.TrimSuffix(opts.Endpoint, "/"),
		tokens:        tokens,
		customHeaders: opts.Headers,
		pageSize:      opts.PageSize,
		limiter:       rate.NewLimiter(limit, 1),
		logger:        logger,
		now:           time.Now,
		newRequestID:  uuid.NewString,
	}
}

type apiErrorItem struct {
	Message  string `json:"message"`
	Reason   string `json:"reason"`
	Location string `json:"location"`
}

type apiErrorBody struct {
	Error struct {
		Code    int            `json:"code"`
		Message string         `json:"message"`
		Status  string         `json:"status"`
		Errors  []apiErrorItem `json:"errors"`
	} `json:"error"`
}

// apiError is a non 2xx response from the API.
type apiError struct {
	StatusCode int
	Messages   []string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("HTTP %d error: %s", e.StatusCode, strings.Join(e.Messages, "; "))
}

func parseAPIError(status int, body []byte) *apiError {
	e := &apiError{StatusCode: status}
	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		for _, item := range parsed.Error.Errors {
			if item.Message != "" {
				e.Messages = append(e.Messages, item.Message)
			}
		}
		if len(e.Messages) == 0 && parsed.Error.Message != "" {
			e.Messages = append(e.Messages, parsed.Error.Message)
		}
	}
	if len(e.Messages) == 0 {
		e.Messages = []string{strings.TrimSpace(string(body))}
	}
	return e
}

func (b *BigQuery) makeRequest(ctx context.Context, method, url string, payload interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		payloadBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewBuffer(payloadBytes)
		b.logger.WithField("payload", string(payloadBytes)).Debug("Request payload")
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if b.tokens != nil {
		token, err := b.tokens.Token()
		if err != nil {
			return nil, &AuthError{Err: err}
		}
		token.SetAuthHeader(req)
	}

	// Add custom headers from config
	for key, value := range b.customHeaders {
		req.Header.Set(key, value)
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	b.logger.WithFields(logrus.Fields{"method": method, "url": req.URL.String()}).Debug("Request")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	b.logger.WithFields(logrus.Fields{"status": resp.StatusCode, "body": string(responseBody)}).Debug("Response")

	if resp.StatusCode >= 400 {
		return nil, parseAPIError(resp.StatusCode, responseBody)
	}
	return responseBody, nil
}

func (b *BigQuery) getJSON(ctx context.Context, u string, v interface{}) error {
	body, err := b.makeRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (b *BigQuery) endpoint(query url.Values, segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u := b.baseURL + "/" + strings.Join(escaped, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

type schemaField struct {
	Name        string        `json:"name"`
	Type        string        `json:"type"`
	Mode        string        `json:"mode,omitempty"`
	Description string        `json:"description,omitempty"`
	Fields      []schemaField `json:"fields,omitempty"`
}

type tableSchema struct {
	Fields []schemaField `json:"fields"`
}

type cell struct {
	V json.RawMessage `json:"v"`
}

type tableRow struct {
	F []cell `json:"f"`
}

type jobReference struct {
	ProjectID string `json:"projectId"`
	JobID     string `json:"jobId"`
	Location  string `json:"location"`
}

type queryRequest struct {
	Query        string `json:"query"`
	UseLegacySQL bool   `json:"useLegacySql"`
	RequestID    string `json:"requestId"`
	MaxResults   int    `json:"maxResults"`
	TimeoutMs    int    `json:"timeoutMs"`
}

type queryResponse struct {
	JobReference jobReference   `json:"jobReference"`
	JobComplete  bool           `json:"jobComplete"`
	Schema       *tableSchema   `json:"schema"`
	Rows         []tableRow     `json:"rows"`
	TotalRows    string         `json:"totalRows"`
	PageToken    string         `json:"pageToken"`
	Errors       []apiErrorItem `json:"errors"`
}

// Query submits sql as a standard SQL query, waits for the job to finish and
// returns the first page. Further pages are fetched as the rows are read.
func (b *BigQuery) Query(ctx context.Context, project, sql string) (*ResultSet, error) {
	req := queryRequest{
		Query:      sql,
		RequestID:  b.newRequestID(),
		MaxResults: b.pageSize,
		TimeoutMs:  queryTimeoutMs,
	}

	startedAt := b.now()
	body, err := b.makeRequest(ctx, http.MethodPost, b.endpoint(nil, "projects", project, "queries"), req)
	if err != nil {
		return nil, queryError(err)
	}
	var resp queryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, queryError(fmt.Errorf("failed to parse response: %w", err))
	}

	for !resp.JobComplete {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, queryError(err)
		}
		b.logger.WithField("job", resp.JobReference.JobID).Debug("Waiting for query job")
		next, err := b.getQueryResults(ctx, resp.JobReference, "")
		if err != nil {
			return nil, queryError(err)
		}
		resp = *next
	}

	if len(resp.Errors) > 0 && resp.Schema == nil {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, &QueryError{Messages: msgs}
	}

	var fields []schemaField
	if resp.Schema != nil {
		fields = resp.Schema.Fields
	}
	total, _ := strconv.ParseInt(resp.TotalRows, 10, 64)

	it := &queryIterator{
		ctx:       ctx,
		bq:        b,
		job:       resp.JobReference,
		fields:    fields,
		rows:      resp.Rows,
		pageToken: resp.PageToken,
	}
	return &ResultSet{
		Rows:      it,
		Schema:    columnsOf(fields),
		TotalRows: total,
		StartedAt: startedAt,
	}, nil
}

func (b *BigQuery) getQueryResults(ctx context.Context, job jobReference, pageToken string) (*queryResponse, error) {
	q := url.Values{}
	q.Set("maxResults", strconv.Itoa(b.pageSize))
	q.Set("timeoutMs", strconv.Itoa(queryTimeoutMs))
	if job.Location != "" {
		q.Set("location", job.Location)
	}
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	var resp queryResponse
	if err := b.getJSON(ctx, b.endpoint(q, "projects", job.ProjectID, "queries", job.JobID), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func queryError(err error) error {
	var ae *apiError
	if errors.As(err, &ae) {
		return &QueryError{Messages: ae.Messages, Err: err}
	}
	var auth *AuthError
	if errors.As(err, &auth) {
		return err
	}
	return &QueryError{Err: err}
}

func catalogError(op string, err error) error {
	var ae *apiError
	if errors.As(err, &ae) {
		return &CatalogError{Op: op, Messages: ae.Messages, Err: err}
	}
	var auth *AuthError
	if errors.As(err, &auth) {
		return err
	}
	return &CatalogError{Op: op, Err: err}
}

// queryIterator pages through the rows of a finished query job.
type queryIterator struct {
	ctx       context.Context
	bq        *BigQuery
	job       jobReference
	fields    []schemaField
	rows      []tableRow
	pageToken string
}

func (it *queryIterator) Next() (Row, error) {
	for len(it.rows) == 0 {
		if it.pageToken == "" {
			return nil, io.EOF
		}
		resp, err := it.bq.getQueryResults(it.ctx, it.job, it.pageToken)
		if err != nil {
			return nil, queryError(err)
		}
		it.rows, it.pageToken = resp.Rows, resp.PageToken
	}
	raw := it.rows[0]
	it.rows = it.rows[1:]
	return decodeRow(raw, it.fields)
}

// columnsOf maps a table schema onto result columns. Repeated fields are
// shown as arrays so they never take the numeric formatting path.
func columnsOf(fields []schemaField) []Column {
	cols := make([]Column, len(fields))
	for i, f := range fields {
		t := ColumnType(f.Type)
		if f.Mode == "REPEATED" {
			t = ColumnType("ARRAY<" + f.Type + ">")
		}
		cols[i] = Column{Name: f.Name, Type: t}
	}
	return cols
}

func decodeRow(raw tableRow, fields []schemaField) (Row, error) {
	row := make(Row, len(fields))
	for i, f := range fields {
		if i >= len(raw.F) {
			row[f.Name] = Null()
			continue
		}
		v, err := decodeCell(raw.F[i].V, f)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", f.Name, err)
		}
		row[f.Name] = v
	}
	return row, nil
}

func isNullJSON(raw json.RawMessage) bool {
	s := bytes.TrimSpace(raw)
	return len(s) == 0 || bytes.Equal(s, []byte("null"))
}

func isNested(f schemaField) bool {
	return f.Mode == "REPEATED" || f.Type == string(TypeRecord) || f.Type == "STRUCT"
}

func decodeCell(raw json.RawMessage, f schemaField) (Value, error) {
	if isNullJSON(raw) {
		return Null(), nil
	}
	if isNested(f) {
		plain, err := plainValue(raw, f)
		if err != nil {
			return Value{}, err
		}
		out, err := json.Marshal(plain)
		if err != nil {
			return Value{}, err
		}
		return String(string(out)), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return Value{}, fmt.Errorf("unexpected cell %s: %w", raw, err)
	}

	switch ColumnType(f.Type) {
	case TypeInteger, TypeInt64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("bad integer %q: %w", s, err)
		}
		return Integer(n), nil
	case TypeFloat, TypeFloat64:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("bad float %q: %w", s, err)
		}
		return Float(n), nil
	case TypeTimestamp:
		t, err := parseEpochSeconds(s)
		if err != nil {
			return Value{}, err
		}
		return Timestamp(t), nil
	case TypeDatetime:
		return String(strings.Replace(s, "T", " ", 1)), nil
	}
	return String(s), nil
}

// parseEpochSeconds parses the API's timestamp encoding, e.g. "1.7001E9".
func parseEpochSeconds(s string) (time.Time, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	micros := int64(f*1e6 + 0.5)
	if f < 0 {
		micros = int64(f*1e6 - 0.5)
	}
	return time.UnixMicro(micros).UTC(), nil
}

// plainValue converts the f/v encoding of nested values into plain JSON
// values for display.
func plainValue(raw json.RawMessage, f schemaField) (interface{}, error) {
	if isNullJSON(raw) {
		return nil, nil
	}
	if f.Mode == "REPEATED" {
		var items []cell
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		elem := f
		elem.Mode = ""
		out := make([]interface{}, 0, len(items))
		for _, item := range items {
			v, err := plainValue(item.V, elem)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
	if f.Type == string(TypeRecord) || f.Type == "STRUCT" {
		var rec tableRow
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, err
		}
		out := make(map[string]interface{}, len(f.Fields))
		for i, sub := range f.Fields {
			if i >= len(rec.F) {
				break
			}
			v, err := plainValue(rec.F[i].V, sub)
			if err != nil {
				return nil, err
			}
			out[sub.Name] = v
		}
		return out, nil
	}
	v, err := decodeCell(raw, f)
	if err != nil {
		return nil, err
	}
	if v.Kind() == KindTimestamp {
		return v.String(), nil
	}
	return v.Interface(), nil
}

type projectList struct {
	Projects []struct {
		ID               string `json:"id"`
		FriendlyName     string `json:"friendlyName"`
		ProjectReference struct {
			ProjectID string `json:"projectId"`
		} `json:"projectReference"`
	} `json:"projects"`
	NextPageToken string `json:"nextPageToken"`
}

type datasetList struct {
	Datasets []struct {
		DatasetReference struct {
			ProjectID string `json:"projectId"`
			DatasetID string `json:"datasetId"`
		} `json:"datasetReference"`
		FriendlyName string `json:"friendlyName"`
		Location     string `json:"location"`
	} `json:"datasets"`
	NextPageToken string `json:"nextPageToken"`
}

type tableReference struct {
	ProjectID string `json:"projectId"`
	DatasetID string `json:"datasetId"`
	TableID   string `json:"tableId"`
}

type tableList struct {
	Tables []struct {
		TableReference tableReference    `json:"tableReference"`
		Type           string            `json:"type"`
		CreationTime   string            `json:"creationTime"`
		ExpirationTime string            `json:"expirationTime"`
		FriendlyName   string            `json:"friendlyName"`
		Labels         map[string]string `json:"labels"`
	} `json:"tables"`
	NextPageToken string `json:"nextPageToken"`
}

type tableResource struct {
	TableReference tableReference `json:"tableReference"`
	Schema         tableSchema    `json:"schema"`
}

func pageQuery(token string) url.Values {
	q := url.Values{}
	if token != "" {
		q.Set("pageToken", token)
	}
	return q
}

func optString(s string) Value {
	if s == "" {
		return Null()
	}
	return String(s)
}

// epochMillis converts the API's millisecond strings; empty means unset.
func epochMillis(s string) Value {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || s == "" {
		return Null()
	}
	return Timestamp(time.UnixMilli(ms).UTC())
}

func (b *BigQuery) ListProjects(ctx context.Context) (*ResultSet, error) {
	var rows []Row
	token := ""
	for {
		var page projectList
		if err := b.getJSON(ctx, b.endpoint(pageQuery(token), "projects"), &page); err != nil {
			return nil, catalogError("projects", err)
		}
		for _, p := range page.Projects {
			id := p.ProjectReference.ProjectID
			if id == "" {
				id = p.ID
			}
			rows = append(rows, Row{"project_id": String(id), "friendly_name": optString(p.FriendlyName)})
		}
		if token = page.NextPageToken; token == "" {
			break
		}
	}
	return newResultSet(projectsSchema, rows), nil
}

func (b *BigQuery) ListDatasets(ctx context.Context, project string) (*ResultSet, error) {
	var rows []Row
	token := ""
	for {
		var page datasetList
		if err := b.getJSON(ctx, b.endpoint(pageQuery(token), "projects", project, "datasets"), &page); err != nil {
			return nil, catalogError("datasets", err)
		}
		for _, d := range page.Datasets {
			rows = append(rows, Row{
				"project":       String(d.DatasetReference.ProjectID),
				"dataset_id":    String(d.DatasetReference.DatasetID),
				"location":      optString(d.Location),
				"friendly_name": optString(d.FriendlyName),
			})
		}
		if token = page.NextPageToken; token == "" {
			break
		}
	}
	return newResultSet(datasetsSchema, rows), nil
}

// parseDatasetRef splits "[PROJECT.]DATASET".
func parseDatasetRef(project, ref string) (string, string, error) {
	parts := strings.Split(ref, ".")
	switch len(parts) {
	case 1:
		return project, parts[0], nil
	case 2:
		return parts[0], parts[1], nil
	}
	return "", "", newUserInputError("Too many parts in dataset reference. Expecting max 2")
}

// parseTableRef splits "[PROJECT.]DATASET.TABLE".
func parseTableRef(project, ref string) (string, string, string, error) {
	parts := strings.Split(ref, ".")
	switch len(parts) {
	case 2:
		return project, parts[0], parts[1], nil
	case 3:
		return parts[0], parts[1], parts[2], nil
	}
	return "", "", "", newUserInputError("Expecting a table reference like [PROJECT.]DATASET.TABLE, got %s", ref)
}

func formatLabels(labels map[string]string) Value {
	if len(labels) == 0 {
		return Null()
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + labels[k]
	}
	return String(strings.Join(pairs, ","))
}

func (b *BigQuery) ListTables(ctx context.Context, project, datasetRef string) (*ResultSet, error) {
	project, dataset, err := parseDatasetRef(project, datasetRef)
	if err != nil {
		return nil, err
	}

	var rows []Row
	token := ""
	for {
		var page tableList
		if err := b.getJSON(ctx, b.endpoint(pageQuery(token), "projects", project, "datasets", dataset, "tables"), &page); err != nil {
			return nil, catalogError("tables", err)
		}
		for _, t := range page.Tables {
			rows = append(rows, Row{
				"project":       String(t.TableReference.ProjectID),
				"dataset_id":    String(t.TableReference.DatasetID),
				"table_id":      String(t.TableReference.TableID),
				"type":          optString(t.Type),
				"created":       epochMillis(t.CreationTime),
				"expires":       epochMillis(t.ExpirationTime),
				"friendly_name": optString(t.FriendlyName),
				"labels":        formatLabels(t.Labels),
			})
		}
		if token = page.NextPageToken; token == "" {
			break
		}
	}
	return newResultSet(tablesSchema, rows), nil
}

func nestedFields(fields []schemaField) Value {
	if len(fields) == 0 {
		return Null()
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return Null()
	}
	return String(string(out))
}

func (b *BigQuery) ListColumns(ctx context.Context, project, tableRef string) (*ResultSet, error) {
	project, dataset, table, err := parseTableRef(project, tableRef)
	if err != nil {
		return nil, err
	}

	var t tableResource
	if err := b.getJSON(ctx, b.endpoint(nil, "projects", project, "datasets", dataset, "tables", table), &t); err != nil {
		return nil, catalogError("table", err)
	}

	rows := make([]Row, 0, len(t.Schema.Fields))
	for _, f := range t.Schema.Fields {
		mode := f.Mode
		if mode == "" {
			mode = "NULLABLE"
		}
		rows = append(rows, Row{
			"project":     String(t.TableReference.ProjectID),
			"dataset_id":  String(t.TableReference.DatasetID),
			"table_id":    String(t.TableReference.TableID),
			"name":        String(f.Name),
			"field_type":  String(f.Type),
			"mode":        String(mode),
			"description": optString(f.Description),
			"fields":      nestedFields(f.Fields),
		})
	}
	return newResultSet(columnsSchema, rows), nil
}
