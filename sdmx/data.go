// Copyright 2023 Stock Parfait

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sdmx

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/imfdata/envelope"
	"github.com/stockparfait/imfdata/table"
)

// DataQuery is a builder for a CompactData dataset query. The query key is
// built one dimension at a time, in the order the database's structure
// declares its dimensions; an empty Select() leaves a dimension
// unconstrained.
type DataQuery struct {
	database string
	key      []string
	start    string
	end      string
}

// NewDataQuery creates a new query for the given database.
func NewDataQuery(database string) *DataQuery {
	return &DataQuery{database: database}
}

// Copy creates a deep copy of the query. It is primarily used in its builder
// methods.
func (q *DataQuery) Copy() *DataQuery {
	q2 := DataQuery{database: q.database, start: q.start, end: q.end}
	q2.key = make([]string, len(q.key))
	copy(q2.key, q.key)
	return &q2
}

// Select constrains the next dimension of the query key to the given values.
// Multiple values are "+"-joined, no values leave the dimension
// unconstrained. This and other builder methods always create a deep copy of
// the query, leaving the original intact.
func (q *DataQuery) Select(values ...string) *DataQuery {
	q2 := q.Copy()
	q2.key = append(q2.key, strings.Join(values, "+"))
	return q2
}

// Start limits the query to periods at or after the given one, e.g. "2001".
func (q *DataQuery) Start(period string) *DataQuery {
	q2 := q.Copy()
	q2.start = period
	return q2
}

// End limits the query to periods at or before the given one.
func (q *DataQuery) End(period string) *DataQuery {
	q2 := q.Copy()
	q2.end = period
	return q2
}

// Path returns the URL path to add to the CompactData endpoint.
func (q *DataQuery) Path() string {
	return q.database + "/" + strings.Join(q.key, ".")
}

// Values returns the query values. Each call creates a new object, so the
// caller is free to modify it without affecting the query.
func (q *DataQuery) Values() url.Values {
	v := make(url.Values)
	if q.start != "" {
		v["startPeriod"] = []string{q.start}
	}
	if q.end != "" {
		v["endPeriod"] = []string{q.end}
	}
	return v
}

// Observation is a single data point of a series.
type Observation struct {
	Period string
	Value  string // "NA" when the service omits the value
}

type obsEnv struct {
	Period string `json:"@TIME_PERIOD" required:"true"`
	Value  string `json:"@OBS_VALUE" default:"NA"`
}

func (o *obsEnv) InitMessage(js any) error { return envelope.Init(o, js) }

// Series is one series of a dataset response: its dimension attributes
// (keyed by lower-cased dimension name) and its observations in source
// order.
type Series struct {
	Dimensions map[string]string
	Obs        []Observation
}

// object extracts a keyed JSON object member, for the parts of the response
// too dynamic for a typed envelope.
func object(js any, key string) (any, error) {
	m, ok := js.(map[string]any)
	if !ok {
		return nil, errors.Reason("not a JSON object: %v", js)
	}
	v, ok := m[key]
	if !ok {
		return nil, errors.Reason("missing key '%s'", key)
	}
	return v, nil
}

// parseSeries flattens one Series node. Dimension attributes are dynamic
// ("@FREQ", "@REF_AREA", ...), so they are collected by their "@" prefix
// rather than through a typed envelope.
func parseSeries(js any) (Series, error) {
	s := Series{Dimensions: make(map[string]string)}
	m, ok := js.(map[string]any)
	if !ok {
		return s, errors.Reason("series is not a JSON object: %v", js)
	}
	for k, v := range m {
		if !strings.HasPrefix(k, "@") {
			continue
		}
		if sv, ok := v.(string); ok {
			s.Dimensions[strings.ToLower(k[1:])] = sv
		}
	}
	for i, o := range envelope.List(m["Obs"]) {
		var obs obsEnv
		if err := obs.InitMessage(o); err != nil {
			return s, errors.Annotate(err, "unexpected observation %d", i)
		}
		s.Obs = append(s.Obs, Observation{Period: obs.Period, Value: obs.Value})
	}
	return s, nil
}

// Read executes the query and returns its series. An empty result set is not
// an error: the service responds with a DataSet without Series.
func (q *DataQuery) Read(ctx context.Context, retries int) ([]Series, error) {
	client := GetClient(ctx)
	if client == nil {
		return nil, errors.Reason("no client in context")
	}
	uri := client.baseURL + "/CompactData/" + q.Path()
	if vals := q.Values(); len(vals) > 0 {
		uri += "?" + vals.Encode()
	}
	raw, err := client.Fetch(ctx, uri, retries)
	if err != nil {
		return nil, errors.Annotate(err, "failed to fetch dataset %s", q.Path())
	}
	compact, err := object(raw, "CompactData")
	if err != nil {
		return nil, errors.Annotate(err, "unexpected CompactData response")
	}
	dataSet, err := object(compact, "DataSet")
	if err != nil {
		return nil, errors.Annotate(err, "unexpected CompactData response")
	}
	m, ok := dataSet.(map[string]any)
	if !ok {
		return nil, errors.Reason("DataSet is not a JSON object: %v", dataSet)
	}
	var series []Series
	for i, sv := range envelope.List(m["Series"]) {
		s, err := parseSeries(sv)
		if err != nil {
			return nil, errors.Annotate(err, "failed to parse series %d", i)
		}
		series = append(series, s)
	}
	return series, nil
}

// obsRow is a flattened observation row of SeriesTable.
type obsRow []string

func (r obsRow) CSV() []string { return r }

// SeriesTable flattens series into a table: one row per observation, with
// the dimension columns of the first series (sorted by name) followed by
// time_period and obs_value. Dimensions missing from a series are absent.
func SeriesTable(series []Series) *table.Table {
	if len(series) == 0 {
		return table.New("time_period", "obs_value")
	}
	var dims []string
	for k := range series[0].Dimensions {
		dims = append(dims, k)
	}
	sort.Strings(dims)

	t := table.New(append(append([]string{}, dims...), "time_period", "obs_value")...)
	for _, s := range series {
		for _, o := range s.Obs {
			row := make(obsRow, 0, len(dims)+2)
			for _, d := range dims {
				row = append(row, s.Dimensions[d])
			}
			t.AddRow(append(row, o.Period, o.Value))
		}
	}
	return t
}
