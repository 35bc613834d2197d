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
	"strings"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/imfdata/envelope"
	"github.com/stockparfait/imfdata/table"
	"github.com/stockparfait/iterator"
)

// parallelFetchers bounds the fan-out of multi-request calls. The rate
// limiter dominates the throughput anyway.
const parallelFetchers = 4

// Envelope types for the upstream JSON. The "@"-prefixed keys are XML
// attributes surviving the upstream XML-to-JSON conversion.

type nameText struct {
	Text string `json:"#text" required:"true"`
}

func (n *nameText) InitMessage(js any) error { return envelope.Init(n, js) }

type codeEnv struct {
	Value       string   `json:"@value" required:"true"`
	Description nameText `json:"Description" required:"true"`
}

func (c *codeEnv) InitMessage(js any) error { return envelope.Init(c, js) }

type codelistEnv struct {
	ID    string    `json:"@id" required:"true"`
	Name  nameText  `json:"Name" required:"true"`
	Codes []codeEnv `json:"Code"`
}

func (c *codelistEnv) InitMessage(js any) error { return envelope.Init(c, js) }

type codeListsNode struct {
	CodeList []codelistEnv `json:"CodeList" required:"true"`
}

func (c *codeListsNode) InitMessage(js any) error { return envelope.Init(c, js) }

type dimensionEnv struct {
	ConceptRef string `json:"@conceptRef" required:"true"`
	Codelist   string `json:"@codelist" required:"true"`
}

func (d *dimensionEnv) InitMessage(js any) error { return envelope.Init(d, js) }

type componentsNode struct {
	Dimension []dimensionEnv `json:"Dimension" required:"true"`
}

func (c *componentsNode) InitMessage(js any) error { return envelope.Init(c, js) }

type keyFamilyNode struct {
	Components componentsNode `json:"Components" required:"true"`
}

func (k *keyFamilyNode) InitMessage(js any) error { return envelope.Init(k, js) }

type keyFamiliesNode struct {
	KeyFamily keyFamilyNode `json:"KeyFamily" required:"true"`
}

func (k *keyFamiliesNode) InitMessage(js any) error { return envelope.Init(k, js) }

type dsdStructureNode struct {
	CodeLists   codeListsNode   `json:"CodeLists" required:"true"`
	KeyFamilies keyFamiliesNode `json:"KeyFamilies" required:"true"`
}

func (s *dsdStructureNode) InitMessage(js any) error { return envelope.Init(s, js) }

// dataStructureEnv is the envelope of a DataStructure response.
type dataStructureEnv struct {
	Structure dsdStructureNode `json:"Structure" required:"true"`
}

func (d *dataStructureEnv) InitMessage(js any) error { return envelope.Init(d, js) }

type codeListsStructureNode struct {
	CodeLists codeListsNode `json:"CodeLists" required:"true"`
}

func (c *codeListsStructureNode) InitMessage(js any) error { return envelope.Init(c, js) }

// codelistResponseEnv is the envelope of a CodeList response.
type codelistResponseEnv struct {
	Structure codeListsStructureNode `json:"Structure" required:"true"`
}

func (c *codelistResponseEnv) InitMessage(js any) error { return envelope.Init(c, js) }

type keyFamilyRefEnv struct {
	KeyFamilyID string `json:"KeyFamilyID" required:"true"`
}

func (k *keyFamilyRefEnv) InitMessage(js any) error { return envelope.Init(k, js) }

type dataflowEnv struct {
	KeyFamilyRef keyFamilyRefEnv `json:"KeyFamilyRef" required:"true"`
	Name         nameText        `json:"Name" required:"true"`
}

func (d *dataflowEnv) InitMessage(js any) error { return envelope.Init(d, js) }

type dataflowsNode struct {
	Dataflow []dataflowEnv `json:"Dataflow" required:"true"`
}

func (d *dataflowsNode) InitMessage(js any) error { return envelope.Init(d, js) }

type dataflowStructureNode struct {
	Dataflows dataflowsNode `json:"Dataflows" required:"true"`
}

func (d *dataflowStructureNode) InitMessage(js any) error { return envelope.Init(d, js) }

// dataflowEnvelope is the envelope of a Dataflow response.
type dataflowEnvelope struct {
	Structure dataflowStructureNode `json:"Structure" required:"true"`
}

func (d *dataflowEnvelope) InitMessage(js any) error { return envelope.Init(d, js) }

type partyEnv struct {
	ID string `json:"@id" default:"NA"`
}

func (p *partyEnv) InitMessage(js any) error { return envelope.Init(p, js) }

type metadataHeaderEnv struct {
	ID        string   `json:"ID" default:"NA"`
	Prepared  string   `json:"Prepared" default:"NA"`
	DataSetID string   `json:"DataSetID" default:"NA"`
	Sender    partyEnv `json:"Sender"`
	Receiver  partyEnv `json:"Receiver"`
}

func (h *metadataHeaderEnv) InitMessage(js any) error { return envelope.Init(h, js) }

type genericMetadataNode struct {
	Schema   string            `json:"@xmlns" default:"NA"`
	Language string            `json:"@xml:lang" default:"NA"`
	Header   metadataHeaderEnv `json:"Header" required:"true"`
}

func (g *genericMetadataNode) InitMessage(js any) error { return envelope.Init(g, js) }

// metadataEnvelope is the envelope of a GenericMetadata response.
type metadataEnvelope struct {
	GenericMetadata genericMetadataNode `json:"GenericMetadata" required:"true"`
}

func (m *metadataEnvelope) InitMessage(js any) error { return envelope.Init(m, js) }

// Dimension is one row of a dimension table: the dimension name
// (lower-cased), the ID of its codelist, and the codelist's human-readable
// description. An empty field means the value is absent: a Description is
// absent when no codelist matched the dimension, and a Parameter is absent
// for a codelist not referenced by any dimension (outer join only).
type Dimension struct {
	Parameter   string
	Code        string
	Description string
}

// CSV implements table.Row.
func (d Dimension) CSV() []string {
	return []string{d.Parameter, d.Code, d.Description}
}

// DimensionsHeader returns the column headers of a dimension table.
func DimensionsHeader() []string {
	return []string{"parameter", "code", "description"}
}

// DimensionTable packs dimension rows into a table.Table.
func DimensionTable(dims []Dimension) *table.Table {
	t := table.New(DimensionsHeader()...)
	for _, d := range dims {
		t.AddRow(d)
	}
	return t
}

// Dimensions downloads the structure of a database and joins its dimension
// components against its codelists. With inputsOnly, the join is inner: only
// dimensions with a resolvable codelist survive, each with its description.
// Otherwise the join is outer: all dimensions are kept, with an absent
// description where unresolved, and unreferenced codelists are appended with
// an absent parameter. Source order is preserved in both modes.
func Dimensions(ctx context.Context, databaseID string, retries int, inputsOnly bool) ([]Dimension, error) {
	client := GetClient(ctx)
	if client == nil {
		return nil, errors.Reason("no client in context")
	}
	raw, err := client.Fetch(ctx, client.baseURL+"/DataStructure/"+databaseID, retries)
	if err != nil {
		return nil, errors.Annotate(err, "failed to fetch structure of %s", databaseID)
	}
	var env dataStructureEnv
	if err := env.InitMessage(raw); err != nil {
		return nil, errors.Annotate(err, "unexpected structure response for %s", databaseID)
	}

	codelists := env.Structure.CodeLists.CodeList
	descByCode := make(map[string]string)
	for _, cl := range codelists {
		descByCode[cl.ID] = cl.Name.Text
	}

	var dims []Dimension
	matched := make(map[string]bool)
	for _, d := range env.Structure.KeyFamilies.KeyFamily.Components.Dimension {
		desc, ok := descByCode[d.Codelist]
		if inputsOnly && !ok {
			continue
		}
		matched[d.Codelist] = true
		dims = append(dims, Dimension{
			Parameter:   strings.ToLower(d.ConceptRef),
			Code:        d.Codelist,
			Description: desc,
		})
	}
	if !inputsOnly {
		for _, cl := range codelists {
			if !matched[cl.ID] {
				dims = append(dims, Dimension{Code: cl.ID, Description: cl.Name.Text})
			}
		}
	}
	return dims, nil
}

// Database identifies one queryable database of the service.
type Database struct {
	ID          string
	Description string
}

// CSV implements table.Row.
func (d Database) CSV() []string { return []string{d.ID, d.Description} }

// DatabasesHeader returns the column headers of a database table.
func DatabasesHeader() []string { return []string{"database_id", "description"} }

// DatabaseTable packs database rows into a table.Table.
func DatabaseTable(dbs []Database) *table.Table {
	t := table.New(DatabasesHeader()...)
	for _, d := range dbs {
		t.AddRow(d)
	}
	return t
}

// Databases downloads the list of all databases published by the service.
func Databases(ctx context.Context, retries int) ([]Database, error) {
	client := GetClient(ctx)
	if client == nil {
		return nil, errors.Reason("no client in context")
	}
	raw, err := client.Fetch(ctx, client.baseURL+"/Dataflow", retries)
	if err != nil {
		return nil, errors.Annotate(err, "failed to fetch the database list")
	}
	var env dataflowEnvelope
	if err := env.InitMessage(raw); err != nil {
		return nil, errors.Annotate(err, "unexpected Dataflow response")
	}
	var dbs []Database
	for _, d := range env.Structure.Dataflows.Dataflow {
		dbs = append(dbs, Database{
			ID:          d.KeyFamilyRef.KeyFamilyID,
			Description: d.Name.Text,
		})
	}
	return dbs, nil
}

// Code is one valid input value of a dimension.
type Code struct {
	Value       string
	Description string
}

// CSV implements table.Row.
func (c Code) CSV() []string { return []string{c.Value, c.Description} }

// CodesHeader returns the column headers of a parameter's code table.
func CodesHeader() []string { return []string{"input_code", "description"} }

// Parameter holds the valid input codes of one dimension.
type Parameter struct {
	Name  string
	Codes []Code
}

// codes downloads a single codelist and extracts its code values.
func (c *Client) codes(ctx context.Context, codelistID string, retries int) ([]Code, error) {
	raw, err := c.Fetch(ctx, c.baseURL+"/CodeList/"+codelistID, retries)
	if err != nil {
		return nil, errors.Annotate(err, "failed to fetch codelist %s", codelistID)
	}
	var env codelistResponseEnv
	if err := env.InitMessage(raw); err != nil {
		return nil, errors.Annotate(err, "unexpected CodeList response for %s", codelistID)
	}
	cls := env.Structure.CodeLists.CodeList
	if len(cls) == 0 {
		return nil, errors.Reason("codelist %s is empty", codelistID)
	}
	var codes []Code
	for _, cd := range cls[0].Codes {
		codes = append(codes, Code{Value: cd.Value, Description: cd.Description.Text})
	}
	return codes, nil
}

// Parameters downloads the valid input codes for every dimension of a
// database, one CodeList query per dimension, fanned out in parallel. The
// result preserves the source dimension order.
func Parameters(ctx context.Context, databaseID string, retries int) ([]Parameter, error) {
	client := GetClient(ctx)
	if client == nil {
		return nil, errors.Reason("no client in context")
	}
	dims, err := Dimensions(ctx, databaseID, retries, true)
	if err != nil {
		return nil, errors.Annotate(err, "failed to fetch dimensions of %s", databaseID)
	}

	type result struct {
		param string
		codes []Code
		err   error
	}
	f := func(d Dimension) result {
		codes, err := client.codes(ctx, d.Code, retries)
		return result{param: d.Parameter, codes: codes, err: err}
	}
	pm := iterator.ParallelMap(ctx, parallelFetchers, iterator.FromSlice(dims), f)
	defer pm.Close()

	results := iterator.Reduce[result, map[string]result](pm,
		make(map[string]result), func(r result, m map[string]result) map[string]result {
			m[r.param] = r
			return m
		})

	params := make([]Parameter, len(dims))
	for i, d := range dims {
		r := results[d.Parameter]
		if r.err != nil {
			return nil, errors.Annotate(r.err,
				"failed to fetch codes for parameter %s", d.Parameter)
		}
		params[i] = Parameter{Name: d.Parameter, Codes: r.codes}
	}
	return params, nil
}

// Metadata is the header metadata of a database, flattened to strings.
// Absent values are filled with "NA".
type Metadata struct {
	Schema    string
	Language  string
	ID        string
	Prepared  string
	Sender    string
	Receiver  string
	DataSetID string
}

func orNA(s string) string {
	if s == "" {
		return "NA"
	}
	return s
}

// FetchMetadata downloads the header metadata for a dataset query URL. The
// URL's CompactData path segment is substituted with GenericMetadata, which
// mirrors how the service addresses the two documents.
func FetchMetadata(ctx context.Context, uri string, retries int) (*Metadata, error) {
	client := GetClient(ctx)
	if client == nil {
		return nil, errors.Reason("no client in context")
	}
	if uri == "" {
		return nil, errors.Reason("URL is empty")
	}
	uri = strings.Replace(uri, "/CompactData/", "/GenericMetadata/", 1)
	raw, err := client.Fetch(ctx, uri, retries)
	if err != nil {
		return nil, errors.Annotate(err, "failed to fetch metadata")
	}
	var env metadataEnvelope
	if err := env.InitMessage(raw); err != nil {
		return nil, errors.Annotate(err, "unexpected GenericMetadata response")
	}
	g := env.GenericMetadata
	return &Metadata{
		Schema:    g.Schema,
		Language:  g.Language,
		ID:        g.Header.ID,
		Prepared:  g.Header.Prepared,
		Sender:    orNA(g.Header.Sender.ID),
		Receiver:  orNA(g.Header.Receiver.ID),
		DataSetID: g.Header.DataSetID,
	}, nil
}
