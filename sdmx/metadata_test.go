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
	"bytes"
	"context"
	"testing"

	"github.com/stockparfait/imfdata/table"
	"github.com/stockparfait/testutil"

	. "github.com/smartystreets/goconvey/convey"
)

// pcpsStructureJSON mirrors the DataStructure response of the Primary
// Commodity Price System database: four dimensions, each resolvable against
// one of the six codelists, two codelists not referenced by any dimension.
const pcpsStructureJSON = `{"Structure": {
  "@xmlns": "http://www.SDMX.org/resources/SDMXML/schemas/v2_0/message",
  "CodeLists": {"CodeList": [
    {"@id": "CL_FREQ_PCPS", "Name": {"@xml:lang": "en", "#text": "Frequency"}},
    {"@id": "CL_AREA_PCPS", "Name": {"#text": "Geographical Areas"}},
    {"@id": "CL_INDICATOR_PCPS", "Name": {"#text": "Indicator"}},
    {"@id": "CL_UNIT_PCPS", "Name": {"#text": "Unit"}},
    {"@id": "CL_TIME_FORMAT_PCPS", "Name": {"#text": "Time format"}},
    {"@id": "CL_UNIT_MULT_PCPS", "Name": {"#text": "Scale"}}
  ]},
  "KeyFamilies": {"KeyFamily": {
    "@id": "PCPS",
    "Components": {"Dimension": [
      {"@conceptRef": "FREQ", "@codelist": "CL_FREQ_PCPS"},
      {"@conceptRef": "REF_AREA", "@codelist": "CL_AREA_PCPS"},
      {"@conceptRef": "COMMODITY", "@codelist": "CL_INDICATOR_PCPS"},
      {"@conceptRef": "UNIT_MEASURE", "@codelist": "CL_UNIT_PCPS"}
    ]}
  }}
}}`

// absentCells counts the empty cells across all rows of a dimension table.
func absentCells(dims []Dimension) int {
	n := 0
	for _, d := range dims {
		for _, cell := range d.CSV() {
			if cell == "" {
				n++
			}
		}
	}
	return n
}

func TestMetadata(t *testing.T) {
	t.Parallel()

	Convey("Metadata calls work correctly", t, func() {
		server := testutil.NewTestServer()
		defer server.Close()

		ctx := UseClient(context.Background(), testConfig(server.URL(), server.Client()))

		Convey("Dimensions", func() {
			server.ResponseBody = []string{pcpsStructureJSON}

			Convey("inner join keeps only resolvable dimensions", func() {
				dims, err := Dimensions(ctx, "PCPS", 3, true)
				So(err, ShouldBeNil)
				So(server.RequestPath, ShouldEqual, "/DataStructure/PCPS")
				So(dims, ShouldResemble, []Dimension{
					{"freq", "CL_FREQ_PCPS", "Frequency"},
					{"ref_area", "CL_AREA_PCPS", "Geographical Areas"},
					{"commodity", "CL_INDICATOR_PCPS", "Indicator"},
					{"unit_measure", "CL_UNIT_PCPS", "Unit"},
				})
				So(absentCells(dims), ShouldEqual, 0)
			})

			Convey("outer join appends unreferenced codelists", func() {
				dims, err := Dimensions(ctx, "PCPS", 3, false)
				So(err, ShouldBeNil)
				So(len(dims), ShouldEqual, 6)
				So(absentCells(dims), ShouldEqual, 2)
				So(dims[4], ShouldResemble,
					Dimension{"", "CL_TIME_FORMAT_PCPS", "Time format"})
				So(dims[5], ShouldResemble,
					Dimension{"", "CL_UNIT_MULT_PCPS", "Scale"})
			})

			Convey("repeated calls return row-equal tables", func() {
				server.ResponseBody = []string{pcpsStructureJSON, pcpsStructureJSON}
				dims, err := Dimensions(ctx, "PCPS", 3, true)
				So(err, ShouldBeNil)
				dims2, err := Dimensions(ctx, "PCPS", 3, true)
				So(err, ShouldBeNil)
				So(dims2, ShouldResemble, dims)
			})

			Convey("unresolvable dimension survives only the outer join", func() {
				server.ResponseBody = []string{`{"Structure": {
          "CodeLists": {"CodeList": {"@id": "CL_FREQ_X", "Name": {"#text": "Frequency"}}},
          "KeyFamilies": {"KeyFamily": {"Components": {"Dimension": [
            {"@conceptRef": "FREQ", "@codelist": "CL_FREQ_X"},
            {"@conceptRef": "REF_AREA", "@codelist": "CL_AREA_X"}
          ]}}}}}`}
				dims, err := Dimensions(ctx, "X", 1, false)
				So(err, ShouldBeNil)
				So(dims, ShouldResemble, []Dimension{
					{"freq", "CL_FREQ_X", "Frequency"},
					{"ref_area", "CL_AREA_X", ""},
				})
			})

			Convey("unexpected shape is an error", func() {
				server.ResponseBody = []string{`{"Structure": {"CodeLists": {}}}`}
				_, err := Dimensions(ctx, "PCPS", 1, true)
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "unexpected structure response")
			})

			Convey("table conversion", func() {
				dims, err := Dimensions(ctx, "PCPS", 3, true)
				So(err, ShouldBeNil)
				tbl := DimensionTable(dims)
				So(tbl.Size(), ShouldEqual, 4)
				var buf bytes.Buffer
				So(tbl.WriteCSV(&buf, table.Params{}), ShouldBeNil)
				So("\n"+buf.String(), ShouldEqual, `
parameter,code,description
freq,CL_FREQ_PCPS,Frequency
ref_area,CL_AREA_PCPS,Geographical Areas
commodity,CL_INDICATOR_PCPS,Indicator
unit_measure,CL_UNIT_PCPS,Unit
`)
			})
		})

		Convey("Databases", func() {
			Convey("lists all dataflows", func() {
				server.ResponseBody = []string{`{"Structure": {"Dataflows": {"Dataflow": [
          {"KeyFamilyRef": {"KeyFamilyID": "BOP"},
           "Name": {"#text": "Balance of Payments"}},
          {"KeyFamilyRef": {"KeyFamilyID": "PCPS"},
           "Name": {"#text": "Primary Commodity Price System"}}
        ]}}}`}
				dbs, err := Databases(ctx, 3)
				So(err, ShouldBeNil)
				So(server.RequestPath, ShouldEqual, "/Dataflow")
				So(dbs, ShouldResemble, []Database{
					{"BOP", "Balance of Payments"},
					{"PCPS", "Primary Commodity Price System"},
				})
			})

			Convey("a single dataflow arrives as a bare object", func() {
				server.ResponseBody = []string{`{"Structure": {"Dataflows": {"Dataflow":
          {"KeyFamilyRef": {"KeyFamilyID": "BOP"}, "Name": {"#text": "BoP"}}}}}`}
				dbs, err := Databases(ctx, 3)
				So(err, ShouldBeNil)
				So(dbs, ShouldResemble, []Database{{"BOP", "BoP"}})
			})
		})

		Convey("Parameters fetches each dimension's codelist", func() {
			server.ResponseBody = []string{
				`{"Structure": {
          "CodeLists": {"CodeList": {"@id": "CL_FREQ_TEST", "Name": {"#text": "Frequency"}}},
          "KeyFamilies": {"KeyFamily": {"Components": {"Dimension":
            {"@conceptRef": "FREQ", "@codelist": "CL_FREQ_TEST"}}}}}}`,
				`{"Structure": {"CodeLists": {"CodeList": {
          "@id": "CL_FREQ_TEST", "Name": {"#text": "Frequency"},
          "Code": [
            {"@value": "A", "Description": {"#text": "Annual"}},
            {"@value": "M", "Description": {"#text": "Monthly"}}
          ]}}}}`,
			}
			params, err := Parameters(ctx, "TEST", 3)
			So(err, ShouldBeNil)
			So(server.RequestPath, ShouldEqual, "/CodeList/CL_FREQ_TEST")
			So(params, ShouldResemble, []Parameter{
				{Name: "freq", Codes: []Code{{"A", "Annual"}, {"M", "Monthly"}}},
			})
		})

		Convey("FetchMetadata", func() {
			metadataJSON := `{"GenericMetadata": {
        "@xmlns": "http://www.SDMX.org/resources/SDMXML/schemas/v2_0/message",
        "@xml:lang": "en",
        "Header": {
          "ID": "METADATA", "Prepared": "2023-02-20T04:36:57",
          "DataSetID": "PCPS",
          "Sender": {"@id": "IMF"}, "Receiver": {"@id": "ZUR"}}}}`

			Convey("flattens the header fields", func() {
				server.ResponseBody = []string{metadataJSON}
				meta, err := FetchMetadata(ctx, server.URL()+"/CompactData/PCPS/M.W00.PCOAL", 3)
				So(err, ShouldBeNil)
				So(server.RequestPath, ShouldEqual, "/GenericMetadata/PCPS/M.W00.PCOAL")
				So(meta, ShouldResemble, &Metadata{
					Schema:    "http://www.SDMX.org/resources/SDMXML/schemas/v2_0/message",
					Language:  "en",
					ID:        "METADATA",
					Prepared:  "2023-02-20T04:36:57",
					Sender:    "IMF",
					Receiver:  "ZUR",
					DataSetID: "PCPS",
				})
			})

			Convey("absent values are filled with NA", func() {
				server.ResponseBody = []string{`{"GenericMetadata": {"Header": {"ID": "M1"}}}`}
				meta, err := FetchMetadata(ctx, server.URL()+"/CompactData/PCPS", 3)
				So(err, ShouldBeNil)
				So(meta, ShouldResemble, &Metadata{
					Schema:    "NA",
					Language:  "NA",
					ID:        "M1",
					Prepared:  "NA",
					Sender:    "NA",
					Receiver:  "NA",
					DataSetID: "NA",
				})
			})

			Convey("empty URL is an error", func() {
				_, err := FetchMetadata(ctx, "", 3)
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "URL is empty")
			})
		})
	})

	Convey("calls without a client in context fail", t, func() {
		ctx := context.Background()
		_, err := Dimensions(ctx, "PCPS", 3, true)
		So(err, ShouldNotBeNil)
		_, err = Databases(ctx, 3)
		So(err, ShouldNotBeNil)
		_, err = Parameters(ctx, "PCPS", 3)
		So(err, ShouldNotBeNil)
		_, err = FetchMetadata(ctx, "http://x", 3)
		So(err, ShouldNotBeNil)
	})
}
