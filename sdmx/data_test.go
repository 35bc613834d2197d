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
	"net/url"
	"testing"

	"github.com/stockparfait/imfdata/table"
	"github.com/stockparfait/testutil"

	. "github.com/smartystreets/goconvey/convey"
)

func TestData(t *testing.T) {
	t.Parallel()

	Convey("DataQuery builds nondestructively", t, func() {
		q := NewDataQuery("PCPS")
		q2 := q.Select("M").Select("W00", "US").Select("PCOAL")
		q3 := q2.Start("2020").End("2021")

		So(q.Path(), ShouldEqual, "PCPS/")
		So(len(q.Values()), ShouldEqual, 0)
		So(q2.Path(), ShouldEqual, "PCPS/M.W00+US.PCOAL")
		So(len(q2.Values()), ShouldEqual, 0)
		So(q3.Values(), ShouldResemble, url.Values{
			"startPeriod": []string{"2020"},
			"endPeriod":   []string{"2021"},
		})
	})

	Convey("DataQuery.Read", t, func() {
		server := testutil.NewTestServer()
		defer server.Close()

		ctx := UseClient(context.Background(), testConfig(server.URL(), server.Client()))

		Convey("parses series and observations", func() {
			server.ResponseBody = []string{`{"CompactData": {"DataSet": {"Series": [
        {"@FREQ": "M", "@REF_AREA": "W00", "@COMMODITY": "PCOAL", "@UNIT_MULT": "0",
         "Obs": [
           {"@TIME_PERIOD": "2020-01", "@OBS_VALUE": "67.2"},
           {"@TIME_PERIOD": "2020-02"}
         ]},
        {"@FREQ": "M", "@REF_AREA": "W00", "@COMMODITY": "PCOPP",
         "Obs": {"@TIME_PERIOD": "2020-01", "@OBS_VALUE": "5674.3"}}
      ]}}}`}
			series, err := NewDataQuery("PCPS").
				Select("M").Select("W00").Select("PCOAL", "PCOPP").
				Start("2020").End("2020").
				Read(ctx, 3)
			So(err, ShouldBeNil)
			So(server.RequestPath, ShouldEqual, "/CompactData/PCPS/M.W00.PCOAL+PCOPP")
			So(server.RequestQuery, ShouldResemble, url.Values{
				"startPeriod": []string{"2020"},
				"endPeriod":   []string{"2020"},
			})
			So(series, ShouldResemble, []Series{
				{
					Dimensions: map[string]string{
						"freq": "M", "ref_area": "W00", "commodity": "PCOAL", "unit_mult": "0"},
					Obs: []Observation{
						{"2020-01", "67.2"},
						{"2020-02", "NA"}, // value omitted by the service
					},
				},
				{
					Dimensions: map[string]string{
						"freq": "M", "ref_area": "W00", "commodity": "PCOPP"},
					Obs: []Observation{{"2020-01", "5674.3"}},
				},
			})

			Convey("SeriesTable flattens observations", func() {
				tbl := SeriesTable(series[1:])
				var buf bytes.Buffer
				So(tbl.WriteCSV(&buf, table.Params{}), ShouldBeNil)
				So("\n"+buf.String(), ShouldEqual, `
commodity,freq,ref_area,time_period,obs_value
PCOPP,M,W00,2020-01,5674.3
`)
			})
		})

		Convey("an empty DataSet yields no series", func() {
			server.ResponseBody = []string{`{"CompactData": {"DataSet": {}}}`}
			series, err := NewDataQuery("PCPS").Select("M").Read(ctx, 3)
			So(err, ShouldBeNil)
			So(series, ShouldBeNil)
		})

		Convey("a missing DataSet is an error", func() {
			server.ResponseBody = []string{`{"CompactData": {}}`}
			_, err := NewDataQuery("PCPS").Select("M").Read(ctx, 3)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "DataSet")
		})
	})

	Convey("SeriesTable of no series", t, func() {
		tbl := SeriesTable(nil)
		So(tbl.Size(), ShouldEqual, 0)
		So(tbl.Header, ShouldResemble, []string{"time_period", "obs_value"})
	})
}
