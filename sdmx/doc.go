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

// Package sdmx implements a client for the IMF SDMX-JSON API.
//
// Official documentation is at https://datahelp.imf.org/ .
//
// The service publishes statistical databases, each described by a structure
// document listing its dimensions (the axes a data point is indexed by) and
// codelists (the valid coded values of one dimension). Dimensions(),
// Parameters() and Databases() download and flatten this metadata into
// tabular records; DataQuery downloads the data points themselves.
//
// The service is fragile: it throttles aggressively and returns HTML or XML
// error pages in place of JSON. All calls therefore go through
// Client.Fetch(), which serializes requests through a token-bucket rate
// limiter, fails fast on recognized error pages, and retries malformed JSON
// with exponential backoff.
//
// The Client is injected into the context, and all API calls extract it from
// there:
//
//   cfg, err := sdmx.NewConfig()  // applies the IMF_APP_NAME override
//   ctx := sdmx.UseClient(context.Background(), cfg)
//   dims, err := sdmx.Dimensions(ctx, "PCPS", 3, true)
package sdmx
