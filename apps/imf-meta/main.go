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

// The imf-meta app prints IMF database metadata: the list of databases, the
// dimension table of one database, or the valid input codes of each of its
// dimensions.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/imfdata/sdmx"
	"github.com/stockparfait/imfdata/table"
	"github.com/stockparfait/logging"

	toml "github.com/pelletier/go-toml/v2"
)

type Flags struct {
	Databases  bool   // list all queryable databases
	Dimensions string // database ID to print the dimension table for
	All        bool   // keep unresolvable dimensions and unreferenced codelists
	Parameters string // database ID to print the valid input codes for
	Retries    int
	CSV        bool   // dump CSV format; default: text
	Config     string // client config file, optional
	LogLevel   logging.Level
}

func parseFlags(args []string) (*Flags, error) {
	var flags Flags
	fs := flag.NewFlagSet("imf-meta", flag.ExitOnError)
	fs.BoolVar(&flags.Databases, "databases", false, "list all queryable databases")
	fs.StringVar(&flags.Dimensions, "dimensions", "",
		"database ID to print the dimension table for")
	fs.BoolVar(&flags.All, "all", false,
		"with -dimensions: keep unresolvable dimensions and unreferenced codelists")
	fs.StringVar(&flags.Parameters, "parameters", "",
		"database ID to print the valid input codes for")
	fs.IntVar(&flags.Retries, "retries", 3,
		"number of attempts for malformed responses")
	fs.BoolVar(&flags.CSV, "csv", false, "print tables in CSV format; default: text")
	fs.StringVar(&flags.Config, "conf",
		filepath.Join(os.Getenv("HOME"), ".imfdata", "config.toml"),
		"client config file (optional)")
	flags.LogLevel = logging.Info
	fs.Var(&flags.LogLevel, "log-level", "Log level: debug, info, warning, error")

	err := fs.Parse(args)
	if err != nil {
		return nil, err
	}
	kinds := 0
	if flags.Databases {
		kinds++
	}
	if flags.Dimensions != "" {
		kinds++
	}
	if flags.Parameters != "" {
		kinds++
	}
	if kinds != 1 {
		return nil, errors.Reason(
			"expected exactly one of -databases, -dimensions or -parameters")
	}
	return &flags, err
}

// fileConfig is the TOML layout of the optional client config file.
type fileConfig struct {
	AppName       string `toml:"app_name"`
	RateCalls     int    `toml:"rate_calls"`
	RatePeriodSec int    `toml:"rate_period_sec"`
}

// parseConfig builds the client config: environment overrides first, then
// the optional config file for whatever the environment left unset.
func parseConfig(filePath string) (*sdmx.Config, error) {
	cfg, err := sdmx.NewConfig()
	if err != nil {
		return nil, errors.Annotate(err, "failed to read environment config")
	}
	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, errors.Annotate(err, "failed to open config file %s", filePath)
	}
	defer f.Close()

	var fc fileConfig
	if err := toml.NewDecoder(f).Decode(&fc); err != nil {
		return nil, errors.Annotate(err, "failed to read config file %s", filePath)
	}
	if cfg.AppName == "" {
		cfg.AppName = fc.AppName
	}
	if fc.RateCalls > 0 {
		cfg.RateCalls = fc.RateCalls
	}
	if fc.RatePeriodSec > 0 {
		cfg.RatePeriod = time.Duration(fc.RatePeriodSec) * time.Second
	}
	return cfg, nil
}

func writeTable(tbl *table.Table, flags *Flags, w io.Writer) error {
	if flags.CSV {
		return tbl.WriteCSV(w, table.Params{})
	}
	return tbl.WriteText(w, table.Params{})
}

func printData(ctx context.Context, flags *Flags, w io.Writer) error {
	switch {
	case flags.Databases:
		dbs, err := sdmx.Databases(ctx, flags.Retries)
		if err != nil {
			return errors.Annotate(err, "failed to list databases")
		}
		return writeTable(sdmx.DatabaseTable(dbs), flags, w)

	case flags.Dimensions != "":
		dims, err := sdmx.Dimensions(ctx, flags.Dimensions, flags.Retries, !flags.All)
		if err != nil {
			return errors.Annotate(err, "failed to fetch dimensions of %s",
				flags.Dimensions)
		}
		return writeTable(sdmx.DimensionTable(dims), flags, w)

	case flags.Parameters != "":
		params, err := sdmx.Parameters(ctx, flags.Parameters, flags.Retries)
		if err != nil {
			return errors.Annotate(err, "failed to fetch parameters of %s",
				flags.Parameters)
		}
		for _, p := range params {
			if _, err := fmt.Fprintf(w, "%s:\n", p.Name); err != nil {
				return errors.Annotate(err, "failed to write parameter name")
			}
			tbl := table.New(sdmx.CodesHeader()...)
			for _, c := range p.Codes {
				tbl.AddRow(c)
			}
			if err := writeTable(tbl, flags, w); err != nil {
				return errors.Annotate(err, "failed to write codes of %s", p.Name)
			}
		}
		return nil
	}
	return errors.Reason("nothing to print")
}

func run() error {
	ctx := context.Background()
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		ctx = logging.Use(ctx, logging.DefaultGoLogger(logging.Info))
		logging.Errorf(ctx, "failed to parse flags: %s", err.Error())
		return err
	}
	ctx = logging.Use(ctx, logging.DefaultGoLogger(flags.LogLevel))
	cfg, err := parseConfig(flags.Config)
	if err != nil {
		logging.Errorf(ctx, err.Error())
		return err
	}
	ctx = sdmx.UseClient(ctx, cfg)
	if err := printData(ctx, flags, os.Stdout); err != nil {
		logging.Errorf(ctx, err.Error())
		return err
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}
