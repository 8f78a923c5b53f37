package source

/*
rxurls — URL discovery and aggregation for target domains
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/x-stp/rxurls/internal/config"
)

var (
	// gospiderURL matches URL-like tokens in gospider's annotated output.
	gospiderURL = regexp.MustCompile(`(([a-zA-Z][a-zA-Z0-9+-.]*\:\/\/)|mailto|data\:)([a-zA-Z0-9\.\&\/\?\:@\+-\_=#%;,])*`)
	// httpURL matches absolute http(s) URLs up to the next space.
	httpURL = regexp.MustCompile(`https?://[^ ]+`)
	// httpLine keeps whole lines mentioning http.
	httpLine = regexp.MustCompile(`^.*http.*$`)
)

// BuiltinTools returns the external tool chain in its default stage order.
func BuiltinTools(cfg *config.Config) []ExecSpec {
	token := cfg.GithubToken
	return []ExecSpec{
		{Name: "waybackurls", Path: "waybackurls", Stdin: config.StdinDomain},
		{Name: "gau", Path: "gau", Stdin: config.StdinDomain},
		{
			Name:    "hakrawler",
			Path:    "hakrawler",
			Args:    []string{"-timeout", "5", "-d", "3"},
			Stdin:   config.StdinSeeds,
			Seeding: EndpointSeeded,
		},
		{
			Name:       "github-endpoints",
			Path:       "github-endpoints",
			Args:       []string{"-d", "{domain}", "-raw", "-t", token, "-o", "{tmp}"},
			OutputFile: true,
			Secrets:    []string{token},
			Precheck: func() error {
				if token == "" {
					return errors.New("github-endpoints needs a token (--github-token or GITHUB_TOKEN)")
				}
				return nil
			},
		},
		{
			Name:              "cariddi",
			Path:              "cariddi",
			Args:              []string{"-plain"},
			Stdin:             config.StdinDomain,
			MustContainDomain: true,
		},
		{
			Name:    "gospider",
			Path:    "gospider",
			Args:    []string{"-S", "{seeds}", "-t", "100", "-d", "8", "-c", "10"},
			Seeding: EndpointSeeded,
			Extract: gospiderURL,
		},
		{
			Name:    "katana",
			Path:    "katana",
			Args:    []string{"-list", "{seeds}", "-silent", "-headless", "-d", "6", "-c", "20", "-jc", "-f", "qurl"},
			Seeding: EndpointSeeded,
		},
		{
			Name:    "gourlex",
			Path:    "gourlex",
			Args:    []string{"-t", "{domain}"},
			Extract: httpURL,
		},
		{
			Name:     "orwa",
			Path:     "bash",
			Args:     []string{cfg.OrwaScript, "{domainfile}"},
			Requires: []string{cfg.OrwaScript},
			Extract:  httpLine,
		},
		{
			Name: "urlfinder",
			Path: "urlfinder",
			Args: []string{"-all", "-silent", "-d", "{domain}"},
		},
	}
}

// SpecFromConfig converts a user-defined tool into an ExecSpec.
func SpecFromConfig(tc config.ToolConfig) (ExecSpec, error) {
	spec := ExecSpec{
		Name:              tc.Name,
		Path:              tc.Path,
		Args:              tc.Args,
		Stdin:             tc.Stdin,
		MustContainDomain: tc.MustContainDomain,
		OutputFile:        tc.OutputFile,
		Env:               tc.Env,
	}
	if spec.Path == "" {
		spec.Path = tc.Name
	}
	if tc.Seeded {
		spec.Seeding = EndpointSeeded
	}
	if tc.Extract != "" {
		re, err := regexp.Compile(tc.Extract)
		if err != nil {
			return ExecSpec{}, fmt.Errorf("tool %s: bad extract pattern: %w", tc.Name, err)
		}
		spec.Extract = re
	}
	return spec, nil
}
