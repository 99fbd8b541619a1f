// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Kind selects which embedded schema Validate compiles against.
type Kind int

const (
	ConfigSchema Kind = iota + 1
	BulkJobsSchema
)

//go:embed schemas/*
var schemaFiles embed.FS

func loadSchema(s string) (io.ReadCloser, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	return schemaFiles.Open(u.Path)
}

func init() {
	jsonschema.Loaders["embedFS"] = loadSchema
}

// Validate decodes r as JSON and checks it against the schema selected by k,
// the same two-step decode-then-validate flow the reference implementation's
// pkg/schema.Validate uses.
func Validate(k Kind, r io.Reader) error {
	var path string
	switch k {
	case ConfigSchema:
		path = "embedFS://schemas/config.schema.json"
	case BulkJobsSchema:
		path = "embedFS://schemas/bulk-jobs.schema.json"
	default:
		return fmt.Errorf("schema: unknown kind %d", k)
	}

	s, err := jsonschema.Compile(path)
	if err != nil {
		return err
	}

	var v interface{}
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		return fmt.Errorf("schema: decode: %w", err)
	}

	if err := s.Validate(v); err != nil {
		return fmt.Errorf("schema: validate: %w", err)
	}
	return nil
}
