package api

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	schemaGenerateGame = "generate_game.json"
	schemaGenerate     = "generate.json"
	schemaBuild        = "build.json"
)

var (
	schemaOnce sync.Once
	schemaErr  error
	schemas    map[string]*jsonschema.Schema
)

// errInvalidRequest marks request bodies rejected before any processing.
var errInvalidRequest = errors.New("invalid request")

func loadSchemas() (map[string]*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		names := []string{schemaGenerateGame, schemaGenerate, schemaBuild}
		for _, name := range names {
			data, err := schemaFS.ReadFile("schemas/" + name)
			if err != nil {
				schemaErr = fmt.Errorf("read schema %s: %w", name, err)
				return
			}
			if err := compiler.AddResource(name, bytes.NewReader(data)); err != nil {
				schemaErr = fmt.Errorf("add schema %s: %w", name, err)
				return
			}
		}

		compiled := make(map[string]*jsonschema.Schema, len(names))
		for _, name := range names {
			sch, err := compiler.Compile(name)
			if err != nil {
				schemaErr = fmt.Errorf("compile schema %s: %w", name, err)
				return
			}
			compiled[name] = sch
		}
		schemas = compiled
	})
	return schemas, schemaErr
}

// decodeValid reads a JSON body, validates it against the named schema and
// decodes it into out. Validation failures wrap errInvalidRequest.
func decodeValid(r io.Reader, schema string, out any) error {
	all, err := loadSchemas()
	if err != nil {
		return err
	}

	body, err := io.ReadAll(io.LimitReader(r, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidRequest, err)
	}

	var document any
	if err := json.Unmarshal(body, &document); err != nil {
		return fmt.Errorf("%w: malformed JSON: %v", errInvalidRequest, err)
	}
	if err := all[schema].Validate(document); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("%w: %s", errInvalidRequest, describe(verr))
		}
		return fmt.Errorf("%w: %v", errInvalidRequest, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	return nil
}

// describe returns the most specific validation message.
func describe(verr *jsonschema.ValidationError) string {
	for len(verr.Causes) > 0 {
		verr = verr.Causes[0]
	}
	if verr.InstanceLocation == "" {
		return verr.Message
	}
	return verr.InstanceLocation + ": " + verr.Message
}
