package readings

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	apperrors "github.com/mlusby/temperature-monitor/pkg/errors"
)

const (
	MsgNoBody        = "No request body provided"
	MsgInvalidJSON   = "Invalid JSON body"
	MsgMissingFields = "Missing required fields: sessionId, sensorName, temperature, timestamp"
)

//go:embed reading.schema.json
var readingSchemaJSON string

var readingSchema = mustCompile("reading.schema.json", readingSchemaJSON)

func mustCompile(name, src string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(src)); err != nil {
		panic(err)
	}
	return compiler.MustCompile(name)
}

// DecodeReading validates body against the reading schema and decodes it.
// Keys are kept as sent. All failures are validation errors.
func DecodeReading(body []byte) (ReadingInput, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return ReadingInput{}, apperrors.Validation(MsgNoBody)
	}
	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return ReadingInput{}, apperrors.Validation(MsgInvalidJSON)
	}
	if err := readingSchema.Validate(doc); err != nil {
		return ReadingInput{}, apperrors.Validation(MsgMissingFields)
	}

	var in ReadingInput
	if err := json.Unmarshal(body, &in); err != nil {
		return ReadingInput{}, apperrors.Validation(MsgInvalidJSON)
	}
	return in, nil
}
