package main

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/Ravioli45/CNT3004-file-sharing/pkg/config"
	"github.com/invopop/jsonschema"
)

func main() {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		FieldNameTag:              "mapstructure",
		Mapper:                    durationAsString,
	}

	schema := reflector.Reflect(&config.Config{})
	schema.Title = "fileshare Configuration"
	schema.Description = "Configuration schema for the fileshare server"
	schema.Version = "1.0.0"

	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling schema: %v\n", err)
		os.Exit(1)
	}

	outputFile := "config.schema.json"
	if len(os.Args) > 1 {
		outputFile = os.Args[1]
	}

	if err := os.WriteFile(outputFile, schemaJSON, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing schema file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("JSON schema written to %s\n", outputFile)
}

// durationAsString describes time.Duration fields the way the config file
// writes them ("30s", "5m").
func durationAsString(t reflect.Type) *jsonschema.Schema {
	if t != reflect.TypeOf(time.Duration(0)) {
		return nil
	}
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     `^(-?[0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
		Description: "Go duration, e.g. 500ms, 30s, 5m",
	}
}
