// generate-schema writes the JSON schema of the davgate config file, for
// editor completion and CI validation of deployment configs.
//
//	generate-schema [--output config.schema.json] [--stdout]
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/packrat/davgate/pkg/config"
	"github.com/spf13/pflag"
)

const schemaID = "https://davgate.dev/config.schema.json"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	var (
		output   string
		toStdout bool
	)
	flagSet := pflag.NewFlagSet("generate-schema", pflag.ContinueOnError)
	flagSet.StringVarP(&output, "output", "o", "config.schema.json", "schema file to write")
	flagSet.BoolVar(&toStdout, "stdout", false, "print the schema instead of writing a file")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	data, err := json.MarshalIndent(buildSchema(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	data = append(data, '\n')

	if toStdout {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0644); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}
	fmt.Fprintf(stdout, "JSON schema written to %s\n", output)
	return nil
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		// config files are keyed by the mapstructure names
		FieldNameTag: "mapstructure",
	}

	schema := reflector.Reflect(&config.Config{})
	schema.ID = jsonschema.ID(schemaID)
	schema.Title = "davgate configuration"
	schema.Description = "Config file of the davgate WebDAV gateway (" + config.GetDefaultConfigPath() + " by default). " +
		"Every key can also be set through a " + config.EnvPrefix + "_ environment variable."

	if schema.Properties != nil {
		for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
			if desc := config.SectionDescription(pair.Key); desc != "" && pair.Value.Description == "" {
				pair.Value.Description = desc
			}
		}
	}
	return schema
}
