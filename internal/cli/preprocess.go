package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"text/template"

	"github.com/joho/godotenv"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"sigs.k8s.io/yaml"
)

type TemplateContext struct {
	ENV map[string]string
}

var missingKeyRegex = regexp.MustCompile(`map has no entry for key "(.*?)"`)

// environment returns the process environment over the values of dotenvPath, which
// may be missing.
func environment(dotenvPath string) (map[string]string, error) {
	env, err := godotenv.Read(dotenvPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("unable to read %s: %w", dotenvPath, err)
		}
		env = map[string]string{}
	}
	for _, e := range os.Environ() {
		if k, v, ok := strings.Cut(e, "="); ok {
			env[k] = v
		}
	}
	return env, nil
}

// PreprocessYAML replaces {{ .ENV.VAR }} placeholders with values from env.
func PreprocessYAML(input []byte, env map[string]string) ([]byte, error) {
	tmpl, err := template.New("payload").Option("missingkey=error").Parse(string(input))
	if err != nil {
		return nil, fmt.Errorf("template error: %w", err)
	}

	var output bytes.Buffer
	if err := tmpl.Execute(&output, TemplateContext{ENV: env}); err != nil {
		if m := missingKeyRegex.FindStringSubmatch(err.Error()); len(m) == 2 {
			return nil, fmt.Errorf("missing environment variable: %s (set it in your shell or .env file)", m[1])
		}
		return nil, fmt.Errorf("template error: %w", err)
	}
	return output.Bytes(), nil
}

// buildPayload turns a YAML or JSON payload file into a JSON object and applies the
// --set edits. An empty file name starts from an empty object.
func buildPayload(file string, sets []string) ([]byte, error) {
	body := []byte("{}")
	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("unable to read %s: %w", file, err)
		}
		env, err := environment(".env")
		if err != nil {
			return nil, err
		}
		raw, err = PreprocessYAML(raw, env)
		if err != nil {
			return nil, err
		}
		body, err = yaml.YAMLToJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("unable to parse %s: %w", file, err)
		}
		if !gjson.ParseBytes(body).IsObject() {
			return nil, fmt.Errorf("%s must contain a single object", file)
		}
	}
	return applySets(body, sets)
}

// applySets applies path=value edits. Values that are valid JSON (numbers, booleans,
// objects) are set as such; anything else is set as a string.
func applySets(body []byte, sets []string) ([]byte, error) {
	for _, s := range sets {
		path, value, ok := strings.Cut(s, "=")
		if !ok || path == "" {
			return nil, fmt.Errorf("invalid --set %q; expected path=value", s)
		}
		var err error
		if gjson.Valid(value) {
			body, err = sjson.SetRawBytes(body, path, []byte(value))
		} else {
			body, err = sjson.SetBytes(body, path, value)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid --set %q: %w", s, err)
		}
	}
	return body, nil
}
