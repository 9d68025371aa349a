package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

const (
	outputAuto = "auto"
	outputJSON = "json"
	outputText = "text"
)

// readInput decodes a YAML or JSON document into dst. YAML is a superset of
// JSON, so every file goes through yaml.v3 and is then re-encoded as JSON so
// the models' json tags and decoders apply.
func readInput(path string, stdin io.Reader, dst interface{}) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if doc == nil {
		return fmt.Errorf("%s is empty", path)
	}

	normalized, err := json.Marshal(jsonCompatible(doc))
	if err != nil {
		return fmt.Errorf("failed to convert %s: %w", path, err)
	}
	if err := json.Unmarshal(normalized, dst); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// jsonCompatible rewrites non-string map keys, which yaml allows and json does not
func jsonCompatible(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, val := range t {
			t[k] = jsonCompatible(val)
		}
		return t
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = jsonCompatible(val)
		}
		return m
	case []interface{}:
		for i, val := range t {
			t[i] = jsonCompatible(val)
		}
		return t
	default:
		return v
	}
}

// summarizer is implemented by reports that have a one-line human form
type summarizer interface {
	Summary() string
}

// printResult writes v as indented JSON, or as its summary on a terminal
func printResult(w io.Writer, mode string, v summarizer) error {
	if resolveMode(w, mode) == outputText {
		_, err := fmt.Fprintln(w, v.Summary())
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func resolveMode(w io.Writer, mode string) string {
	if mode != outputAuto {
		return mode
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return outputText
	}
	return outputJSON
}
