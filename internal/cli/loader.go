package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/hydroexec/internal/compiler"
	"github.com/roach88/hydroexec/internal/ir"
)

// loadPlant compiles and validates the plant at path. Missing paths map to
// ExitCommandError, invalid plants to ExitFailure.
func loadPlant(path string) (*ir.PlantSpec, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("plant not found: %s", path))
	}
	spec, err := compiler.LoadPlant(path)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to compile plant", err)
	}
	if errs := compiler.Validate(spec); len(errs) > 0 {
		return nil, WrapExitError(ExitFailure, "invalid plant", errs[0])
	}
	return spec, nil
}

// LoadTelemetry reads samples from path. "-" reads stdin.
//
// YAML files (.yaml, .yml) hold one sample per document or a list of
// samples. Anything else is read as JSON: a stream of objects (one per
// line is the usual form) or a single top-level array.
func LoadTelemetry(path string, stdin io.Reader) ([]ir.Telemetry, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open telemetry: %w", err)
		}
		defer f.Close()
		r = f
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return decodeYAMLTelemetry(r)
	default:
		return decodeJSONTelemetry(r)
	}
}

func decodeYAMLTelemetry(r io.Reader) ([]ir.Telemetry, error) {
	dec := yaml.NewDecoder(r)
	out := []ir.Telemetry{}
	for doc := 0; ; doc++ {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("telemetry document %d: %w", doc, err)
		}

		root := &node
		if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
			root = root.Content[0]
		}
		if root.Kind == yaml.SequenceNode {
			var batch []ir.Telemetry
			if err := root.Decode(&batch); err != nil {
				return nil, fmt.Errorf("telemetry document %d: %w", doc, err)
			}
			out = append(out, batch...)
			continue
		}
		var t ir.Telemetry
		if err := root.Decode(&t); err != nil {
			return nil, fmt.Errorf("telemetry document %d: %w", doc, err)
		}
		out = append(out, t)
	}
}

func decodeJSONTelemetry(r io.Reader) ([]ir.Telemetry, error) {
	out := []ir.Telemetry{}
	err := StreamTelemetry(r, func(t ir.Telemetry) error {
		out = append(out, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// StreamTelemetry decodes JSON samples from r and hands each to fn as soon
// as it is read. A top-level array is decoded element by element. fn
// returning an error stops the stream with that error.
func StreamTelemetry(r io.Reader, fn func(ir.Telemetry) error) error {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read telemetry: %w", err)
	}

	dec := json.NewDecoder(br)
	array := first == '['
	if array {
		if _, err := dec.Token(); err != nil {
			return fmt.Errorf("telemetry array: %w", err)
		}
	}

	for i := 0; ; i++ {
		if array && !dec.More() {
			if _, err := dec.Token(); err != nil {
				return fmt.Errorf("telemetry array: %w", err)
			}
			return nil
		}
		var t ir.Telemetry
		err := dec.Decode(&t)
		if !array && errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("telemetry sample %d: %w", i, err)
		}
		if err := fn(t); err != nil {
			return err
		}
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
