package run

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ensemble-run/ensemble/pkg/config"
	"github.com/ensemble-run/ensemble/pkg/errors"
)

// collectInputs merges run inputs from an optional JSON file and --input
// flags. Flag values win over file values. Flag values stay strings; state
// seeding coerces them to the declared field types.
func collectInputs(flagInputs []string, inputFile string, stdin io.Reader) (map[string]interface{}, error) {
	inputs := make(map[string]interface{})

	if inputFile != "" {
		fromFile, err := loadInputFile(inputFile, stdin)
		if err != nil {
			return nil, err
		}
		for k, v := range fromFile {
			inputs[k] = v
		}
	}

	for _, pair := range flagInputs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, errors.Newf("invalid input %q: expected key=value", pair)
		}
		inputs[key] = value
	}

	return inputs, nil
}

// loadInputFile reads a JSON object of inputs from a file, or from stdin
// when path is "-".
func loadInputFile(path string, stdin io.Reader) (map[string]interface{}, error) {
	var data []byte
	var err error

	if path == "-" {
		data, err = io.ReadAll(stdin)
		if err != nil {
			return nil, errors.Wrap(err, "reading inputs from stdin")
		}
	} else {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading input file %s", path)
		}
	}

	var inputs map[string]interface{}
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, errors.Wrap(err, "input file must contain a JSON object")
	}
	return inputs, nil
}

// missingRequired returns the names of required state fields not present in
// inputs, sorted for stable prompting and error messages.
func missingRequired(cfg *config.WorkflowConfig, inputs map[string]interface{}) []string {
	var missing []string
	for name, spec := range cfg.State.Fields {
		if !spec.Required {
			continue
		}
		if _, ok := inputs[name]; !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// promptForInputs interactively asks for each missing field. Values are
// entered as text and coerced later by state seeding.
func promptForInputs(cfg *config.WorkflowConfig, missing []string, in io.Reader, out io.Writer) (map[string]interface{}, error) {
	reader := bufio.NewReader(in)
	values := make(map[string]interface{}, len(missing))

	for _, name := range missing {
		spec := cfg.State.Fields[name]
		if spec.Description != "" {
			fmt.Fprintf(out, "%s (%s) - %s: ", name, spec.Type, spec.Description)
		} else {
			fmt.Fprintf(out, "%s (%s): ", name, spec.Type)
		}

		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, errors.Wrapf(err, "reading input %s", name)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return nil, errors.Newf("no value provided for required input %q", name)
		}
		values[name] = line
	}

	return values, nil
}
