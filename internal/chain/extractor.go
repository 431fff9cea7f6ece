// Package chain carries values from one response into later requests.
package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jmespath/go-jmespath"
)

// ErrNotJSON is returned when extraction is requested on a non-JSON body
var ErrNotJSON = errors.New("response is not valid JSON")

// Extractor holds compiled JMESPath expressions keyed by variable name
type Extractor struct {
	paths map[string]*jmespath.JMESPath
	raw   map[string]string
}

// Compile validates every expression once so users don't reparse them per call
func Compile(extract map[string]string) (*Extractor, error) {
	e := &Extractor{
		paths: make(map[string]*jmespath.JMESPath, len(extract)),
		raw:   extract,
	}
	for name, expr := range extract {
		compiled, err := jmespath.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid JMESPath for %s (%s): %w", name, expr, err)
		}
		e.paths[name] = compiled
	}
	return e, nil
}

// Empty reports whether there is nothing to extract
func (e *Extractor) Empty() bool {
	return e == nil || len(e.paths) == 0
}

// Extract evaluates every expression against a JSON body
func (e *Extractor) Extract(body []byte) (map[string]string, error) {
	if e.Empty() {
		return nil, nil
	}

	var jsonData interface{}
	if err := json.Unmarshal(body, &jsonData); err != nil {
		return nil, fmt.Errorf("cannot extract variables: %w", ErrNotJSON)
	}

	extracted := make(map[string]string, len(e.paths))
	for varName, path := range e.paths {
		result, err := path.Search(jsonData)
		if err != nil {
			return nil, fmt.Errorf("failed to extract variable %s using path %s: %w", varName, e.raw[varName], err)
		}
		value, err := stringify(result)
		if err != nil {
			return nil, fmt.Errorf("variable %s: JMESPath %s: %w", varName, e.raw[varName], err)
		}
		extracted[varName] = value
	}

	return extracted, nil
}

// ExtractVariables compiles and evaluates extract in one call
func ExtractVariables(extract map[string]string, body []byte) (map[string]string, error) {
	e, err := Compile(extract)
	if err != nil {
		return nil, err
	}
	return e.Extract(body)
}

func stringify(result interface{}) (string, error) {
	switch v := result.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	case nil:
		return "", errors.New("returned null")
	default:
		// Complex types are passed on as JSON
		jsonBytes, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to convert extracted value to string: %w", err)
		}
		return string(jsonBytes), nil
	}
}
