package parser

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/studiowebux/restswarm/internal/types"
)

var validMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// ParseHTTPFile parses a traditional .http file with ### separators.
//
// Comment annotations inside a block add load-test behavior:
//
//	# @name users/[id]
//	# @expect.status 200 201
//	# @expect.body "ok"
//	# @extract token access_token
func ParseHTTPFile(filePath string) ([]types.HttpRequest, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var requests []types.HttpRequest
	var currentRequest *types.HttpRequest
	var bodyLines []string
	inBody := false

	flush := func() {
		if currentRequest == nil {
			return
		}
		if inBody && len(bodyLines) > 0 {
			currentRequest.Body = strings.TrimRight(strings.Join(bodyLines, "\n"), "\n")
		}
		if currentRequest.Method != "" {
			requests = append(requests, *currentRequest)
		}
	}

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		line := scanner.Text()
		lineNum++

		// New request separator
		if strings.HasPrefix(line, "###") {
			flush()
			currentRequest = &types.HttpRequest{
				Name:    strings.TrimSpace(strings.TrimPrefix(line, "###")),
				Headers: make(map[string]string),
			}
			bodyLines = []string{}
			inBody = false
			continue
		}

		// A file without separators holds a single request
		if currentRequest == nil {
			if strings.TrimSpace(line) == "" {
				continue
			}
			currentRequest = &types.HttpRequest{Headers: make(map[string]string)}
		}

		if !inBody && (strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//")) {
			trimmed := strings.TrimSpace(strings.TrimLeft(line, "#/"))
			if err := parseAnnotation(trimmed, currentRequest); err != nil {
				return nil, fmt.Errorf("%s:%d: %w", filePath, lineNum, err)
			}
			continue
		}

		// HTTP method and URL (e.g., GET http://example.com)
		if currentRequest.Method == "" {
			parts := strings.Fields(line)
			if len(parts) >= 2 && validMethods[strings.ToUpper(parts[0])] {
				currentRequest.Method = strings.ToUpper(parts[0])
				currentRequest.URL = parts[1]
			}
			continue
		}

		// Empty line after headers starts body
		if strings.TrimSpace(line) == "" && !inBody {
			inBody = true
			continue
		}

		// Headers (Key: Value) - only parse as header if not in body
		if !inBody && strings.Contains(line, ":") {
			// Body content is often indented
			if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
				inBody = true
				bodyLines = append(bodyLines, line)
				continue
			}

			parts := strings.SplitN(line, ":", 2)
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])

			if key == "" || strings.ContainsAny(key, " \t{[\"'") {
				inBody = true
				bodyLines = append(bodyLines, line)
				continue
			}

			currentRequest.Headers[key] = value
			continue
		}

		if inBody {
			bodyLines = append(bodyLines, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	flush()

	return requests, nil
}

// parseAnnotation applies an @-annotation to req. Plain comments are ignored.
func parseAnnotation(line string, req *types.HttpRequest) error {
	if !strings.HasPrefix(line, "@") {
		return nil
	}
	key, value, _ := strings.Cut(line, " ")
	value = strings.TrimSpace(value)

	switch key {
	case "@name":
		req.Name = value
	case "@expect.status":
		for _, field := range strings.FieldsFunc(value, func(r rune) bool { return r == ' ' || r == ',' }) {
			code, err := strconv.Atoi(field)
			if err != nil || code < 100 || code > 599 {
				return fmt.Errorf("invalid status in @expect.status: %q", field)
			}
			req.ExpectStatus = append(req.ExpectStatus, code)
		}
	case "@expect.body":
		req.ExpectBody = unquote(value)
	case "@extract":
		name, path, ok := strings.Cut(value, " ")
		if !ok || strings.TrimSpace(path) == "" {
			return fmt.Errorf("@extract needs a variable name and a JMESPath: %q", value)
		}
		if req.Extract == nil {
			req.Extract = make(map[string]string)
		}
		req.Extract[name] = strings.TrimSpace(path)
	}
	return nil
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
