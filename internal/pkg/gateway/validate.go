package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrInvalidContent = errors.New("invalid file content")

var dataExtensions = []string{".json", ".yaml", ".yml"}

// IsDataFile reports whether p names a JSON or YAML file, ignoring case.
func IsDataFile(p string) bool {
	lower := strings.ToLower(p)
	for _, ext := range dataExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// ValidateContent checks that content parses as the format its path implies.
// Paths with other extensions are accepted unchecked.
func ValidateContent(p, content string) error {
	switch strings.ToLower(path.Ext(p)) {
	case ".json":
		if !json.Valid([]byte(content)) {
			var v interface{}
			err := json.Unmarshal([]byte(content), &v)
			return fmt.Errorf("%w: %s is not valid JSON: %v", ErrInvalidContent, p, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(strings.NewReader(content))
		for {
			var node yaml.Node
			err := dec.Decode(&node)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return fmt.Errorf("%w: %s is not valid YAML: %v", ErrInvalidContent, p, err)
			}
		}
	}
	return nil
}
