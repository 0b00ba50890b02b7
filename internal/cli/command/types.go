package command

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FieldType describes input type.
type FieldType int

const (
	FieldString FieldType = iota
	FieldInt
	FieldFile
)

// Field defines a CLI input field and where it goes in the request.
type Field struct {
	Name     string
	Aliases  []string
	Prompt   string
	Type     FieldType
	Required bool
	// Query names the query parameter carrying the value.
	Query string
	// JSON names the body field carrying the value.
	JSON string
}

// Command defines a CLI command binding.
type Command struct {
	Service string
	Action  string
	Method  string
	Path    string
	Usage   string
	Fields  []Field
	// Prepare fills derived params before the request is built.
	Prepare func(Params) error
}

// Key is the registry key of the command.
func (c Command) Key() string {
	return c.Service + " " + c.Action
}

// RequestSpec is the built HTTP request.
type RequestSpec struct {
	Method  string
	Path    string
	Headers map[string]string
	Body    []byte
}

// Params holds parsed input params.
type Params map[string]string

func (p Params) Get(key string) string {
	return p[strings.ToLower(key)]
}

func (p Params) Set(key, value string) {
	p[strings.ToLower(key)] = value
}

func (p Params) Has(key string) bool {
	_, ok := p[strings.ToLower(key)]
	return ok
}

func (p Params) Canonicalize(fields []Field) {
	for _, field := range fields {
		for _, alias := range field.Aliases {
			aliasKey := strings.ToLower(alias)
			if value, ok := p[aliasKey]; ok {
				p[strings.ToLower(field.Name)] = value
				delete(p, aliasKey)
			}
		}
	}
}

func ParseInt(value string) (int, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 32)
	return int(n), err
}

func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file failed: %w", err)
	}
	return string(data), nil
}

// LanguageFromPath maps a source file extension to the server's language name.
func LanguageFromPath(path string) (string, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".c":
		return "c", true
	case ".cpp", ".cc", ".cxx", ".c++":
		return "cpp", true
	}
	return "", false
}
