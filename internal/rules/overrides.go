package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// overridesFile is the YAML layout of a rules file:
//
//	rules:
//	  GoldenPit:
//	    weight: 1.5
//	    params:
//	      drawdown_threshold: 0.25
type overridesFile struct {
	Rules map[string]Override `yaml:"rules"`
}

// LoadOverrides reads per-rule overrides from a YAML file.
// Unknown fields fail immediately (KnownFields).
func LoadOverrides(path string) (map[string]Override, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseOverrides(data)
}

// ParseOverrides decodes the YAML rules document
func ParseOverrides(data []byte) (map[string]Override, error) {
	var file overridesFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // 알 수 없는 필드 발견 시 에러 반환
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	if file.Rules == nil {
		file.Rules = make(map[string]Override)
	}
	return file.Rules, nil
}
