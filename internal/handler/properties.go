package handler

import (
	"fmt"
)

// Properties are the custom resource properties declared in the template.
type Properties struct {
	Bucket    string
	KeySource string
	KeyTarget string
}

// DecodeProperties reads the known keys from ResourceProperties. Keys that
// are absent stay empty; keys present with a non-string value are an error.
func DecodeProperties(raw map[string]interface{}) (Properties, error) {
	var p Properties
	fields := []struct {
		name string
		dst  *string
	}{
		{"Bucket", &p.Bucket},
		{"KeySource", &p.KeySource},
		{"KeyTarget", &p.KeyTarget},
	}

	for _, f := range fields {
		v, ok := raw[f.name]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return Properties{}, fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidProperties, f.name, v)
		}
		*f.dst = s
	}
	return p, nil
}

// validate checks the properties a build needs.
func (p Properties) validate() error {
	var missing []string
	if p.Bucket == "" {
		missing = append(missing, "Bucket")
	}
	if p.KeySource == "" {
		missing = append(missing, "KeySource")
	}
	if p.KeyTarget == "" {
		missing = append(missing, "KeyTarget")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %v", ErrInvalidProperties, missing)
	}
	return nil
}
