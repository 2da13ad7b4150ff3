package commandstructure

import "fmt"

// ValidateKnownParams rejects parameters a command does not understand, catching
// typos in the pipeline configuration.
func ValidateKnownParams(params map[string]any, known []string) error {
	allowed := make(map[string]struct{}, len(known))
	for _, key := range known {
		allowed[key] = struct{}{}
	}
	for key := range params {
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("unknown parameter: %s", key)
		}
	}
	return nil
}
