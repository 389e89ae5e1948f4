package application

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-concord/internal/domain"
)

// ValidateReviewerParameters validates the parameters for a specific
// reviewer type, ensuring values meet domain constraints before any
// capability is instantiated.
// ValidateReviewerParameters returns an error if parameter decoding
// fails or if any validation rule is violated.
func ValidateReviewerParameters(reviewerType string, params yaml.Node) error {
	paramMap, err := decodeParams(params)
	if err != nil {
		return err
	}

	switch reviewerType {
	case "llm":
		return validateLLMParams(paramMap)
	case "custom":
		// Custom reviewers have flexible validation.
		return nil
	default:
		return fmt.Errorf("unknown reviewer type: %s", reviewerType)
	}
}

// ValidateReviserParameters validates the parameters for the revision
// capability. The reviser shares the LLM parameter shape.
func ValidateReviserParameters(params yaml.Node) error {
	paramMap, err := decodeParams(params)
	if err != nil {
		return err
	}
	return validateLLMParams(paramMap)
}

func decodeParams(params yaml.Node) (map[string]any, error) {
	var paramMap map[string]any
	if err := params.Decode(&paramMap); err != nil {
		return nil, fmt.Errorf("failed to decode parameters: %w", err)
	}
	return paramMap, nil
}

// validateLLMParams validates parameters shared by LLM-backed
// capabilities: optional prompt_template, temperature, max_tokens, and
// system prompt.
func validateLLMParams(params map[string]any) error {
	if tmpl, ok := params["prompt_template"]; ok {
		tmplStr, ok := tmpl.(string)
		if !ok {
			return fmt.Errorf("prompt_template must be a string")
		}
		if tmplStr == "" {
			return fmt.Errorf("prompt_template cannot be empty")
		}
	}

	if temp, ok := params["temperature"]; ok {
		switch v := temp.(type) {
		case float64:
			if v < 0 || v > 2 {
				return fmt.Errorf("temperature must be between 0 and 2")
			}
		case int:
			if v < 0 || v > 2 {
				return fmt.Errorf("temperature must be between 0 and 2")
			}
		default:
			return fmt.Errorf("temperature must be a number")
		}
	}

	if maxTokens, ok := params["max_tokens"]; ok {
		switch v := maxTokens.(type) {
		case int:
			if v < 1 {
				return fmt.Errorf("max_tokens must be at least 1")
			}
		default:
			return fmt.Errorf("max_tokens must be an integer")
		}
	}

	if system, ok := params["system"]; ok {
		if _, ok := system.(string); !ok {
			return fmt.Errorf("system must be a string")
		}
	}

	return nil
}

// registerCustomValidators registers domain-specific validation
// functions with the validator instance, including semantic version
// validation, model format validation, and role validation.
// registerCustomValidators returns an error if any registration fails.
func registerCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("semver", validateSemver); err != nil {
		return fmt.Errorf("failed to register semver validator: %w", err)
	}

	if err := v.RegisterValidation("modelformat", validateModelFormat); err != nil {
		return fmt.Errorf("failed to register modelformat validator: %w", err)
	}

	if err := v.RegisterValidation("debaterole", validateDebateRole); err != nil {
		return fmt.Errorf("failed to register debaterole validator: %w", err)
	}

	return nil
}

// validateSemver validates that a string follows semantic versioning
// format (X.Y.Z where X, Y, Z are non-negative integers).
// validateSemver is a validator.Func that can be registered with
// the validator instance for use in struct tags.
func validateSemver(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	var major, minor, patch int
	n, err := fmt.Sscanf(value, "%d.%d.%d", &major, &minor, &patch)
	return err == nil && n == 3
}

// validateModelFormat validates that a model string matches the required format:
// ^[a-z0-9]+/[A-Za-z0-9\-_\.]+(@[A-Za-z0-9\-_\.]+)?$
// This ensures the model follows the pattern provider/model or provider/model@version.
func validateModelFormat(fl validator.FieldLevel) bool {
	model := fl.Field().String()

	if model == "" {
		return true
	}

	// Basic validation - must contain a slash if not empty.
	for i, ch := range model {
		if ch == '/' {
			if i == 0 {
				return false // provider name cannot be empty
			}
			if i == len(model)-1 {
				return false // model name cannot be empty
			}
			return true
		}
	}

	return false
}

// validateDebateRole validates that a string names one of the fixed
// panel positions.
func validateDebateRole(fl validator.FieldLevel) bool {
	_, err := domain.ParseRole(fl.Field().String())
	return err == nil
}
