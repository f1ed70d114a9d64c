package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	vcserrors "github.com/KoenDierckx/puppetlabs-vcsrepo/pkg/errors"
)

// convertValidationError normalizes validator errors into manifest
// validation errors.
func convertValidationError(err error) error {
	if err == nil {
		return nil
	}

	var ves validator.ValidationErrors
	if errors.As(err, &ves) {
		ve := ves[0]
		field := yamlishFieldName(ve)
		return vcserrors.NewValidationError(field, describe(ve), err)
	}

	return vcserrors.NewValidationError("manifest", err.Error(), err)
}

func convertResourceError(index int, err error) error {
	var ves validator.ValidationErrors
	if errors.As(err, &ves) {
		ve := ves[0]
		return vcserrors.NewValidationError(fieldForResource(index, strings.ToLower(ve.Field())), describe(ve), err)
	}
	return convertValidationError(err)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "ensure":
		return fmt.Sprintf("unknown ensure value %q", fe.Value())
	case "provider":
		return fmt.Sprintf("unsupported provider %q", fe.Value())
	case "remote_name":
		return fmt.Sprintf("invalid remote name %q", fe.Value())
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	case "min", "max":
		return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("failed validation for tag '%s'", fe.Tag())
	}
}

// yamlishFieldName maps Config.Resources[0].Ensure to resources[0].ensure.
func yamlishFieldName(fe validator.FieldError) string {
	ns := fe.StructNamespace()
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	lowered := make([]string, len(parts))
	for i, part := range parts {
		lowered[i] = strings.ToLower(part)
	}
	return strings.Join(lowered, ".")
}

func fieldForResource(index int, field string) string {
	return fmt.Sprintf("resources[%d].%s", index, field)
}
