// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"github.com/samber/oops"
)

// MinPasswordLength is the minimum number of characters in a password.
const MinPasswordLength = 6

// RegisterInput is the payload of the register flow.
type RegisterInput struct {
	Name     string `json:"name" jsonschema:"minLength=1"`
	Username string `json:"username" jsonschema:"minLength=1"`
	Email    string `json:"email" jsonschema:"format=email"`
	Password string `json:"password" jsonschema:"minLength=6"`
}

// LoginInput is the payload of the authenticate flow.
type LoginInput struct {
	Username string `json:"username" jsonschema:"minLength=1"`
	Password string `json:"password" jsonschema:"minLength=6"`
}

// ResetRequestInput is the payload of the reset-request flow.
type ResetRequestInput struct {
	Email string `json:"email" jsonschema:"format=email"`
}

// ResetConfirmInput is the payload of the reset-confirm flow.
type ResetConfirmInput struct {
	ResetPasswordToken string `json:"resetPasswordToken" jsonschema:"minLength=1"`
	Password           string `json:"password" jsonschema:"minLength=6"`
}

type compiledSchema struct {
	once   sync.Once
	schema *jschema.Schema
	err    error
}

var schemaCache sync.Map // reflect.Type -> *compiledSchema

// ValidateInput checks in against the JSON Schema reflected from its type.
// Failures are AUTH_VALIDATION_FAILED errors wrapping *ValidationError.
func ValidateInput(in any) error {
	sch, err := schemaFor(in)
	if err != nil {
		return err
	}

	data, err := json.Marshal(in)
	if err != nil {
		return oops.Code("VALIDATION_ENCODE_FAILED").Wrap(err)
	}
	instance, err := jschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return oops.Code("VALIDATION_ENCODE_FAILED").Wrap(err)
	}

	if err := sch.Validate(instance); err != nil {
		var verr *jschema.ValidationError
		if !errors.As(err, &verr) {
			return oops.Code("VALIDATION_FAILED_UNEXPECTEDLY").Wrap(err)
		}
		return oops.Code(CodeValidationFailed).
			Public(msgValidationFailed).
			Wrap(&ValidationError{Fields: fieldErrors(verr)})
	}
	return nil
}

func schemaFor(in any) (*jschema.Schema, error) {
	t := reflect.TypeOf(in)
	entry, _ := schemaCache.LoadOrStore(t, &compiledSchema{})
	cs := entry.(*compiledSchema) //nolint:errcheck,forcetypeassert // only *compiledSchema is stored

	cs.once.Do(func() {
		cs.schema, cs.err = compileSchema(in)
	})
	return cs.schema, cs.err
}

func compileSchema(in any) (*jschema.Schema, error) {
	r := jsonschema.Reflector{DoNotReference: true}
	reflected := r.Reflect(in)

	raw, err := json.Marshal(reflected)
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").Wrap(err)
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").Wrap(err)
	}

	c := jschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource("input.json", doc); err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").Wrap(err)
	}
	sch, err := c.Compile("input.json")
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").Wrap(err)
	}
	return sch, nil
}

// fieldErrors flattens the leaf causes of a validation error into one message per field.
func fieldErrors(verr *jschema.ValidationError) []FieldError {
	seen := make(map[string]string)
	collectFieldErrors(verr, seen)

	fields := make([]FieldError, 0, len(seen))
	for field, msg := range seen {
		fields = append(fields, FieldError{Field: field, Message: msg})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
	return fields
}

func collectFieldErrors(verr *jschema.ValidationError, into map[string]string) {
	if len(verr.Causes) > 0 {
		for _, cause := range verr.Causes {
			collectFieldErrors(cause, into)
		}
		return
	}

	field := path.Join(verr.InstanceLocation...)
	switch k := verr.ErrorKind.(type) {
	case *kind.Required:
		for _, missing := range k.Missing {
			setOnce(into, path.Join(field, missing), "is required")
		}
		return
	case *kind.MinLength:
		if k.Want <= 1 {
			setOnce(into, field, "must not be empty")
		} else {
			setOnce(into, field, fmt.Sprintf("must be at least %d characters", k.Want))
		}
	case *kind.Format:
		if k.Want == "email" {
			setOnce(into, field, "must be a valid email address")
		} else {
			setOnce(into, field, "must be a valid "+k.Want)
		}
	case *kind.Type:
		setOnce(into, field, "must be a "+strings.Join(k.Want, " or "))
	default:
		setOnce(into, field, "is invalid")
	}
}

func setOnce(into map[string]string, field, msg string) {
	if field == "" {
		field = "body"
	}
	if _, ok := into[field]; !ok {
		into[field] = msg
	}
}
