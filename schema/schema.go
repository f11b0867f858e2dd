// Package schema validates inbound registration payloads.
//
// Validation is structural only: required members, member types, URI and
// ISO-8601 formats, and the absence of unknown members. The first violation
// found is reported as an INVALID_INPUT error whose message names the field,
// e.g. `"name" is required`. Signatures are not checked here.
package schema

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vinayprograms/ans/errors"
)

// Payload is the typed form of a registration request.
type Payload struct {
	AgentID              string            `json:"agent_id" validate:"required"`
	Name                 string            `json:"name" validate:"required"`
	Description          string            `json:"description,omitempty"`
	Organization         string            `json:"organization,omitempty"`
	LogoURL              string            `json:"logo_url,omitempty" validate:"omitempty,url"`
	Website              string            `json:"website,omitempty" validate:"omitempty,url"`
	Tags                 []string          `json:"tags,omitempty"`
	Capabilities         []string          `json:"capabilities,omitempty"`
	Endpoints            map[string]string `json:"endpoints,omitempty" validate:"omitempty,dive,url"`
	VerificationLevel    string            `json:"verification_level,omitempty"`
	PublicKey            string            `json:"public_key" validate:"required"`
	DataResidency        []string          `json:"data_residency,omitempty"`
	CriticalRegistration bool              `json:"critical_registration,omitempty"`
	PrivateClaims        map[string]any    `json:"private_claims,omitempty"`
	SupplyChain          *SupplyChain      `json:"supply_chain,omitempty"`
	ProofOfOwnership     *Proof            `json:"proofOfOwnership" validate:"required"`
}

// SupplyChain describes the agent's bill of materials and attestations.
type SupplyChain struct {
	AIBOMURL                 string        `json:"aibom_url,omitempty" validate:"omitempty,url"`
	AIBOMHash                string        `json:"aibom_hash,omitempty"`
	VerificationAttestations []Attestation `json:"verification_attestations,omitempty" validate:"omitempty,dive"`
}

// Attestation is a third-party certificate reference.
type Attestation struct {
	Type          string `json:"type,omitempty"`
	Issuer        string `json:"issuer,omitempty"`
	CertificateID string `json:"certificate_id,omitempty"`
	ValidityURL   string `json:"validity_url,omitempty" validate:"omitempty,url"`
	ValidUntil    string `json:"valid_until,omitempty" validate:"omitempty,isodate"`
}

// Proof is the proof-of-ownership block.
type Proof struct {
	Signature string `json:"signature" validate:"required,hexadecimal"`
	Timestamp string `json:"timestamp" validate:"required,isodate"`
}

// Result is a validated payload. Raw keeps the decoded object with numbers
// untouched; it is what gets canonicalized for signature checks.
type Result struct {
	Payload *Payload
	Raw     map[string]any
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("isodate", isISODate); err != nil {
		panic(err)
	}
	return v
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

func isISODate(fl validator.FieldLevel) bool {
	return ParseISODate(fl.Field().String()) == nil
}

// ParseISODate reports whether s is an ISO-8601 date or date-time.
func ParseISODate(s string) error {
	for _, layout := range isoLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%q is not an ISO-8601 date", s)
}

// Validate decodes and checks a registration body.
func Validate(body []byte) (*Result, error) {
	raw, err := decodeObject(body)
	if err != nil {
		return nil, err
	}

	if err := checkMembers(raw, payloadType); err != nil {
		return nil, err
	}

	var p Payload
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, decodeError(err)
	}

	if err := validate.Struct(&p); err != nil {
		return nil, fieldError(err)
	}
	return &Result{Payload: &p, Raw: raw}, nil
}

// decodeObject decodes body as a JSON object, keeping numbers as json.Number.
func decodeObject(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil, errors.InvalidInput(`"value" must be of type object`, errors.WithField("value"))
		}
		return nil, errors.InvalidInput("request body is not valid JSON", errors.WithCause(err))
	}
	if dec.More() {
		return nil, errors.InvalidInput("request body has trailing data")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.InvalidInput(`"value" must be of type object`, errors.WithField("value"))
	}
	return obj, nil
}

var payloadType = reflect.TypeOf(Payload{})

// checkMembers rejects object members whose names are not an exact json tag
// of t. encoding/json matches names case-insensitively, so "AGENT_ID" would
// otherwise fill AgentID while Raw keeps it under its own key.
func checkMembers(obj map[string]any, t reflect.Type) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		f, ok := fieldByTag(t, key)
		if !ok {
			return errors.InvalidInput(fmt.Sprintf("%q is not allowed", key), errors.WithField(key))
		}
		ft := f.Type
		for ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		switch {
		case ft.Kind() == reflect.Struct:
			if inner, ok := obj[key].(map[string]any); ok {
				if err := checkMembers(inner, ft); err != nil {
					return err
				}
			}
		case ft.Kind() == reflect.Slice && ft.Elem().Kind() == reflect.Struct:
			items, _ := obj[key].([]any)
			for _, item := range items {
				if inner, ok := item.(map[string]any); ok {
					if err := checkMembers(inner, ft.Elem()); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func fieldByTag(t reflect.Type, name string) (reflect.StructField, bool) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if tag == name {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if stderrors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "value"
		}
		return errors.InvalidInput(fmt.Sprintf("%q must be %s", field, describeKind(typeErr.Type)),
			errors.WithField(field), errors.WithCause(err))
	}

	msg := err.Error()
	if name, ok := strings.CutPrefix(msg, "json: unknown field "); ok {
		field := strings.Trim(name, `"`)
		return errors.InvalidInput(fmt.Sprintf("%q is not allowed", field),
			errors.WithField(field), errors.WithCause(err))
	}
	return errors.InvalidInput("request body is not valid JSON", errors.WithCause(err))
}

func describeKind(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "a string"
	case reflect.Bool:
		return "a boolean"
	case reflect.Slice, reflect.Array:
		return "an array"
	case reflect.Map, reflect.Struct:
		return "of type object"
	default:
		return "a " + t.Kind().String()
	}
}

func fieldError(err error) error {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) || len(verrs) == 0 {
		return errors.InvalidInput(err.Error(), errors.WithCause(err))
	}

	fe := verrs[0]
	field := fieldPath(fe.Namespace())

	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("%q is required", field)
	case "url":
		msg = fmt.Sprintf("%q must be a valid uri", field)
	case "hexadecimal":
		msg = fmt.Sprintf("%q must only contain hexadecimal characters", field)
	case "isodate":
		msg = fmt.Sprintf("%q must be in iso format", field)
	default:
		msg = fmt.Sprintf("%q failed the %q rule", field, fe.Tag())
	}
	return errors.InvalidInput(msg, errors.WithField(field))
}

// fieldPath drops the root struct name from a validator namespace:
// "Payload.proofOfOwnership.signature" becomes "proofOfOwnership.signature".
func fieldPath(ns string) string {
	_, rest, ok := strings.Cut(ns, ".")
	if !ok {
		return ns
	}
	return rest
}
