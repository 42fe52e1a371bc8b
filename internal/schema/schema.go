package schema

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"notifier/internal/config"
	"notifier/pkg/models"
)

// Package schema performs structural validation of broker topology configs
// and message envelopes. It is pure: no I/O, callable from both producer
// and consumer paths.

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, ve := range e {
		msgs[i] = ve.Error()
	}
	return strings.Join(msgs, "; ")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// messageSchema mirrors the wire contract: dataArea.process.action is a
// string of at least 3 characters and applicationArea.dateCreated must be
// present. Everything else is opaque payload.
type messageSchema struct {
	DataArea        dataAreaSchema
	ApplicationArea applicationAreaSchema
}

type dataAreaSchema struct {
	Process processSchema
}

type processSchema struct {
	Action string `validate:"required,min=3"`
}

type applicationAreaSchema struct {
	DateCreated interface{} `validate:"required"`
}

// ValidateMessage checks a decoded message against the message schema.
// Returns nil when the message is valid.
func ValidateMessage(msg *models.Message) ValidationErrors {
	if msg == nil {
		return ValidationErrors{{Field: "message", Message: "message is required"}}
	}

	doc := messageSchema{
		DataArea: dataAreaSchema{
			Process: processSchema{Action: msg.DataArea.Process.Action},
		},
		ApplicationArea: applicationAreaSchema{DateCreated: msg.ApplicationArea.DateCreated},
	}

	return translate(validate.Struct(doc), messageFieldNames)
}

// ValidateTopology checks a broker topology config. Returns nil when the
// config is valid; invalid configs must never reach the broker.
func ValidateTopology(cfg *config.TopologyConfig) ValidationErrors {
	if cfg == nil {
		return ValidationErrors{{Field: "topology", Message: "topology config is required"}}
	}

	return translate(validate.Struct(cfg), topologyFieldNames)
}

func translate(err error, rename func(string) string) ValidationErrors {
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return ValidationErrors{{Field: "document", Message: err.Error()}}
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   rename(fe.Namespace()),
			Message: reason(fe),
		})
	}
	return out
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("must be at least %s characters long", fe.Param())
		}
		return fmt.Sprintf("must contain at least %s items", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	default:
		return fmt.Sprintf("failed '%s' validation", fe.Tag())
	}
}

// messageFieldNames maps the Go namespace of the internal schema struct to
// the wire-format field path.
func messageFieldNames(namespace string) string {
	replacer := strings.NewReplacer(
		"messageSchema.", "",
		"DataArea", "dataArea",
		"ApplicationArea", "applicationArea",
		"Process", "process",
		"Action", "action",
		"DateCreated", "dateCreated",
	)
	return replacer.Replace(namespace)
}

func topologyFieldNames(namespace string) string {
	replacer := strings.NewReplacer(
		"TopologyConfig.", "",
		"Connection", "connection",
		"Details", "details",
		"Options", "options",
		"Host", "host",
		"Exchanges", "exchanges",
		"Queues", "queues",
		"Name", "name",
		"Type", "type",
		"RoutingKey", "routing_key",
		"ConsumptionOptions", "consumption_options",
		"PublishOptions", "publish_options",
		"PrefetchCount", "prefetchCount",
	)
	return replacer.Replace(namespace)
}
