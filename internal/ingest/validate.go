package ingest

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/abramin/callrisk/internal/graph"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Limits bounds the size of one ingestion.
type Limits struct {
	MaxFunctions       int
	MaxEdges           int
	MaxVulnerabilities int
}

// DefaultLimits returns the stock ingestion limits.
func DefaultLimits() Limits {
	return Limits{MaxFunctions: 10000, MaxEdges: 50000, MaxVulnerabilities: 1000}
}

// Validator checks wire requests before they reach the domain.
type Validator struct {
	validate *validator.Validate
	limits   Limits
}

// NewValidator creates a validator enforcing limits.
func NewValidator(limits Limits) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("funcid", func(fl validator.FieldLevel) bool {
		return idPattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("ingest: registering funcid validation: %v", err))
	}

	return &Validator{validate: v, limits: limits}
}

// ValidateGraph checks field formats, size limits and the structural rules of
// a graph upload: unique function ids, known edge endpoints, no self-loops and
// no duplicate edges.
func (v *Validator) ValidateGraph(req *GraphRequest) error {
	if err := v.validate.Struct(req); err != nil {
		return formatValidationError(err)
	}
	if limit := v.limits.MaxFunctions; limit > 0 && len(req.Functions) > limit {
		return &graph.ValidationError{Message: fmt.Sprintf("too many functions: %d (max %d)", len(req.Functions), limit)}
	}
	if limit := v.limits.MaxEdges; limit > 0 && len(req.Edges) > limit {
		return &graph.ValidationError{Message: fmt.Sprintf("too many edges: %d (max %d)", len(req.Edges), limit)}
	}

	ids := make(map[string]struct{}, len(req.Functions))
	var dups []string
	for _, f := range req.Functions {
		if _, ok := ids[f.ID]; ok {
			dups = append(dups, f.ID)
			continue
		}
		ids[f.ID] = struct{}{}
	}
	if len(dups) > 0 {
		return &graph.ValidationError{Message: "function ids must be unique", IDs: dups}
	}

	seen := make(map[EdgeDTO]struct{}, len(req.Edges))
	for _, e := range req.Edges {
		_, fromOK := ids[e.From]
		_, toOK := ids[e.To]
		switch {
		case !fromOK || !toOK:
			return &graph.ValidationError{Message: "edge refers to non-existent function", IDs: []string{e.From + " -> " + e.To}}
		case e.From == e.To:
			return &graph.ValidationError{Message: "self-loops are not allowed", IDs: []string{e.From}}
		}
		if _, dup := seen[e]; dup {
			return &graph.ValidationError{Message: "duplicate edge", IDs: []string{e.From + " -> " + e.To}}
		}
		seen[e] = struct{}{}
	}
	return nil
}

// ValidateVulnerabilities checks field formats, the batch size and id
// uniqueness. Duplicate ids are reported as a conflict.
func (v *Validator) ValidateVulnerabilities(dtos []VulnerabilityDTO) error {
	if limit := v.limits.MaxVulnerabilities; limit > 0 && len(dtos) > limit {
		return &graph.ValidationError{Message: fmt.Sprintf("too many vulnerabilities: %d (max %d)", len(dtos), limit)}
	}
	for i := range dtos {
		if err := v.validate.Struct(&dtos[i]); err != nil {
			return fmt.Errorf("vulnerabilities[%d]: %w", i, formatValidationError(err))
		}
	}

	seen := make(map[string]struct{}, len(dtos))
	var dups []string
	for _, d := range dtos {
		if _, ok := seen[d.ID]; ok {
			dups = append(dups, d.ID)
			continue
		}
		seen[d.ID] = struct{}{}
	}
	if len(dups) > 0 {
		return &graph.ConflictError{Kind: "vulnerability", IDs: dups}
	}
	return nil
}

// formatValidationError converts validator errors to a graph.ValidationError.
func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &graph.ValidationError{Message: err.Error()}
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return &graph.ValidationError{Message: strings.Join(msgs, "; ")}
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	// Drop the struct name prefix.
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must contain at least %s items", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "funcid":
		return field + " must contain only letters, digits, underscores and hyphens"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
