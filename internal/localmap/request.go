package localmap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/config"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/graph"
)

var validate = validator.New()

// ValidationError is a client-correctable request problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Bounds selects every visited sector within Radius world units of Center.
type Bounds struct {
	Center graph.World `json:"center"`
	Radius float64     `json:"radius" validate:"gt=0,lte=1000"`
}

// Request is the "get local map" command.
type Request struct {
	CharacterID  string  `json:"character_id" validate:"required"`
	CenterSector *int    `json:"center_sector,omitempty" validate:"omitempty,gte=0"`
	MaxHops      *int    `json:"max_hops,omitempty" validate:"omitempty,gte=0,lte=100"`
	MaxSectors   *int    `json:"max_sectors,omitempty" validate:"omitempty,gt=0"`
	Bounds       *Bounds `json:"bounds,omitempty"`
}

// Limits are the resolved traversal limits of a build.
type Limits struct {
	MaxHops    int
	MaxSectors int
}

// Resolve validates the request and applies defaults. This is the only place
// where missing limits are defaulted.
func (r Request) Resolve(cfg config.LocalMapConfig) (Limits, error) {
	if err := validate.Struct(r); err != nil {
		return Limits{}, toValidationError(err)
	}
	lim := Limits{MaxHops: cfg.DefaultMaxHops, MaxSectors: cfg.DefaultMaxSectors}
	if r.MaxHops != nil {
		if *r.MaxHops > cfg.MaxHopsLimit {
			return Limits{}, &ValidationError{Field: "max_hops", Message: fmt.Sprintf("must be between 0 and %d", cfg.MaxHopsLimit)}
		}
		lim.MaxHops = *r.MaxHops
	}
	if r.MaxSectors != nil {
		if cfg.MaxSectorsLimit > 0 && *r.MaxSectors > cfg.MaxSectorsLimit {
			return Limits{}, &ValidationError{Field: "max_sectors", Message: fmt.Sprintf("must be at most %d", cfg.MaxSectorsLimit)}
		}
		lim.MaxSectors = *r.MaxSectors
	}
	return lim, nil
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	fe := verrs[0]
	field := jsonName(fe.StructNamespace())
	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "gte":
		msg = "must be at least " + fe.Param()
	case "lte":
		msg = "must be at most " + fe.Param()
	case "gt":
		msg = "must be greater than " + fe.Param()
	default:
		msg = "is invalid (" + fe.Tag() + ")"
	}
	return &ValidationError{Field: field, Message: msg}
}

var fieldNames = map[string]string{
	"CharacterID":  "character_id",
	"CenterSector": "center_sector",
	"MaxHops":      "max_hops",
	"MaxSectors":   "max_sectors",
	"Bounds":       "bounds",
	"Radius":       "radius",
}

// jsonName maps "Request.Bounds.Radius" to "bounds.radius".
func jsonName(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		if n, ok := fieldNames[p]; ok {
			parts[i] = n
		}
	}
	return strings.Join(parts, ".")
}
