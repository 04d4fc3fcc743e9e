// Package rpc implements a typed procedure router. Procedures are named
// queries and mutations with an access level enforced by middleware before
// the handler runs.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/permissions"
)

// Kind separates read-only procedures from state-changing ones.
type Kind int

const (
	KindQuery Kind = iota
	KindMutation
)

func (k Kind) String() string {
	if k == KindMutation {
		return "mutation"
	}
	return "query"
}

type level int

const (
	levelPublic level = iota
	levelAuthed
	levelAdmin
	levelBrand
)

// Access is the authorization requirement of a procedure.
type Access struct {
	level level
	perm  permissions.Set
}

// Public procedures need no credentials.
func Public() Access { return Access{level: levelPublic} }

// Authed procedures need a signed-in user.
func Authed() Access { return Access{level: levelAuthed} }

// Admin procedures need the platform admin role.
func Admin() Access { return Access{level: levelAdmin} }

// Brand procedures need perm within the brand named by the input.
func Brand(perm permissions.Set) Access { return Access{level: levelBrand, perm: perm} }

func (a Access) String() string {
	switch a.level {
	case levelAuthed:
		return "authed"
	case levelAdmin:
		return "admin"
	case levelBrand:
		return "brand(" + a.perm.String() + ")"
	default:
		return "public"
	}
}

// Handler executes a procedure on raw JSON input.
type Handler func(ctx context.Context, input json.RawMessage) (any, error)

// Procedure is one registered operation.
type Procedure struct {
	Name    string
	Kind    Kind
	Access  Access
	Handler Handler

	// scope extracts the brand id from raw input for Brand access.
	scope func(json.RawMessage) (string, error)
}

// Validator is implemented by inputs that check themselves after decoding.
type Validator interface {
	Validate() error
}

// BrandScoped is implemented, with a value receiver, by inputs of Brand
// procedures.
type BrandScoped interface {
	BrandScope() string
}

// Query builds a typed read procedure.
func Query[In, Out any](name string, access Access, fn func(ctx context.Context, in In) (Out, error)) Procedure {
	return typed(name, KindQuery, access, fn)
}

// Mutation builds a typed write procedure.
func Mutation[In, Out any](name string, access Access, fn func(ctx context.Context, in In) (Out, error)) Procedure {
	return typed(name, KindMutation, access, fn)
}

func typed[In, Out any](name string, kind Kind, access Access, fn func(ctx context.Context, in In) (Out, error)) Procedure {
	p := Procedure{
		Name:   name,
		Kind:   kind,
		Access: access,
		Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
			in, err := decodeInput[In](raw)
			if err != nil {
				return nil, err
			}
			return fn(ctx, in)
		},
	}

	var zero In
	if _, ok := any(zero).(BrandScoped); ok {
		p.scope = func(raw json.RawMessage) (string, error) {
			in, err := decodeInput[In](raw)
			if err != nil {
				return "", err
			}
			return any(in).(BrandScoped).BrandScope(), nil
		}
	}
	return p
}

// decodeInput decodes raw strictly; empty input and null yield the zero value.
func decodeInput[In any](raw json.RawMessage) (In, error) {
	var in In
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&in); err != nil {
			return in, errors.InvalidInputf("invalid input: %v", err)
		}
	}
	if v, ok := any(&in).(Validator); ok {
		if err := v.Validate(); err != nil {
			return in, validationError(err)
		}
	}
	return in, nil
}

func validationError(err error) error {
	if errors.GetServiceError(err) != nil {
		return err
	}
	return errors.InvalidInput(err.Error())
}

// Empty is the input of procedures that take none.
type Empty struct{}

// OK is the result of procedures with nothing to return.
type OK struct {
	OK bool `json:"ok"`
}

func (p Procedure) validate() error {
	if p.Name == "" {
		return fmt.Errorf("procedure name is empty")
	}
	if p.Handler == nil {
		return fmt.Errorf("procedure %s has no handler", p.Name)
	}
	if p.Access.level == levelBrand && p.scope == nil {
		return fmt.Errorf("procedure %s: brand access requires a BrandScoped input", p.Name)
	}
	return nil
}
