package source

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/atlekbai/source_registry/internal/dialect"
	"github.com/atlekbai/source_registry/internal/query"
	"github.com/atlekbai/source_registry/internal/schema"
)

// Call carries the arguments an entrypoint is invoked with.
type Call struct {
	Args  []any
	Named map[string]any
}

func (c Call) empty() bool { return len(c.Args) == 0 && len(c.Named) == 0 }

// Producer builds the descriptor an entrypoint reads from. It receives the
// entity the entrypoint is registered on.
type Producer func(ent *schema.EntityDef, call Call) (*Descriptor, error)

// Fixed returns a producer that always yields d.
func Fixed(d *Descriptor) Producer {
	return func(*schema.EntityDef, Call) (*Descriptor, error) { return d, nil }
}

// Parameterized returns a producer binding raw SQL with one placeholder per
// named argument. Arguments may be passed positionally, by name, or mixed;
// a name overrides the positional value at its index.
func Parameterized(r Raw, argNames ...string) (Producer, error) {
	if n := dialect.CountPlaceholders(r.SQL); n != len(argNames) {
		return nil, configErrorf("raw SQL has %d placeholders but %d arguments are declared", n, len(argNames))
	}
	return func(_ *schema.EntityDef, call Call) (*Descriptor, error) {
		if len(call.Args) > len(argNames) {
			return nil, usageErrorf("takes %d arguments, got %d", len(argNames), len(call.Args))
		}
		for name := range call.Named {
			if !slices.Contains(argNames, name) {
				return nil, usageErrorf("unexpected argument %q", name)
			}
		}
		params := make([]any, len(argNames))
		for i, name := range argNames {
			if v, ok := call.Named[name]; ok {
				params[i] = v
				continue
			}
			if i >= len(call.Args) {
				return nil, usageErrorf("missing argument %q", name)
			}
			params[i] = call.Args[i]
		}
		raw := r
		raw.Params = params
		return FromRaw(raw)
	}, nil
}

// Entrypoint is a named source registered on an entity.
//
// An eager entrypoint is read with Query; its producer runs once per builder,
// at first compile. A call-parameterized entrypoint must be invoked with Call
// first, which yields a Bound source.
type Entrypoint struct {
	Name   string
	Entity *schema.EntityDef

	dialect           dialect.Dialect
	producer          Producer
	callParameterized bool
}

func (e *Entrypoint) IsCallParameterized() bool { return e.callParameterized }

func (e *Entrypoint) String() string { return e.Entity.Name + "." + e.Name }

// Query returns a builder over an eager entrypoint.
func (e *Entrypoint) Query() (query.Builder, error) {
	if e.callParameterized {
		return query.Builder{}, usageErrorf("%s must be called with arguments before it can be queried", e)
	}
	b := &binding{ent: e.Entity, resolve: func() (*Descriptor, error) { return e.Resolve(Call{}) }}
	return query.New(e.Entity, e.dialect).From(b), nil
}

// Call binds a call-parameterized entrypoint to positional arguments.
func (e *Entrypoint) Call(args ...any) (*Bound, error) {
	return e.CallNamed(nil, args...)
}

// CallNamed binds a call-parameterized entrypoint to named and positional
// arguments. The producer runs immediately.
func (e *Entrypoint) CallNamed(named map[string]any, args ...any) (*Bound, error) {
	if !e.callParameterized {
		return nil, usageErrorf("%s is not call-parameterized", e)
	}
	call := Call{Args: args, Named: named}
	d, err := e.Resolve(call)
	if err != nil {
		return nil, err
	}
	return &Bound{entrypoint: e, call: call, desc: d}, nil
}

// Resolve runs the producer and binds its descriptor to the entity.
func (e *Entrypoint) Resolve(call Call) (*Descriptor, error) {
	d, err := e.producer(e.Entity, call)
	if err != nil {
		if isSourceError(err) {
			return nil, fmt.Errorf("%s: %w", e, err)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrUsage, e, err)
	}
	if d == nil {
		return nil, configErrorf("%s produced no source", e)
	}
	bound, err := d.Bind(e.Entity)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e, err)
	}
	return bound, nil
}

// Bound is a call-parameterized entrypoint after it was called.
type Bound struct {
	entrypoint *Entrypoint
	call       Call
	desc       *Descriptor
}

func (b *Bound) Entrypoint() *Entrypoint { return b.entrypoint }

func (b *Bound) Descriptor() *Descriptor { return b.desc }

// Args returns the arguments the entrypoint was called with.
func (b *Bound) Args() Call { return b.call }

// Query returns a builder reading from the bound source.
func (b *Bound) Query() query.Builder {
	e := b.entrypoint
	return query.New(e.Entity, e.dialect).From(&binding{ent: e.Entity, desc: b.desc})
}

// binding is the FROM rewriter installed on builders. Exactly one of desc
// and resolve is set; resolve is run once and its result kept.
type binding struct {
	ent     *schema.EntityDef
	resolve func() (*Descriptor, error)

	once sync.Once
	desc *Descriptor
	err  error
}

func (b *binding) descriptor() (*Descriptor, error) {
	if b.resolve == nil {
		return b.desc, nil
	}
	b.once.Do(func() { b.desc, b.err = b.resolve() })
	return b.desc, b.err
}

func (b *binding) RewriteFrom(from query.FromClause) (query.FromClause, error) {
	d, err := b.descriptor()
	if err != nil {
		return from, err
	}
	st, err := Rewrite(from, d)
	if err != nil {
		return from, err
	}
	from.SQL = st.From
	from.Args = st.Params
	return from, nil
}

// Rebind swaps the bound values, keeping the substituted source text.
func (b *binding) Rebind(values ...any) (query.FromClauseRewriter, error) {
	d, err := b.descriptor()
	if err != nil {
		return nil, err
	}
	if len(values) != len(d.params) {
		return nil, usageErrorf("%s source takes %d params, got %d", b.ent.Name, len(d.params), len(values))
	}
	return &binding{ent: b.ent, desc: d.WithParams(values...)}, nil
}

// Source wraps a descriptor as a FROM rewriter for query.Builder.From.
func Source(ent *schema.EntityDef, d *Descriptor) (query.FromClauseRewriter, error) {
	bound, err := d.Bind(ent)
	if err != nil {
		return nil, err
	}
	return &binding{ent: ent, desc: bound}, nil
}

func isSourceError(err error) bool {
	return errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrColumnMismatch) ||
		errors.Is(err, ErrAmbiguousTranslation) ||
		errors.Is(err, ErrUsage)
}
