package wireup

import (
	"fmt"

	"github.com/wireup-go/wireup/internal/reflection"
)

// In is a marker type for parameter objects. When a constructor accepts a
// single struct parameter with an embedded In, every exported field of that
// struct is treated as its own constructor dependency.
//
// Supported field tags:
//   - `optional:"true"` - the field is optional; a missing dependency leaves
//     it at its zero value instead of failing resolution
//   - `name:"serviceName"` - the field is resolved as a keyed export
//   - `group:"groupName"` - the field (a slice) is filled from a group
//
// Example:
//
//	type ServiceParams struct {
//	    wireup.In
//
//	    Database *sql.DB
//	    Logger   Logger `optional:"true"`
//	    Cache    Cache  `name:"redis"`
//	    Handlers []http.Handler `group:"routes"`
//	}
//
// The In struct must be embedded anonymously, not as a named field.
//
// In is an alias of the internal reflection package's own marker type:
// analyzer.Analyze identifies a parameter object by the exact reflect.Type
// of its embedded field, so this package's In must be the same type the
// analyzer compares against, not merely a look-alike declaration.
type In = reflection.In

// Out is a marker type for result objects. When a constructor returns a
// struct with an embedded Out, each exported field of that struct is
// registered as its own export.
//
// Example:
//
//	type ServiceResult struct {
//	    wireup.Out
//
//	    UserService  *UserService
//	    AdminService *AdminService `name:"admin"`
//	    Handler      http.Handler  `group:"routes"`
//	}
//
// Out is an alias of the internal reflection package's own marker type,
// for the same reason In is: exact type identity, not shape, is what
// analyzer.Analyze matches against.
type Out = reflection.Out

// AddOption modifies the default behavior of Descriptor registration.
type AddOption interface {
	applyAddOption(*addOptions)
}

type addOptions struct {
	Name     string
	Group    string
	Priority int
	As       []any
}

func (o *addOptions) Validate() error {
	if o.Name != "" && o.Group != "" {
		return &ValidationError{Cause: fmt.Errorf("cannot set both Name and Group on the same registration")}
	}
	return nil
}

// Name registers the export under a key, making it resolvable by name
// alongside (or instead of) its bare type.
//
//	collection.AddSingleton(newRedisCache, wireup.Name("redis"))
//	collection.AddSingleton(newMemCache, wireup.Name("memory"))
func Name(name string) AddOption {
	return nameOption{name}
}

type nameOption struct{ name string }

func (o nameOption) applyAddOption(opts *addOptions) { opts.Name = o.name }

// Group adds the export to a named group. Groups collect every matching
// export of a type into a slice, consumed via a `group:"name"` tag on an In
// field or ResolveAll.
//
//	collection.AddSingleton(newUserHandler, wireup.Group("routes"))
//	collection.AddSingleton(newAdminHandler, wireup.Group("routes"))
func Group(group string) AddOption {
	return groupOption{group}
}

type groupOption struct{ group string }

func (o groupOption) applyAddOption(opts *addOptions) { opts.Group = o.group }

// As registers the export additionally under one or more interface types it
// implements, so it is resolvable as those interfaces as well as its
// concrete type.
//
//	collection.AddSingleton(newPostgresDB, wireup.As(new(Reader), new(Writer)))
func As(interfaces ...any) AddOption {
	return asOption{interfaces}
}

type asOption struct{ interfaces []any }

func (o asOption) applyAddOption(opts *addOptions) { opts.As = append(opts.As, o.interfaces...) }

// Priority orders exports of the same type: when more than one strategy can
// produce a requested type, the highest-priority strategy is preferred, with
// registration order breaking ties among equal priorities.
//
//	collection.AddSingleton(newFallbackCache)
//	collection.AddSingleton(newRedisCache, wireup.Priority(10))
func Priority(priority int) AddOption {
	return priorityOption{priority}
}

type priorityOption struct{ priority int }

func (o priorityOption) applyAddOption(opts *addOptions) { opts.Priority = o.priority }
