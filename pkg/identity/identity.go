// Package identity implements the identifier scheme used to address stacks,
// resources and events. An identifier round-trips between a percent-escaped
// URL path form and a URL-safe canonical ARN form.
package identity

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/kiln-io/kiln/pkg/errors"
)

const arnPrefix = "arn:kiln:stacks:"

// Identifier addresses one stack, or a path below it (a resource or event).
type Identifier struct {
	// Tenant owning the stack
	Tenant string

	// Name of the stack, unique per tenant
	Name string

	// ID of the stack
	ID string

	// Path below the stack ("" for the stack itself,
	// "/resources/<name>" for a resource, and so on)
	Path string
}

// New creates an identifier for a stack.
func New(tenant, name, id string) Identifier {
	return Identifier{Tenant: tenant, Name: name, ID: id}
}

// Resource returns the identifier of a named resource within the stack.
func (i Identifier) Resource(name string) Identifier {
	child := i
	child.Path = i.Path + "/resources/" + escape(name)
	return child
}

// Event returns the identifier of an event recorded against the stack.
func (i Identifier) Event(id string) Identifier {
	child := i
	child.Path = i.Path + "/events/" + escape(id)
	return child
}

// ResourceName returns the resource name addressed by the identifier's path,
// or "" when the path does not address a resource.
func (i Identifier) ResourceName() string {
	parts := strings.Split(strings.TrimPrefix(i.Path, "/"), "/")
	for n := 0; n+1 < len(parts); n += 2 {
		if parts[n] == "resources" {
			name, err := url.PathUnescape(parts[n+1])
			if err != nil {
				return ""
			}
			return name
		}
	}
	return ""
}

// Stack returns the identifier with any sub-path stripped.
func (i Identifier) Stack() Identifier {
	i.Path = ""
	return i
}

// URLPath returns the percent-escaped path form:
// <tenant>/stacks/<name>/<id><path>.
func (i Identifier) URLPath() string {
	return escape(i.Tenant) + "/stacks/" + escape(i.Name) + "/" + escape(i.ID) + i.Path
}

// String returns the URL-safe canonical ARN form:
// arn:kiln:stacks:<tenant>:stacks/<name>/<id><path>.
func (i Identifier) String() string {
	return arnPrefix + escape(i.Tenant) + ":stacks/" + escape(i.Name) + "/" + escape(i.ID) + i.Path
}

// Parse decodes the canonical ARN form produced by String.
func Parse(arn string) (Identifier, error) {
	if !strings.HasPrefix(arn, arnPrefix) {
		return Identifier{}, errors.New(errors.ErrCodeValidation, fmt.Sprintf("%q is not a kiln ARN", arn))
	}
	rest := arn[len(arnPrefix):]
	sep := strings.Index(rest, ":")
	if sep < 0 {
		return Identifier{}, errors.New(errors.ErrCodeValidation, fmt.Sprintf("malformed ARN %q", arn))
	}
	tenant, err := url.PathUnescape(rest[:sep])
	if err != nil {
		return Identifier{}, errors.Wrap(errors.ErrCodeValidation, fmt.Sprintf("malformed ARN %q", arn), err)
	}
	id, err := parseStackPath(rest[sep+1:])
	if err != nil {
		return Identifier{}, errors.Wrap(errors.ErrCodeValidation, fmt.Sprintf("malformed ARN %q", arn), err)
	}
	id.Tenant = tenant
	return id, nil
}

// ParseURLPath decodes the path form produced by URLPath. A leading slash is
// tolerated.
func ParseURLPath(path string) (Identifier, error) {
	path = strings.TrimPrefix(path, "/")
	sep := strings.Index(path, "/")
	if sep < 0 {
		return Identifier{}, errors.New(errors.ErrCodeValidation, fmt.Sprintf("malformed identifier path %q", path))
	}
	tenant, err := url.PathUnescape(path[:sep])
	if err != nil {
		return Identifier{}, errors.Wrap(errors.ErrCodeValidation, fmt.Sprintf("malformed identifier path %q", path), err)
	}
	id, err := parseStackPath(path[sep+1:])
	if err != nil {
		return Identifier{}, errors.Wrap(errors.ErrCodeValidation, fmt.Sprintf("malformed identifier path %q", path), err)
	}
	id.Tenant = tenant
	return id, nil
}

// parseStackPath decodes "stacks/<name>/<id><path>".
func parseStackPath(s string) (Identifier, error) {
	parts := strings.SplitN(s, "/", 4)
	if len(parts) < 3 || parts[0] != "stacks" {
		return Identifier{}, fmt.Errorf("expected stacks/<name>/<id>, got %q", s)
	}
	name, err := url.PathUnescape(parts[1])
	if err != nil {
		return Identifier{}, err
	}
	id, err := url.PathUnescape(parts[2])
	if err != nil {
		return Identifier{}, err
	}
	ident := Identifier{Name: name, ID: id}
	if len(parts) == 4 && parts[3] != "" {
		ident.Path = "/" + parts[3]
	}
	return ident, nil
}

// escape percent-encodes a path segment. Beyond what net/url escapes inside
// a segment, ":" must be encoded so the ARN form stays splittable.
func escape(s string) string {
	return strings.ReplaceAll(url.PathEscape(s), ":", "%3A")
}
