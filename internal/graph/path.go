// Package graph defines the value types shared by every connector: names,
// paths, properties, references and locations.
package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// Name is a node or property name, optionally namespace-prefixed ("jcr:content").
type Name string

// Validate reports whether n can be used as a path segment name.
func (n Name) Validate() error {
	if n == "" {
		return fmt.Errorf("graph: empty name")
	}
	if strings.ContainsAny(string(n), "/[]") {
		return fmt.Errorf("graph: invalid character in name %q", string(n))
	}
	return nil
}

// Segment is one step of a path: a name plus its 1-based same-name-sibling index.
type Segment struct {
	Name  Name
	Index int
}

// NewSegment returns a segment; indexes below 1 are treated as 1.
func NewSegment(name Name, index int) Segment {
	if index < 1 {
		index = 1
	}
	return Segment{Name: name, Index: index}
}

// String renders the segment, eliding index 1.
func (s Segment) String() string {
	if s.Index <= 1 {
		return string(s.Name)
	}
	return string(s.Name) + "[" + strconv.Itoa(s.Index) + "]"
}

// ParseSegment parses "name" or "name[n]".
func ParseSegment(s string) (Segment, error) {
	name, index := s, 1
	if open := strings.IndexByte(s, '['); open >= 0 {
		if !strings.HasSuffix(s, "]") {
			return Segment{}, fmt.Errorf("graph: malformed segment %q", s)
		}
		n, err := strconv.Atoi(s[open+1 : len(s)-1])
		if err != nil || n < 1 {
			return Segment{}, fmt.Errorf("graph: invalid index in segment %q", s)
		}
		name, index = s[:open], n
	}
	if err := Name(name).Validate(); err != nil {
		return Segment{}, err
	}
	return Segment{Name: Name(name), Index: index}, nil
}

// Path is an absolute, immutable sequence of segments. The zero value means
// "no path"; RootPath returns the path of a workspace root.
type Path struct {
	segs []Segment
	set  bool
}

// RootPath returns "/".
func RootPath() Path {
	return Path{set: true}
}

// NewPath builds an absolute path from segments.
func NewPath(segs ...Segment) Path {
	out := make([]Segment, len(segs))
	for i, s := range segs {
		out[i] = NewSegment(s.Name, s.Index)
	}
	return Path{segs: out, set: true}
}

// ParsePath parses an absolute path such as "/a/b[2]/c". A trailing slash is ignored.
func ParsePath(s string) (Path, error) {
	if !strings.HasPrefix(s, "/") {
		return Path{}, fmt.Errorf("graph: path %q is not absolute", s)
	}
	trimmed := strings.Trim(s, "/")
	if trimmed == "" {
		return RootPath(), nil
	}
	parts := strings.Split(trimmed, "/")
	segs := make([]Segment, 0, len(parts))
	for _, p := range parts {
		seg, err := ParseSegment(p)
		if err != nil {
			return Path{}, fmt.Errorf("graph: parse path %q: %w", s, err)
		}
		segs = append(segs, seg)
	}
	return Path{segs: segs, set: true}, nil
}

// MustParsePath is ParsePath for literals; it panics on malformed input.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// IsZero reports whether p carries no path at all.
func (p Path) IsZero() bool { return !p.set }

// IsRoot reports whether p is "/".
func (p Path) IsRoot() bool { return p.set && len(p.segs) == 0 }

// Len returns the number of segments.
func (p Path) Len() int { return len(p.segs) }

// Segments returns a copy of the segments.
func (p Path) Segments() []Segment {
	out := make([]Segment, len(p.segs))
	copy(out, p.segs)
	return out
}

// Segment returns the i-th segment.
func (p Path) Segment(i int) Segment { return p.segs[i] }

// Last returns the final segment. It panics on the root path.
func (p Path) Last() Segment {
	return p.segs[len(p.segs)-1]
}

// Parent returns the parent path; the parent of the root is the zero Path.
func (p Path) Parent() Path {
	if p.IsZero() || p.IsRoot() {
		return Path{}
	}
	return Path{segs: p.segs[:len(p.segs)-1:len(p.segs)-1], set: true}
}

// Ancestor returns the ancestor depth levels above p.
func (p Path) Ancestor(depth int) Path {
	if depth < 0 || depth > len(p.segs) {
		return Path{}
	}
	n := len(p.segs) - depth
	return Path{segs: p.segs[:n:n], set: true}
}

// Child returns p extended by seg.
func (p Path) Child(seg Segment) Path {
	out := make([]Segment, len(p.segs), len(p.segs)+1)
	copy(out, p.segs)
	return Path{segs: append(out, NewSegment(seg.Name, seg.Index)), set: true}
}

// ChildNamed returns p extended by name[1].
func (p Path) ChildNamed(name Name) Path {
	return p.Child(NewSegment(name, 1))
}

// Join appends a relative suffix ("b/c[2]") to p.
func (p Path) Join(relative string) (Path, error) {
	relative = strings.Trim(relative, "/")
	if relative == "" {
		return p, nil
	}
	out := p
	for _, part := range strings.Split(relative, "/") {
		seg, err := ParseSegment(part)
		if err != nil {
			return Path{}, err
		}
		out = out.Child(seg)
	}
	return out, nil
}

// Equal reports whether both paths have identical segment sequences.
func (p Path) Equal(o Path) bool {
	if p.set != o.set || len(p.segs) != len(o.segs) {
		return false
	}
	for i := range p.segs {
		if p.segs[i] != o.segs[i] {
			return false
		}
	}
	return true
}

// IsAtOrBelow reports whether p equals ancestor or lies inside its subtree.
func (p Path) IsAtOrBelow(ancestor Path) bool {
	if p.IsZero() || ancestor.IsZero() || len(ancestor.segs) > len(p.segs) {
		return false
	}
	for i := range ancestor.segs {
		if ancestor.segs[i] != p.segs[i] {
			return false
		}
	}
	return true
}

// IsAncestorOf reports whether p is a strict ancestor of o.
func (p Path) IsAncestorOf(o Path) bool {
	return len(p.segs) < len(o.segs) && o.IsAtOrBelow(p)
}

// Rebase replaces the prefix from with to. p must be at or below from.
func (p Path) Rebase(from, to Path) Path {
	out := make([]Segment, 0, len(to.segs)+len(p.segs)-len(from.segs))
	out = append(out, to.segs...)
	out = append(out, p.segs[len(from.segs):]...)
	return Path{segs: out, set: true}
}

// AfterRemoval returns where p ends up once the node at removed is deleted
// and its later same-name siblings are renumbered. Paths inside the removed
// subtree are returned unchanged.
func (p Path) AfterRemoval(removed Path) Path {
	if removed.IsZero() || removed.IsRoot() || p.Len() < removed.Len() {
		return p
	}
	parent := removed.Parent()
	if !p.IsAtOrBelow(parent) || p.IsAtOrBelow(removed) {
		return p
	}
	gone := removed.Last()
	seg := p.segs[parent.Len()]
	if seg.Name != gone.Name || seg.Index < gone.Index {
		return p
	}
	out := p.Segments()
	out[parent.Len()] = NewSegment(seg.Name, seg.Index-1)
	return Path{segs: out, set: true}
}

// String renders the canonical form; index 1 is elided.
func (p Path) String() string {
	if p.IsZero() {
		return ""
	}
	if p.IsRoot() {
		return "/"
	}
	var b strings.Builder
	for _, s := range p.segs {
		b.WriteByte('/')
		b.WriteString(s.String())
	}
	return b.String()
}

// MarshalText implements encoding.TextMarshaler.
func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Path) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*p = Path{}
		return nil
	}
	parsed, err := ParsePath(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
