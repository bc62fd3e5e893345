package request

// Composite groups requests that execute in a single transaction. Processing
// stops at the first failing request, whose error becomes the composite's.
type Composite struct {
	Base
	Requests []Request
}

// NewComposite returns a composite over reqs.
func NewComposite(reqs ...Request) *Composite {
	return &Composite{Requests: reqs}
}

func (*Composite) Kind() string { return "composite" }

// IsReadOnly reports whether every member is read-only.
func (c *Composite) IsReadOnly() bool {
	for _, r := range c.Requests {
		if !r.IsReadOnly() {
			return false
		}
	}
	return true
}
