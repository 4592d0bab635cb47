package writebatch

// Parameter is one bound value of a statement. Name is empty for positional
// placeholders.
type Parameter struct {
	Name  string
	Value any
}

// Clone returns a copy that can be owned by another parameter list.
func (p *Parameter) Clone() *Parameter {
	c := *p
	return &c
}

// ParameterList is the ordered parameter collection of a statement.
type ParameterList struct {
	items []*Parameter
	// onAdd runs after every Add and may touch other lists.
	onAdd func(p *Parameter)
}

// NewParameterList creates a list holding the given positional values.
func NewParameterList(values ...any) *ParameterList {
	l := &ParameterList{items: make([]*Parameter, 0, len(values))}
	for _, v := range values {
		l.items = append(l.items, &Parameter{Value: v})
	}
	return l
}

// setOnAdd installs a hook called after each Add.
func (l *ParameterList) setOnAdd(fn func(p *Parameter)) {
	l.onAdd = fn
}

// Len returns the number of parameters
func (l *ParameterList) Len() int {
	return len(l.items)
}

// At returns the parameter at index i
func (l *ParameterList) At(i int) *Parameter {
	return l.items[i]
}

// Add appends a parameter
func (l *ParameterList) Add(p *Parameter) {
	l.items = append(l.items, p)
	if l.onAdd != nil {
		l.onAdd(p)
	}
}

// Values returns the parameter values in order.
func (l *ParameterList) Values() []any {
	out := make([]any, len(l.items))
	for i, p := range l.items {
		out[i] = p.Value
	}
	return out
}

// slice returns the values of parameters [from, Len()).
func (l *ParameterList) slice(from int) []any {
	if from >= len(l.items) {
		return nil
	}
	out := make([]any, 0, len(l.items)-from)
	for _, p := range l.items[from:] {
		out = append(out, p.Value)
	}
	return out
}

// transferParameters appends clones of src's parameters to dst. The source
// length is captured up front since dst.Add may grow src.
func transferParameters(dst, src *ParameterList) {
	n := src.Len()
	for i := 0; i < n; i++ {
		dst.Add(src.At(i).Clone())
	}
}
