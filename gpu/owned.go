package gpu

// Releaser is anything that owns exactly one native object.
type Releaser interface {
	Label() string
	Release()
}

// Owned pairs a handle with the call that releases it. Release runs the call at most once.
type Owned[T any] struct {
	label    string
	value    T
	release  func(T)
	released bool
}

func Own[T any](label string, value T, release func(T)) *Owned[T] {
	return &Owned[T]{label: label, value: value, release: release}
}

func (o *Owned[T]) Value() T      { return o.value }
func (o *Owned[T]) Label() string { return o.label }
func (o *Owned[T]) Released() bool {
	return o.released
}

func (o *Owned[T]) Release() {
	if o.released {
		return
	}
	o.released = true
	if o.release != nil {
		o.release(o.value)
	}
}
