package pool

// Resetter is implemented by values that can restore themselves to a clean
// state.
type Resetter interface {
	Reset()
}

// CheckoutReset checks out a value from p and resets it before returning.
// The pool itself never resets values; use this when the previous holder's
// state must not leak to the next one.
func CheckoutReset[T any, PT interface {
	*T
	Resetter
}](p *Pool[T]) (*Checkout[T], error) {
	c, err := p.Checkout()
	if err != nil {
		return nil, err
	}
	PT(c.Value()).Reset()
	return c, nil
}

// CheckoutFunc checks out a value from p and runs reset on it before
// returning. It serves value types that cannot implement Resetter.
func CheckoutFunc[T any](p *Pool[T], reset func(*T)) (*Checkout[T], error) {
	c, err := p.Checkout()
	if err != nil {
		return nil, err
	}
	if reset != nil {
		reset(c.Value())
	}
	return c, nil
}
