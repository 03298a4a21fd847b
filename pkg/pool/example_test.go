package pool_test

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ajitpratap0/slotpool/pkg/pool"
)

// Example demonstrates checking values out of a pool and returning them.
func Example() {
	names := []string{"a", "b"}
	next := 0
	p, err := pool.New(len(names), func() string {
		s := names[next]
		next++
		return s
	})
	if err != nil {
		panic(err)
	}
	defer p.Close()

	first, _ := p.Checkout()
	second, _ := p.Checkout()
	fmt.Println(*first.Value(), *second.Value())

	// Both slots are taken.
	_, err = p.Checkout()
	fmt.Println(errors.Is(err, pool.ErrPoolExhausted))

	first.Release()
	again, _ := p.Checkout()
	fmt.Println(*again.Value())

	again.Release()
	second.Release()

	// Output:
	// a b
	// true
	// a
}

// ExamplePool_Do shows scoped use of a pooled value.
func ExamplePool_Do() {
	p, err := pool.New(4, func() *strings.Builder { return new(strings.Builder) })
	if err != nil {
		panic(err)
	}
	defer p.Close()

	_ = p.Do(func(sb **strings.Builder) error {
		(*sb).Reset()
		(*sb).WriteString("pooled")
		fmt.Println((*sb).String())
		return nil
	})

	fmt.Println(p.InUse())

	// Output:
	// pooled
	// 0
}

// ExampleCheckout_Release demonstrates releasing a handle from another
// goroutine.
func ExampleCheckout_Release() {
	p, err := pool.New(1, func() int { return 0 })
	if err != nil {
		panic(err)
	}
	defer p.Close()

	c, _ := p.Checkout()
	*c.Value() = 42

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Release()
	}()
	wg.Wait()

	c, _ = p.Checkout()
	fmt.Println(*c.Value())
	c.Release()

	// Output:
	// 42
}

// ExampleNewSlab shows a pool of fixed-size byte buffers.
func ExampleNewSlab() {
	p, err := pool.NewSlab(2, 16)
	if err != nil {
		panic(err)
	}
	defer p.Close()

	c, _ := p.Checkout()
	buf := *c.Value()
	n := copy(buf, "slab")
	fmt.Println(len(buf), cap(buf), string(buf[:n]))
	c.Release()

	// Output:
	// 16 16 slab
}

// ExampleCheckoutReset shows checking out a value that resets itself.
func ExampleCheckoutReset() {
	p, err := pool.New(1, func() bytes.Buffer { return bytes.Buffer{} })
	if err != nil {
		panic(err)
	}
	defer p.Close()

	c, _ := p.Checkout()
	c.Value().WriteString("stale")
	c.Release()

	c, _ = pool.CheckoutReset(p)
	fmt.Println(c.Value().Len())
	c.Release()

	// Output:
	// 0
}
