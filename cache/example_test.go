package cache_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/staffcache/cache"
)

func ExampleOpen() {
	m := cache.NewManager()
	defer func() { _ = m.Close(context.Background()) }()

	calls := 0
	projects, err := cache.Open(m, "projects", func(_ context.Context, _ ...any) ([]string, error) {
		calls++
		return []string{"Apollo", "Zephyr"}, nil
	}, cache.DefaultPolicy())
	if err != nil {
		fmt.Println("open:", err)
		return
	}

	ctx := context.Background()
	first, _ := projects.GetData(ctx)
	second, _ := projects.GetData(ctx)
	fmt.Println(first, second)
	fmt.Println("Fetches:", calls)
	// Output:
	// [Apollo Zephyr] [Apollo Zephyr]
	// Fetches: 1
}

func ExampleNamespace_GetData_arguments() {
	m := cache.NewManager()
	defer func() { _ = m.Close(context.Background()) }()

	byMonth, _ := cache.Open(m, "projectsByMonth", func(_ context.Context, args ...any) (string, error) {
		return fmt.Sprintf("projects for %v", args[0]), nil
	}, cache.Policy{ExpireAfter: 10 * time.Minute, StaleAfter: 2 * time.Minute})

	v, _ := byMonth.GetData(context.Background(), "2026-03")
	fmt.Println(v)
	// Output:
	// projects for 2026-03
}

func ExampleNamespace_Invalidate() {
	m := cache.NewManager()
	defer func() { _ = m.Close(context.Background()) }()

	ns, _ := cache.Open(m, "candidates", func(_ context.Context, args ...any) (int, error) {
		return len(args), nil
	}, cache.DefaultPolicy())

	ctx := context.Background()
	_, _ = ns.GetData(ctx, "open")
	_, _ = ns.GetData(ctx, "hired")
	fmt.Println("Entries:", ns.Len())

	_ = ns.Invalidate("open")
	fmt.Println("After one:", ns.Len())

	_ = ns.Invalidate()
	fmt.Println("After all:", ns.Len())
	// Output:
	// Entries: 2
	// After one: 1
	// After all: 0
}

func ExampleNamespace_Put() {
	m := cache.NewManager()
	defer func() { _ = m.Close(context.Background()) }()

	ns, _ := cache.Open(m, "paymentBatches", func(context.Context, ...any) (string, error) {
		return "", errors.New("backend unavailable")
	}, cache.DefaultPolicy())

	ctx := context.Background()
	_ = ns.Put(ctx, "seeded", "pending")

	v, err := ns.GetData(ctx, "pending")
	fmt.Println(v, err)
	// Output:
	// seeded <nil>
}

func ExampleManager_Invalidate() {
	m := cache.NewManager()
	defer func() { _ = m.Close(context.Background()) }()

	err := m.Invalidate("unknown")
	fmt.Println(errors.Is(err, cache.ErrNamespaceUnknown))
	// Output:
	// true
}
