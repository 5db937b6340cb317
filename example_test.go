package arenago_test

import (
	"fmt"
	"sync"

	"github.com/hupe1980/arenago"
)

func ExampleArena() {
	a := arenago.NewArena(arenago.WithBlockSize(1 << 20))
	defer a.Close()

	buf := a.Allocate(64)
	copy(buf, "scratch space")

	fmt.Println(len(buf), a.BlockSize())
	// Output: 64 1048576
}

func ExampleArena_AllocateAligned() {
	a := arenago.NewArena()
	defer a.Close()

	hdr := a.AllocateAligned(24, 0)

	fmt.Println(len(hdr))
	// Output: 24
}

func ExampleArena_Stats() {
	a := arenago.NewArena()
	defer a.Close()

	fmt.Println(a.Stats())
	// Output: block_size=4.0 KiB allocated=2.0 KiB unused=2.0 KiB usage=0 B irregular_blocks=0
}

func ExampleConcurrentArena() {
	ca := arenago.NewConcurrentArena(arenago.WithBlockSize(1 << 20))
	defer ca.Close()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			buf := ca.Allocate(48)
			_ = buf
		}()
	}
	wg.Wait()

	fmt.Println(ca.BlockSize())
	// Output: 1048576
}

func ExampleNew() {
	a := arenago.NewArena()
	defer a.Close()

	type point struct{ X, Y int32 }

	p := arenago.New[point](a)
	p.X, p.Y = 3, 4

	fmt.Println(p.X + p.Y)
	// Output: 7
}

func ExampleMakeSlice() {
	a := arenago.NewArena()
	defer a.Close()

	xs := arenago.MakeSlice[float64](a, 0, 1024)
	xs = append(xs, 1.5, 2.5)

	fmt.Println(len(xs), cap(xs), xs[0]+xs[1])
	// Output: 2 1024 4
}

func ExampleNewBudgetTracker() {
	tracker := arenago.NewBudgetTracker(64 << 10)

	a := arenago.NewArena(arenago.WithTracker(tracker))
	defer a.Close()

	a.Allocate(5000)

	fmt.Println(tracker.Allocated(), tracker.OverBudget())
	// Output: 7048 false
}
