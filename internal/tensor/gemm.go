package tensor

import (
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sys/cpu"
)

// The kernels below block over the K dimension so the working set of the
// inner loops stays cache-resident. Wider vector units shift the sweet spot
// upward, so the tile size is keyed off the detected CPU features once at
// startup.
var tileK = pickTileK()

func pickTileK() int {
	switch {
	case cpu.X86.HasAVX512F:
		return 256
	case cpu.X86.HasAVX2, cpu.ARM64.HasASIMD:
		return 128
	default:
		return 64
	}
}

type gemmTask struct {
	run  func()
	done chan struct{}
}

type gemmPool struct {
	size  int
	tasks chan gemmTask
}

var (
	gemmWorkPool *gemmPool
	gemmPoolOnce sync.Once
)

func getGemmPool() *gemmPool {
	gemmPoolOnce.Do(func() {
		size := runtime.GOMAXPROCS(0)
		if size < 1 {
			size = 1
		}
		p := &gemmPool{
			size:  size,
			tasks: make(chan gemmTask, size*2),
		}
		for i := 0; i < size; i++ {
			go func() {
				for task := range p.tasks {
					task.run()
					task.done <- struct{}{}
				}
			}()
		}
		gemmWorkPool = p
	})
	return gemmWorkPool
}

// ParallelFor splits [0, n) into roughly equal chunks and runs fn on the
// shared worker pool. fn must not touch overlapping output ranges.
func ParallelFor(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	pool := getGemmPool()
	workers := pool.size
	if workers > n {
		workers = n
	}
	if workers == 1 {
		fn(0, n)
		return
	}
	done := make(chan struct{}, workers)
	chunk := (n + workers - 1) / workers
	launched := 0
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		s, e := start, end
		pool.tasks <- gemmTask{run: func() { fn(s, e) }, done: done}
		launched++
	}
	for i := 0; i < launched; i++ {
		<-done
	}
}

// matMulRange computes rows [rs, re) of dst = x * w for row-major operands.
func matMulRange(dst, x, w []float32, k, n, rs, re int) {
	for i := rs; i < re; i++ {
		row := dst[i*n : (i+1)*n]
		for j := range row {
			row[j] = 0
		}
		for kk := 0; kk < k; kk += tileK {
			kend := kk + tileK
			if kend > k {
				kend = k
			}
			for p := kk; p < kend; p++ {
				a := x[i*k+p]
				if a == 0 {
					continue
				}
				wrow := w[p*n : (p+1)*n]
				for j, wv := range wrow {
					row[j] += a * wv
				}
			}
		}
	}
}

// MatMul computes the rank-2 product (r, k) x (k, n) -> (r, n), parallelised
// over output rows.
func MatMul(x, w *Tensor) *Tensor {
	if x.Rank() != 2 || w.Rank() != 2 {
		panic(fmt.Sprintf("tensor: MatMul requires rank 2, got %v x %v", x.Shape, w.Shape))
	}
	r, k := x.Shape[0], x.Shape[1]
	if w.Shape[0] != k {
		panic(fmt.Sprintf("tensor: MatMul inner dim mismatch %v x %v", x.Shape, w.Shape))
	}
	n := w.Shape[1]
	out := New(r, n)
	ParallelFor(r, func(rs, re int) {
		matMulRange(out.Data, x.Data, w.Data, k, n, rs, re)
	})
	return out
}

// BMM computes the batched product (b, m, k) x (b, k, n) -> (b, m, n),
// parallelised over batch entries.
func BMM(a, b *Tensor) *Tensor {
	if a.Rank() != 3 || b.Rank() != 3 {
		panic(fmt.Sprintf("tensor: BMM requires rank 3, got %v x %v", a.Shape, b.Shape))
	}
	if a.Shape[0] != b.Shape[0] || a.Shape[2] != b.Shape[1] {
		panic(fmt.Sprintf("tensor: BMM shape mismatch %v x %v", a.Shape, b.Shape))
	}
	nb, m, k := a.Shape[0], a.Shape[1], a.Shape[2]
	n := b.Shape[2]
	out := New(nb, m, n)
	ParallelFor(nb, func(bs, be int) {
		for i := bs; i < be; i++ {
			matMulRange(
				out.Data[i*m*n:(i+1)*m*n],
				a.Data[i*m*k:(i+1)*m*k],
				b.Data[i*k*n:(i+1)*k*n],
				k, n, 0, m,
			)
		}
	})
	return out
}

// BMMTransposeB computes (b, m, k) x (b, n, k)^T -> (b, m, n) without
// materialising the transpose. This is the Q*K^T score product, where both
// operands are stored row-major along the key dimension.
func BMMTransposeB(a, b *Tensor) *Tensor {
	if a.Rank() != 3 || b.Rank() != 3 {
		panic(fmt.Sprintf("tensor: BMMTransposeB requires rank 3, got %v x %v", a.Shape, b.Shape))
	}
	if a.Shape[0] != b.Shape[0] || a.Shape[2] != b.Shape[2] {
		panic(fmt.Sprintf("tensor: BMMTransposeB shape mismatch %v x %v", a.Shape, b.Shape))
	}
	nb, m, k := a.Shape[0], a.Shape[1], a.Shape[2]
	n := b.Shape[1]
	out := New(nb, m, n)
	ParallelFor(nb, func(bs, be int) {
		for bi := bs; bi < be; bi++ {
			aOff := bi * m * k
			bOff := bi * n * k
			oOff := bi * m * n
			for i := 0; i < m; i++ {
				arow := a.Data[aOff+i*k : aOff+(i+1)*k]
				for j := 0; j < n; j++ {
					brow := b.Data[bOff+j*k : bOff+(j+1)*k]
					out.Data[oOff+i*n+j] = Dot(arow, brow)
				}
			}
		}
	})
	return out
}
