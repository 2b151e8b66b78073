// Package stress drives a pipe with concurrent writers and readers and
// checks that every byte that went in came out.
package stress

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fastrand"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/aradilov/ringpipe"
	"github.com/aradilov/ringpipe/internal/config"
	"github.com/aradilov/ringpipe/metrics"
)

// Report summarizes one run.
type Report struct {
	RunID        string
	Duration     time.Duration
	BytesWritten uint64
	BytesRead    uint64
	SumWritten   uint64 // additive checksum of written bytes
	SumRead      uint64
	Resets       uint64
	Stats        ringpipe.Stats
}

// ErrMismatch is returned when the bytes read differ from the bytes written.
var ErrMismatch = errors.New("stress: bytes read differ from bytes written")

// Run executes one stress run described by cfg. The pipe is added to
// collector, when non-nil, for the duration of the run.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger, collector *metrics.Collector) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	runID := uuid.NewString()
	logger = logger.With(zap.String("run", runID))

	p := ringpipe.New(make([]byte, cfg.Pipe.Capacity),
		ringpipe.WithLogger(logger),
		ringpipe.WithName("stress-"+runID[:8]),
	)
	if collector != nil {
		collector.Add(p.Name(), p)
		defer collector.Remove(p.Name())
	}

	logger.Info("stress run starting",
		zap.Int("capacity", cfg.Pipe.Capacity),
		zap.Int("writers", cfg.Stress.Writers),
		zap.Int("readers", cfg.Stress.Readers),
		zap.Int("bytes_per_writer", cfg.Stress.BytesPerWriter),
		zap.Duration("reset_every", cfg.Stress.ResetEvery),
	)

	var (
		written, read       atomic.Uint64
		sumWritten, sumRead atomic.Uint64
		resets              atomic.Uint64
	)

	// a failing reader cancels the writers so they cannot block on a full pipe
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	writers, wctx := errgroup.WithContext(runCtx)
	for w := 0; w < cfg.Stress.Writers; w++ {
		writers.Go(func() error {
			n, sum, err := write(wctx, p, cfg)
			written.Add(n)
			sumWritten.Add(sum)
			return err
		})
	}

	readers, rctx := errgroup.WithContext(runCtx)
	for r := 0; r < cfg.Stress.Readers; r++ {
		readers.Go(func() error {
			n, sum, err := drain(rctx, p, cfg)
			read.Add(n)
			sumRead.Add(sum)
			if err != nil {
				cancel()
			}
			return err
		})
	}

	stopResets := make(chan struct{})
	resetsDone := make(chan struct{})
	go func() {
		defer close(resetsDone)
		if cfg.Stress.ResetEvery <= 0 {
			return
		}
		ticker := time.NewTicker(cfg.Stress.ResetEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.Reset()
				resets.Add(1)
			case <-stopResets:
				return
			}
		}
	}()

	werr := writers.Wait()
	close(stopResets)
	<-resetsDone
	p.Close()
	rerr := readers.Wait()

	report := Report{
		RunID:        runID,
		Duration:     time.Since(start),
		BytesWritten: written.Load(),
		BytesRead:    read.Load(),
		SumWritten:   sumWritten.Load(),
		SumRead:      sumRead.Load(),
		Resets:       resets.Load(),
		Stats:        p.Stats(),
	}

	if err := errors.Join(werr, rerr); err != nil {
		logger.Error("stress run failed", zap.Error(err))
		return report, err
	}
	// resets discard buffered bytes, so only runs without them must balance
	if report.Resets == 0 && (report.BytesRead != report.BytesWritten || report.SumRead != report.SumWritten) {
		logger.Error("stress run lost bytes",
			zap.Uint64("written", report.BytesWritten),
			zap.Uint64("read", report.BytesRead),
		)
		return report, fmt.Errorf("%w: wrote %d bytes (sum %d), read %d bytes (sum %d)", ErrMismatch,
			report.BytesWritten, report.SumWritten, report.BytesRead, report.SumRead)
	}

	logger.Info("stress run finished",
		zap.Duration("duration", report.Duration),
		zap.Uint64("bytes", report.BytesRead),
		zap.Uint64("waits", report.Stats.Waits),
		zap.Uint64("resets", report.Resets),
	)
	return report, nil
}

// write pushes cfg.Stress.BytesPerWriter random bytes through p in random
// chunks and returns how many were accepted and their sum.
func write(ctx context.Context, p *ringpipe.Pipe, cfg *config.Config) (uint64, uint64, error) {
	var limiter *rate.Limiter
	if cfg.Stress.WriteRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Stress.WriteRate), max(cfg.Stress.WriteRate, cfg.Stress.MaxChunk))
	}

	chunk := make([]byte, cfg.Stress.MaxChunk)
	var total, sum uint64
	for left := cfg.Stress.BytesPerWriter; left > 0; {
		size := min(int(fastrand.Uint32n(uint32(cfg.Stress.MaxChunk)))+1, left)
		if limiter != nil {
			if err := limiter.WaitN(ctx, size); err != nil {
				return total, sum, err
			}
		}

		for i := range chunk[:size] {
			chunk[i] = byte(fastrand.Uint32())
		}

		n, err := p.WriteContext(ctx, chunk[:size], cfg.Pipe.WriteTimeout)
		total += uint64(n)
		sum += byteSum(chunk[:n])
		left -= n

		switch {
		case err == nil:
		case errors.Is(err, ringpipe.ErrCancelled), errors.Is(err, ringpipe.ErrTimeout):
			// a reset or a slow reader; the chunk is retried fresh
			if errors.Is(err, ringpipe.ErrCancelled) && cfg.Stress.ResetEvery <= 0 {
				return total, sum, err
			}
		default:
			return total, sum, err
		}
	}
	return total, sum, nil
}

// drain reads until the pipe is closed and empty.
func drain(ctx context.Context, p *ringpipe.Pipe, cfg *config.Config) (uint64, uint64, error) {
	buf := make([]byte, cfg.Stress.MaxChunk)
	var total, sum uint64
	for {
		n, err := p.ReadAtLeast(ctx, buf, 1, cfg.Pipe.ReadTimeout)
		total += uint64(n)
		sum += byteSum(buf[:n])

		switch {
		case err == nil:
		case errors.Is(err, ringpipe.ErrClosed):
			return total, sum, nil
		case errors.Is(err, ringpipe.ErrTimeout):
		case errors.Is(err, ringpipe.ErrCancelled) && cfg.Stress.ResetEvery > 0:
		default:
			return total, sum, err
		}
	}
}

func byteSum(b []byte) uint64 {
	var s uint64
	for _, c := range b {
		s += uint64(c)
	}
	return s
}
