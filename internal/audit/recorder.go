package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/meridianhealth/patient-portal/internal/log"
)

const (
	defaultBuffer       = 1024
	defaultWriteTimeout = 5 * time.Second
)

// RecorderOptions tunes the background writer. Zero values get defaults.
type RecorderOptions struct {
	Buffer       int
	WriteTimeout time.Duration
	// OnDrop is invoked once per entry lost to a full buffer or a sink
	// failure. Wired to a metrics counter.
	OnDrop func()
}

// Recorder decouples request handling from sink latency with a bounded
// queue and a single background writer.
type Recorder struct {
	sink    Sink
	l       log.Logger
	ch      chan Entry
	timeout time.Duration
	onDrop  func()
	dropped atomic.Int64
	dropLog *rate.Limiter

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewRecorder(sink Sink, l log.Logger, opts RecorderOptions) *Recorder {
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}

	r := &Recorder{
		sink:    sink,
		l:       l,
		ch:      make(chan Entry, opts.Buffer),
		timeout: opts.WriteTimeout,
		onDrop:  opts.OnDrop,
		dropLog: rate.NewLimiter(rate.Every(time.Second), 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues an entry without blocking. Entries are dropped when the
// queue is full.
func (r *Recorder) Record(e Entry) {
	select {
	case r.ch <- e:
	default:
		r.drop(e, nil)
	}
}

// Dropped reports how many entries were lost since startup.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Close stops the writer after draining queued entries.
func (r *Recorder) Close(ctx context.Context) error {
	r.stopOnce.Do(func() { close(r.stop) })
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for {
		select {
		case e := <-r.ch:
			r.write(e)
		case <-r.stop:
			// drain whatever is buffered, then exit
			for {
				select {
				case e := <-r.ch:
					r.write(e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.sink.Write(ctx, e); err != nil {
		r.drop(e, err)
	}
}

func (r *Recorder) drop(e Entry, err error) {
	r.dropped.Add(1)
	if r.onDrop != nil {
		r.onDrop()
	}
	// drops can come in bursts, keep the log readable
	if !r.dropLog.Allow() {
		return
	}
	if err != nil {
		r.l.Error(context.Background(), err, "audit entry dropped",
			"request_id", e.RequestID,
			"dropped_total", r.dropped.Load(),
		)
		return
	}
	r.l.Warn(context.Background(), "audit entry dropped, buffer full",
		"request_id", e.RequestID,
		"dropped_total", r.dropped.Load(),
	)
}
