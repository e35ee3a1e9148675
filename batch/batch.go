package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/guabee/ncpbuf/framebuf"
	conf "github.com/guabee/ncpbuf/ncp/config"
	"github.com/guabee/ncpbuf/ncp/debug"
	"github.com/guabee/ncpbuf/ncp/log"
	"github.com/guabee/ncpbuf/ncp/message"
)

var (
	BuildVersion = "v0.0.0-build.0"
	CommitID     = "Local"
	BuildTime    = "2006-01-02 15:04:05"
	BuildName    = "Spinel"
)

type Result struct {
	Rounds     int           `json:"rounds"`
	Written    int           `json:"written"`
	High       int           `json:"high"`
	Read       int           `json:"read"`
	Overflows  int           `json:"overflows"`
	Mismatches int           `json:"mismatches"`
	Messages   int           `json:"messages"`
	Bytes      int           `json:"bytes"`
	Leaked     int           `json:"leaked"`
	Elapsed    time.Duration `json:"elapsed"`
}

func (r Result) Ok() bool {
	return r.Mismatches == 0 && r.Leaked == 0 && r.Written == r.Read
}

type batchRunner struct {
	config  conf.BatchConfig
	rand    *rand.Rand
	buf     *framebuf.FrameBuffer
	pool    *message.Pool
	pending [2][][]byte
	result  Result
	logger  *log.Entry
}

func newBatchRunner(config conf.BatchConfig) (*batchRunner, error) {
	buf, err := framebuf.New(make([]byte, config.BufferSize), framebuf.WithName("batch"))
	if err != nil {
		return nil, err
	}
	return &batchRunner{
		config: config,
		rand:   rand.New(rand.NewSource(config.Seed)),
		buf:    buf,
		pool:   message.NewPool(config.PoolSize, config.MaxFrameSize),
		logger: log.NewLoggerEntry("batch"),
	}, nil
}

func (b *batchRunner) randomBytes(n int) []byte {
	data := make([]byte, n)
	b.rand.Read(data)
	return data
}

// write produces one frame of random chunks, some of them as messages.
func (b *batchRunner) write() {
	priority := framebuf.PriorityLow
	if b.rand.Intn(100) < b.config.HighPercent {
		priority = framebuf.PriorityHigh
	}
	in := b.buf.In()
	in.BeginWithPriority(priority)

	var expected []byte
	size := 1 + b.rand.Intn(b.config.MaxFrameSize)
	for len(expected) < size {
		chunk := b.randomBytes(1 + b.rand.Intn(size-len(expected)))
		if b.rand.Intn(100) < b.config.MessagePercent {
			msg, err := b.pool.New(chunk)
			if err != nil {
				break
			}
			if err := in.FeedMessage(msg); err != nil {
				msg.Free()
				b.result.Overflows++
				return
			}
			b.result.Messages++
		} else if err := in.FeedData(chunk); err != nil {
			b.result.Overflows++
			return
		}
		expected = append(expected, chunk...)
	}
	if len(expected) == 0 {
		in.Begin()
		return
	}

	in.End()
	b.pending[priority] = append(b.pending[priority], expected)
	if priority == framebuf.PriorityHigh {
		b.result.High++
	}
	b.result.Written++
	b.result.Bytes += len(expected)
}

func (b *batchRunner) read() {
	out := b.buf.Out()
	if out.Begin() != nil {
		return
	}

	// high priority frames must all drain before any low priority one
	priority := out.Priority()
	if len(b.pending[framebuf.PriorityHigh]) > 0 && priority != framebuf.PriorityHigh {
		b.result.Mismatches++
		b.logger.Errorf("frame %d read before %d high priority frames", out.Tag(), len(b.pending[framebuf.PriorityHigh]))
		priority = framebuf.PriorityHigh
	}

	if len(b.pending[priority]) == 0 {
		b.result.Mismatches++
		b.logger.Errorf("unexpected %s priority frame %d", priority, out.Tag())
		_ = out.Remove()
		return
	}

	got := make([]byte, out.Length())
	got = got[:out.ReadFrame(got)]
	expected := b.pending[priority][0]
	b.pending[priority] = b.pending[priority][1:]
	if !bytes.Equal(expected, got) || !out.HasEnded() {
		b.result.Mismatches++
		b.logger.Errorf("frame %d mismatch, expected %d bytes got %d", out.Tag(), len(expected), len(got))
	}
	_ = out.Remove()
	b.result.Read++
}

func (b *batchRunner) run() Result {
	start := time.Now()
	for i := 0; i < b.config.Rounds; i++ {
		if b.rand.Intn(2) == 0 {
			b.write()
		} else {
			b.read()
		}
	}
	for !b.buf.IsEmpty() {
		b.read()
	}
	b.result.Rounds = b.config.Rounds
	b.result.Leaked = b.pool.InUse()
	b.result.Elapsed = time.Since(start)
	return b.result
}

func main() {
	fmt.Printf("%s %s %s %s\n", BuildVersion, BuildName, CommitID, BuildTime)
	config := conf.ParseConfig()
	if conf.VersionOnly() {
		os.Exit(0)
	}
	debug.Setup(debug.WithDefaultLogLevel(config.LogLevel), debug.WithDebugLogModules(config.DebugModules))

	batchConfig := conf.GetDefaultBatchConfig()
	if config.Batch != nil {
		batchConfig = *config.Batch
	}

	runner, err := newBatchRunner(batchConfig)
	if err != nil {
		fmt.Println("batch config error:", err)
		os.Exit(1)
	}
	result := runner.run()

	data, err := json.MarshalIndent(result, "", "  ")
	if err == nil {
		err = os.WriteFile(batchConfig.ResultFile, data, 0666)
	}
	if err != nil {
		fmt.Println("write result file error", err)
	}
	fmt.Println(string(data))
	if !result.Ok() {
		os.Exit(1)
	}
}
