package engine

import (
	"time"

	"github.com/hillegass/fts/internal/normalize"
)

// Mode is the open-mode bitset: reader, writer, plus the modifiers
// create/truncate/nolock/lock-nonblock.
type Mode uint8

const (
	ModeReader Mode = 1 << iota
	ModeWriter
	ModeCreate
	ModeTruncate
	ModeNoLock
	ModeLockNonblock
)

func (m Mode) has(bit Mode) bool { return m&bit != 0 }

// Default tuning values, named after the original tcqdbtune/tcwdbtune
// parameter names so the mapping is obvious at a glance.
const (
	defaultBufferBytes   = 128 << 20 // icsiz
	defaultShardUnitSize = 256 << 20 // iusiz
	defaultExpectedTokens = 1 << 20  // expected token count, bucket sizing hint
	defaultFwmMax         = 2048     // fwmmax
	defaultSyncInterval   = 10 * time.Second
	bitmapSize            = 524287 // bucket count of the write buffer's deleted-id set
)

// TuningOpts mirrors the original tcqdbtune/tcwdbtune call. It is
// applied at Open through WithTuning, or after Open through SetTuning
// as long as no record has been written and no second shard exists.
type TuningOpts struct {
	ExpectedTokenCount int64
	ShardUnitSize      int64
}

// ProgressPhase names the nine declared sync/flush phases.
type ProgressPhase string

const (
	PhaseStarted               ProgressPhase = "started"
	PhaseGettingTokens         ProgressPhase = "getting tokens"
	PhaseSortingTokens         ProgressPhase = "sorting tokens"
	PhaseStoringTokens         ProgressPhase = "storing tokens"
	PhaseGettingDeletedTokens  ProgressPhase = "getting deleted tokens"
	PhaseSortingDeletedTokens  ProgressPhase = "sorting deleted tokens"
	PhaseStoringDeletedTokens  ProgressPhase = "storing deleted tokens"
	PhaseSynchronizingDatabase ProgressPhase = "synchronizing database"
	PhaseFinished              ProgressPhase = "finished"
)

// ProgressFunc is the cooperative-cancellation capability: it is called
// at each declared phase and a false return aborts the in-flight
// sync/flush, leaving the engine consistent-but-dirty.
type ProgressFunc func(phase ProgressPhase) bool

// config collects every Option, applied via c.apply(options).
type config struct {
	bufferBytes     int64
	shardUnitSize   int64
	expectedTokens  int64
	fwmMax          int
	syncInterval    time.Duration
	syncOnClose     int // memsync level used by Close
	wordSeparators  string
	normalizeOpts   normalize.Options
	progress        ProgressFunc
	devLogger       bool
}

func defaultConfig() config {
	return config{
		bufferBytes:    defaultBufferBytes,
		shardUnitSize:  defaultShardUnitSize,
		expectedTokens: defaultExpectedTokens,
		fwmMax:         defaultFwmMax,
		syncInterval:   defaultSyncInterval,
		syncOnClose:    2,
		normalizeOpts:  normalize.Lowercase | normalize.SpaceSquash,
	}
}

// Option configures an Engine before Open.
type Option func(*config)

// WithBufferBytes sets icsiz, the write-buffer flush threshold.
func WithBufferBytes(n int64) Option { return func(c *config) { c.bufferBytes = n } }

// WithTuning applies tcqdbtune/tcwdbtune-style settings.
func WithTuning(t TuningOpts) Option {
	return func(c *config) {
		if t.ExpectedTokenCount > 0 {
			c.expectedTokens = t.ExpectedTokenCount
		}
		if t.ShardUnitSize > 0 {
			c.shardUnitSize = t.ShardUnitSize
		}
	}
}

// WithFwmMax overrides fwmmax, the forward-match cap.
func WithFwmMax(n int) Option { return func(c *config) { c.fwmMax = n } }

// WithSyncInterval sets the background flush ticker period.
func WithSyncInterval(d time.Duration) Option { return func(c *config) { c.syncInterval = d } }

// WithSyncLevelOnClose sets the memsync level used by Close:
// 0=cache, 1=buffer->file, 2=fsync. Sync takes its level as an argument.
func WithSyncLevelOnClose(level int) Option { return func(c *config) { c.syncOnClose = level } }

// WithWordSeparators overrides the default word-splitting separator set
// (word variant only).
func WithWordSeparators(seps string) Option { return func(c *config) { c.wordSeparators = seps } }

// WithNormalization overrides the normalization options applied to
// both indexed text and search terms. Defaults to
// Lowercase|SpaceSquash; callers wanting accent folding must add
// normalize.NoAccent explicitly.
func WithNormalization(opts normalize.Options) Option {
	return func(c *config) { c.normalizeOpts = opts }
}

// WithProgress installs the cooperative-cancellation callback.
func WithProgress(fn ProgressFunc) Option { return func(c *config) { c.progress = fn } }

// WithDevelopmentLogging switches the engine's zap logger to
// zap.NewDevelopment() (human-readable, more verbose) instead of the
// default production JSON logger.
func WithDevelopmentLogging() Option { return func(c *config) { c.devLogger = true } }

func (c *config) apply(opts []Option) {
	for _, o := range opts {
		o(c)
	}
}

func (c *config) callProgress(phase ProgressPhase) bool {
	if c.progress == nil {
		return true
	}
	return c.progress(phase)
}
