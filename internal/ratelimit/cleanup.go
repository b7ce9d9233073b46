package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"rate-limiter/internal/common/errors"
	"rate-limiter/internal/common/logging"
)

// DefaultCleanupSchedule sweeps idle records every minute
const DefaultCleanupSchedule = "@every 1m"

// Janitor runs Engine.Cleanup on a cron schedule. Runs never overlap.
type Janitor struct {
	engine *Engine
	cron   *cron.Cron
	job    cron.Job
	logger logging.Logger
	// timeout bounds one cleanup run
	timeout time.Duration
}

// NewJanitor parses schedule (5-field cron or a descriptor such as "@every 30s")
func NewJanitor(engine *Engine, schedule string, logger logging.Logger) (*Janitor, error) {
	if schedule == "" {
		schedule = DefaultCleanupSchedule
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	cl := cronLogger{logger: logger}
	j := &Janitor{
		engine:  engine,
		logger:  logger,
		timeout: 30 * time.Second,
		cron:    cron.New(cron.WithLogger(cl)),
	}
	j.job = cron.NewChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)).Then(cron.FuncJob(j.run))
	if _, err := j.cron.AddJob(schedule, j.job); err != nil {
		return nil, errors.ConfigError("invalid cleanup schedule").WithContext("schedule", schedule).WithContext("error", err.Error())
	}
	return j, nil
}

func (j *Janitor) run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	removed, err := j.engine.Cleanup(ctx)
	if err != nil {
		j.logger.Error("Rate limit cleanup failed", err, logging.Field{Key: "removed", Value: removed})
		return
	}
	j.logger.Debug("Rate limit cleanup run",
		logging.Field{Key: "removed", Value: removed},
		logging.Field{Key: "duration_ms", Value: time.Since(start).Milliseconds()},
	)
}

func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop prevents further runs and waits for a running one to finish
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// cronLogger routes cron's scheduler and recovery messages through logging.
// Scheduler chatter is logged at debug.
type cronLogger struct {
	logger logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.logger.Debug("cron: "+msg, cronFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.logger.Error("cron: "+msg, err, cronFields(keysAndValues)...)
}

func cronFields(kv []interface{}) []logging.Field {
	fields := make([]logging.Field, 0, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		var value interface{}
		if i+1 < len(kv) {
			value = kv[i+1]
		}
		fields = append(fields, logging.Field{Key: key, Value: value})
	}
	return fields
}
