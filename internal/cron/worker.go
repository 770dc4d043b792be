package cron

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/enermarket/backoffice/internal/alerting"
	"github.com/enermarket/backoffice/internal/config"
	"github.com/enermarket/backoffice/internal/metrics"
	"github.com/enermarket/backoffice/internal/storage"
)

const (
	jobName             = "cleanup"
	cleanupLockKey      = int64(71)
	intervalSettingName = "cleanup_interval_seconds"
)

// Run starts the cleanup worker: it purges suggested rates orphaned by
// deleted studies and removes expired tokens. A Postgres advisory lock
// makes sure only one worker per cluster executes a run.
func Run(ctx context.Context, cfg config.Config) error {
	st, err := storage.Open(ctx, storage.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN})
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer st.Close()

	alerter := alerting.NewAlerter(alerting.DefaultAlertConfig())

	intervalSetting := cfg.CronInterval
	if val, err := st.GetSetting(ctx, intervalSettingName); err == nil && val != "" {
		intervalSetting = val
	}

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	// The setting is either integer seconds or a cron expression.
	getNextRun := func(setting string, lastRun time.Time) time.Time {
		if v, err := strconv.Atoi(setting); err == nil && v > 0 {
			return lastRun.Add(time.Duration(v) * time.Second)
		}
		if sched, err := cron.ParseStandard(setting); err == nil {
			return sched.Next(lastRun)
		}
		return lastRun.Add(time.Hour)
	}

	nextRun := time.Now()
	log.Printf("cron: worker starting, interval=%q driver=%s", intervalSetting, cfg.DBDriver)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if val, err := st.GetSetting(ctx, intervalSettingName); err == nil && val != "" && val != intervalSetting {
				log.Printf("cron: interval updated from %q to %q", intervalSetting, val)
				intervalSetting = val
				nextRun = getNextRun(intervalSetting, time.Now())
			}

			if time.Now().Before(nextRun) {
				continue
			}

			started := time.Now()

			ok, err := st.AcquireAdvisoryLock(ctx, cleanupLockKey)
			if err != nil {
				log.Printf("cron: acquire advisory lock failed: %v", err)
				metrics.UpdateJobMetrics(jobName, started, err)
				nextRun = getNextRun(intervalSetting, time.Now())
				continue
			}
			if !ok {
				log.Printf("cron: advisory lock held by another worker, skipping run")
				nextRun = getNextRun(intervalSetting, time.Now())
				continue
			}

			runErr := func() error {
				defer func() {
					if _, err := st.ReleaseAdvisoryLock(ctx, cleanupLockKey); err != nil {
						log.Printf("cron: release advisory lock failed: %v", err)
					}
				}()
				return runCleanup(ctx, st)
			}()

			metrics.UpdateJobMetrics(jobName, started, runErr)
			dur := time.Since(started)
			errMsg := ""
			if runErr != nil {
				errMsg = runErr.Error()
			}
			if err := st.UpdateScheduledJob(ctx, jobName, started, dur, runErr == nil, errMsg); err != nil {
				log.Printf("cron: update scheduled_jobs failed: %v", err)
			}

			if runErr != nil {
				log.Printf("cron: job %s completed with error: %v (duration=%s)", jobName, runErr, dur)
				if err := alerter.SendJobAlert(ctx, alerting.JobAlert{
					JobName:   jobName,
					Error:     runErr.Error(),
					Duration:  dur,
					Timestamp: time.Now(),
				}); err != nil {
					log.Printf("cron: send alert failed: %v", err)
				}
			} else {
				log.Printf("cron: job %s completed successfully (duration=%s)", jobName, dur)
			}

			nextRun = getNextRun(intervalSetting, time.Now())
		}
	}
}

func runCleanup(ctx context.Context, st storage.Storage) error {
	orphans, err := st.PurgeOrphanSuggestedRates(ctx)
	if err != nil {
		return fmt.Errorf("purge orphan suggested rates: %w", err)
	}
	tokens, err := st.DeleteExpiredTokens(ctx)
	if err != nil {
		return fmt.Errorf("delete expired tokens: %w", err)
	}
	log.Printf("cron: cleanup removed %d orphan suggestions, %d expired tokens", orphans, tokens)
	return nil
}
