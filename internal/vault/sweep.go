package vault

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kaelvex/fabricd/internal/types"
)

// sweeper periodically logs credentials nearing expiry. Grounded on
// robfig/cron/v3 (adopted here rather than for a reminder/notification
// system — see SPEC_FULL.md §4.12, which keeps that feature out of
// scope — repurposing the same dependency for the vault's own
// housekeeping).
type sweeper struct {
	cron *cron.Cron
}

// StartExpirySweep runs an expiry check on the given cron schedule
// (standard 5-field expression, e.g. "0 */6 * * *" for every six hours)
// and logs any credential expiring within warnWithin. The sweep never
// deletes or mutates credentials; it only reports.
func (v *Vault) StartExpirySweep(schedule string, warnWithin time.Duration, log *zap.Logger) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		for _, cred := range v.ExpiringSoon(warnWithin) {
			log.Warn("credential expiring soon",
				zap.String("name", cred.Name),
				zap.String("credential_type", string(cred.Type)),
				zap.Timep("expires_at", cred.ExpiresAt),
			)
		}
	})
	if err != nil {
		return wrapErr("start_expiry_sweep", types.ErrInternal, err)
	}
	c.Start()
	v.mu.Lock()
	v.sweep = &sweeper{cron: c}
	v.mu.Unlock()
	return nil
}

func (s *sweeper) stop() {
	if s == nil || s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
