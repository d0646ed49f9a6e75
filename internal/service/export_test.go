package service

import "time"

// SetNow overrides the poller clock in tests.
func SetNow(p *Poller, now func() time.Time) {
	p.now = now
}
