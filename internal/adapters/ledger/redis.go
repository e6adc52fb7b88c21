// Package ledger holds dedup ledger backends shared between engine replicas.
package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/dosewatch/internal/domain/dedupe"
	"github.com/okian/dosewatch/internal/domain/model"
	"github.com/okian/dosewatch/pkg/logger"
	"github.com/okian/dosewatch/pkg/metrics"
)

const (
	defaultPrefix = "dosewatch:ledger"
	defaultExpiry = 48 * time.Hour
	scanCount     = 200
	keyParts      = 4
)

// RedisLedger implements dedupe.Ledger on redis with SET NX.
type RedisLedger struct {
	client redis.UniversalClient
	prefix string
	expiry time.Duration
	log    logger.Logger
}

var _ dedupe.Ledger = (*RedisLedger)(nil)

// NewRedisLedger creates a ledger on client.
func NewRedisLedger(client redis.UniversalClient, opts ...Option) *RedisLedger {
	l := &RedisLedger{
		client: client,
		prefix: defaultPrefix,
		expiry: defaultExpiry,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.log == nil {
		l.log = logger.Get().Named("ledger")
	}
	return l
}

// Key returns the redis key of a dose instance.
func (l *RedisLedger) Key(d model.DoseInstance) string {
	return fmt.Sprintf("%s:%s:%d:%d:%s", l.prefix, d.Date, d.MedicationID, d.PatientID, d.Slot)
}

// TryMarkAlerted sets the key only if absent. A backend failure counts as
// "already marked": a missed alert is preferred over a duplicate one.
func (l *RedisLedger) TryMarkAlerted(ctx context.Context, key model.DoseInstance) bool {
	ok, err := l.client.SetNX(ctx, l.Key(key), time.Now().UTC().Format(time.RFC3339), l.expiry).Result()
	if err != nil {
		metrics.RecordLedgerError()
		l.log.Error(ctx, "ledger mark failed", logger.String("dose", key.String()), logger.Error(err))
		return false
	}
	return ok
}

// EvictOlderThan deletes keys dated before cutoff. Keys that do not parse
// are left alone.
func (l *RedisLedger) EvictOlderThan(ctx context.Context, cutoff model.Date) int {
	keys, err := l.scan(ctx)
	if err != nil {
		metrics.RecordLedgerError()
		l.log.Error(ctx, "ledger scan failed", logger.Error(err))
		return 0
	}

	var stale []string
	for _, k := range keys {
		d, ok := l.parse(k)
		if !ok {
			l.log.Debug(ctx, "ledger key skipped", logger.String("key", k))
			continue
		}
		if d.Date.Before(cutoff) {
			stale = append(stale, k)
		}
	}
	if len(stale) == 0 {
		return 0
	}

	n, err := l.client.Del(ctx, stale...).Result()
	if err != nil {
		metrics.RecordLedgerError()
		l.log.Error(ctx, "ledger evict failed", logger.Int("keys", len(stale)), logger.Error(err))
		return 0
	}
	return int(n)
}

// Len counts the ledger keys.
func (l *RedisLedger) Len(ctx context.Context) int {
	keys, err := l.scan(ctx)
	if err != nil {
		metrics.RecordLedgerError()
		l.log.Error(ctx, "ledger scan failed", logger.Error(err))
		return 0
	}
	return len(keys)
}

func (l *RedisLedger) scan(ctx context.Context) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		k, next, err := l.client.Scan(ctx, cursor, l.prefix+":*", scanCount).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, k...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// parse splits "<prefix>:<date>:<med>:<patient>:<slot>". The slot keeps
// its own colon, hence SplitN.
func (l *RedisLedger) parse(key string) (model.DoseInstance, bool) {
	rest, ok := strings.CutPrefix(key, l.prefix+":")
	if !ok {
		return model.DoseInstance{}, false
	}
	parts := strings.SplitN(rest, ":", keyParts)
	if len(parts) != keyParts {
		return model.DoseInstance{}, false
	}
	date, err := model.ParseDate(parts[0])
	if err != nil {
		return model.DoseInstance{}, false
	}
	med, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return model.DoseInstance{}, false
	}
	patient, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return model.DoseInstance{}, false
	}
	return model.DoseInstance{MedicationID: med, PatientID: patient, Date: date, Slot: parts[3]}, true
}
