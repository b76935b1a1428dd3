package report

import (
	"fmt"
	"time"

	"github.com/walletreel/walletreel/models"
)

// Group is one non-empty time bucket produced by Partition.
type Group struct {
	Index        int
	Start        int64
	End          int64
	Transactions []models.Transaction
}

// Label renders the bucket bounds as a date range.
func (g Group) Label() string {
	start := time.Unix(g.Start, 0).UTC().Format("2006-01-02")
	end := time.Unix(g.End, 0).UTC().Format("2006-01-02")
	if start == end {
		return start
	}
	return fmt.Sprintf("%s to %s", start, end)
}

// Partition splits txs into n equal-width buckets over the observed
// timestamp range. Every transaction lands in exactly one bucket, the last
// bucket is closed on the right, and empty buckets are dropped. Input order
// is preserved inside each bucket.
func Partition(txs []models.Transaction, n int) []Group {
	if len(txs) == 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}

	lo, hi := txs[0].Unix(), txs[0].Unix()
	for _, tx := range txs[1:] {
		ts := tx.Unix()
		if ts < lo {
			lo = ts
		}
		if ts > hi {
			hi = ts
		}
	}

	span := hi - lo
	if span == 0 {
		return []Group{{
			Index:        0,
			Start:        lo,
			End:          hi,
			Transactions: append([]models.Transaction(nil), txs...),
		}}
	}

	buckets := make([][]models.Transaction, n)
	for _, tx := range txs {
		idx := int((tx.Unix() - lo) * int64(n) / span)
		if idx >= n {
			idx = n - 1
		}
		buckets[idx] = append(buckets[idx], tx)
	}

	groups := make([]Group, 0, n)
	for i, bucket := range buckets {
		if len(bucket) == 0 {
			continue
		}
		start, end := bucketBounds(lo, hi, span, int64(i), int64(n))
		groups = append(groups, Group{
			Index:        i,
			Start:        start,
			End:          end,
			Transactions: bucket,
		})
	}
	return groups
}

func bucketBounds(lo, hi, span, i, n int64) (int64, int64) {
	start := lo + i*span/n
	if i == n-1 {
		return start, hi
	}
	// ceil so that integer division never leaves a member outside its bucket
	end := lo + ((i+1)*span+n-1)/n
	return start, end
}

// PeriodsFor picks a period count for a request spanning days.
func PeriodsFor(days int) int {
	switch {
	case days <= 0:
		return 1
	case days <= 7:
		return days
	case days <= 31:
		return 4
	default:
		periods := (days + 29) / 30
		if periods > 12 {
			periods = 12
		}
		return periods
	}
}
